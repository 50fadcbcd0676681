package dfs

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInProcessArchiverBuildArchive(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.pdf"), []byte("alpha"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.pdf"), []byte("beta"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "c.txt"), []byte("ignored"), 0o644))

	a := InProcessArchiver{}
	data, size, err := a.BuildArchive(root, ExtPDF)
	require.NoError(t, err)
	defer data.Close()
	require.Positive(t, size)

	gz, err := gzip.NewReader(data)
	require.NoError(t, err)
	tr := tar.NewReader(gz)

	var names []string
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		names = append(names, hdr.Name)
	}
	require.ElementsMatch(t, []string{"a.pdf", "b.pdf"}, names)
}

func TestInProcessArchiverNoFiles(t *testing.T) {
	root := t.TempDir()
	a := InProcessArchiver{}
	_, _, err := a.BuildArchive(root, ExtZIP)
	require.True(t, errors.Is(err, ErrNoFiles))
}

func TestWalkExtensionMissingRootIsEmpty(t *testing.T) {
	matches, err := walkExtension(filepath.Join(t.TempDir(), "does-not-exist"), ExtTXT)
	require.NoError(t, err)
	require.Empty(t, matches)
}
