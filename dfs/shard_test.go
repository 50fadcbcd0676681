package dfs

import (
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestShard(t *testing.T, ext Extension) (*Shard, string) {
	t.Helper()
	home := t.TempDir()
	cfg := ShardConfig{Extension: ext, Home: home}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewShard(cfg, logger), cfg.Root()
}

func pipeConns(t *testing.T) (*LineConn, *LineConn) {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() { a.Close(); b.Close() })
	return NewLineConn(a), NewLineConn(b)
}

func TestShardHandleReceiveAndSend(t *testing.T) {
	shard, root := newTestShard(t, ExtPDF)
	server, client := pipeConns(t)

	content := "%PDF-1.4 fake contents"
	destDir := "/does/not/matter/S2/docs"

	done := make(chan struct{})
	go func() {
		defer close(done)
		shard.handleReceive(server, []string{"report.pdf", destDir})
	}()

	resp, err := client.ReadLine()
	require.NoError(t, err)
	require.Equal(t, TokReadyToReceive, resp)

	require.NoError(t, client.SendPayload(strings.NewReader(content), int64(len(content))))

	status, err := client.ReadLine()
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(status, StatusSuccessPrefix), "status = %q", status)
	<-done

	stored, err := os.ReadFile(filepath.Join(root, "docs", "report.pdf"))
	require.NoError(t, err)
	require.Equal(t, content, string(stored))

	// No leftover temp file from the sibling-temp + rename discipline.
	entries, err := os.ReadDir(filepath.Join(root, "docs"))
	require.NoError(t, err)
	require.Len(t, entries, 1)

	server2, client2 := pipeConns(t)
	done2 := make(chan struct{})
	go func() {
		defer close(done2)
		shard.handleSend(server2, []string{"/does/not/matter/S2/docs/report.pdf"})
	}()

	resp2, err := client2.ReadLine()
	require.NoError(t, err)
	require.Equal(t, TokReadyToSend, resp2)

	var buf strings.Builder
	_, err = client2.ReceivePayload(&buf)
	require.NoError(t, err)
	require.Equal(t, content, buf.String())
	_, err = client2.ReadLine()
	require.NoError(t, err)
	<-done2
}

func TestShardHandleReceiveRejectsWrongExtension(t *testing.T) {
	shard, _ := newTestShard(t, ExtPDF)
	server, client := pipeConns(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		shard.handleReceive(server, []string{"notes.txt", "/any/S2"})
	}()

	resp, err := client.ReadLine()
	require.NoError(t, err)
	require.Equal(t, TokInvalidFiletype, resp)
	<-done
}

func TestShardHandleReceiveRenamesSiblingTempOnSuccess(t *testing.T) {
	shard, root := newTestShard(t, ExtPDF)
	destDir := "/does/not/matter/S2/docs"
	localDir := filepath.Join(root, "docs")
	tmpPath := filepath.Join(localDir, ".report.pdf.dfstmp")
	finalPath := filepath.Join(localDir, "report.pdf")

	staged, err := os.CreateTemp(t.TempDir(), "staged-*")
	require.NoError(t, err)

	mockFS := &MockFileStore{}
	mockFS.On("MkdirAll", localDir, os.FileMode(0o755)).Return(nil)
	mockFS.On("Create", tmpPath).Return(staged, nil)
	mockFS.On("Rename", tmpPath, finalPath).Return(nil)
	shard.FS = mockFS

	server, client := pipeConns(t)
	content := "%PDF-1.4 fake contents"
	done := make(chan struct{})
	go func() {
		defer close(done)
		shard.handleReceive(server, []string{"report.pdf", destDir})
	}()

	resp, err := client.ReadLine()
	require.NoError(t, err)
	require.Equal(t, TokReadyToReceive, resp)
	require.NoError(t, client.SendPayload(strings.NewReader(content), int64(len(content))))
	status, err := client.ReadLine()
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(status, StatusSuccessPrefix), "status=%q", status)
	<-done

	mockFS.AssertCalled(t, "Rename", tmpPath, finalPath)
	mockFS.AssertNotCalled(t, "Remove", mock.Anything)
}

func TestShardHandleReceiveRemovesSiblingTempOnFailure(t *testing.T) {
	shard, root := newTestShard(t, ExtPDF)
	destDir := "/does/not/matter/S2/docs"
	localDir := filepath.Join(root, "docs")
	tmpPath := filepath.Join(localDir, ".report.pdf.dfstmp")

	staged, err := os.CreateTemp(t.TempDir(), "staged-*")
	require.NoError(t, err)

	mockFS := &MockFileStore{}
	mockFS.On("MkdirAll", localDir, os.FileMode(0o755)).Return(nil)
	mockFS.On("Create", tmpPath).Return(staged, nil)
	mockFS.On("Remove", tmpPath).Return(nil)
	shard.FS = mockFS

	server, client := pipeConns(t)
	done := make(chan struct{})
	go func() {
		defer close(done)
		shard.handleReceive(server, []string{"report.pdf", destDir})
	}()

	resp, err := client.ReadLine()
	require.NoError(t, err)
	require.Equal(t, TokReadyToReceive, resp)

	// Announce a size larger than what actually arrives, then hang up:
	// the shard's RelayN sees a short read and the sibling temp is
	// removed instead of renamed onto the final path.
	require.NoError(t, client.SendSize(10))
	ack, err := client.ReadLine()
	require.NoError(t, err)
	require.Equal(t, TokReady, ack)
	client.Close()
	<-done

	mockFS.AssertCalled(t, "Remove", tmpPath)
	mockFS.AssertNotCalled(t, "Rename", mock.Anything, mock.Anything)
}

func TestShardHandleRemove(t *testing.T) {
	shard, root := newTestShard(t, ExtZIP)
	require.NoError(t, os.MkdirAll(root, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "bundle.zip"), []byte("pk\x03\x04"), 0o644))

	server, client := pipeConns(t)
	done := make(chan struct{})
	go func() {
		defer close(done)
		shard.handleRemove(server, []string{"/any/S4/bundle.zip"})
	}()

	status, err := client.ReadLine()
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(status, StatusSuccessPrefix))
	<-done

	_, err = os.Stat(filepath.Join(root, "bundle.zip"))
	require.True(t, os.IsNotExist(err))
}

func TestShardHandleRemoveMissingFileReturnsError(t *testing.T) {
	shard, _ := newTestShard(t, ExtZIP)
	server, client := pipeConns(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		shard.handleRemove(server, []string{"/any/S4/does-not-exist.zip"})
	}()

	status, err := client.ReadLine()
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(status, StatusErrorPrefix), "status=%q", status)
	<-done
}

func TestShardHandleListMissingDirIsEmptyNotError(t *testing.T) {
	shard, _ := newTestShard(t, ExtTXT)
	server, client := pipeConns(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		shard.handleList(server, []string{"/any/S3/does-not-exist", "txt"})
	}()

	resp, err := client.ReadLine()
	require.NoError(t, err)
	require.Equal(t, TokReadyToSend, resp)

	var buf strings.Builder
	_, err = client.ReceivePayload(&buf)
	require.NoError(t, err)
	require.Empty(t, buf.String())
	_, err = client.ReadLine()
	require.NoError(t, err)
	<-done
}

func TestShardHandleListSortsAndFiltersByExtension(t *testing.T) {
	shard, root := newTestShard(t, ExtTXT)
	require.NoError(t, os.MkdirAll(root, 0o755))
	for _, name := range []string{"zzz.txt", "aaa.txt", "skip.pdf"} {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte("x"), 0o644))
	}

	server, client := pipeConns(t)
	done := make(chan struct{})
	go func() {
		defer close(done)
		shard.handleList(server, []string{"/any/S3", "txt"})
	}()

	resp, err := client.ReadLine()
	require.NoError(t, err)
	require.Equal(t, TokReadyToSend, resp)

	var buf strings.Builder
	_, err = client.ReceivePayload(&buf)
	require.NoError(t, err)
	require.Equal(t, "aaa.txt\nzzz.txt\n", buf.String())
	_, err = client.ReadLine()
	require.NoError(t, err)
	<-done
}

func TestShardHandleCreateTarNoFiles(t *testing.T) {
	shard, _ := newTestShard(t, ExtZIP)
	server, client := pipeConns(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		shard.handleCreateTar(server, []string{"zip"})
	}()

	resp, err := client.ReadLine()
	require.NoError(t, err)
	require.Equal(t, TokNoFiles, resp)
	<-done
}
