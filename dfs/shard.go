package dfs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Shard owns the storage subtree for a single non-C extension. It accepts
// exactly one command per connection and closes the connection when the
// command finishes.
type Shard struct {
	Config   ShardConfig
	FS       FileStore
	Archiver Archiver
	Logger   *slog.Logger
}

// NewShard constructs a Shard with production defaults for any field left
// zero-valued by cfg.
func NewShard(cfg ShardConfig, logger *slog.Logger) *Shard {
	var archiver Archiver
	if cfg.Archiver == "subprocess" {
		archiver = SubprocessArchiver{}
	} else {
		archiver = InProcessArchiver{}
	}
	return &Shard{Config: cfg, FS: OSFileStore{}, Archiver: archiver, Logger: logger}
}

// ListenAndServe accepts sub-connections on ln until ctx is cancelled or
// Accept fails. Each sub-connection is handled in its own goroutine joined
// through a WaitGroup, instead of a fork-per-connection, signal-reaped
// child process model.
func (s *Shard) ListenAndServe(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	var wg sync.WaitGroup
	for {
		conn, err := ln.Accept()
		if err != nil {
			wg.Wait()
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer conn.Close()
			s.handleConnection(conn)
		}()
	}
}

func (s *Shard) handleConnection(conn net.Conn) {
	remote := conn.RemoteAddr().String()
	defer RecoverConnection(s.Logger, remote)

	lc := NewLineConn(conn)
	line, err := lc.ReadLine()
	if err != nil {
		s.Logger.Debug("sub-connection closed before a command arrived", "remoteAddr", remote, "err", err)
		return
	}

	cmd := ParseCommand(line)
	s.Logger.Debug("shard command", "remoteAddr", remote, "dump", dumpCommand(cmd))

	switch cmd.Verb {
	case CmdReceive:
		s.handleReceive(lc, cmd.Args)
	case CmdSend:
		s.handleSend(lc, cmd.Args)
	case CmdRemove:
		s.handleRemove(lc, cmd.Args)
	case CmdList:
		s.handleList(lc, cmd.Args)
	case CmdCreateTar:
		s.handleCreateTar(lc, cmd.Args)
	default:
		_ = lc.WriteLine(errorLine("unknown command %q", cmd.Verb))
	}
}

func (s *Shard) extensionMatches(name string) bool {
	ext, ok := ExtensionOf(name)
	return ok && ext == s.Config.Extension
}

func (s *Shard) handleReceive(lc *LineConn, args []string) {
	if len(args) != 2 {
		_ = lc.WriteLine(errorLine("RECEIVE requires <basename> <destdir>"))
		return
	}
	basename, destdir := args[0], args[1]

	if !s.extensionMatches(basename) {
		_ = lc.WriteLine(TokInvalidFiletype)
		return
	}

	localDir, err := ShardLocalPath(destdir, s.Config.Root(), s.Config.Extension)
	if err != nil {
		_ = lc.WriteLine(errorLine("%v", err))
		return
	}

	if err := s.FS.MkdirAll(localDir, 0o755); err != nil {
		_ = lc.WriteLine(errorLine("failed to create destination directory: %v", err))
		return
	}

	if err := lc.WriteLine(TokReadyToReceive); err != nil {
		return
	}

	finalPath := filepath.Join(localDir, basename)
	tmpPath := filepath.Join(localDir, "."+basename+".dfstmp")

	f, err := s.FS.Create(tmpPath)
	if err != nil {
		_ = lc.WriteLine(errorLine("failed to stage upload: %v", err))
		return
	}
	_, recvErr := lc.ReceivePayload(f)
	_ = f.Close()
	if recvErr != nil {
		_ = s.FS.Remove(tmpPath)
		_ = lc.WriteLine(errorLine("upload failed: %v", recvErr))
		return
	}

	// Sibling-temp + rename-on-success: a truncated file is never visible
	// at its final path, since the content only appears at finalPath once
	// fully written.
	if err := s.FS.Rename(tmpPath, finalPath); err != nil {
		_ = s.FS.Remove(tmpPath)
		_ = lc.WriteLine(errorLine("failed to finalize upload: %v", err))
		return
	}

	_ = lc.WriteLine(successLine("file received"))
}

func (s *Shard) handleSend(lc *LineConn, args []string) {
	if len(args) != 1 {
		_ = lc.WriteLine(errorLine("SEND requires <path>"))
		return
	}
	path := args[0]

	if !s.extensionMatches(path) {
		_ = lc.WriteLine(TokInvalidFiletype)
		return
	}

	local, err := ShardLocalPath(path, s.Config.Root(), s.Config.Extension)
	if err != nil {
		_ = lc.WriteLine(errorLine("%v", err))
		return
	}

	info, err := s.FS.Stat(local)
	if err != nil || info.IsDir() {
		_ = lc.WriteLine(errorLine("file not found"))
		return
	}

	f, err := s.FS.Open(local)
	if err != nil {
		_ = lc.WriteLine(errorLine("failed to open file: %v", err))
		return
	}
	defer f.Close()

	if err := lc.WriteLine(TokReadyToSend); err != nil {
		return
	}
	if err := lc.SendPayload(f, info.Size()); err != nil {
		s.Logger.Error("send failed", "path", local, "err", err)
		return
	}
	_ = lc.WriteLine(successLine("file sent"))
}

func (s *Shard) handleRemove(lc *LineConn, args []string) {
	if len(args) != 1 {
		_ = lc.WriteLine(errorLine("REMOVE requires <path>"))
		return
	}
	path := args[0]

	if !s.extensionMatches(path) {
		_ = lc.WriteLine(TokInvalidFiletype)
		return
	}

	local, err := ShardLocalPath(path, s.Config.Root(), s.Config.Extension)
	if err != nil {
		_ = lc.WriteLine(errorLine("%v", err))
		return
	}

	if err := s.FS.Remove(local); err != nil {
		_ = lc.WriteLine(errorLine("file not found"))
		return
	}
	_ = lc.WriteLine(successLine("file removed"))
}

func (s *Shard) handleList(lc *LineConn, args []string) {
	if len(args) != 2 {
		_ = lc.WriteLine(errorLine("LIST requires <dir> <ext>"))
		return
	}
	dir := args[0]
	ext := Extension(strings.ToLower(args[1]))

	if ext != s.Config.Extension {
		_ = lc.WriteLine(TokInvalidFiletype)
		return
	}

	local, err := ShardLocalPath(dir, s.Config.Root(), s.Config.Extension)
	if err != nil {
		_ = lc.WriteLine(errorLine("%v", err))
		return
	}

	names, err := s.listNames(local)
	if err != nil {
		_ = lc.WriteLine(errorLine("failed to list directory: %v", err))
		return
	}

	listing := ""
	if len(names) > 0 {
		listing = strings.Join(names, "\n") + "\n"
	}

	if err := lc.WriteLine(TokReadyToSend); err != nil {
		return
	}
	if err := lc.SendPayload(strings.NewReader(listing), int64(len(listing))); err != nil {
		s.Logger.Error("list send failed", "dir", local, "err", err)
		return
	}
	_ = lc.WriteLine(successLine("listing sent"))
}

// listNames returns the regular files directly in dir whose extension
// matches the shard's own, sorted lexicographically by byte value. A
// missing directory yields an empty result rather than an error, so
// aggregation queries against not-yet-created subtrees degrade gracefully.
func (s *Shard) listNames(dir string) ([]string, error) {
	entries, err := s.FS.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if ext, ok := ExtensionOf(e.Name()); ok && ext == s.Config.Extension {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *Shard) handleCreateTar(lc *LineConn, args []string) {
	if len(args) != 1 {
		_ = lc.WriteLine(errorLine("CREATETAR requires <ext>"))
		return
	}
	ext := Extension(strings.ToLower(args[0]))
	if ext != s.Config.Extension {
		_ = lc.WriteLine(TokInvalidFiletype)
		return
	}

	data, size, err := s.Archiver.BuildArchive(s.Config.Root(), ext)
	if errors.Is(err, ErrNoFiles) {
		_ = lc.WriteLine(TokNoFiles)
		return
	}
	if err != nil {
		s.Logger.Error("archive build failed", "ext", ext, "err", err)
		_ = lc.WriteLine(TokTarCreateFailed)
		return
	}
	defer data.Close()

	tarName := fmt.Sprintf("%s_files.tar.gz", ext)
	if err := lc.WriteLine(TokReadyToSendTar + " " + tarName); err != nil {
		return
	}
	if err := lc.SendPayload(data, size); err != nil {
		s.Logger.Error("archive send failed", "ext", ext, "err", err)
		return
	}
	_ = lc.WriteLine(successLine("archive sent"))
}
