package dfs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sort"
	"strings"
	"sync"
)

// Router is the single client-facing process. It owns the C-extension
// subtree directly and dispatches every other extension to the shard that
// owns it.
type Router struct {
	Config   RouterConfig
	FS       FileStore
	Archiver Archiver
	Logger   *slog.Logger
	Recorder Recorder

	// Dial opens a TCP connection to a shard address. Overridable in
	// tests so sub-connections can be served by an in-process listener
	// instead of a real shard process.
	Dial func(addr string) (net.Conn, error)
}

// NewRouter constructs a Router with production defaults for any field
// left zero-valued by cfg.
func NewRouter(cfg RouterConfig, logger *slog.Logger) *Router {
	return &Router{
		Config:   cfg,
		FS:       OSFileStore{},
		Archiver: InProcessArchiver{},
		Logger:   logger,
		Recorder: NewMemRecorder(),
		Dial:     func(addr string) (net.Conn, error) { return net.Dial("tcp", addr) },
	}
}

// ListenAndServe accepts client sessions on ln until ctx is cancelled. Each
// session is an independent goroutine that processes commands strictly in
// order until the client disconnects — the parallel-scheduling model
// order until the client disconnects, replacing fork-per-connection with
// goroutine-per-session.
func (r *Router) ListenAndServe(ctx context.Context, ln net.Listener) error {
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
			r.handleSession(conn)
		}()
	}
}

// handleSession runs the per-session command loop: IDLE -> PARSING ->
// VALIDATING -> DISPATCHING -> STREAMING -> IDLE, with a per-command error
// returning to IDLE rather than closing the session. Only client EOF or a
// write failure on the client socket ends the session.
func (r *Router) handleSession(conn net.Conn) {
	remote := conn.RemoteAddr().String()
	defer RecoverConnection(r.Logger, remote)

	r.Recorder.IncSession()
	r.Logger.Info("session opened", "remoteAddr", remote)
	defer r.Logger.Info("session closed", "remoteAddr", remote)

	lc := NewLineConn(conn)
	for {
		line, err := lc.ReadLine()
		if err != nil {
			return
		}
		cmd := ParseCommand(line)
		if cmd.Verb == "" {
			continue
		}
		r.Logger.Debug("client command", "remoteAddr", remote, "dump", dumpCommand(cmd))

		var herr error
		switch cmd.Verb {
		case CmdUploadf:
			herr = r.handleUploadf(lc, cmd.Args)
		case CmdDownlf:
			herr = r.handleDownlf(lc, cmd.Args)
		case CmdRemovef:
			herr = r.handleRemovef(lc, cmd.Args)
		case CmdDownltar:
			herr = r.handleDownltar(lc, cmd.Args)
		case CmdDispfnames:
			herr = r.handleDispfnames(lc, cmd.Args)
		case CmdExit:
			return
		default:
			herr = lc.WriteLine(errorLine("unknown command %q", cmd.Verb))
		}

		if herr != nil {
			r.Logger.Debug("session ended on write failure", "remoteAddr", remote, "err", herr)
			return
		}
	}
}

// validatePath expands a client-supplied path and checks it lies under the
// virtual root.
func (r *Router) validatePath(raw string) (expanded string, err error) {
	expanded = ExpandHome(raw, r.Config.Home)
	if !UnderVirtualRoot(expanded, r.Config.Home) {
		return "", fmt.Errorf("path must be within %s", VirtualRoot)
	}
	return expanded, nil
}

func (r *Router) dialShard(ext Extension) (*LineConn, error) {
	addr, ok := r.Config.ShardAddrs[ext]
	if !ok {
		return nil, fmt.Errorf("no shard configured for .%s", ext)
	}
	conn, err := r.Dial(addr)
	if err != nil {
		return nil, err
	}
	return NewLineConn(conn), nil
}

// --- uploadf ---

func (r *Router) handleUploadf(lc *LineConn, args []string) error {
	if len(args) != 2 {
		return lc.WriteLine(errorLine("uploadf requires <basename> <destdir>"))
	}
	basename, destArg := args[0], args[1]

	ext, ok := ExtensionOf(basename)
	if !ok {
		return lc.WriteLine(errorLine("unsupported file type. Only .c, .pdf, .txt, and .zip are allowed"))
	}

	expandedDest, err := r.validatePath(destArg)
	if err != nil {
		return lc.WriteLine(errorLine("%v", err))
	}

	localDestDir, err := RouterLocalPath(expandedDest, r.Config.Root())
	if err != nil {
		return lc.WriteLine(errorLine("%v", err))
	}
	if err := r.FS.MkdirAll(localDestDir, 0o755); err != nil {
		return lc.WriteLine(errorLine("failed to create destination directory: %v", err))
	}

	if err := lc.WriteLine(TokReadyToReceive); err != nil {
		return err
	}

	tmpPath := fmt.Sprintf("%s/.%s.dfstmp", localDestDir, basename)
	tmp, err := r.FS.Create(tmpPath)
	if err != nil {
		return lc.WriteLine(errorLine("failed to stage upload: %v", err))
	}
	n, recvErr := lc.ReceivePayload(tmp)
	_ = tmp.Close()
	if recvErr != nil {
		_ = r.FS.Remove(tmpPath)
		return recvErr
	}
	r.Recorder.AddBytes(ext, n)

	if ext == ExtC {
		finalPath := localDestDir + "/" + basename
		if err := r.FS.Rename(tmpPath, finalPath); err != nil {
			_ = r.FS.Remove(tmpPath)
			return lc.WriteLine(errorLine("failed to finalize upload: %v", err))
		}
		r.Recorder.IncUpload(ext)
		return lc.WriteLine(successLine("File uploaded successfully to S1"))
	}

	status, relayErr := r.relayUploadToShard(tmpPath, basename, expandedDest, ext)
	_ = r.FS.Remove(tmpPath)
	if relayErr != nil {
		return lc.WriteLine(errorLine("%v", relayErr))
	}
	r.Recorder.IncUpload(ext)
	return lc.WriteLine(status)
}

// relayUploadToShard performs the RECEIVE handshake against the shard that
// owns ext, streaming the staged temp file to it, and returns the shard's
// final status line verbatim.
func (r *Router) relayUploadToShard(tmpPath, basename, destDirExpanded string, ext Extension) (string, error) {
	conn, err := r.dialShard(ext)
	if err != nil {
		return "", fmt.Errorf("could not reach storage backend for .%s: %w", ext, err)
	}
	defer conn.Close()

	translatedDir := Translate(destDirExpanded, ext)
	if err := conn.WriteLine(fmt.Sprintf("%s %s %s", CmdReceive, basename, translatedDir)); err != nil {
		return "", err
	}
	resp, err := conn.ReadLine()
	if err != nil {
		return "", err
	}
	if resp != TokReadyToReceive {
		return "", fmt.Errorf("shard refused upload: %s", resp)
	}

	f, err := r.FS.Open(tmpPath)
	if err != nil {
		return "", err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	if err := conn.SendPayload(f, info.Size()); err != nil {
		return "", err
	}
	return conn.ReadLine()
}

// --- downlf ---

func (r *Router) handleDownlf(lc *LineConn, args []string) error {
	if len(args) != 1 {
		return lc.WriteLine(errorLine("downlf requires <path>"))
	}
	expanded, err := r.validatePath(args[0])
	if err != nil {
		return lc.WriteLine(errorLine("%v", err))
	}
	ext, ok := ExtensionOf(expanded)
	if !ok {
		return lc.WriteLine(errorLine("unsupported file type. Only .c, .pdf, .txt, and .zip are allowed"))
	}

	if ext == ExtC {
		local, err := RouterLocalPath(expanded, r.Config.Root())
		if err != nil {
			return lc.WriteLine(errorLine("%v", err))
		}
		info, err := r.FS.Stat(local)
		if err != nil || info.IsDir() {
			return lc.WriteLine(errorLine("file not found"))
		}
		f, err := r.FS.Open(local)
		if err != nil {
			return lc.WriteLine(errorLine("file not found"))
		}
		defer f.Close()
		if err := lc.WriteLine(TokReadyToSend); err != nil {
			return err
		}
		if err := lc.SendPayload(f, info.Size()); err != nil {
			return err
		}
		r.Recorder.IncDownload(ext)
		r.Recorder.AddBytes(ext, info.Size())
		return lc.WriteLine(successLine("file sent"))
	}

	tmpPath, size, err := r.relayDownloadFromShard(expanded, ext)
	if err != nil {
		return lc.WriteLine(errorLine("%v", err))
	}
	defer os.Remove(tmpPath)

	tmp, err := r.FS.Open(tmpPath)
	if err != nil {
		return lc.WriteLine(errorLine("%v", err))
	}
	defer tmp.Close()

	if err := lc.WriteLine(TokReadyToSend); err != nil {
		return err
	}
	if err := lc.SendPayload(tmp, size); err != nil {
		return err
	}
	r.Recorder.IncDownload(ext)
	r.Recorder.AddBytes(ext, size)
	return lc.WriteLine(successLine("file sent"))
}

// relayDownloadFromShard performs the SEND handshake against the owning
// shard, staging the result in a router-local temporary file before
// streaming it on to the client.
func (r *Router) relayDownloadFromShard(expandedPath string, ext Extension) (tmpPath string, size int64, err error) {
	conn, err := r.dialShard(ext)
	if err != nil {
		return "", 0, fmt.Errorf("could not reach storage backend for .%s: %w", ext, err)
	}
	defer conn.Close()

	translated := Translate(expandedPath, ext)
	if err := conn.WriteLine(fmt.Sprintf("%s %s", CmdSend, translated)); err != nil {
		return "", 0, err
	}
	resp, err := conn.ReadLine()
	if err != nil {
		return "", 0, err
	}
	if resp != TokReadyToSend {
		return "", 0, fmt.Errorf("shard could not serve file: %s", resp)
	}

	tmp, err := os.CreateTemp("", "dfs-dl-*")
	if err != nil {
		return "", 0, err
	}
	n, recvErr := conn.ReceivePayload(tmp)
	_ = tmp.Close()
	if recvErr != nil {
		os.Remove(tmp.Name())
		return "", 0, recvErr
	}

	status, _ := conn.ReadLine()
	if !strings.HasPrefix(status, StatusSuccessPrefix) {
		os.Remove(tmp.Name())
		return "", 0, fmt.Errorf("%s", status)
	}

	return tmp.Name(), n, nil
}

// --- removef ---

func (r *Router) handleRemovef(lc *LineConn, args []string) error {
	if len(args) != 1 {
		return lc.WriteLine(errorLine("removef requires <path>"))
	}
	expanded, err := r.validatePath(args[0])
	if err != nil {
		return lc.WriteLine(errorLine("%v", err))
	}
	ext, ok := ExtensionOf(expanded)
	if !ok {
		return lc.WriteLine(errorLine("unsupported file type. Only .c, .pdf, .txt, and .zip are allowed"))
	}

	if ext == ExtC {
		local, err := RouterLocalPath(expanded, r.Config.Root())
		if err != nil {
			return lc.WriteLine(errorLine("%v", err))
		}
		if err := r.FS.Remove(local); err != nil {
			return lc.WriteLine(errorLine("file not found"))
		}
		r.Recorder.IncRemove(ext)
		return lc.WriteLine(successLine("file removed"))
	}

	conn, err := r.dialShard(ext)
	if err != nil {
		return lc.WriteLine(errorLine("could not reach storage backend for .%s: %v", ext, err))
	}
	defer conn.Close()

	translated := Translate(expanded, ext)
	if err := conn.WriteLine(fmt.Sprintf("%s %s", CmdRemove, translated)); err != nil {
		return lc.WriteLine(errorLine("%v", err))
	}
	status, err := conn.ReadLine()
	if err != nil {
		return lc.WriteLine(errorLine("%v", err))
	}
	r.Recorder.IncRemove(ext)
	return lc.WriteLine(status)
}

// --- downltar ---

func (r *Router) handleDownltar(lc *LineConn, args []string) error {
	if len(args) != 1 {
		return lc.WriteLine(errorLine("downltar requires <tag>"))
	}
	ext := Extension(strings.ToLower(args[0]))
	if !ext.Valid() {
		return lc.WriteLine(errorLine("unsupported file type"))
	}

	if ext == ExtC {
		data, size, err := r.Archiver.BuildArchive(r.Config.Root(), ExtC)
		if errors.Is(err, ErrNoFiles) {
			return lc.WriteLine(TokNoFiles)
		}
		if err != nil {
			r.Logger.Error("archive build failed", "ext", ext, "err", err)
			return lc.WriteLine(TokTarCreateFailed)
		}
		defer data.Close()

		if err := lc.WriteLine(TokReadyToSendTar + " c_files.tar.gz"); err != nil {
			return err
		}
		if err := lc.SendPayload(data, size); err != nil {
			return err
		}
		return lc.WriteLine(successLine("archive sent"))
	}

	conn, err := r.dialShard(ext)
	if err != nil {
		return lc.WriteLine(TokServerConnFailed)
	}
	defer conn.Close()

	if err := conn.WriteLine(fmt.Sprintf("%s %s", CmdCreateTar, ext)); err != nil {
		return lc.WriteLine(TokServerConnFailed)
	}
	resp, err := conn.ReadLine()
	if err != nil {
		return lc.WriteLine(TokServerConnFailed)
	}

	switch {
	case resp == TokNoFiles:
		return lc.WriteLine(TokNoFiles)
	case resp == TokTarCreateFailed:
		return lc.WriteLine(TokTarCreateFailed)
	case strings.HasPrefix(resp, TokReadyToSendTar):
		if err := lc.WriteLine(resp); err != nil {
			return err
		}
		size, err := conn.ReadSize()
		if err != nil {
			return lc.WriteLine(errorLine("%v", err))
		}
		if err := lc.SendSize(size); err != nil {
			return err
		}
		ack, err := lc.ReadLine()
		if err != nil {
			return err
		}
		if ack != TokReady {
			return nil
		}
		if err := conn.WriteLine(TokReady); err != nil {
			return lc.WriteLine(errorLine("%v", err))
		}
		if _, err := conn.RelayN(lc.Conn, size); err != nil {
			return err
		}
		status, _ := conn.ReadLine()
		return lc.WriteLine(status)
	default:
		return lc.WriteLine(errorLine("unexpected shard response: %s", resp))
	}
}

// --- dispfnames ---

// listLocalNames applies the same listing algorithm Shard.listNames uses
// to the router's own FileStore, for the router-owned C extension.
func (r *Router) listLocalNames(dir string, ext Extension) ([]string, error) {
	entries, err := r.FS.ReadDir(dir)
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
		if fe, ok := ExtensionOf(e.Name()); ok && fe == ext {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func (r *Router) handleDispfnames(lc *LineConn, args []string) error {
	if len(args) != 1 {
		return lc.WriteLine(errorLine("dispfnames requires <dir>"))
	}
	expanded, err := r.validatePath(args[0])
	if err != nil {
		return lc.WriteLine(errorLine("%v", err))
	}

	var allNames []string

	localDir, err := RouterLocalPath(expanded, r.Config.Root())
	if err == nil {
		if names, lerr := r.listLocalNames(localDir, ExtC); lerr == nil {
			allNames = append(allNames, names...)
		}
	}

	for _, ext := range []Extension{ExtPDF, ExtTXT, ExtZIP} {
		names, lerr := r.listRemoteNames(expanded, ext)
		if lerr != nil {
			r.Logger.Error("aggregation: shard listing failed", "ext", ext, "err", lerr)
			continue
		}
		allNames = append(allNames, names...)
	}

	if err := lc.WriteLine(TokFilesComing); err != nil {
		return err
	}
	ack, err := lc.ReadLine()
	if err != nil {
		return err
	}
	if ack != TokReady {
		return nil
	}

	listing := NoFilesMessage + "\n"
	if len(allNames) > 0 {
		listing = strings.Join(allNames, "\n") + "\n"
	}
	if err := lc.SendPayload(strings.NewReader(listing), int64(len(listing))); err != nil {
		return err
	}
	return lc.WriteLine(successLine("listing sent"))
}

func (r *Router) listRemoteNames(expandedDir string, ext Extension) ([]string, error) {
	conn, err := r.dialShard(ext)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	translated := Translate(expandedDir, ext)
	if err := conn.WriteLine(fmt.Sprintf("%s %s %s", CmdList, translated, ext)); err != nil {
		return nil, err
	}
	resp, err := conn.ReadLine()
	if err != nil {
		return nil, err
	}
	if resp == TokInvalidFiletype {
		return nil, fmt.Errorf("shard rejected LIST for .%s", ext)
	}
	if resp != TokReadyToSend {
		return nil, fmt.Errorf("unexpected shard response: %s", resp)
	}

	var buf strings.Builder
	if _, err := conn.ReceivePayload(&buf); err != nil {
		return nil, err
	}
	_, _ = conn.ReadLine() // final status line, already implied success by payload arriving

	listing := strings.TrimRight(buf.String(), "\n")
	if listing == "" {
		return nil, nil
	}
	return strings.Split(listing, "\n"), nil
}
