package main

import (
	"bufio"
	"flag"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/kestrelfs/dfs/dfs"
	"github.com/kestrelfs/dfs/internal/dfsutil"
)

func main() {
	configPath := flag.String("config", "config/client.yaml", "Path to client config file")
	flag.Parse()

	var cfg dfs.ClientConfig
	if err := dfsutil.LoadConfig(*configPath, &cfg); err != nil {
		fmt.Fprintln(os.Stderr, "error loading config:", err)
		os.Exit(1)
	}

	conn, err := net.Dial("tcp", cfg.RouterAddr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to connect to router:", err)
		os.Exit(1)
	}
	defer conn.Close()

	lc := dfs.NewLineConn(conn)
	repl(lc, cfg.LocalHome, os.Stdin, os.Stdout)
}

func repl(lc *dfs.LineConn, localHome string, in *os.File, out *os.File) {
	fmt.Fprintln(out, "Distributed File System Client")
	fmt.Fprintln(out, "Available commands:")
	fmt.Fprintln(out, "  uploadf <filename> <destination_path>")
	fmt.Fprintln(out, "  downlf <path>")
	fmt.Fprintln(out, "  removef <path>")
	fmt.Fprintln(out, "  downltar <filetype>")
	fmt.Fprintln(out, "  dispfnames <pathname>")
	fmt.Fprintln(out, "  exit")

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "\nw25clients$ ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		cmd := dfs.ParseCommand(line)
		if cmd.Verb == dfs.CmdExit {
			fmt.Fprintln(out, "Exiting client...")
			_ = lc.WriteLine(dfs.CmdExit)
			return
		}

		if err := dispatch(lc, localHome, cmd, out); err != nil {
			fmt.Fprintln(out, "Error:", err)
		}
	}
}

func dispatch(lc *dfs.LineConn, localHome string, cmd dfs.Command, out *os.File) error {
	switch cmd.Verb {
	case dfs.CmdUploadf:
		if len(cmd.Args) != 2 {
			return fmt.Errorf("usage: uploadf <filename> <destination_path>")
		}
		return runUploadf(lc, localHome, cmd.Args[0], cmd.Args[1], out)
	case dfs.CmdDownlf:
		if len(cmd.Args) != 1 {
			return fmt.Errorf("usage: downlf <path>")
		}
		return runDownlf(lc, localHome, cmd.Args[0], out)
	case dfs.CmdRemovef:
		if len(cmd.Args) != 1 {
			return fmt.Errorf("usage: removef <path>")
		}
		return runSimple(lc, cmd.Verb+" "+cmd.Args[0], out)
	case dfs.CmdDownltar:
		if len(cmd.Args) != 1 {
			return fmt.Errorf("usage: downltar <filetype>")
		}
		return runDownltar(lc, localHome, cmd.Args[0], out)
	case dfs.CmdDispfnames:
		if len(cmd.Args) != 1 {
			return fmt.Errorf("usage: dispfnames <pathname>")
		}
		return runDispfnames(lc, cmd.Args[0], out)
	default:
		return fmt.Errorf("unknown command %q", cmd.Verb)
	}
}

func runUploadf(lc *dfs.LineConn, localHome, filename, destdir string, out *os.File) error {
	localPath := filepath.Join(localHome, filename)
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("cannot open local file: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}

	if err := lc.WriteLine(fmt.Sprintf("%s %s %s", dfs.CmdUploadf, filename, destdir)); err != nil {
		return err
	}
	resp, err := lc.ReadLine()
	if err != nil {
		return err
	}
	if resp != dfs.TokReadyToReceive {
		fmt.Fprintln(out, resp)
		return nil
	}
	if err := lc.SendPayload(f, info.Size()); err != nil {
		return err
	}
	status, err := lc.ReadLine()
	if err != nil {
		return err
	}
	fmt.Fprintln(out, status)
	return nil
}

func runDownlf(lc *dfs.LineConn, localHome, path string, out *os.File) error {
	if err := lc.WriteLine(fmt.Sprintf("%s %s", dfs.CmdDownlf, path)); err != nil {
		return err
	}
	resp, err := lc.ReadLine()
	if err != nil {
		return err
	}
	if resp != dfs.TokReadyToSend {
		fmt.Fprintln(out, resp)
		return nil
	}

	_, base := dfs.SplitDirBase(path)
	localPath := filepath.Join(localHome, base)
	f, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("cannot create local file: %w", err)
	}
	defer f.Close()
	if _, err := lc.ReceivePayload(f); err != nil {
		return err
	}
	status, err := lc.ReadLine()
	if err != nil {
		return err
	}
	fmt.Fprintln(out, status)
	return nil
}

func runSimple(lc *dfs.LineConn, line string, out *os.File) error {
	if err := lc.WriteLine(line); err != nil {
		return err
	}
	status, err := lc.ReadLine()
	if err != nil {
		return err
	}
	fmt.Fprintln(out, status)
	return nil
}

func runDownltar(lc *dfs.LineConn, localHome, filetype string, out *os.File) error {
	if err := lc.WriteLine(fmt.Sprintf("%s %s", dfs.CmdDownltar, filetype)); err != nil {
		return err
	}
	resp, err := lc.ReadLine()
	if err != nil {
		return err
	}

	switch {
	case resp == dfs.TokNoFiles, resp == dfs.TokTarCreateFailed, resp == dfs.TokServerConnFailed:
		fmt.Fprintln(out, resp)
		return nil
	case strings.HasPrefix(resp, dfs.TokReadyToSendTar):
		parts := strings.Fields(resp)
		tarName := filetype + ".tar.gz"
		if len(parts) == 2 {
			tarName = parts[1]
		}
		localPath := filepath.Join(localHome, tarName)
		f, err := os.Create(localPath)
		if err != nil {
			return fmt.Errorf("cannot create local file: %w", err)
		}
		defer f.Close()
		if _, err := lc.ReceivePayload(f); err != nil {
			return err
		}
		status, err := lc.ReadLine()
		if err != nil {
			return err
		}
		fmt.Fprintln(out, status)
		return nil
	default:
		return fmt.Errorf("unexpected response: %s", resp)
	}
}

func runDispfnames(lc *dfs.LineConn, dir string, out *os.File) error {
	if err := lc.WriteLine(fmt.Sprintf("%s %s", dfs.CmdDispfnames, dir)); err != nil {
		return err
	}
	resp, err := lc.ReadLine()
	if err != nil {
		return err
	}
	if resp != dfs.TokFilesComing {
		fmt.Fprintln(out, resp)
		return nil
	}
	if err := lc.WriteLine(dfs.TokReady); err != nil {
		return err
	}

	var buf strings.Builder
	if _, err := lc.ReceivePayload(&buf); err != nil {
		return err
	}
	status, err := lc.ReadLine()
	if err != nil {
		return err
	}
	fmt.Fprint(out, buf.String())
	fmt.Fprintln(out, status)
	return nil
}
