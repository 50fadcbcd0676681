package main

import (
	"context"
	"embed"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path"
	"syscall"

	"github.com/kestrelfs/dfs/dfs"
	"github.com/kestrelfs/dfs/internal/dfsutil"
)

//go:embed config
var cfgTemplate embed.FS

var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT, os.Interrupt)

	configDir := flag.String("config-dir", "config", "Path to config directory")
	configPath := flag.String("config", "", "Path to router config file (defaults to <config-dir>/router.yaml)")
	logLevel := flag.String("log-level", "info", "Log level")
	logFile := flag.String("log-file", "", "Path to log file")
	printVersion := flag.Bool("version", false, "Print version and exit")
	initConfig := flag.Bool("init", false, "Populate the config dir with a default router.yaml")
	flag.Parse()

	if *printVersion {
		fmt.Printf("dfs-router version %s, commit %s\n", version, commit)
		os.Exit(0)
	}

	logger := dfsutil.NewLogger(*logLevel, *logFile)

	if *initConfig {
		if _, err := os.Stat(path.Join(*configDir, "router.yaml")); os.IsNotExist(err) {
			if err := os.MkdirAll(*configDir, 0750); err != nil {
				logger.Error("error creating config dir", "err", err)
				os.Exit(1)
			}
			if err := copyDir("config", *configDir); err != nil {
				logger.Error("error copying config template", "err", err)
				os.Exit(1)
			}
			logger.Info("config dir initialized", "dir", *configDir)
		} else {
			logger.Info("existing config found, skipping initialization", "dir", *configDir)
		}
	}

	if *configPath == "" {
		*configPath = path.Join(*configDir, "router.yaml")
	}

	var cfg dfs.RouterConfig
	if err := dfsutil.LoadConfig(*configPath, &cfg); err != nil {
		logger.Error("error loading config", "err", err)
		os.Exit(1)
	}

	if err := dfsutil.InitSentry(cfg.SentryDSN, "router"); err != nil {
		logger.Error("error initializing sentry", "err", err)
	}

	router := dfs.NewRouter(cfg, logger)
	if cfg.RedisAddr != "" {
		router.Recorder = dfsutil.NewRedisRecorder(cfg.RedisAddr, "", 0)
	}

	if cfg.APIAddr != "" {
		api := dfsutil.NewAPIServer(router, logger, cfg.APIKey)
		go func() {
			if err := http.ListenAndServe(cfg.APIAddr, api); err != nil {
				logger.Error("admin API server stopped", "err", err)
			}
		}()
	}

	if cfg.EnableDiscovery {
		s, err := dfs.RegisterDiscovery(cfg.Name, cfg.Port)
		if err != nil {
			logger.Error("error registering with bonjour", "err", err)
		} else {
			defer s.Shutdown()
		}
	}

	go func() {
		sig := <-sigChan
		logger.Info("shutting down", "signal", sig.String())
		cancel()
	}()

	addr := fmt.Sprintf("%s:%d", cfg.Interface, cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Error("error binding listener", "err", err)
		os.Exit(1)
	}

	logger.Info("router started", "version", version, "addr", addr)
	log.Fatal(router.ListenAndServe(ctx, ln))
}

// copyDir recursively copies a directory tree out of the embedded config
// template into dst on the real filesystem.
func copyDir(src, dst string) error {
	entries, err := cfgTemplate.ReadDir(src)
	if err != nil {
		return fmt.Errorf("read template dir %s: %w", src, err)
	}
	for _, entry := range entries {
		srcPath := path.Join(src, entry.Name())
		dstPath := path.Join(dst, entry.Name())
		if entry.IsDir() {
			if err := os.MkdirAll(dstPath, 0o755); err != nil {
				return fmt.Errorf("create dir %s: %w", dstPath, err)
			}
			if err := copyDir(srcPath, dstPath); err != nil {
				return err
			}
			continue
		}
		if err := copyFile(srcPath, dstPath); err != nil {
			return fmt.Errorf("copy %s to %s: %w", srcPath, dstPath, err)
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	srcFile, err := cfgTemplate.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	dstFile, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer dstFile.Close()

	_, err = io.Copy(dstFile, srcFile)
	return err
}
