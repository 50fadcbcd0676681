package dfs

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/getsentry/sentry-go"
)

const sentryFlushTimeout = 2 * time.Second

// RecoverConnection logs a panic from a connection handler instead of
// crashing the whole process, so one bad client never takes down the
// server. If Sentry has been configured (see internal/dfsutil.InitSentry),
// the panic is also reported there before the goroutine unwinds.
func RecoverConnection(logger *slog.Logger, remoteAddr string) {
	r := recover()
	if r == nil {
		return
	}

	trace := string(debug.Stack())
	logger.Error("panic in connection handler", "remoteAddr", remoteAddr, "err", fmt.Sprint(r), "trace", trace)

	if sentry.CurrentHub().Client() != nil {
		sentry.CurrentHub().Recover(r)
		sentry.Flush(sentryFlushTimeout)
	}
}
