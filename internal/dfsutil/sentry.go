package dfsutil

import "github.com/getsentry/sentry-go"

// InitSentry wires crash reporting for the calling process. A blank dsn
// disables it; RecoverConnection in package dfs checks
// sentry.CurrentHub().Client() before reporting, so an uninitialized
// client is always safe to skip.
func InitSentry(dsn, environment string) error {
	if dsn == "" {
		return nil
	}
	return sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: environment,
	})
}
