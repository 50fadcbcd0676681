package dfs

import "github.com/davecgh/go-spew/spew"

// dumpCommand renders a Command for debug logging. spew.Sdump is used
// instead of %+v so nested or zero-value fields are never silently
// elided, which matters when chasing a malformed sub-connection command.
func dumpCommand(cmd Command) string {
	return spew.Sdump(cmd)
}
