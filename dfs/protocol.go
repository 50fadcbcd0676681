// Package dfs implements the router/shard request-handling engine and the
// line-oriented transfer protocol they speak to each other and to clients.
package dfs

import (
	"fmt"
	"strings"
)

// Extension is one of the four supported file extension families.
type Extension string

const (
	ExtC   Extension = "c"
	ExtPDF Extension = "pdf"
	ExtTXT Extension = "txt"
	ExtZIP Extension = "zip"
)

// SupportedExtensions lists every extension this store understands, in the
// fixed order dispfnames must report them.
var SupportedExtensions = []Extension{ExtC, ExtPDF, ExtTXT, ExtZIP}

func (e Extension) Valid() bool {
	switch e {
	case ExtC, ExtPDF, ExtTXT, ExtZIP:
		return true
	default:
		return false
	}
}

// ShardIndex returns the S<n> index that owns e, or 0 for the router-owned
// ExtC.
func (e Extension) ShardIndex() int {
	switch e {
	case ExtPDF:
		return 2
	case ExtTXT:
		return 3
	case ExtZIP:
		return 4
	default:
		return 0
	}
}

// ExtensionOf returns the extension family of name (the part after the
// final '.', lower-cased), and whether name has a recognized extension.
func ExtensionOf(name string) (Extension, bool) {
	i := strings.LastIndexByte(name, '.')
	if i < 0 || i == len(name)-1 {
		return "", false
	}
	ext := Extension(strings.ToLower(name[i+1:]))
	return ext, ext.Valid()
}

// Client-facing command verbs.
const (
	CmdUploadf    = "uploadf"
	CmdDownlf     = "downlf"
	CmdRemovef    = "removef"
	CmdDownltar   = "downltar"
	CmdDispfnames = "dispfnames"
	CmdExit       = "exit"
)

// Shard-facing command verbs (router -> shard sub-connection).
const (
	CmdReceive   = "RECEIVE"
	CmdSend      = "SEND"
	CmdRemove    = "REMOVE"
	CmdList      = "LIST"
	CmdCreateTar = "CREATETAR"
)

// Handshake and status tokens exchanged over the wire.
const (
	TokReady            = "READY"
	TokReadyToReceive   = "READY_TO_RECEIVE"
	TokReadyToSend      = "READY_TO_SEND"
	TokReadyToSendTar   = "READY_TO_SEND_TAR"
	TokFilesComing      = "FILES_COMING"
	TokTarCreateFailed  = "TAR_CREATION_FAILED"
	TokNoFiles          = "NO_FILES"
	TokServerConnFailed = "SERVER_CONNECTION_FAILED"
	TokInvalidFiletype  = "INVALID_FILETYPE"
	StatusSuccessPrefix = "SUCCESS:"
	StatusErrorPrefix   = "ERROR:"
	NoFilesMessage      = "No files found in this directory"
)

func errorLine(format string, args ...any) string {
	return StatusErrorPrefix + " " + fmt.Sprintf(format, args...)
}

func successLine(format string, args ...any) string {
	return StatusSuccessPrefix + " " + fmt.Sprintf(format, args...)
}

// Command is a parsed client or sub-connection command line.
type Command struct {
	Verb string
	Args []string
}

// ParseCommand splits a raw command line into a verb and whitespace
// separated arguments. It never returns an error; callers validate
// argument count against the verb they expect.
func ParseCommand(line string) Command {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}
	}
	return Command{Verb: fields[0], Args: fields[1:]}
}
