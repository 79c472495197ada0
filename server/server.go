// Package server drives rover programs: a Worker that owns a Machine on one
// goroutine, a Runner that steps it to completion, and an LSP server for
// editors.
package server

import "github.com/tliron/commonlog"

var log = commonlog.GetLogger("exomars.server")
