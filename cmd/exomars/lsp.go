package main

import (
	"github.com/chazu/exomars/server"
)

// handleLSPCommand serves the language server over stdio until the client
// disconnects.
func handleLSPCommand() {
	srv := server.NewLSP(nil)
	if err := srv.Run(); err != nil {
		fatal(err)
	}
}
