package main

import (
	"errors"
	"os"

	manager "github.com/DataDog/reload-manager"
	"github.com/DataDog/reload-manager/cmd/reload-host/commands"
)

// Version information, set at build time
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)

	// errors are printed by the commands themselves
	if err := commands.Execute(); err != nil {
		var exitErr *commands.ExitCodeError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(manager.FatalExitCode)
	}
}
