package manager

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogicalName(t *testing.T) {
	tests := map[string]string{
		"CreateCapsule":   "create_capsule",
		"GetChangeFlag":   "get_change_flag",
		"SetChangeFlag":   "set_change_flag",
		"RunCapsule":      "run_capsule",
		"ExitCode":        "exit_code",
		"ExitIntoCapsule": "exit_into_capsule",
		"Reconcile":       "reconcile",
		"ABIVersion":      "abi_version",
		"GetHTTPServer":   "get_http_server",
		"Tick2Run":        "tick2_run",
		"ID":              "id",
		"already_snake":   "already_snake",
		"":                "",
	}
	for ident, want := range tests {
		assert.Equal(t, want, LogicalName(ident), ident)
	}
}
