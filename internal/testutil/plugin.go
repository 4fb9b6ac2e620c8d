// Package testutil builds the fixtures shared by the integration tests
package testutil

import (
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// CounterV1 and CounterV2 - Packages of the two generations of the counter unit, relative to the module root
const (
	CounterV1 = "./examples/counter/v1"
	CounterV2 = "./examples/counter/v2"
)

// BuildPlugin builds pkg, a package path relative to the module root, with -buildmode=plugin into dir and returns
// the path of the artifact. The test is skipped in short mode and where plugins cannot be built.
func BuildPlugin(t *testing.T, dir, pkg string) string {
	t.Helper()
	if testing.Short() {
		t.Skip("plugin build skipped in short mode")
	}
	if runtime.GOOS != "linux" && runtime.GOOS != "darwin" {
		t.Skipf("plugins are not supported on %s", runtime.GOOS)
	}
	goBin, err := exec.LookPath("go")
	if err != nil {
		t.Skip("go toolchain not found")
	}
	if out, err := exec.Command(goBin, "env", "CGO_ENABLED").Output(); err != nil || strings.TrimSpace(string(out)) != "1" {
		t.Skip("plugins require cgo")
	}

	gomod, err := exec.Command(goBin, "env", "GOMOD").Output()
	if err != nil {
		t.Fatalf("go env GOMOD: %v", err)
	}
	artifact := filepath.Join(dir, filepath.Base(pkg)+".so")
	cmd := exec.Command(goBin, "build", "-buildmode=plugin", "-o", artifact, pkg)
	cmd.Dir = filepath.Dir(strings.TrimSpace(string(gomod)))
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("go build -buildmode=plugin %s: %v\n%s", pkg, err, out)
	}
	return artifact
}

// SkipIfIncompatible skips the test when err reports that the plugin and the test binary were built with
// different flags (race detector, coverage), which the plugin runtime refuses
func SkipIfIncompatible(t *testing.T, err error) {
	t.Helper()
	if err != nil && strings.Contains(err.Error(), "different version of package") {
		t.Skipf("plugin incompatible with the test binary: %v", err)
	}
}
