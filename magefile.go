//go:build mage

package main

import (
	"os"
	"path"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	packageName = "github.com/erilali/v2vrelay"
	ldflags     = "-X " + packageName + "/internal/cli.Version=$VERSION"
	outDir      = "bin"
	binName     = "v2vrelay"
)

var Default = Build

// allow user to override go executable by running as GOEXE=xxx mage ...
var goexe = "go"

func init() {
	if exe := os.Getenv("GOEXE"); exe != "" {
		goexe = exe
	}
}

// Build builds the relay binary into bin/
func Build() error {
	mg.Deps(mkBin)
	return sh.RunWith(getVars(), goexe, "build", "-ldflags", ldflags, "-o", path.Join(outDir, binName), packageName)
}

// BuildRace builds the relay with the race detector enabled
func BuildRace() error {
	mg.Deps(mkBin)
	return sh.RunWith(getVars(), goexe, "build", "-race", "-ldflags", ldflags, "-o", path.Join(outDir, binName), packageName)
}

// Test runs the test suite with the race detector
func Test() error {
	return sh.RunV(goexe, "test", "-race", "./...")
}

// Vet runs go vet
func Vet() error {
	return sh.RunV(goexe, "vet", "./...")
}

// Clean removes all files and directories created by mage targets.
func Clean() error {
	return os.RemoveAll(outDir)
}

func mkBin() error {
	return os.MkdirAll(outDir, 0o755)
}

func getVars() map[string]string {
	version := os.Getenv("VERSION")
	if version == "" {
		if out, err := sh.Output("git", "describe", "--tags", "--always", "--dirty"); err == nil {
			version = out
		} else {
			version = "dev"
		}
	}
	return map[string]string{"VERSION": version}
}
