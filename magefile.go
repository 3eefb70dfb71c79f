//go:build mage

package main

import (
	"fmt"
	"os"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

var Default = Build

const binaryName = "varianta"

// Build compiles the varianta binary into ./bin.
func Build() error {
	version := os.Getenv("VERSION")
	if version == "" {
		version = "dev"
	}

	ldflags := fmt.Sprintf("-s -w -X github.com/varianta/varianta/internal/cli.Version=%s", version)
	return sh.RunV("go", "build", "-ldflags", ldflags, "-o", "bin/"+binaryName, "./cmd/varianta")
}

// Test runs the unit tests with race detection.
func Test() error {
	return sh.RunV("go", "test", "-race", "./...")
}

// Lint runs go vet across the module.
func Lint() error {
	return sh.RunV("go", "vet", "./...")
}

// Check runs lint and tests.
func Check() {
	mg.SerialDeps(Lint, Test)
}

// Release cross-compiles archives for the common platforms.
func Release() error {
	mg.Deps(Check)

	version := os.Getenv("VERSION")
	if version == "" {
		return fmt.Errorf("VERSION is required for a release build")
	}

	platforms := []struct{ goos, goarch string }{
		{"linux", "amd64"},
		{"linux", "arm64"},
		{"darwin", "amd64"},
		{"darwin", "arm64"},
	}

	ldflags := fmt.Sprintf("-s -w -X github.com/varianta/varianta/internal/cli.Version=%s", version)
	for _, p := range platforms {
		out := fmt.Sprintf("dist/%s_%s_%s/%s", binaryName, p.goos, p.goarch, binaryName)
		env := map[string]string{"GOOS": p.goos, "GOARCH": p.goarch, "CGO_ENABLED": "0"}
		if err := sh.RunWithV(env, "go", "build", "-ldflags", ldflags, "-o", out, "./cmd/varianta"); err != nil {
			return err
		}
		archive := fmt.Sprintf("dist/%s_%s_%s.tar.gz", binaryName, p.goos, p.goarch)
		if err := sh.RunV("tar", "-czf", archive, "-C", fmt.Sprintf("dist/%s_%s_%s", binaryName, p.goos, p.goarch), binaryName); err != nil {
			return err
		}
	}
	return nil
}

// Clean removes build artifacts.
func Clean() error {
	for _, dir := range []string{"bin", "dist"} {
		if err := os.RemoveAll(dir); err != nil {
			return err
		}
	}
	return nil
}

// Dev builds and runs the server against a local database.
func Dev() error {
	mg.Deps(Build)
	return sh.RunV("./bin/"+binaryName, "serve")
}
