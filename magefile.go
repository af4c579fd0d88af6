//go:build mage
// +build mage

package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

var (
	binDir  = "bin"
	appName = "sahaaya-payments"
)

var Default = Run

// Run: start the web server with go run.
func Run() error {
	mg.Deps(Tidy)
	fmt.Println("Running (go run) ...")
	return sh.RunV("go", "run", "./cmd/web")
}

// Build: compile the server binary into bin/.
func Build() error {
	mg.Deps(Tidy)
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return err
	}
	out := filepath.Join(binDir, appName)
	fmt.Println("Building", out)
	return sh.RunV("go", "build", "-o", out, "./cmd/web")
}

// Test: run the whole test suite.
func Test() error {
	return sh.RunV("go", "test", "./...")
}

// Lint: golangci-lint if installed, otherwise go vet.
func Lint() error {
	if _, err := exec.LookPath("golangci-lint"); err == nil {
		return sh.RunV("golangci-lint", "run")
	}
	fmt.Println("golangci-lint not found, falling back to go vet")
	return sh.RunV("go", "vet", "./...")
}

// Tidy: go mod tidy.
func Tidy() error {
	return sh.RunV("go", "mod", "tidy")
}

// Clean: remove build artifacts.
func Clean() error {
	return sh.Rm(binDir)
}
