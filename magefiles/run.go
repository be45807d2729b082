//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Runs the testbed with the bundled config.
func (Run) Engine() error {
	return runWithConfig("assets/config.toml")
}

// Runs the testbed with the config given in $ANIMA_CONFIG.
func (Run) Config() error {
	path := envOr("ANIMA_CONFIG", "assets/config.toml")
	return runWithConfig(path)
}

func runWithConfig(path string) error {
	mg.Deps(Vet)
	fmt.Printf("Run engine with %s...\n", path)
	if _, err := executeCmd("go", withArgs("run", ".", "-config", path), withStream()); err != nil {
		return err
	}
	return nil
}
