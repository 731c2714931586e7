// Command lattice runs and exercises an intent orchestration node.
//
//	lattice serve --config lattice.yaml
//	lattice intent echo hello
//	lattice workflow saga.yaml
//	lattice resources
//	lattice healthcheck
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
