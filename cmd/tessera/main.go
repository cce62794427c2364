// Package main is the single-binary entrypoint for the Tessera node.
package main

import "github.com/tessera-network/tessera/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
