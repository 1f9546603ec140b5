// Minimal entry point that delegates CLI handling to the cobra root
// command in internal/cli.
package main

import (
	"github.com/beroset/fncs/internal/cli"
)

func main() {
	cli.Execute()
}
