// The main package for the broadcrawl-worker executable.
package main

import (
	"github.com/JakeFAU/broadcrawl-worker/cmd"
)

// main defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
