// ./main.go
package main

import (
	"github.com/xkilldash9x/locus/cmd"
)

// main is the entry point for the locus CLI. All command-line parsing,
// configuration, and execution lives in the cmd package.
func main() {
	cmd.Execute()
}
