// The main package for the product-extractor executable.
package main

import (
	"github.com/JakeFAU/product-extractor/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
