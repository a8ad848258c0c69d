// The main package for the tuml executable.
package main

import (
	"github.com/JakeFAU/tuml/cmd"
)

func main() {
	cmd.Execute()
}
