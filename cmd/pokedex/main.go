// Command pokedex serves the pokemon record store over HTTP.
package main

import (
	"fmt"
	"os"
)

var exitFunc = os.Exit

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		exitFunc(1)
	}
}
