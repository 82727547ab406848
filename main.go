// Package main is the entry point for usbcmp, the usbmon capture comparator.
package main

import (
	"fmt"
	"os"

	"firestige.xyz/usbcmp/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
