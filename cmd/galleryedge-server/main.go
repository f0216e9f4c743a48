// Package main is the entry point for the galleryedge server.
package main

import (
	"os"

	"github.com/mattborg/galleryedge/cmd/galleryedge-server/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
