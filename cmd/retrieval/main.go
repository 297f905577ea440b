// Package main provides the entry point for the retrieval CLI.
package main

import (
	"os"

	"github.com/yonatan-nyo/Image-Audio-Retrieval/cmd/retrieval/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
