package main

import (
	"os"

	conversecmder "github.com/papercomputeco/converse/cmd/converse"
)

func main() {
	cmd := conversecmder.NewConverseCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
