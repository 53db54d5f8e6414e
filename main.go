package main

import (
	"os"

	"github.com/ngbundle/ngbundle/cmd"
)

func main() {
	os.Exit(cmd.Main())
}
