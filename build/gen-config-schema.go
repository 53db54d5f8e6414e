// gen-config-schema regenerates the JSON schema of the project configuration
// file from the config.Root type.
package main

import (
	"fmt"
	"os"

	"github.com/ngbundle/ngbundle/internal/config"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <schema.json>\n", os.Args[0])
		os.Exit(2)
	}

	bs, err := config.ReflectSchema()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to reflect schema:", err)
		os.Exit(1)
	}
	if len(bs) > 0 && bs[len(bs)-1] != '\n' {
		bs = append(bs, '\n')
	}
	if err := os.WriteFile(os.Args[1], bs, 0o644); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
