// Command identityctl administers identities and roles directly against the
// configured store. It exists mainly to create the first Admin.
package main

import (
	"fmt"
	"os"

	_ "github.com/joho/godotenv/autoload"
)

func main() {
	if err := newRootCmd(openEnv).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
