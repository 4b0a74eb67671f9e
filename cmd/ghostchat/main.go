// Command ghostchat runs the GhostChat matchmaking bot and its tooling.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/ghostchat/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(cli.GetExitCode(err))
}
