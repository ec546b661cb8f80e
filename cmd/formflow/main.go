package main

import (
	"fmt"
	"os"

	"github.com/tikcccc/Form-demo/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		// Commands report rejections themselves; this prints what they left
		// unreported, such as flag errors.
		fmt.Fprintln(os.Stderr, "formflow:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
