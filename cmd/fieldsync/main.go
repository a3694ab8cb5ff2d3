// Package main is the fieldsync entry point.
package main

import (
	"fmt"
	"os"

	"github.com/TesteGruas/Sistema-Gerenciamento-Gruas-sub017/internal/cli"
	"github.com/TesteGruas/Sistema-Gerenciamento-Gruas-sub017/internal/logging"
)

func main() {
	err := cli.NewRootCommand().Execute()
	// stderr and stdout may not support fsync
	_ = logging.Get().Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
