// rvsim is an RV64I interpreter and microkernel sandbox.
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/rv64vm/sandbox/internal/cli"
	"github.com/rv64vm/sandbox/internal/cli/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	commands := []cli.Command{
		cmd.Run(),
		cmd.Disasm(),
		cmd.Snapshot(),
	}

	commander := cli.New(ctx).
		WithCommands(commands).
		WithHelp(cmd.Help(commands)).
		WithLogger(os.Stderr)

	os.Exit(commander.Execute(os.Args[1:]))
}
