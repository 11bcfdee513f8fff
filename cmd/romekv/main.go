// Command romekv inspects and edits records held by a romekv driver.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"romekv/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := cli.NewRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "romekv:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
