package main

import (
	"context"

	"github.com/scott-cotton/cli"
)

func main() {
	cli.MainContext(context.Background(), rootCommand())
}

func rootCommand() *cli.Command {
	return cli.NewCommand("netengine").
		WithSynopsis("netengine <command> [opts]").
		WithDescription("netengine runs the example servers, clients and benchmarks of the TCP engine.").
		WithSubs(
			echoServerCommand(),
			echoClientCommand(),
			multicastServerCommand(),
			chatServerCommand(),
			chatClientCommand(),
			timerCommand(),
		)
}
