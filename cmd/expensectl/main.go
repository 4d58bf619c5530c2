package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"

	"expenses/internal/cli"
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(commander.CommandsCommand(), "")

	app := cli.NewApp()
	app.SetFlags(flag.CommandLine)
	app.Register(commander)

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}
