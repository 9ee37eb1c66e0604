package main

import (
	"errors"
	"flag"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/kazilabs/mtihani/core"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	db  *sqlx.DB
	log core.Logger
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  createdb                       - create the database and app user if missing")
	fmt.Println("  migrate                        - apply pending database migrations")
	fmt.Println("  sweep                          - run one safety sweep over exam attempts")
	fmt.Println("  listattempts [-ordering FIELDS] - list exam attempts")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	listAttemptsCmd := flag.NewFlagSet("listattempts", flag.ExitOnError)
	listAttemptsOrdering := listAttemptsCmd.String("ordering", "", "Comma-separated fields to order by; prefix with - for descending.")

	switch args[1] {
	case "createdb":
		return cli.createDB()
	case "migrate":
		return cli.migrate()
	case "sweep":
		return cli.sweep()
	case "listattempts":
		if err := listAttemptsCmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.listAttempts(*listAttemptsOrdering)
	default:
		cli.printUsage()
		return errHelp
	}
}
