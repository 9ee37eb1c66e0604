package main

import (
	"log"
	"os"

	"github.com/kazilabs/mtihani/core"
	"github.com/kazilabs/mtihani/services/logger"
	"github.com/kazilabs/mtihani/storage/database"
)

// build is the git version of this program. It is set using build flags in the makefile.
var build = "develop"

var logger *log.Logger

func main() {
	defer os.Exit(0)

	core.Conf = core.NewConfig(build)
	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	// set up DB
	db, err := database.Open(core.Conf)
	errAndDie(err)
	defer func() { _ = db.Close() }()

	// start CLI
	cli := commandLine{
		db:  db,
		log: logsvc.NewStdLogger(logger),
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
