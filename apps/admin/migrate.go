package main

import (
	"github.com/kazilabs/mtihani/core"
	"github.com/kazilabs/mtihani/storage/database"
)

func (cli *commandLine) createDB() error {
	return database.CreateIfNotExist(core.Conf)
}

func (cli *commandLine) migrate() error {
	return database.Migrate(cli.db.DB)
}
