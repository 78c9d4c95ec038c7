package main

import (
	"os"

	batchdepositservice "github.com/stakebatch/batch-deposit-service"
	"github.com/urfave/cli/v2"
)

func versionCmd(*cli.Context) error {
	batchdepositservice.PrintVersion(os.Stdout)
	return nil
}
