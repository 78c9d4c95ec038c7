package main

import (
	"fmt"
	"os"
	"strings"

	batchdepositservice "github.com/stakebatch/batch-deposit-service"
	"github.com/stakebatch/batch-deposit-service/config"
	"github.com/urfave/cli/v2"
)

const (
	appName = "batch-deposit"

	flagCfg     = "cfg"
	flagNetwork = "network"
)

func main() {
	app := &cli.App{
		Name:    appName,
		Usage:   "Forward batches of validator deposits to the deposit contract",
		Version: batchdepositservice.Version,
		Commands: []*cli.Command{
			{
				Name:   "version",
				Usage:  "Application version and build",
				Action: versionCmd,
			},
			{
				Name:   "networks",
				Usage:  "List the network presets and their deposit contracts",
				Action: networksCmd,
			},
			{
				Name:   "run",
				Usage:  "Run the batch deposit service",
				Action: start,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    flagCfg,
						Aliases: []string{"c"},
						Usage:   "Configuration `FILE`",
					},
					&cli.StringFlag{
						Name:    flagNetwork,
						Aliases: []string{"n"},
						Usage:   "Network preset (" + strings.Join(config.Networks(), ", ") + "). Required when the config file has no [NetworkConfig] section",
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Printf("\nError: %v\n", err)
		os.Exit(1)
	}
}
