package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/stakebatch/batch-deposit-service/config"
	"github.com/urfave/cli/v2"
)

func networksCmd(*cli.Context) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0) //nolint:gomnd
	fmt.Fprintln(w, "NETWORK\tCHAIN ID\tDEPOSIT CONTRACT")
	for _, name := range config.Networks() {
		preset, err := config.Network(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%d\t%s\n", name, preset.L1ChainID, preset.DepositContractAddr.Hex())
	}
	return w.Flush()
}
