package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/fieldship/internal/model"
)

var checkCmd = &cobra.Command{
	Use:     "check",
	Short:   "Verify every live attribute of governed entities is classified",
	GroupID: "governance",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		err = a.check(cmd.Context())
		var cerr *model.ConfigurationError
		if err != nil && !errors.As(err, &cerr) {
			return err
		}

		if jsonOutput {
			printJSON(os.Stdout, newCheckReport(a.registry.Governed(), cerr))
		} else {
			printCheckReport(os.Stdout, a.registry.Governed(), cerr)
		}
		if cerr != nil {
			return errSilent
		}
		return nil
	},
}
