package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var fieldsCmd = &cobra.Command{
	Use:     "fields <entity>",
	Short:   "Show the classification of every live attribute of an entity",
	GroupID: "governance",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entity := args[0]

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		attrs, err := a.store.Attributes(cmd.Context(), entity)
		if err != nil {
			return err
		}
		if len(attrs) == 0 {
			return fmt.Errorf("entity %s has no attributes (does it exist in schema %s?)", entity, cfg.DatabaseSchema)
		}

		rows := make([]fieldRow, 0, len(attrs))
		for _, attr := range attrs {
			rows = append(rows, fieldRow{Attribute: attr, Classification: a.registry.Classify(entity, attr)})
		}

		if jsonOutput {
			printJSON(os.Stdout, rows)
			return nil
		}
		printFieldsTable(os.Stdout, entity, a.registry.IsGoverned(entity), rows)
		return nil
	},
}
