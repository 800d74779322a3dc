package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tanpawarit/smart-zoo-assistant/api/catalog"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load the default animals into an empty store",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := loadAppConfig()
		if err != nil {
			return err
		}
		store, err := openStore(app)
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := catalog.NewAnimalCatalog(store, nil).Seed(cmd.Context(), catalog.DefaultAnimals())
		if err != nil {
			return fmt.Errorf("seed animals: %w", err)
		}
		if n == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "store already has animals, nothing seeded")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "seeded %d animals\n", n)
		return nil
	},
}
