package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/letterlab/internal/prompts"
)

var seedPromptsCmd = &cobra.Command{
	Use:   "seed-prompts",
	Short: "Seed the default prompt templates",
	Long:  "Create version 1 of every prompt type that has no active template yet. Existing prompts are left untouched.",
	RunE:  runSeedPrompts,
}

func init() {
	rootCmd.AddCommand(seedPromptsCmd)
}

func runSeedPrompts(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadApp()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	store, err := openStore(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	seeded, err := prompts.NewStore(store, logger).Seed(cmd.Context())
	if err != nil {
		return err
	}

	if len(seeded) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "All prompt types already have an active template")
		return nil
	}
	for _, pt := range seeded {
		fmt.Fprintf(cmd.OutOrStdout(), "Seeded %s\n", pt)
	}
	return nil
}
