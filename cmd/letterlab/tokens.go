package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/letterlab/internal/tokens"
)

var tokenCount int

var tokensCmd = &cobra.Command{
	Use:   "tokens",
	Short: "Manage participant access tokens",
}

var tokensCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create access tokens",
	Long:  "Create unused access tokens and print one per line.",
	RunE:  runTokensCreate,
}

var tokensListCmd = &cobra.Command{
	Use:   "list",
	Short: "List access tokens and their state",
	RunE:  runTokensList,
}

func init() {
	tokensCreateCmd.Flags().IntVarP(&tokenCount, "count", "n", 1, "Number of tokens to create")

	tokensCmd.AddCommand(tokensCreateCmd)
	tokensCmd.AddCommand(tokensListCmd)
	rootCmd.AddCommand(tokensCmd)
}

func runTokensCreate(cmd *cobra.Command, _ []string) error {
	if tokenCount < 1 || tokenCount > tokens.MaxBatch {
		return fmt.Errorf("--count must be between 1 and %d", tokens.MaxBatch)
	}

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

	created, err := tokens.NewService(store, logger).Create(cmd.Context(), tokenCount)
	if err != nil {
		return err
	}
	for _, t := range created {
		fmt.Fprintln(cmd.OutOrStdout(), t.Token)
	}
	return nil
}

func runTokensList(cmd *cobra.Command, _ []string) error {
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

	list, err := tokens.NewService(store, logger).List(cmd.Context())
	if err != nil {
		return err
	}
	for _, t := range list {
		state := "unused"
		switch {
		case t.Invalidated:
			state = "invalidated"
		case t.Used:
			state = "used"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", t.Token, state, t.CreatedAt.Format("2006-01-02"))
	}
	return nil
}
