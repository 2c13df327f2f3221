package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Sternrassler/bookshelf-web/pkg/cache"
	"github.com/Sternrassler/bookshelf-web/pkg/config"
	"github.com/spf13/cobra"
)

var errMemoryLedger = errors.New("the memory ledger lives inside the server process; use --ledger-backend redis or postgres, or the /api/cache endpoint")

func newStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print ledger statistics as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.LedgerBackend == config.BackendMemory {
				return errMemoryLedger
			}

			l, closeLedger, err := openLedger(cmd.Context(), a.cfg)
			if err != nil {
				return err
			}
			defer closeLedger()

			stats, err := l.Stats(cmd.Context())
			if err != nil {
				return fmt.Errorf("read ledger: %w", err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		},
	}
}

func newInvalidateCmd(a *app) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "invalidate [key|endpoint...]",
		Short: "Remove ledger entries",
		Long: `Remove ledger entries so the next page render refetches them.

Arguments are full keys (https://api.example.com/books/42) or endpoints
(/books/42); endpoints are resolved against --backend-url. With --all every
entry is removed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !all && len(args) == 0 {
				return errors.New("provide at least one key or endpoint, or --all")
			}
			if a.cfg.LedgerBackend == config.BackendMemory {
				return errMemoryLedger
			}

			keys := make([]string, 0, len(args))
			for _, arg := range args {
				key, err := resolveKey(a.cfg.BackendURL, arg)
				if err != nil {
					return err
				}
				keys = append(keys, key)
			}

			l, closeLedger, err := openLedger(cmd.Context(), a.cfg)
			if err != nil {
				return err
			}
			defer closeLedger()

			out := cmd.OutOrStdout()
			if all {
				if err := l.InvalidateAll(cmd.Context()); err != nil {
					return fmt.Errorf("clear ledger: %w", err)
				}
				fmt.Fprintln(out, "All caches cleared")
				return nil
			}

			for _, key := range keys {
				if err := l.Invalidate(cmd.Context(), key); err != nil {
					return fmt.Errorf("invalidate %s: %w", key, err)
				}
				fmt.Fprintf(out, "Cache cleared for key: %s\n", key)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "remove every ledger entry")
	return cmd
}

// resolveKey turns an endpoint into a full key. Full keys pass through.
func resolveKey(backendURL, arg string) (string, error) {
	if !strings.HasPrefix(arg, "/") {
		return arg, nil
	}
	origin := cache.NormalizeOrigin(backendURL)
	if origin == "" {
		return "", fmt.Errorf("endpoint %s needs --backend-url", arg)
	}
	return cache.KeyFor(origin, arg), nil
}
