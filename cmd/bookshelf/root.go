package main

import (
	"fmt"
	"os"

	"github.com/Sternrassler/bookshelf-web/pkg/config"
	"github.com/Sternrassler/bookshelf-web/pkg/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// app carries the loaded configuration from the root command to its
// subcommands.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:   "bookshelf",
		Short: "Book catalog front end with managed fetch caching",
		Long: `Bookshelf renders a book catalog from a backend API.

Every backend read goes through a fetch ledger that tracks when each endpoint
was last fetched, so pages only see fresh data. Operators and the backend can
invalidate ledger entries over HTTP, from the panel, or with this CLI.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (yaml, json or toml)")
	flags.String("backend-url", "", "backend API base URL")
	flags.String("log-level", "info", "log level: debug, info, warn or error")
	flags.Bool("log-pretty", false, "human-readable console logs")
	flags.String("ledger-backend", config.BackendMemory, "ledger backend: memory, redis or postgres")
	flags.String("redis-url", "", "redis URL for the redis ledger")
	flags.String("database-url", "", "PostgreSQL URL for the postgres ledger")

	a.v.BindPFlag(config.KeyBackendURL, flags.Lookup("backend-url"))
	a.v.BindPFlag(config.KeyLogLevel, flags.Lookup("log-level"))
	a.v.BindPFlag(config.KeyLogPretty, flags.Lookup("log-pretty"))
	a.v.BindPFlag(config.KeyLedgerBackend, flags.Lookup("ledger-backend"))
	a.v.BindPFlag(config.KeyRedisURL, flags.Lookup("redis-url"))
	a.v.BindPFlag(config.KeyDatabaseURL, flags.Lookup("database-url"))

	rootCmd.AddCommand(newServeCmd(a))
	rootCmd.AddCommand(newStatsCmd(a))
	rootCmd.AddCommand(newInvalidateCmd(a))

	return rootCmd
}

// load reads the config file, if any, then flags and environment.
func (a *app) load() error {
	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
		if err := a.v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", a.cfgFile, err)
		}
	}

	cfg, err := config.Load(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg

	logging.Setup(logging.Config{
		Level:  logging.ParseLevel(cfg.LogLevel),
		Pretty: cfg.LogPretty,
		Output: os.Stderr,
	})
	return nil
}
