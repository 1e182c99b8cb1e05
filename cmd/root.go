package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"sifi-swap/config"
	"sifi-swap/pkg/catalog"
	"sifi-swap/pkg/client"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "sifi-swap",
	Short: "A CLI for token swaps using the Sifi swap API",
	Long: `sifi-swap is a command-line tool that quotes and executes token swaps
through the Sifi swap API. It checks your balance and the token allowance,
asks for an approval when one is needed, and sends the swap from your wallet.

Examples:
  sifi-swap swap 100 USDC to ETH
  sifi-swap swap 0.5 ETH on arb to USDC on base
  sifi-swap list-tokens --chain base
  sifi-swap status <tx-hash>
  sifi-swap referrer set 0x1234...abcd25`,
	Version: "0.1.0",
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Add global flags
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "Output in JSON format")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default is $HOME/.sifi-swap.yaml)")
}

// loadConfig reads the configuration and sets up the logger for a command
func loadConfig(cmd *cobra.Command) (*config.Config, *logrus.Logger) {
	var (
		cfg *config.Config
		err error
	)
	if configFile != "" {
		cfg, err = config.LoadFile(configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	return cfg, newLogger(cfg.LogLevel, verbose)
}

func newLogger(level string, verbose bool) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	if verbose {
		lvl = logrus.DebugLevel
	}
	log.SetLevel(lvl)
	return log
}

// newCatalog builds the token catalog for the configured source. The returned
// func releases the cache connection.
func newCatalog(ctx context.Context, cfg *config.Config, api *client.SifiClient, log logrus.FieldLogger) (*catalog.Catalog, func(), error) {
	var source catalog.Source
	switch cfg.CatalogSource {
	case config.CatalogSourceOneClick:
		source = catalog.NewOneClickSource(cfg.OneClickJWT)
	default:
		source = catalog.NewAPISource(api)
	}

	if cfg.TokenCache.RedisAddr == "" {
		return catalog.New(source, catalog.NewMemoryCache(cfg.TokenCache.TTL), log), func() {}, nil
	}

	cache, err := catalog.NewRedisCache(ctx, catalog.RedisConfig{
		Address:  cfg.TokenCache.RedisAddr,
		Password: cfg.TokenCache.RedisPassword,
		DB:       cfg.TokenCache.RedisDB,
		TTL:      cfg.TokenCache.TTL,
	})
	if err != nil {
		return nil, nil, err
	}
	return catalog.New(source, cache, log), func() { _ = cache.Close() }, nil
}

// defaultChain is the chain used when a command does not name one
func defaultChain(cfg *config.Config) uint64 {
	if ids := cfg.ChainIDs(); len(ids) > 0 {
		return ids[0]
	}
	return 1
}

func printError(err error) {
	fmt.Fprintf(os.Stderr, "\n%s %v\n\n", color.RedString("Error:"), err)
}

func printSuccess(message string) {
	fmt.Printf("\n%s\n\n", color.GreenString(message))
}
