package cmd

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"sifi-swap/config"
	"sifi-swap/pkg/client"
	"sifi-swap/pkg/parser"
	"sifi-swap/pkg/types"
)

var (
	filterChain  string
	filterSymbol string
	yamlOutput   bool
	tokenChain   string
)

var tokensCmd = &cobra.Command{
	Use:     "list-tokens",
	Aliases: []string{"tokens", "ls"},
	Short:   "List all supported tokens",
	Long: `List the tokens supported on the configured chains.

You can filter tokens by chain or symbol. Token lists come from the source set
by catalog_source and are cached for token_cache.ttl.

Examples:
  sifi-swap list-tokens
  sifi-swap list-tokens --chain base
  sifi-swap list-tokens --symbol USDC --yaml`,
	Run: runListTokens,
}

var tokenCmd = &cobra.Command{
	Use:   "token <symbol|address>",
	Short: "Show a token and its USD price",
	Long: `Show the metadata and the current USD price of a token.

Examples:
  sifi-swap token USDC
  sifi-swap token 0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48 --chain eth`,
	Args: cobra.ExactArgs(1),
	Run:  runToken,
}

func init() {
	rootCmd.AddCommand(tokensCmd)
	rootCmd.AddCommand(tokenCmd)

	tokensCmd.Flags().StringVar(&filterChain, "chain", "", "Filter by chain (name or id)")
	tokensCmd.Flags().StringVar(&filterSymbol, "symbol", "", "Filter by token symbol")
	tokensCmd.Flags().BoolVar(&yamlOutput, "yaml", false, "Output in YAML format")

	tokenCmd.Flags().StringVar(&tokenChain, "chain", "", "Chain of the token (name or id)")
}

func runListTokens(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	quiet := jsonOutput || yamlOutput
	cfg, log := loadConfig(cmd)

	chainIDs := cfg.ChainIDs()
	if len(chainIDs) == 0 {
		chainIDs = []uint64{defaultChain(cfg)}
	}
	if filterChain != "" {
		id, err := parser.ParseChain(filterChain)
		if err != nil {
			printError(err)
			os.Exit(1)
		}
		chainIDs = []uint64{id}
	}

	ctx := context.Background()
	apiClient := client.NewSifiClient(cfg.BaseURL)

	catalog, closeCatalog, err := newCatalog(ctx, cfg, apiClient, log)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer closeCatalog()

	// Get tokens with spinner
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !quiet {
		s.Suffix = " Fetching supported tokens..."
		s.Start()
	}

	err = catalog.Load(ctx, chainIDs...)
	if !quiet {
		s.Stop()
	}

	if err != nil {
		printError(err)
		os.Exit(1)
	}

	var filtered []types.Token
	for _, id := range chainIDs {
		for _, token := range catalog.Tokens(id) {
			if filterSymbol != "" && !strings.Contains(strings.ToUpper(token.Symbol), strings.ToUpper(filterSymbol)) {
				continue
			}
			filtered = append(filtered, token)
		}
	}

	// Output
	switch {
	case jsonOutput:
		printJSON(filtered)
	case yamlOutput:
		data, err := yaml.Marshal(filtered)
		if err != nil {
			printError(err)
			os.Exit(1)
		}
		fmt.Print(string(data))
	default:
		displayTokens(filtered)
	}
}

func runToken(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	cfg, log := loadConfig(cmd)

	chainID := defaultChain(cfg)
	if tokenChain != "" {
		id, err := parser.ParseChain(tokenChain)
		if err != nil {
			printError(err)
			os.Exit(1)
		}
		chainID = id
	}

	ctx := context.Background()
	apiClient := client.NewSifiClient(cfg.BaseURL)

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Fetching token..."
		s.Start()
	}

	token, price, err := lookupToken(ctx, apiClient, cfg, log, parser.NormalizeToken(args[0]), chainID)
	if !jsonOutput {
		s.Stop()
	}
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		printJSON(struct {
			types.Token
			UsdPrice string `json:"usdPrice,omitempty"`
		}{*token, price})
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                           TOKEN")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("\n  Symbol:    %s\n", color.YellowString(token.Symbol))
	fmt.Printf("  Name:      %s\n", token.Name)
	fmt.Printf("  Chain:     %d\n", token.ChainID)
	fmt.Printf("  Address:   %s\n", color.CyanString(token.Address))
	fmt.Printf("  Decimals:  %d\n", token.Decimals)
	if price != "" {
		fmt.Printf("  USD Price: $%s\n", price)
	}
	fmt.Println("\n" + strings.Repeat("=", 70) + "\n")
}

// lookupToken resolves addresses through the API and symbols through the
// catalog, then fetches the USD price. A missing price is not an error.
func lookupToken(ctx context.Context, apiClient *client.SifiClient, cfg *config.Config, log logrus.FieldLogger, query string, chainID uint64) (*types.Token, string, error) {
	var token *types.Token
	if common.IsHexAddress(query) {
		t, err := apiClient.GetToken(ctx, chainID, query)
		if err != nil {
			return nil, "", err
		}
		if t.ChainID == 0 {
			t.ChainID = chainID
		}
		token = t
	} else {
		catalog, closeCatalog, err := newCatalog(ctx, cfg, apiClient, log)
		if err != nil {
			return nil, "", err
		}
		defer closeCatalog()

		if err := catalog.Load(ctx, chainID); err != nil {
			return nil, "", err
		}
		t, ok := catalog.Resolve(query, chainID)
		if !ok {
			return nil, "", fmt.Errorf("token %s not found on chain %d (try: sifi-swap list-tokens)", query, chainID)
		}
		token = t
	}

	price, err := apiClient.GetUsdPrice(ctx, chainID, token.Address)
	if err != nil {
		log.WithError(err).Debug("usd price unavailable")
		return token, "", nil
	}
	return token, price.UsdPrice, nil
}

func displayTokens(tokens []types.Token) {
	if len(tokens) == 0 {
		fmt.Println("\nNo tokens found matching the criteria.")
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 90))
	color.Green("                            SUPPORTED TOKENS")
	fmt.Println(strings.Repeat("=", 90))

	// Group tokens by chain
	tokensByChain := make(map[uint64][]types.Token)
	for _, token := range tokens {
		tokensByChain[token.ChainID] = append(tokensByChain[token.ChainID], token)
	}

	chains := make([]uint64, 0, len(tokensByChain))
	for id := range tokensByChain {
		chains = append(chains, id)
	}
	sort.Slice(chains, func(i, j int) bool { return chains[i] < chains[j] })

	// Display tokens grouped by chain
	for _, id := range chains {
		color.Cyan("\nCHAIN %d", id)
		fmt.Println(strings.Repeat("-", 90))

		for _, token := range tokensByChain[id] {
			fmt.Printf("  %-10s  %2d decimals  %s\n",
				color.YellowString(token.Symbol),
				token.Decimals,
				color.HiBlackString(token.Address))
		}
	}

	fmt.Println("\n" + strings.Repeat("=", 90))
	fmt.Printf("\nTotal: %d tokens across %d chains\n\n", len(tokens), len(chains))
}
