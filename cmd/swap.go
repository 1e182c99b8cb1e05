package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"sifi-swap/config"
	"sifi-swap/pkg/amount"
	"sifi-swap/pkg/approval"
	"sifi-swap/pkg/chain"
	"sifi-swap/pkg/client"
	"sifi-swap/pkg/explorer"
	"sifi-swap/pkg/parser"
	"sifi-swap/pkg/readiness"
	"sifi-swap/pkg/referrer"
	"sifi-swap/pkg/session"
	"sifi-swap/pkg/types"
)

var (
	swapChain     string
	recipientAddr string
	referralParam string
	noConfirm     bool
)

var swapCmd = &cobra.Command{
	Use:   "swap <amount> <source-token> [on <chain>] to <dest-token> [on <chain>]",
	Short: "Quote and execute a token swap",
	Long: `Swap tokens through the Sifi swap API from the wallet configured by private_key.

The swap is only sent once the wallet holds enough of the source token and the
spender of the quote is allowed to move it. If an approval is missing you are
asked to approve the token first. Press Ctrl+C while the approval is being
prepared to cancel it.

Examples:
  # Same-chain swap on the default chain
  sifi-swap swap 100 USDC to ETH

  # Cross-chain swap
  sifi-swap swap 0.5 ETH on arb to USDC on base

  # Swap on a given chain with a referral, skipping confirmations
  sifi-swap swap 1 WETH to DAI --chain op --ref 0x1234...abcd25 --yes`,
	Args: cobra.MinimumNArgs(1),
	Run:  runSwap,
}

func init() {
	rootCmd.AddCommand(swapCmd)

	swapCmd.Flags().StringVar(&swapChain, "chain", "", "Default chain for tokens without 'on <chain>' (name or id)")
	swapCmd.Flags().StringVar(&recipientAddr, "recipient", "", "Recipient address (defaults to the wallet)")
	swapCmd.Flags().StringVar(&referralParam, "ref", "", "Referral parameter: partner address followed by an optional fee in bps")
	swapCmd.Flags().BoolVarP(&noConfirm, "yes", "y", false, "Skip confirmation prompts")
}

// swapResult is the JSON output of the swap command
type swapResult struct {
	Decision     readiness.Kind `json:"decision"`
	Reason       string         `json:"reason,omitempty"`
	FromAmount   string         `json:"from_amount,omitempty"`
	FromToken    string         `json:"from_token,omitempty"`
	ToAmount     string         `json:"to_amount,omitempty"`
	ToToken      string         `json:"to_token,omitempty"`
	ApprovalHash string         `json:"approval_tx,omitempty"`
	SwapHash     string         `json:"swap_tx,omitempty"`
	ExplorerURL  string         `json:"explorer_url,omitempty"`
}

func runSwap(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	cfg, log := loadConfig(cmd)

	fallback := defaultChain(cfg)
	if swapChain != "" {
		id, err := parser.ParseChain(swapChain)
		if err != nil {
			printError(err)
			os.Exit(1)
		}
		fallback = id
	}

	intent, err := parser.ParseSwapCommand(strings.Join(args, " "), fallback)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	referralPath, err := cfg.ReferrerPath()
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	referrals, err := referrer.NewFileStore(referralPath)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	if err := referrer.Capture(referrals, referralParam); err != nil {
		printError(err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	apiClient := client.NewSifiClient(cfg.BaseURL)

	tokens, closeCatalog, err := newCatalog(ctx, cfg, apiClient, log)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer closeCatalog()

	registry, err := chain.DialAll(cfg, log)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer registry.Close()

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Loading tokens..."
		s.Start()
	}
	err = tokens.Load(ctx, intent.FromChain, intent.ToChain)
	if !jsonOutput {
		s.Stop()
	}
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	links := explorer.New(explorerOverrides(cfg))

	var sess *session.Session
	executor := approval.NewExecutor(approval.Options{
		Notifier:            &cliNotifier{quiet: jsonOutput},
		Explorer:            links,
		Logger:              log,
		ConfirmationTimeout: cfg.ApprovalTimeout,
		OnConfirmed: func(hash common.Hash) {
			sess.RefreshAllowance()
		},
		OnStateChange: func(from, to approval.State) {
			log.WithFields(logrus.Fields{"from": from, "to": to}).Debug("approval state changed")
		},
	})

	sess = session.New(ctx, session.Deps{
		Catalog:    tokens,
		Quotes:     apiClient,
		Balances:   registry,
		Allowances: registry,
		Approvals:  executor,
		Logger:     log,
	})

	// The first interrupt cancels a pending approval, any other one aborts
	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)
	go func() {
		for range interrupts {
			if executor.ModalOpen() {
				executor.CloseModal()
				continue
			}
			cancel()
		}
	}()

	wallet := walletFor(registry, intent.FromChain)
	executor.SetSigner(signerFor(wallet, registry))
	sess.SetWallet(wallet)
	sess.SetIntent(*intent)

	result := swapResult{}
	approved := false
	for {
		if !jsonOutput {
			s.Suffix = " Fetching quote, balance and allowance..."
			s.Start()
		}
		sess.Wait()
		if !jsonOutput {
			s.Stop()
		}

		decision := sess.Decision()
		fillResult(&result, sess, decision)
		log.WithFields(logrus.Fields{"decision": decision.Kind, "reason": decision.Reason}).Debug("swap readiness")

		switch decision.Kind {
		case readiness.ConnectWallet:
			printError(errors.New("no wallet configured, set private_key in the config or SIFI_SWAP_PRIVATE_KEY"))
			os.Exit(1)

		case readiness.SwitchNetwork:
			printError(fmt.Errorf("chain %d is not configured, add it to the chains list", intent.FromChain))
			os.Exit(1)

		case readiness.Blocked:
			if err := fetchError(sess); err != nil {
				printError(err)
			}
			if jsonOutput {
				printJSON(result)
			} else {
				color.Yellow("\n%s\n", decision.Reason)
			}
			os.Exit(1)

		case readiness.RequireApproval:
			if approved {
				printError(errors.New("allowance is still too low after the approval"))
				os.Exit(1)
			}
			hash, err := approve(ctx, sess, executor, jsonOutput)
			if err != nil {
				if errors.Is(err, approval.ErrApprovalCancelled) || errors.Is(err, approval.ErrModalClosed) {
					fmt.Println("\nApproval cancelled.")
					os.Exit(0)
				}
				printError(err)
				os.Exit(1)
			}
			executor.Acknowledge()
			result.ApprovalHash = hash.Hex()
			approved = true
			continue

		case readiness.ExecuteReady:
			if err := executeSwap(ctx, cfg, sess, apiClient, registry, links, referrals, &result, jsonOutput); err != nil {
				printError(err)
				os.Exit(1)
			}
			if jsonOutput {
				printJSON(result)
			}
			return
		}
	}
}

// walletFor reports the wallet of the chain the swap starts on. An
// unconfigured chain leaves the wallet on the first configured chain.
func walletFor(registry *chain.Registry, chainID uint64) session.Wallet {
	evm, err := registry.Get(chainID)
	if err == nil {
		return session.Wallet{Account: evm.Account(), ChainID: chainID}
	}

	ids := registry.ChainIDs()
	if len(ids) == 0 {
		return session.Wallet{}
	}
	evm, _ = registry.Get(ids[0])
	return session.Wallet{Account: evm.Account(), ChainID: ids[0]}
}

// signerFor returns nil while no account is loaded so approvals fail with
// approval.ErrWalletNotConnected.
func signerFor(wallet session.Wallet, registry *chain.Registry) approval.Signer {
	if wallet.Account == nil || registry == nil {
		return nil
	}
	return registry
}

func approve(ctx context.Context, sess *session.Session, executor *approval.Executor, jsonOutput bool) (common.Hash, error) {
	quote, _ := sess.Quote()
	from, _ := sess.Tokens()
	intent := sess.Intent()

	if !jsonOutput {
		displayQuote(quote, intent)
		fmt.Printf("%s must be approved for trading before the swap.\n", color.YellowString(from.Symbol))
		fmt.Printf("  Spender: %s\n", color.CyanString(quote.Spender()))
	}

	if err := executor.OpenModal(); err != nil {
		return common.Hash{}, err
	}
	if !noConfirm && !jsonOutput {
		if !confirm(fmt.Sprintf("Approve %s?", from.Symbol)) {
			executor.CloseModal()
			return common.Hash{}, approval.ErrApprovalCancelled
		}
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Waiting for approval confirmation..."
		s.Start()
	}
	hash, err := executor.RequestApproval(ctx, approval.Request{
		ChainID:   intent.FromChain,
		FromToken: from,
		Quote:     quote,
	})
	if !jsonOutput {
		s.Stop()
	}
	return hash, err
}

func executeSwap(
	ctx context.Context,
	cfg *config.Config,
	sess *session.Session,
	apiClient *client.SifiClient,
	registry *chain.Registry,
	links *explorer.Linker,
	referrals referrer.Store,
	result *swapResult,
	jsonOutput bool,
) error {
	quote, _ := sess.Quote()
	intent := sess.Intent()

	if !jsonOutput {
		displayQuote(quote, intent)
	}
	if !noConfirm && !jsonOutput {
		if !confirm("Proceed with swap?") {
			fmt.Println("\nSwap cancelled.")
			os.Exit(0)
		}
	}

	evm, err := registry.Get(intent.FromChain)
	if err != nil {
		return err
	}
	account := evm.Account()

	recipient := account.Hex()
	if recipientAddr != "" {
		if !common.IsHexAddress(recipientAddr) {
			return fmt.Errorf("invalid recipient address %q", recipientAddr)
		}
		recipient = common.HexToAddress(recipientAddr).Hex()
	}

	referral, err := referrals.Get()
	if err != nil {
		return err
	}

	sess.SetSwapSubmitting(true)
	defer sess.SetSwapSubmitting(false)

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Building swap transaction..."
		s.Start()
	}
	defer s.Stop()

	swap, err := apiClient.GetSwap(ctx, types.SwapRequest{
		Quote:       quote,
		FromAddress: account.Hex(),
		Slippage:    cfg.Slippage,
		ToAddress:   recipient,
		Partner:     referral.Address,
		FeeBps:      referral.FeeBps,
	})
	if err != nil {
		return err
	}
	if swap.Tx.ChainID == 0 {
		swap.Tx.ChainID = intent.FromChain
	}

	s.Suffix = " Sending swap..."
	hash, err := registry.SendTransaction(ctx, swap.Tx)
	if err != nil {
		return err
	}
	result.SwapHash = hash.Hex()

	s.Suffix = " Waiting for confirmation..."
	if err := registry.WaitForReceipt(ctx, swap.Tx.ChainID, hash); err != nil {
		return fmt.Errorf("swap %s failed: %w", hash.Hex(), err)
	}
	s.Stop()

	sess.RefreshBalance()

	url, _ := links.TxURL(swap.Tx.ChainID, hash)
	result.ExplorerURL = url

	if jsonOutput {
		return nil
	}

	color.Green("\n✓ Swap confirmed!")
	fmt.Printf("  Transaction: %s\n", color.CyanString(hash.Hex()))
	if url != "" {
		fmt.Printf("  Explorer:    %s\n", color.HiBlackString(url))
	}
	if swap.EstimatedGasTotalUsd != "" {
		fmt.Printf("  Gas (est.):  $%s\n", swap.EstimatedGasTotalUsd)
	}
	if intent.FromChain != intent.ToChain {
		fmt.Println("\nThe destination leg can be tracked using:")
		color.Cyan("  sifi-swap status %s\n", hash.Hex())
	}
	return nil
}

// fetchError returns the first upstream error that left a fact unknown
func fetchError(sess *session.Session) error {
	if _, err := sess.Quote(); err != nil {
		return err
	}
	balanceErr, allowanceErr := sess.Errors()
	if balanceErr != nil {
		return balanceErr
	}
	return allowanceErr
}

func fillResult(result *swapResult, sess *session.Session, decision readiness.Decision) {
	intent := sess.Intent()
	result.Decision = decision.Kind
	result.Reason = decision.Reason
	result.FromAmount = intent.FromAmount
	result.FromToken = intent.FromToken
	result.ToToken = intent.ToToken

	if quote, _ := sess.Quote(); quote != nil && quote.ToAmount != nil {
		result.ToAmount = amount.Format(quote.ToAmount, quote.ToToken.Decimals)
	}
}

func explorerOverrides(cfg *config.Config) map[uint64]string {
	overrides := make(map[uint64]string, len(cfg.Chains))
	for id, c := range cfg.Chains {
		overrides[id] = c.ExplorerURL
	}
	return overrides
}

func displayQuote(quote *types.Quote, intent types.SwapIntent) {
	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                     SWAP QUOTE")
	fmt.Println(strings.Repeat("=", 60))

	fmt.Printf("\n  From:              %s %s\n", intent.FromAmount, color.YellowString(quote.FromToken.Symbol))
	fmt.Printf("  To:                ~%s %s\n", amount.Format(quote.ToAmount, quote.ToToken.Decimals), color.YellowString(quote.ToToken.Symbol))
	if quote.ToAmountAfterFeesUsd != "" {
		fmt.Printf("  Value:             $%s\n", quote.ToAmountAfterFeesUsd)
	}
	if quote.Source.Name != "" {
		fmt.Printf("  Route:             %s\n", quote.Source.Name)
	}
	fmt.Printf("  Source Chain:      %d\n", intent.FromChain)
	fmt.Printf("  Destination Chain: %d\n", intent.ToChain)

	fmt.Println("\n" + strings.Repeat("=", 60) + "\n")
}

func confirm(question string) bool {
	reader := bufio.NewReader(os.Stdin)
	fmt.Printf("\n%s (y/N): ", question)

	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}

	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}

func printJSON(v interface{}) {
	jsonData, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(jsonData))
}

// cliNotifier prints approval notifications to the terminal
type cliNotifier struct {
	quiet bool
}

func (n *cliNotifier) Notify(note approval.Notification) {
	if n.quiet {
		return
	}
	switch note.Severity {
	case approval.SeveritySuccess:
		color.Green("\n✓ %s", note.Message)
	default:
		color.Red("\n✗ %s", note.Message)
	}
	if note.Link != nil && note.Link.Href != "" {
		fmt.Printf("  %s: %s\n", note.Link.Text, color.HiBlackString(note.Link.Href))
	}
}
