package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"sifi-swap/pkg/client"
	"sifi-swap/pkg/types"
)

var (
	watchStatus   bool
	watchInterval int
)

var statusCmd = &cobra.Command{
	Use:   "status <tx-hash>",
	Short: "Check the status of a cross-chain swap",
	Long: `Check the destination leg of a cross-chain swap by the hash of the swap
transaction on the source chain.

Examples:
  sifi-swap status 0x1234...abcd
  sifi-swap status 0x1234...abcd --watch
  sifi-swap status 0x1234...abcd --watch --interval 10`,
	Args: cobra.ExactArgs(1),
	Run:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVarP(&watchStatus, "watch", "w", false, "Watch status updates until the jump succeeds")
	statusCmd.Flags().IntVar(&watchInterval, "interval", 5, "Polling interval in seconds (when watching)")
}

func runStatus(cmd *cobra.Command, args []string) {
	txHash := args[0]
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cfg, _ := loadConfig(cmd)
	apiClient := client.NewSifiClient(cfg.BaseURL)

	if watchStatus {
		watchJump(apiClient, txHash, jsonOutput)
	} else {
		checkJump(apiClient, txHash, jsonOutput)
	}
}

func checkJump(apiClient *client.SifiClient, txHash string, jsonOutput bool) {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Checking swap status..."
		s.Start()
	}

	jump, err := apiClient.GetJump(context.Background(), txHash)
	if !jsonOutput {
		s.Stop()
	}

	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		printJSON(jump)
	} else {
		displayJump(jump, txHash)
	}
}

func watchJump(apiClient *client.SifiClient, txHash string, jsonOutput bool) {
	if jsonOutput {
		fmt.Println(`{"error": "watch mode not supported with JSON output"}`)
		os.Exit(1)
	}
	if watchInterval <= 0 {
		printError(fmt.Errorf("interval must be positive, got %d", watchInterval))
		os.Exit(1)
	}

	fmt.Printf("\nWatching swap status (Tx: %s)\n", color.CyanString(txHash))
	fmt.Printf("Checking every %d seconds. Press Ctrl+C to stop.\n\n", watchInterval)

	ticker := time.NewTicker(time.Duration(watchInterval) * time.Second)
	defer ticker.Stop()

	// Check immediately first, then periodically until the jump lands
	for {
		jump, err := apiClient.GetJump(context.Background(), txHash)
		if err != nil {
			color.Red("Error: %v", err)
		} else {
			displayJump(jump, txHash)
			if jump.Status == types.JumpSuccess {
				printSuccess("Swap completed.")
				return
			}
		}
		<-ticker.C
	}
}

func displayJump(jump *types.Jump, txHash string) {
	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                        SWAP STATUS")
	fmt.Println(strings.Repeat("=", 70))

	fmt.Printf("\n  Source Tx:       %s\n", color.CyanString(txHash))
	fmt.Printf("  Status:          %s\n", coloredStatus(jump.Status))
	if jump.TxHash != "" {
		fmt.Printf("  Destination Tx:  %s\n", color.HiBlackString(jump.TxHash))
	}

	fmt.Println("\n" + strings.Repeat("=", 70) + "\n")
}

func coloredStatus(status types.JumpStatus) string {
	label := strings.ToUpper(string(status))

	switch status {
	case types.JumpSuccess:
		return color.GreenString(label)
	case types.JumpPending, types.JumpInflight:
		return color.YellowString(label)
	case types.JumpUnknown:
		return color.MagentaString(label)
	default:
		return label
	}
}
