package cmd

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"sifi-swap/pkg/referrer"
)

var referrerCmd = &cobra.Command{
	Use:   "referrer",
	Short: "Manage the partner referral applied to swaps",
	Long: `A referral is a partner address, optionally followed by a fee in basis points.
It is attached to every swap until replaced.

Examples:
  sifi-swap referrer set 0x1234567890123456789012345678901234567890
  sifi-swap referrer set 0x123456789012345678901234567890123456789025
  sifi-swap referrer show`,
}

var referrerSetCmd = &cobra.Command{
	Use:   "set <address[fee]>",
	Short: "Store a referral",
	Args:  cobra.ExactArgs(1),
	Run:   runReferrerSet,
}

var referrerShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the stored referral",
	Args:  cobra.NoArgs,
	Run:   runReferrerShow,
}

func init() {
	rootCmd.AddCommand(referrerCmd)
	referrerCmd.AddCommand(referrerSetCmd)
	referrerCmd.AddCommand(referrerShowCmd)
}

func openReferrals(cmd *cobra.Command) *referrer.FileStore {
	cfg, _ := loadConfig(cmd)

	path, err := cfg.ReferrerPath()
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	store, err := referrer.NewFileStore(path)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	return store
}

func runReferrerSet(cmd *cobra.Command, args []string) {
	store := openReferrals(cmd)

	if err := referrer.Capture(store, args[0]); err != nil {
		printError(err)
		os.Exit(1)
	}
	runReferrerShow(cmd, nil)
}

func runReferrerShow(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	store := openReferrals(cmd)

	referral, err := store.Get()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		printJSON(referral)
		return
	}
	if referral.Address == "" {
		fmt.Println("\nNo referral stored.")
		return
	}

	fmt.Printf("\n  Partner: %s\n", color.CyanString(referral.Address))
	if referral.FeeBps > 0 {
		fmt.Printf("  Fee:     %d bps\n\n", referral.FeeBps)
	} else {
		fmt.Printf("  Fee:     none\n\n")
	}
}
