// Package cli implements the ntunames command line client.
package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile      string
	serverURL    string
	rpcURL       string
	contractAddr string
	chainID      int64
	keystorePath string
	journalPath  string
	verbose      bool
)

// Execute runs the CLI
func Execute(version string) error {
	return newRootCmd(version).Execute()
}

func newRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ntunames",
		Short: "Commit-reveal auctions for .ntu domains",
		Long: `ntunames bids on, reveals and finalizes sealed-bid auctions for .ntu domain names,
and resolves registered names to their owners.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "project config file (default: ntunames.toml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "read through an ntunames server instead of the node")
	rootCmd.PersistentFlags().StringVar(&rpcURL, "rpc", "", "JSON-RPC node URL")
	rootCmd.PersistentFlags().StringVar(&contractAddr, "contract", "", "registrar contract address")
	rootCmd.PersistentFlags().Int64Var(&chainID, "chain-id", 0, "expected chain ID")
	rootCmd.PersistentFlags().StringVar(&keystorePath, "keystore", "", "encrypted keystore file of the signing account")
	rootCmd.PersistentFlags().StringVar(&journalPath, "journal", "", "bid journal database (default: ~/.ntunames/bids.db)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log contract calls to stderr")

	// Add subcommands
	rootCmd.AddCommand(createStatusCmd())
	rootCmd.AddCommand(createResolveCmd())
	rootCmd.AddCommand(createReverseCmd())
	rootCmd.AddCommand(createListCmd())
	rootCmd.AddCommand(createCommitCmd())
	rootCmd.AddCommand(createRevealCmd())
	rootCmd.AddCommand(createFinalizeCmd())
	rootCmd.AddCommand(createSendCmd())
	rootCmd.AddCommand(createBidsCmd())
	rootCmd.AddCommand(createConfigCmd())

	return rootCmd
}

// newLogger logs to stderr so command output stays machine readable.
func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
