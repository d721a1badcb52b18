package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/pendergraft/ntunames/internal/auction/domain"
	"github.com/pendergraft/ntunames/internal/auth"
	"github.com/pendergraft/ntunames/internal/cache"
	"github.com/pendergraft/ntunames/internal/config"
	"github.com/pendergraft/ntunames/internal/observability/metrics"
	"github.com/pendergraft/ntunames/internal/registrar"
	"github.com/pendergraft/ntunames/internal/server"
	"github.com/pendergraft/ntunames/internal/storage"
	"github.com/pendergraft/ntunames/internal/wallet"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "ntunames-server",
		Short:   "ntunames server - read API for .ntu domain auctions",
		Version: version,
	}

	// Default behavior (no subcommand) is to serve
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runServe()
	}

	// Add subcommands
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newJournalCmd())

	return rootCmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func newJournalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Inspect the bid journal",
	}

	cmd.AddCommand(newJournalListCmd())
	cmd.AddCommand(newJournalDeleteCmd())
	cmd.AddCommand(newJournalKeyCmd())

	return cmd
}

func newJournalListCmd() *cobra.Command {
	var domainName string
	var account string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List journaled bids",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJournalList(domainName, account)
		},
	}

	cmd.Flags().StringVar(&domainName, "domain", "", "only bids on this domain")
	cmd.Flags().StringVar(&account, "account", "", "only bids from this address")

	return cmd
}

func newJournalDeleteCmd() *cobra.Command {
	var bidID string

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a journaled bid",
		Long: `Delete a bid from the journal. The secret is lost with it: only delete bids
that were revealed or whose auction is over.

Use 'ntunames-server journal list' to find the bid ID.

EXAMPLES:
  ntunames-server journal delete --id 0190a1b2
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJournalDelete(bidID)
		},
	}

	cmd.Flags().StringVar(&bidID, "id", "", "bid ID to delete (required)")
	_ = cmd.MarkFlagRequired("id")

	return cmd
}

func newJournalKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "key",
		Short: "Generate a journal API key",
		Long: `Generate a new API key for the bid journal routes.

Add it to JOURNAL_API_KEYS (comma-separated) and restart the server. Clients
send it in the X-API-Key header; the ntunames CLI reads it from
NTUNAMES_API_KEY.
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := auth.GenerateAPIKey()
			if err != nil {
				return err
			}
			fmt.Println(key)
			fmt.Fprintln(os.Stderr, "The key is not stored: add it to JOURNAL_API_KEYS now.")
			return nil
		},
	}
}

// Journal commands

func openJournal(cfg *config.Config) (storage.Store, error) {
	store, err := storage.New(cfg.Storage, slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})))
	if err != nil {
		return nil, fmt.Errorf("initializing storage: %w", err)
	}
	if err := store.Migrate(context.Background()); err != nil {
		store.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return store, nil
}

// listAll walks every page of the journal.
func listAll(ctx context.Context, store storage.Store, filter storage.BidFilter) ([]storage.Bid, error) {
	var all []storage.Bid
	cursor := ""
	for {
		page, err := store.ListBids(ctx, filter, storage.PaginationParams{Limit: 100, Cursor: cursor})
		if err != nil {
			return nil, err
		}
		all = append(all, page.Data...)
		if !page.HasMore {
			return all, nil
		}
		cursor = page.NextCursor
	}
}

func runJournalList(domainName, account string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	store, err := openJournal(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	filter := storage.BidFilter{ChainID: cfg.Chain.ChainID, Domain: strings.ToLower(domainName)}
	if account != "" {
		filter.Account = common.HexToAddress(account).Hex()
	}
	bids, err := listAll(context.Background(), store, filter)
	if err != nil {
		return fmt.Errorf("listing bids: %w", err)
	}

	if len(bids) == 0 {
		fmt.Println("No bids found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDOMAIN\tACCOUNT\tEPOCH\tSTATUS\tUPDATED")
	for _, b := range bids {
		// Truncate ID for display
		idDisplay := b.ID
		if len(b.ID) > 8 {
			idDisplay = b.ID[:8] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n", idDisplay, b.Domain, b.Account, b.Epoch, b.Status, b.UpdatedAt)
	}
	w.Flush()

	return nil
}

func runJournalDelete(bidID string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	store, err := openJournal(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	// Find the full bid ID if partial was provided
	bids, err := listAll(context.Background(), store, storage.BidFilter{ChainID: cfg.Chain.ChainID})
	if err != nil {
		return fmt.Errorf("listing bids: %w", err)
	}

	var fullID string
	for _, b := range bids {
		if b.ID == bidID || (len(bidID) >= 8 && strings.HasPrefix(b.ID, bidID)) {
			fullID = b.ID
			break
		}
	}

	if fullID == "" {
		return fmt.Errorf("bid not found: %s", bidID)
	}

	if err := store.DeleteBid(context.Background(), fullID); err != nil {
		return fmt.Errorf("deleting bid: %w", err)
	}

	fmt.Printf("Bid deleted: %s\n", fullID)
	return nil
}

// Server command

func runServe() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg)
	logger.Info("starting ntunames-server", "version", version)

	metrics.Init(cfg.Metrics.Enabled, "ntunames-server")

	policy, err := domain.ParseFailedAuctionPolicy(cfg.Auction.FailedPolicy)
	if err != nil {
		return err
	}

	// Connect to the node. The server never signs.
	session := wallet.NewSession(wallet.Config{
		RPCURL:       cfg.Chain.RPCURL,
		ChainID:      cfg.Chain.ChainID,
		PollInterval: time.Duration(cfg.Chain.PollSeconds) * time.Second,
	}, wallet.WithLogger(logger))

	connectCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	conn, err := session.Connect(connectCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("connecting to node: %w", err)
	}
	defer session.Disconnect()

	if conn.WrongNetwork() {
		logger.Warn("node is on an unexpected chain", "chain_id", conn.ChainID, "expected", conn.ExpectedChainID)
	}
	session.OnChainChange(func(id int64) {
		logger.Warn("node chain changed", "chain_id", id, "expected", cfg.Chain.ChainID)
	})

	reg, err := registrar.New(common.HexToAddress(cfg.Chain.ContractAddress), conn.Backend, logger)
	if err != nil {
		return fmt.Errorf("binding registrar: %w", err)
	}

	// Initialize storage
	store, err := storage.New(cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}
	defer store.Close()

	// Run migrations
	if err := store.Migrate(context.Background()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	svc := domain.LoggingMiddleware(logger)(domain.NewService(reg, store, nil, domain.Config{
		ChainID:        cfg.Chain.ChainID,
		Policy:         policy,
		CommitGasLimit: cfg.Auction.CommitGasLimit,
	}, logger))

	if len(cfg.Auth.JournalKeys) == 0 {
		logger.Warn("bid journal is served without an API key; set JOURNAL_API_KEYS to restrict it")
	}

	deps := server.Deps{Auction: svc, Node: reg}
	if cfg.Cache.Enabled {
		bc, err := cache.NewBigCache(time.Duration(cfg.Cache.TTLSeconds)*time.Second, cfg.Cache.MaxSizeMB)
		if err != nil {
			return fmt.Errorf("initializing cache: %w", err)
		}
		defer bc.Close()
		deps.Domains = cache.NewDomains(bc, svc, logger)
	}

	// Create server
	srv := server.New(cfg, deps, logger)
	if err := srv.StartJobs(); err != nil {
		return fmt.Errorf("starting jobs: %w", err)
	}
	defer srv.StopJobs()

	// Create HTTP server with configurable timeouts
	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      srv.Handler(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	// Start server in goroutine
	errChan := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig)
	}

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func setupLogger(cfg *config.Config) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Logging.Level),
	}

	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
