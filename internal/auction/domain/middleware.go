package domain

import (
	"context"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pendergraft/ntunames/internal/storage"
)

// LoggingMiddleware returns a service middleware that logs all operations.
// Writes log at Info, reads at Debug. Secrets are never logged.
func LoggingMiddleware(logger *slog.Logger) func(Service) *loggingMiddleware {
	return func(next Service) *loggingMiddleware {
		return &loggingMiddleware{
			next:   next,
			logger: logger,
		}
	}
}

type loggingMiddleware struct {
	next   Service
	logger *slog.Logger
}

func (m *loggingMiddleware) Resolve(ctx context.Context, name string) (*Resolution, error) {
	start := time.Now()
	res, err := m.next.Resolve(ctx, name)
	attrs := []any{"name", name}
	if res != nil {
		attrs = append(attrs, "phase", res.Phase.String())
	}
	m.logger.Debug("Resolve", append(attrs, "duration", time.Since(start), "error", err)...)
	return res, err
}

func (m *loggingMiddleware) Status(ctx context.Context, name string, account common.Address) (*Status, error) {
	start := time.Now()
	st, err := m.next.Status(ctx, name, account)
	m.logger.Debug("Status",
		"name", name,
		"account", account.Hex(),
		"duration", time.Since(start),
		"error", err,
	)
	return st, err
}

func (m *loggingMiddleware) Commit(ctx context.Context, req CommitRequest) (*CommitResult, error) {
	start := time.Now()
	result, err := m.next.Commit(ctx, req)
	attrs := []any{"name", req.Name, "amount", req.Amount, "deposit", req.Deposit}
	if result != nil {
		attrs = append(attrs, "epoch", result.Epoch, "tx", result.CommitTx.Hash.Hex(), "started", result.StartTx != nil)
	}
	m.logger.Info("Commit", append(attrs, "duration", time.Since(start), "error", err)...)
	return result, err
}

func (m *loggingMiddleware) Reveal(ctx context.Context, req RevealRequest) (*RevealResult, error) {
	start := time.Now()
	result, err := m.next.Reveal(ctx, req)
	attrs := []any{"name", req.Name, "fromJournal", req.Secret == ""}
	if result != nil {
		attrs = append(attrs, "epoch", result.Epoch, "tx", result.RevealTx.Hash.Hex())
	}
	m.logger.Info("Reveal", append(attrs, "duration", time.Since(start), "error", err)...)
	return result, err
}

func (m *loggingMiddleware) Finalize(ctx context.Context, name string) (*TxInfo, error) {
	start := time.Now()
	tx, err := m.next.Finalize(ctx, name)
	m.logger.Info("Finalize",
		"name", name,
		"duration", time.Since(start),
		"error", err,
	)
	return tx, err
}

func (m *loggingMiddleware) Send(ctx context.Context, name string, amount *big.Int) (*SendResult, error) {
	start := time.Now()
	result, err := m.next.Send(ctx, name, amount)
	m.logger.Info("Send",
		"name", name,
		"amount", amount,
		"duration", time.Since(start),
		"error", err,
	)
	return result, err
}

func (m *loggingMiddleware) ResolveOwner(ctx context.Context, name string) (*OwnerLookup, error) {
	start := time.Now()
	out, err := m.next.ResolveOwner(ctx, name)
	m.logger.Debug("ResolveOwner",
		"name", name,
		"duration", time.Since(start),
		"error", err,
	)
	return out, err
}

func (m *loggingMiddleware) Reverse(ctx context.Context, address string) (string, error) {
	start := time.Now()
	name, err := m.next.Reverse(ctx, address)
	m.logger.Debug("Reverse",
		"address", address,
		"duration", time.Since(start),
		"error", err,
	)
	return name, err
}

func (m *loggingMiddleware) RegisteredDomains(ctx context.Context) ([]RegisteredDomain, error) {
	start := time.Now()
	list, err := m.next.RegisteredDomains(ctx)
	m.logger.Debug("RegisteredDomains",
		"count", len(list),
		"duration", time.Since(start),
		"error", err,
	)
	return list, err
}

func (m *loggingMiddleware) Bids(ctx context.Context, filter storage.BidFilter, pagination storage.PaginationParams) (*storage.PaginatedResult[storage.Bid], error) {
	start := time.Now()
	result, err := m.next.Bids(ctx, filter, pagination)
	m.logger.Debug("Bids",
		"domain", filter.Domain,
		"status", filter.Status,
		"limit", pagination.Limit,
		"duration", time.Since(start),
		"error", err,
	)
	return result, err
}
