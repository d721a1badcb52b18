package storage

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const defaultPageSize = 50

// generateID returns a time-ordered UUID so ids sort newest-last.
func generateID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

func normalizeAccount(account string) string {
	return strings.ToLower(account)
}

// bidWhere builds the WHERE clause for ListBids. placeholder renders the
// n-th (1-based) bind parameter for the driver.
func bidWhere(filter BidFilter, cursor string, placeholder func(n int) string) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, placeholder(len(args))))
	}

	if filter.ChainID != 0 {
		add("chain_id = %s", filter.ChainID)
	}
	if filter.Account != "" {
		add("account = %s", normalizeAccount(filter.Account))
	}
	if filter.Domain != "" {
		add("domain = %s", filter.Domain)
	}
	if filter.Status != "" {
		add("status = %s", string(filter.Status))
	}
	if cursor != "" {
		add("id < %s", cursor)
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func pageSize(p PaginationParams) int {
	if p.Limit <= 0 {
		return defaultPageSize
	}
	return p.Limit
}

// paginate trims the extra look-ahead row and fills the cursor.
func paginate(bids []Bid, limit int) *PaginatedResult[Bid] {
	hasMore := len(bids) > limit
	if hasMore {
		bids = bids[:limit]
	}
	var next string
	if hasMore && len(bids) > 0 {
		next = bids[len(bids)-1].ID
	}
	return &PaginatedResult[Bid]{Data: bids, HasMore: hasMore, NextCursor: next}
}

func txColumn(status BidStatus) (string, error) {
	switch status {
	case BidCommitted:
		return "commit_tx", nil
	case BidRevealed:
		return "reveal_tx", nil
	case BidPending:
		return "", nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
}
