// Package transport provides HTTP request/response types for the auction domain.
package transport

import (
	"github.com/pendergraft/ntunames/internal/auction/domain"
	"github.com/pendergraft/ntunames/internal/storage"
)

// DomainListResponse is the response for listing registered domains.
type DomainListResponse struct {
	Data  []domain.RegisteredDomain `json:"data"`
	Count int                       `json:"count"`
}

// ReverseResponse is the response for a reverse lookup.
type ReverseResponse struct {
	Address string `json:"address"`
	Name    string `json:"name"`
}

// BidListResponse is the response for listing journaled bids.
type BidListResponse struct {
	Data       []BidItem  `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// BidItem is a journaled bid. The secret is never served.
type BidItem struct {
	ID         string `json:"id"`
	ChainID    int64  `json:"chainId"`
	Domain     string `json:"domain"`
	Account    string `json:"account"`
	Epoch      int64  `json:"epoch"`
	AmountWei  string `json:"amountWei"`
	DepositWei string `json:"depositWei"`
	Commitment string `json:"commitment"`
	Status     string `json:"status"`
	CommitTx   string `json:"commitTx,omitempty"`
	RevealTx   string `json:"revealTx,omitempty"`
	CreatedAt  string `json:"createdAt"`
	UpdatedAt  string `json:"updatedAt"`
}

// Pagination provides pagination metadata.
type Pagination struct {
	Limit      int    `json:"limit"`
	HasMore    bool   `json:"hasMore"`
	NextCursor string `json:"nextCursor"`
}

// BidItemFromStorage converts a journal row to its public form.
func BidItemFromStorage(b storage.Bid) BidItem {
	return BidItem{
		ID:         b.ID,
		ChainID:    b.ChainID,
		Domain:     b.Domain,
		Account:    b.Account,
		Epoch:      b.Epoch,
		AmountWei:  b.AmountWei,
		DepositWei: b.DepositWei,
		Commitment: b.Commitment,
		Status:     string(b.Status),
		CommitTx:   b.CommitTx,
		RevealTx:   b.RevealTx,
		CreatedAt:  b.CreatedAt,
		UpdatedAt:  b.UpdatedAt,
	}
}

// ErrorResponse is the error envelope.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody carries a machine-readable code and a user message.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
