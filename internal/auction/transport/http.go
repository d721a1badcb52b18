package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"github.com/pendergraft/ntunames/internal/auction/domain"
	"github.com/pendergraft/ntunames/internal/registrar"
	"github.com/pendergraft/ntunames/internal/storage"
	"github.com/pendergraft/ntunames/internal/validation"
)

// Service defines the read side of the auction service used over HTTP.
type Service interface {
	Status(ctx context.Context, name string, account common.Address) (*domain.Status, error)
	ResolveOwner(ctx context.Context, name string) (*domain.OwnerLookup, error)
	Reverse(ctx context.Context, address string) (string, error)
	RegisteredDomains(ctx context.Context) ([]domain.RegisteredDomain, error)
	Bids(ctx context.Context, filter storage.BidFilter, pagination storage.PaginationParams) (*storage.PaginatedResult[storage.Bid], error)
}

// DomainLister serves the registered-domain listing, usually from a cache.
type DomainLister interface {
	RegisteredDomains(ctx context.Context) ([]domain.RegisteredDomain, error)
}

// Handler handles HTTP requests for the auction domain.
type Handler struct {
	svc     Service
	domains DomainLister
}

// NewHandler creates a new auction HTTP handler. A nil lister reads the
// listing through svc.
func NewHandler(svc Service, domains DomainLister) *Handler {
	if domains == nil {
		domains = svc
	}
	return &Handler{svc: svc, domains: domains}
}

// RegisterRoutes registers the auction routes on a chi router. journal
// wraps the bid journal route only.
func (h *Handler) RegisterRoutes(r chi.Router, journal ...func(http.Handler) http.Handler) {
	r.Get("/domains", h.handleList)
	r.Get("/domains/{name}", h.handleStatus)
	r.Get("/resolve/{name}", h.handleResolve)
	r.Get("/reverse/{address}", h.handleReverse)
	r.With(journal...).Get("/bids", h.handleBids)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.domains.RegisteredDomains(r.Context())
	if err != nil {
		writeServiceError(w, err, "Failed to list domains")
		return
	}
	if list == nil {
		list = []domain.RegisteredDomain{}
	}
	writeJSON(w, http.StatusOK, DomainListResponse{Data: list, Count: len(list)})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	var account common.Address
	if a := r.URL.Query().Get("account"); a != "" {
		if err := validation.ValidateAddress(a); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
			return
		}
		account = common.HexToAddress(a)
	}

	status, err := h.svc.Status(r.Context(), chi.URLParam(r, "name"), account)
	if err != nil {
		writeServiceError(w, err, "Failed to resolve domain")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	lookup, err := h.svc.ResolveOwner(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeServiceError(w, err, "Failed to resolve domain")
		return
	}
	writeJSON(w, http.StatusOK, lookup)
}

func (h *Handler) handleReverse(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	name, err := h.svc.Reverse(r.Context(), address)
	if err != nil {
		writeServiceError(w, err, "Failed to reverse resolve address")
		return
	}
	writeJSON(w, http.StatusOK, ReverseResponse{
		Address: common.HexToAddress(address).Hex(),
		Name:    name,
	})
}

func (h *Handler) handleBids(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 20
	if l := q.Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	filter := storage.BidFilter{
		Domain: validation.NormalizeDomainName(q.Get("domain")),
		Status: storage.BidStatus(q.Get("status")),
	}
	if a := q.Get("account"); a != "" {
		if err := validation.ValidateAddress(a); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
			return
		}
		filter.Account = common.HexToAddress(a).Hex()
	}
	if filter.Status != "" && !filter.Status.Valid() {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "unknown bid status")
		return
	}

	result, err := h.svc.Bids(r.Context(), filter, storage.PaginationParams{
		Limit:  limit,
		Cursor: q.Get("cursor"),
	})
	if err != nil {
		writeServiceError(w, err, "Failed to list bids")
		return
	}

	data := make([]BidItem, len(result.Data))
	for i, b := range result.Data {
		data[i] = BidItemFromStorage(b)
	}
	writeJSON(w, http.StatusOK, BidListResponse{
		Data: data,
		Pagination: Pagination{
			Limit:      limit,
			HasMore:    result.HasMore,
			NextCursor: result.NextCursor,
		},
	})
}

// writeServiceError maps domain and registrar errors to HTTP responses.
func writeServiceError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, domain.ErrInvalidDomain),
		errors.Is(err, domain.ErrInvalidAddress),
		errors.Is(err, domain.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	case errors.Is(err, domain.ErrNoJournal):
		writeError(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", err.Error())
		return
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "TIMEOUT", "Node did not respond in time")
		return
	}

	var regErr *registrar.Error
	if !errors.As(err, &regErr) {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", fallback)
		return
	}
	switch regErr.Kind {
	case registrar.KindNotRegistered, registrar.KindAuctionNotFound:
		writeError(w, http.StatusNotFound, "NOT_FOUND", regErr.Message())
	case registrar.KindTransient:
		writeError(w, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", regErr.Message())
	default:
		writeError(w, http.StatusBadGateway, "UPSTREAM_ERROR", regErr.Message())
	}
}

// Helper functions

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: ErrorBody{Code: code, Message: message}})
}
