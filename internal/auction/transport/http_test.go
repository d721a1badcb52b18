package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/ntunames/internal/auction/domain"
	"github.com/pendergraft/ntunames/internal/registrar"
	"github.com/pendergraft/ntunames/internal/storage"
)

var alice = common.HexToAddress("0x000000000000000000000000000000000000a11c")

// mockService implements Service for testing
type mockService struct {
	statuses map[string]*domain.Status
	owners   map[string]*domain.OwnerLookup
	reverse  map[common.Address]string
	domains  []domain.RegisteredDomain
	bids     []storage.Bid
	err      error

	lastAccount common.Address
	lastFilter  storage.BidFilter
	listCalls   int
}

func newMockService() *mockService {
	return &mockService{
		statuses: make(map[string]*domain.Status),
		owners:   make(map[string]*domain.OwnerLookup),
		reverse:  make(map[common.Address]string),
	}
}

func (m *mockService) Status(ctx context.Context, name string, account common.Address) (*domain.Status, error) {
	m.lastAccount = account
	if m.err != nil {
		return nil, m.err
	}
	if name == "bad..ntu" {
		return nil, fmt.Errorf("%w: consecutive dots", domain.ErrInvalidDomain)
	}
	if s, ok := m.statuses[name]; ok {
		return s, nil
	}
	return &domain.Status{Resolution: domain.Resolution{Name: name, Phase: domain.PhaseAvailable, Status: "Available"}}, nil
}

func (m *mockService) ResolveOwner(ctx context.Context, name string) (*domain.OwnerLookup, error) {
	if m.err != nil {
		return nil, m.err
	}
	if o, ok := m.owners[name]; ok {
		return o, nil
	}
	return &domain.OwnerLookup{Name: name, Status: domain.StatusUnregistered, Message: "Domain is not registered"}, nil
}

func (m *mockService) Reverse(ctx context.Context, address string) (string, error) {
	if !common.IsHexAddress(address) {
		return "", domain.ErrInvalidAddress
	}
	return m.reverse[common.HexToAddress(address)], nil
}

func (m *mockService) RegisteredDomains(ctx context.Context) ([]domain.RegisteredDomain, error) {
	m.listCalls++
	return m.domains, m.err
}

func (m *mockService) Bids(ctx context.Context, filter storage.BidFilter, pagination storage.PaginationParams) (*storage.PaginatedResult[storage.Bid], error) {
	m.lastFilter = filter
	if m.err != nil {
		return nil, m.err
	}
	return &storage.PaginatedResult[storage.Bid]{Data: m.bids}, nil
}

type staticLister []domain.RegisteredDomain

func (s staticLister) RegisteredDomains(context.Context) ([]domain.RegisteredDomain, error) {
	return s, nil
}

func setupRouter(svc Service, lister DomainLister) *chi.Mux {
	r := chi.NewRouter()
	h := NewHandler(svc, lister)
	r.Route("/api/v1", func(r chi.Router) {
		h.RegisterRoutes(r)
	})
	return r
}

func get(t *testing.T, router http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestHandler_ListDomains(t *testing.T) {
	svc := newMockService()
	svc.domains = []domain.RegisteredDomain{{Name: "svc.ntu"}}

	t.Run("through lister", func(t *testing.T) {
		router := setupRouter(svc, staticLister{{Name: "alice.ntu", Owner: alice, Expiry: 1_800_000_000}})
		rec := get(t, router, "/api/v1/domains")

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp DomainListResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Data, 1)
		assert.Equal(t, "alice.ntu", resp.Data[0].Name)
		assert.Equal(t, alice, resp.Data[0].Owner)
		assert.Equal(t, 0, svc.listCalls)
	})

	t.Run("falls back to service", func(t *testing.T) {
		router := setupRouter(svc, nil)
		rec := get(t, router, "/api/v1/domains")

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp DomainListResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 1, resp.Count)
		assert.Equal(t, 1, svc.listCalls)
	})

	t.Run("empty list is an array", func(t *testing.T) {
		router := setupRouter(newMockService(), nil)
		rec := get(t, router, "/api/v1/domains")
		assert.JSONEq(t, `{"data":[],"count":0}`, rec.Body.String())
	})
}

func TestHandler_Status(t *testing.T) {
	svc := newMockService()
	svc.statuses["bob.ntu"] = &domain.Status{
		Resolution: domain.Resolution{
			Name:     "bob.ntu",
			Phase:    domain.PhaseCommit,
			Status:   domain.PhaseCommit.Label(),
			Deadline: 1_700_000_600,
			Epoch:    1_700_000_600,
			Auction:  &domain.AuctionRecord{CommitEndTime: 1_700_000_600, RevealEndTime: 1_700_001_200, HighestBid: big.NewInt(0)},
		},
		Actions: domain.Actions{Commit: domain.ActionState{Action: domain.ActionCommit, Available: true}},
	}
	router := setupRouter(svc, nil)

	t.Run("with account", func(t *testing.T) {
		rec := get(t, router, "/api/v1/domains/bob.ntu?account="+alice.Hex())
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, alice, svc.lastAccount)

		var resp map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "commit", resp["phase"])
		assert.Equal(t, "In Commit Phase", resp["status"])
		assert.Equal(t, float64(1_700_000_600), resp["deadline"])
		actions := resp["actions"].(map[string]any)
		assert.Equal(t, true, actions["commit"].(map[string]any)["available"])
	})

	t.Run("without account", func(t *testing.T) {
		rec := get(t, router, "/api/v1/domains/other.ntu")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, common.Address{}, svc.lastAccount)
	})

	t.Run("invalid account", func(t *testing.T) {
		rec := get(t, router, "/api/v1/domains/bob.ntu?account=0x123")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "INVALID_REQUEST", decodeError(t, rec).Code)
	})

	t.Run("invalid domain", func(t *testing.T) {
		rec := get(t, router, "/api/v1/domains/bad..ntu")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, decodeError(t, rec).Message, "invalid domain name")
	})
}

func TestHandler_Resolve(t *testing.T) {
	svc := newMockService()
	svc.owners["alice.ntu"] = &domain.OwnerLookup{Name: "alice.ntu", Owner: &alice, Status: domain.StatusRegistered}
	router := setupRouter(svc, nil)

	rec := get(t, router, "/api/v1/resolve/alice.ntu")
	assert.Equal(t, http.StatusOK, rec.Code)
	var lookup domain.OwnerLookup
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &lookup))
	assert.Equal(t, domain.StatusRegistered, lookup.Status)
	require.NotNil(t, lookup.Owner)
	assert.Equal(t, alice, *lookup.Owner)

	rec = get(t, router, "/api/v1/resolve/nobody.ntu")
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &lookup))
	assert.Equal(t, domain.StatusUnregistered, lookup.Status)
}

func TestHandler_Reverse(t *testing.T) {
	svc := newMockService()
	svc.reverse[alice] = "alice.ntu"
	router := setupRouter(svc, nil)

	rec := get(t, router, "/api/v1/reverse/"+alice.Hex())
	assert.Equal(t, http.StatusOK, rec.Code)
	var resp ReverseResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "alice.ntu", resp.Name)
	assert.Equal(t, alice.Hex(), resp.Address)

	rec = get(t, router, "/api/v1/reverse/not-an-address")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_Bids(t *testing.T) {
	svc := newMockService()
	svc.bids = []storage.Bid{{
		ID:         "bid-1",
		Domain:     "bob.ntu",
		Account:    alice.Hex(),
		AmountWei:  "1000",
		Secret:     "my secret",
		Commitment: "0xabc",
		Status:     storage.BidCommitted,
	}}
	router := setupRouter(svc, nil)

	rec := get(t, router, "/api/v1/bids?domain=BOB.ntu&status=committed&account="+alice.Hex())
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "my secret")
	assert.Equal(t, storage.BidFilter{Domain: "bob.ntu", Status: storage.BidCommitted, Account: alice.Hex()}, svc.lastFilter)

	var resp BidListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "committed", resp.Data[0].Status)
	assert.Equal(t, 20, resp.Pagination.Limit)

	rec = get(t, router, "/api/v1/bids?status=lost")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWriteServiceError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"invalid domain", domain.ErrInvalidDomain, http.StatusBadRequest, "INVALID_REQUEST"},
		{"no journal", domain.ErrNoJournal, http.StatusNotImplemented, "NOT_IMPLEMENTED"},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout, "TIMEOUT"},
		{"not registered", &registrar.Error{Op: "resolveDomain", Kind: registrar.KindNotRegistered}, http.StatusNotFound, "NOT_FOUND"},
		{"transient", &registrar.Error{Op: "getAuctionInfo", Kind: registrar.KindTransient}, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE"},
		{"other contract error", &registrar.Error{Op: "getAuctionInfo", Kind: registrar.KindUnknown, Reason: "boom"}, http.StatusBadGateway, "UPSTREAM_ERROR"},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeServiceError(rec, tt.err, "fallback")
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decodeError(t, rec).Code)
		})
	}
}
