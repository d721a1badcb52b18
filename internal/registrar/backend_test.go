package registrar

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

// handlerFunc serves one contract method. args are the decoded inputs.
type handlerFunc func(from common.Address, value *big.Int, args []interface{}) ([]interface{}, error)

// fakeBackend is an in-memory node that answers registrar calls from
// per-method handlers. Unstubbed methods panic through the nil embedded
// interface.
type fakeBackend struct {
	bind.ContractBackend

	abi      abi.ABI
	handlers map[string]handlerFunc
	chainID  *big.Int
	balances map[common.Address]*big.Int
	gasPrice *big.Int
	failTx   bool

	mu   sync.Mutex
	sent []*types.Transaction
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	parsed, err := ParseABI()
	require.NoError(t, err)
	return &fakeBackend{
		abi:      parsed,
		handlers: make(map[string]handlerFunc),
		chainID:  big.NewInt(1337),
		balances: make(map[common.Address]*big.Int),
		gasPrice: big.NewInt(1_000_000_000),
	}
}

func (f *fakeBackend) on(method string, h handlerFunc) {
	f.handlers[method] = h
}

func (f *fakeBackend) dispatch(from common.Address, value *big.Int, data []byte) ([]byte, error) {
	if len(data) < 4 {
		return nil, errors.New("calldata too short")
	}
	method, err := f.abi.MethodById(data[:4])
	if err != nil {
		return nil, err
	}
	h, ok := f.handlers[method.Name]
	if !ok {
		return nil, fmt.Errorf("no handler for %s", method.Name)
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, err
	}
	out, err := h(from, value, args)
	if err != nil {
		return nil, err
	}
	return method.Outputs.Pack(out...)
}

func (f *fakeBackend) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	return f.dispatch(call.From, call.Value, call.Data)
}

func (f *fakeBackend) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return []byte{0x60}, nil
}

func (f *fakeBackend) PendingCodeAt(context.Context, common.Address) ([]byte, error) {
	return []byte{0x60}, nil
}

func (f *fakeBackend) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(1)}, nil
}

func (f *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return f.gasPrice, nil
}

func (f *fakeBackend) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return big.NewInt(1), nil
}

func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return uint64(len(f.sent)), nil
}

// EstimateGas runs the handler so reverts surface before signing, as they
// do on a real node.
func (f *fakeBackend) EstimateGas(_ context.Context, call ethereum.CallMsg) (uint64, error) {
	if _, err := f.dispatch(call.From, call.Value, call.Data); err != nil {
		return 0, err
	}
	return 100_000, nil
}

func (f *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeBackend) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	status := types.ReceiptStatusSuccessful
	if f.failTx {
		status = types.ReceiptStatusFailed
	}
	return &types.Receipt{TxHash: hash, Status: status, BlockNumber: big.NewInt(42), GasUsed: 51_000}, nil
}

func (f *fakeBackend) BalanceAt(_ context.Context, account common.Address, _ *big.Int) (*big.Int, error) {
	if b, ok := f.balances[account]; ok {
		return b, nil
	}
	return big.NewInt(0), nil
}

func (f *fakeBackend) ChainID(context.Context) (*big.Int, error) {
	return f.chainID, nil
}

func (f *fakeBackend) lastTx(t *testing.T) *types.Transaction {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sent, "no transaction sent")
	return f.sent[len(f.sent)-1]
}

func newSigner(t *testing.T, chainID *big.Int) (*ecdsa.PrivateKey, *bind.TransactOpts) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	opts, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	require.NoError(t, err)
	return key, opts
}
