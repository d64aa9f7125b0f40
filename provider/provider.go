// Package provider implements the runtime data plane: the single-threaded
// owner of the mempool, the active
// blockchain backend, the working state handle, snapshots and filters,
// dispatching the operations a JSON-RPC front end would expose as
// eth_*/evm_*/hardhat_* methods.
package provider

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/ethereum/go-ethereum/params"

	"github.com/ethlocal/devnode/blockbuilder"
	"github.com/ethlocal/devnode/blockchain"
	"github.com/ethlocal/devnode/chaintypes"
	"github.com/ethlocal/devnode/internal/devaccounts"
	"github.com/ethlocal/devnode/state"
	"github.com/ethlocal/devnode/txpool"
)

// Config configures a Provider at construction.
type Config struct {
	ChainConfig *params.ChainConfig
	PostMerge   bool

	BlockGasLimit uint64
	MinGasPrice   *big.Int

	AutoMine                   bool
	AllowBlocksWithSameTimestamp bool
	BlockTimeOffset            time.Duration

	Coinbase common.Address
	Keyring  *devaccounts.Keyring
}

type metricsSet struct {
	poolSize    metrics.Gauge
	blocksMined metrics.Counter
}

// Provider owns every piece of mutable runtime state for one development
// node. It is not safe for concurrent use: callers must serialize through
// it themselves, typically by owning a single-threaded request loop and
// calling Provider's methods directly from it.
type Provider struct {
	mu sync.Mutex

	cfg    Config
	chain  blockchain.Chain
	pool   *txpool.Pool
	signer *chaintypes.Signer

	keyring      *devaccounts.Keyring
	impersonated mapset.Set[common.Address]

	coinbase    common.Address
	minGasPrice *big.Int
	autoMine    bool

	// intervalMining is the configured hardhat_setIntervalMining period; the
	// provider itself never starts a background goroutine to honor it (it
	// isn't safe for concurrent use), so an embedding RPC server is expected
	// to poll this and call MineAndCommitBlock on a matching ticker.
	intervalMining time.Duration

	// state is always the exact *state.State the chain backend recorded
	// for the current head block; out-of-band mutations (hardhat_set*)
	// write directly into its overlay, so a query against "latest" sees
	// them immediately while the chain's commitment to that head block's
	// root stays untouched until the next block folds the overlay in.
	state *state.State

	blockTimeOffset        time.Duration
	nextBlockTimestamp     *uint64
	nextBaseFee            *big.Int
	nextPrevRandaoOverride *common.Hash

	snapshots      map[uint64]*stateCapture
	nextSnapshotID uint64

	logFilters       map[uint64]*logFilter
	pendingTxFilters map[uint64]*pendingTxFilter
	nextFilterID     uint64

	metrics metricsSet
}

// New constructs a provider over an already-seeded chain (typically via
// blockchain.NewLocal or blockchain.NewForked) and its genesis state.
func New(cfg Config, chain blockchain.Chain, genesisState *state.State) (*Provider, error) {
	if cfg.ChainConfig == nil {
		return nil, fmt.Errorf("provider: ChainConfig is required")
	}
	if cfg.MinGasPrice == nil {
		cfg.MinGasPrice = big.NewInt(0)
	}
	if cfg.Keyring == nil {
		cfg.Keyring = devaccounts.NewKeyring()
	}

	p := &Provider{
		cfg:              cfg,
		chain:            chain,
		pool:             txpool.New(cfg.BlockGasLimit),
		signer:           chaintypes.LatestSigner(cfg.ChainConfig.ChainID),
		keyring:          cfg.Keyring,
		impersonated:     mapset.NewSet[common.Address](),
		coinbase:         cfg.Coinbase,
		minGasPrice:      new(big.Int).Set(cfg.MinGasPrice),
		autoMine:         cfg.AutoMine,
		state:            genesisState,
		blockTimeOffset:  cfg.BlockTimeOffset,
		snapshots:        make(map[uint64]*stateCapture),
		nextSnapshotID:   1,
		logFilters:       make(map[uint64]*logFilter),
		pendingTxFilters: make(map[uint64]*pendingTxFilter),
		nextFilterID:     1,
		metrics: metricsSet{
			poolSize:    metrics.NewRegisteredGauge("devnode/txpool/size", nil),
			blocksMined: metrics.NewRegisteredCounter("devnode/blocks/mined", nil),
		},
	}
	return p, nil
}

func (p *Provider) rules(number *big.Int, time uint64) blockbuilder.Rules {
	return blockbuilder.RulesAt(p.cfg.ChainConfig, number, time, p.cfg.PostMerge)
}

// EthAccounts returns every account the node can sign for.
func (p *Provider) EthAccounts() []common.Address {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.keyring.Accounts()
}

// EthCoinbase returns the address mining rewards and eth_sendTransaction's
// implicit beneficiary are credited to.
func (p *Provider) EthCoinbase() common.Address {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.coinbase
}

// EthBlockNumber returns the chain tip's number.
func (p *Provider) EthBlockNumber() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.chain.LatestBlockNumber()
}

// EthChainId returns the configured chain id.
func (p *Provider) EthChainId() *big.Int {
	return new(big.Int).Set(p.cfg.ChainConfig.ChainID)
}

// NetVersion is eth_chainId's decimal-string sibling some clients still ask
// for over net_version.
func (p *Provider) NetVersion() string {
	return p.cfg.ChainConfig.ChainID.String()
}

// EthGetBalance reads addr's balance as of spec.
func (p *Provider) EthGetBalance(ctx context.Context, addr common.Address, spec BlockSpec) (*big.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	view, err := p.stateView(ctx, spec)
	if err != nil {
		return nil, err
	}
	acc, err := view.Basic(addr)
	if err != nil {
		return nil, err
	}
	if acc.Balance == nil {
		return new(big.Int), nil
	}
	return acc.Balance, nil
}

// EthGetTransactionCount reads addr's nonce as of spec.
func (p *Provider) EthGetTransactionCount(ctx context.Context, addr common.Address, spec BlockSpec) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	view, err := p.stateView(ctx, spec)
	if err != nil {
		return 0, err
	}
	acc, err := view.Basic(addr)
	if err != nil {
		return 0, err
	}
	return acc.Nonce, nil
}

// EthGetCode reads addr's contract code as of spec.
func (p *Provider) EthGetCode(ctx context.Context, addr common.Address, spec BlockSpec) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	view, err := p.stateView(ctx, spec)
	if err != nil {
		return nil, err
	}
	acc, err := view.Basic(addr)
	if err != nil {
		return nil, err
	}
	if len(acc.CodeHash) == 0 {
		return nil, nil
	}
	return view.CodeByHash(common.BytesToHash(acc.CodeHash)), nil
}

// EthGetStorageAt reads addr's storage slot as of spec.
func (p *Provider) EthGetStorageAt(ctx context.Context, addr common.Address, slot common.Hash, spec BlockSpec) (common.Hash, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	view, err := p.stateView(ctx, spec)
	if err != nil {
		return common.Hash{}, err
	}
	return view.Storage(addr, slot)
}

// stateView resolves spec to a *state.State to read from, building (but
// never committing) a transient block for the pending tag.
func (p *Provider) stateView(ctx context.Context, spec BlockSpec) (*state.State, error) {
	if spec.IsPending() {
		resolved, err := p.buildPendingBlock(ctx)
		if err != nil {
			return nil, err
		}
		return resolved.state, nil
	}
	_, n, err := p.blockAndNumber(ctx, spec)
	if err != nil {
		return nil, err
	}
	if n == p.chain.LatestBlockNumber() {
		return p.state, nil
	}
	view, err := p.chain.StateAtBlock(ctx, n, nil)
	if err != nil {
		return nil, err
	}
	return view.Clone(), nil
}

// EthGetBlockByHash/EthGetBlockByNumber resolve a block through the chain
// backend; BlockByNumber additionally accepts the pending tag, returning a
// transient, never-committed block.
func (p *Provider) EthGetBlockByHash(ctx context.Context, hash common.Hash) (*chaintypes.Block, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	block, err := p.chain.BlockByHash(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("%w: hash %s", ErrInvalidBlockNumberOrHash, hash)
	}
	return block, nil
}

func (p *Provider) EthGetBlockByNumber(ctx context.Context, spec BlockSpec) (*chaintypes.Block, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if spec.IsPending() {
		resolved, err := p.buildPendingBlock(ctx)
		if err != nil {
			return nil, err
		}
		return resolved.block, nil
	}
	block, _, err := p.blockAndNumber(ctx, spec)
	return block, err
}

// EthGetTransactionByHash looks the transaction up in the pool first (it
// may not be mined yet), then falls back to the chain.
func (p *Provider) EthGetTransactionByHash(ctx context.Context, hash common.Hash) (*chaintypes.Transaction, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if tx, ok := p.pool.Transaction(hash); ok {
		return tx, false, nil
	}
	block, err := p.chain.BlockByTransactionHash(ctx, hash)
	if err != nil {
		return nil, false, nil
	}
	return block.Transaction(hash), true, nil
}

// EthGetTransactionReceipt returns the receipt for a mined transaction.
func (p *Provider) EthGetTransactionReceipt(ctx context.Context, hash common.Hash) (*chaintypes.Receipt, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	block, err := p.chain.BlockByTransactionHash(ctx, hash)
	if err != nil {
		return nil, nil //nolint:nilerr // "not found" is not an RPC-level error
	}
	receipts, err := p.chain.ReceiptsByBlockHash(ctx, block.Hash())
	if err != nil {
		return nil, err
	}
	return receiptFor(receipts, hash), nil
}

// EthSign implements eth_sign/personal_sign's "local account" signing path.
func (p *Provider) EthSign(addr common.Address, message []byte) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.keyring.SignPersonal(addr, message)
}

