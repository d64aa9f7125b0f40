package blockbuilder

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/trie"

	"github.com/ethlocal/devnode/chaintypes"
)

// daoForkExtraData is the literal extra-data geth's DAO hard fork requires
// on blocks within the fork's activation window.
var daoForkExtraData = []byte("dao-hard-fork")

const daoForkWindowBlocks = 9

// HeaderOptions overrides the values PartialHeader would otherwise derive
// from the parent; a nil/zero field means "let the builder decide".
type HeaderOptions struct {
	Number           *big.Int
	ParentHash       *common.Hash
	Beneficiary      *common.Address
	Timestamp        uint64
	GasLimit         uint64
	ExtraData        []byte
	Difficulty       *big.Int
	BaseFeePerGas    *big.Int
	WithdrawalsRoot  *common.Hash
	ParentBeaconRoot *common.Hash
	Withdrawals      chaintypes.Withdrawals
	MixDigest        common.Hash
}

// PartialHeader derives the header a new block will be mined with, before
// any transaction has been executed against it.
func PartialHeader(rules Rules, parent *chaintypes.Header, opts HeaderOptions) (*chaintypes.Header, error) {
	number := opts.Number
	if number == nil {
		number = new(big.Int).Add(parent.Number, big.NewInt(1))
	}
	parentHash := parent.Hash()
	if opts.ParentHash != nil {
		parentHash = *opts.ParentHash
	}

	h := &chaintypes.Header{
		ParentHash: parentHash,
		UncleHash:  chaintypes.EmptyUncleHash,
		Number:     number,
		GasLimit:   parent.GasLimit,
		Time:       opts.Timestamp,
		Extra:      opts.ExtraData,
		MixDigest:  opts.MixDigest,
	}
	if opts.Beneficiary != nil {
		h.Coinbase = *opts.Beneficiary
	}
	if opts.GasLimit != 0 {
		h.GasLimit = opts.GasLimit
	}

	if err := applyDifficulty(rules, h, parent, opts); err != nil {
		return nil, err
	}
	applyBaseFee(rules, h, parent, opts)
	applyWithdrawals(rules, h, opts)
	applyBlobFields(rules, h, parent, opts)
	applyParentBeaconRoot(rules, h, opts)

	if err := checkDAOWindow(rules, h); err != nil {
		return nil, err
	}
	return h, nil
}

func applyDifficulty(rules Rules, h *chaintypes.Header, parent *chaintypes.Header, opts HeaderOptions) error {
	switch {
	case rules.Merge:
		h.Difficulty = new(big.Int)
	case opts.Difficulty != nil:
		h.Difficulty = new(big.Int).Set(opts.Difficulty)
	case parent != nil:
		h.Difficulty = calcDifficulty(h.Time, parent)
	default:
		h.Difficulty = big.NewInt(1)
	}
	return nil
}

// calcDifficulty implements the post-Byzantium difficulty adjustment
// (no-uncle term, "bomb" delay folded into a fake block number), grounded
// on go-ethereum's consensus/ethash calcDifficultyEip2384 formula — the
// exact historical bomb-delay schedule is collapsed to a single constant
// here since a development chain never actually lives long enough pre-merge
// for the distinction to matter.
func calcDifficulty(time uint64, parent *chaintypes.Header) *big.Int {
	bigTime := new(big.Int).SetUint64(time)
	bigParentTime := new(big.Int).SetUint64(parent.Time)

	x := new(big.Int).Sub(bigTime, bigParentTime)
	x.Div(x, big.NewInt(9))
	x.Sub(big.NewInt(1), x)
	if x.Cmp(bigMinus99) < 0 {
		x.Set(bigMinus99)
	}

	y := new(big.Int).Div(parent.Difficulty, big.NewInt(2048))
	x.Mul(y, x)
	x.Add(parent.Difficulty, x)

	if x.Cmp(minimumDifficulty) < 0 {
		x.Set(minimumDifficulty)
	}

	fakeBlockNumber := new(big.Int)
	if parent.Number.BitLen() != 0 {
		fakeBlockNumber = new(big.Int).Sub(parent.Number, big.NewInt(9_700_000))
		if fakeBlockNumber.Sign() < 0 {
			fakeBlockNumber = new(big.Int)
		}
	}
	periodCount := fakeBlockNumber.Add(fakeBlockNumber, common1)
	periodCount.Div(periodCount, expDiffPeriod)
	if periodCount.Cmp(common1) > 0 {
		expDiff := periodCount.Sub(periodCount, common1)
		expDiff.Exp(big2, expDiff, nil)
		x.Add(x, expDiff)
	}
	return x
}

var (
	bigMinus99        = big.NewInt(-99)
	minimumDifficulty = big.NewInt(131072)
	expDiffPeriod     = big.NewInt(100000)
	common1           = big.NewInt(1)
	big2              = big.NewInt(2)
)

func applyBaseFee(rules Rules, h *chaintypes.Header, parent *chaintypes.Header, opts HeaderOptions) {
	if !rules.London {
		return
	}
	if opts.BaseFeePerGas != nil {
		h.BaseFee = new(big.Int).Set(opts.BaseFeePerGas)
		return
	}
	h.BaseFee = calcBaseFee(rules, parent)
}

// NextBaseFee projects the base fee a block built on top of parent would
// carry absent an explicit override, for callers that need to validate a
// transaction's fee cap before a block actually gets built.
func NextBaseFee(rules Rules, parent *chaintypes.Header) *big.Int {
	if !rules.London {
		return nil
	}
	return calcBaseFee(rules, parent)
}

// calcBaseFee implements EIP-1559's base-fee adjustment, grounded on
// go-ethereum's consensus/misc/eip1559.CalcBaseFee.
func calcBaseFee(rules Rules, parent *chaintypes.Header) *big.Int {
	if parent.BaseFee == nil {
		return big.NewInt(params1559InitialBaseFee)
	}
	parentGasTarget := parent.GasLimit / rules.ElasticityMultiplier
	if parent.GasUsed == parentGasTarget {
		return new(big.Int).Set(parent.BaseFee)
	}

	denom := new(big.Int).SetUint64(rules.BaseFeeChangeDenominator)
	if parent.GasUsed > parentGasTarget {
		gasUsedDelta := new(big.Int).SetUint64(parent.GasUsed - parentGasTarget)
		x := new(big.Int).Mul(parent.BaseFee, gasUsedDelta)
		y := x.Div(x, new(big.Int).SetUint64(parentGasTarget))
		baseFeeDelta := math.BigMax(x.Div(y, denom), common1)
		return x.Add(parent.BaseFee, baseFeeDelta)
	}
	gasUsedDelta := new(big.Int).SetUint64(parentGasTarget - parent.GasUsed)
	x := new(big.Int).Mul(parent.BaseFee, gasUsedDelta)
	y := x.Div(x, new(big.Int).SetUint64(parentGasTarget))
	baseFeeDelta := x.Div(y, denom)
	return math.BigMax(x.Sub(parent.BaseFee, baseFeeDelta), common0)
}

const params1559InitialBaseFee = 1_000_000_000

var common0 = big.NewInt(0)

func applyWithdrawals(rules Rules, h *chaintypes.Header, opts HeaderOptions) {
	if !rules.Shanghai {
		return
	}
	root := chaintypes.EmptyRootHash
	if opts.WithdrawalsRoot != nil {
		root = *opts.WithdrawalsRoot
	} else if len(opts.Withdrawals) > 0 {
		root = chaintypes.DeriveSha(opts.Withdrawals, trie.NewStackTrie(nil))
	}
	h.WithdrawalsHash = &root
}

func applyBlobFields(rules Rules, h *chaintypes.Header, parent *chaintypes.Header, opts HeaderOptions) {
	if !rules.Cancun {
		return
	}
	used := uint64(0)
	h.BlobGasUsed = &used
	excess := calcExcessBlobGas(parent)
	h.ExcessBlobGas = &excess
}

// calcExcessBlobGas implements EIP-4844's excess-blob-gas rollover,
// grounded on go-ethereum's consensus/misc/eip4844.CalcExcessBlobGas.
func calcExcessBlobGas(parent *chaintypes.Header) uint64 {
	if parent.ExcessBlobGas == nil || parent.BlobGasUsed == nil {
		return 0
	}
	excess := *parent.ExcessBlobGas + *parent.BlobGasUsed
	if excess < targetBlobGasPerBlock {
		return 0
	}
	return excess - targetBlobGasPerBlock
}

const (
	blobGasPerBlob         = 1 << 17
	targetBlobsPerBlock    = 3
	targetBlobGasPerBlock  = targetBlobsPerBlock * blobGasPerBlob
	maxBlobGasPerBlock     = 6 * blobGasPerBlob
)

func applyParentBeaconRoot(rules Rules, h *chaintypes.Header, opts HeaderOptions) {
	if !rules.Cancun {
		return
	}
	root := common.Hash{}
	if opts.ParentBeaconRoot != nil {
		root = *opts.ParentBeaconRoot
	}
	h.ParentBeaconRoot = &root
}

func checkDAOWindow(rules Rules, h *chaintypes.Header) error {
	if rules.DAOForkBlock == nil {
		return nil
	}
	windowEnd := new(big.Int).Add(rules.DAOForkBlock, big.NewInt(daoForkWindowBlocks))
	if h.Number.Cmp(rules.DAOForkBlock) < 0 || h.Number.Cmp(windowEnd) >= 0 {
		return nil
	}
	if !bytes.Equal(h.Extra, daoForkExtraData) {
		return fmt.Errorf("blockbuilder: block %s falls within the DAO fork window and must carry extra-data %q", h.Number, daoForkExtraData)
	}
	return nil
}
