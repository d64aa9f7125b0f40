package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ethlocal/devnode/chaintypes"
	"github.com/ethlocal/devnode/state"
)

// ErrInvalidBlockTag is returned when a block tag is meaningless for the
// chain's current fork activation — "safe"/"finalized" before the merge.
var ErrInvalidBlockTag = errors.New("provider: invalid block tag for active fork")

// ErrInvalidBlockNumberOrHash is returned when a numeric or hash block
// spec names a block the chain has never seen.
var ErrInvalidBlockNumberOrHash = errors.New("provider: invalid block number or hash")

type blockSpecKind int

const (
	specLatest blockSpecKind = iota
	specEarliest
	specPending
	specSafe
	specFinalized
	specNumber
	specHash
)

// BlockSpec names the block a read operation should run against, mirroring
// the JSON-RPC "block tag or number or hash" parameter shape.
type BlockSpec struct {
	kind   blockSpecKind
	number uint64
	hash   common.Hash
}

func Latest() BlockSpec              { return BlockSpec{kind: specLatest} }
func Earliest() BlockSpec            { return BlockSpec{kind: specEarliest} }
func Pending() BlockSpec             { return BlockSpec{kind: specPending} }
func Safe() BlockSpec                { return BlockSpec{kind: specSafe} }
func Finalized() BlockSpec           { return BlockSpec{kind: specFinalized} }
func Number(n uint64) BlockSpec      { return BlockSpec{kind: specNumber, number: n} }
func Hash(h common.Hash) BlockSpec   { return BlockSpec{kind: specHash, hash: h} }

func (b BlockSpec) IsPending() bool { return b.kind == specPending }

// resolvedBlock is what block-spec resolution settles on: either a real,
// previously-mined block, or a freshly built (never committed) pending one.
type resolvedBlock struct {
	block   *chaintypes.Block
	state   *state.State
	pending bool
}

// resolveBlockNumber turns every non-hash, non-pending spec into a concrete
// block number, per the resolution rules: latest -> tip, earliest -> 0,
// safe/finalized -> tip iff post-merge, numeric -> itself (validated against
// the tip by the caller).
func (p *Provider) resolveBlockNumber(spec BlockSpec) (uint64, error) {
	switch spec.kind {
	case specLatest:
		return p.chain.LatestBlockNumber(), nil
	case specEarliest:
		return 0, nil
	case specSafe, specFinalized:
		if !p.cfg.PostMerge {
			return 0, fmt.Errorf("%w: %s unavailable pre-merge", ErrInvalidBlockTag, tagName(spec.kind))
		}
		return p.chain.LatestBlockNumber(), nil
	case specNumber:
		return spec.number, nil
	default:
		return 0, fmt.Errorf("provider: %s is not a resolvable block number", tagName(spec.kind))
	}
}

func tagName(k blockSpecKind) string {
	switch k {
	case specLatest:
		return "latest"
	case specEarliest:
		return "earliest"
	case specPending:
		return "pending"
	case specSafe:
		return "safe"
	case specFinalized:
		return "finalized"
	case specNumber:
		return "number"
	case specHash:
		return "hash"
	default:
		return "unknown"
	}
}

// blockAndNumber resolves spec to a concrete mined block plus its number,
// rejecting the pending tag (callers that accept pending must check
// spec.IsPending() first and take the withPending path instead).
func (p *Provider) blockAndNumber(ctx context.Context, spec BlockSpec) (*chaintypes.Block, uint64, error) {
	if spec.kind == specHash {
		block, err := p.chain.BlockByHash(ctx, spec.hash)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: hash %s", ErrInvalidBlockNumberOrHash, spec.hash)
		}
		return block, block.NumberU64(), nil
	}
	n, err := p.resolveBlockNumber(spec)
	if err != nil {
		return nil, 0, err
	}
	if n > p.chain.LatestBlockNumber() {
		return nil, 0, fmt.Errorf("%w: block %d", ErrInvalidBlockNumberOrHash, n)
	}
	block, err := p.chain.BlockByNumber(ctx, n)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: block %d", ErrInvalidBlockNumberOrHash, n)
	}
	return block, n, nil
}
