package rpccache

import "time"

// SafeBlockDepth returns the number of confirmations after which a block on
// chainID is treated as reorg-safe for caching purposes. L1 mainnet and
// its usual testnets get the
// standard post-merge finalization depth; anything unrecognized gets a
// conservative default rather than refusing to cache at all.
func SafeBlockDepth(chainID uint64) uint64 {
	switch chainID {
	case 1: // mainnet
		return 128
	case 3, 4, 5, 42: // ropsten, rinkeby, goerli, kovan (deprecated, still seen in forked tests)
		return 128
	case 11155111: // sepolia
		return 65
	case 137: // polygon PoS
		return 256
	case 10, 420: // optimism, optimism-goerli
		return 5
	case 42161, 421613: // arbitrum one, arbitrum goerli
		return 5
	default:
		return 128
	}
}

// BlockTime returns the nominal time between blocks on chainID.
// Unrecognized chains fall back to mainnet's cadence. Nothing in the module
// calls it; rpcclient reuses a memoized head number for a fixed one-second
// window instead.
func BlockTime(chainID uint64) time.Duration {
	switch chainID {
	case 1, 3, 4, 5, 42, 11155111:
		return 12 * time.Second
	case 137:
		return 2 * time.Second
	case 10, 420, 42161, 421613:
		return 250 * time.Millisecond
	default:
		return 12 * time.Second
	}
}
