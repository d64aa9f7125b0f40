// Package config describes how one development node is set up: which chain
// rules it runs, whether it starts from an empty genesis or a fork of a
// remote archive node, which accounts it funds and can sign for, and the
// runtime policy (automine, min gas price, block time) it starts with.
// Values are loadable from a TOML file via github.com/BurntSushi/toml, the
// same library the rest of the dependency set already carries.
package config

import (
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
)

// Config is the top-level TOML document for a development node.
type Config struct {
	Chain   ChainConfig
	Fork    ForkConfig
	Mining  MiningConfig
	Account AccountConfig
}

// ChainConfig selects the fork schedule and chain id a node runs under.
// ChainID defaults to Hardhat's conventional 31337 when left at zero, and
// Hardfork picks a named go-ethereum fork schedule rather
// than listing every individual EIP activation block — mirroring how
// params.ChainConfig itself is keyed by named forks, not raw EIP numbers.
type ChainConfig struct {
	ChainID   uint64 `toml:"chain_id"`
	Hardfork  string `toml:"hardfork"` // "london", "shanghai", "cancun", ...
	PostMerge bool   `toml:"post_merge"`
}

// ForkConfig, when RPCURL is set, makes the node defer any read at or
// before BlockNumber to a remote archive node instead of starting from an
// empty genesis.
type ForkConfig struct {
	RPCURL      string `toml:"rpc_url"`
	BlockNumber *uint64 `toml:"block_number"` // nil pins to the remote's current head at startup
	CacheDir    string `toml:"cache_dir"`
}

// MiningConfig is the block-production policy a node starts with. The
// provider can change MinGasPrice and IntervalSeconds at runtime
// (HardhatSetMinGasPrice, HardhatSetIntervalMining) and BlockTimeOffset via
// EvmIncreaseTime; AutoMine and BlockGasLimit have no runtime setter.
type MiningConfig struct {
	AutoMine        bool          `toml:"auto_mine"`
	IntervalSeconds uint64        `toml:"interval_seconds"` // 0 disables interval mining
	MinGasPrice     string        `toml:"min_gas_price"`    // decimal wei, parsed with (*big.Int).SetString
	BlockGasLimit   uint64        `toml:"block_gas_limit"`
	BlockTimeOffset time.Duration `toml:"block_time_offset"`
}

// AccountConfig funds a fixed set of development accounts at genesis.
// Each entry's PrivateKey is hex-encoded, unprefixed, matching how
// go-ethereum's crypto.HexToECDSA expects it.
type AccountConfig struct {
	Accounts []AccountEntry `toml:"accounts"`
}

// AccountEntry is one funded development account.
type AccountEntry struct {
	PrivateKey string `toml:"private_key"`
	Balance    string `toml:"balance"` // decimal wei
}

// Load reads and parses a TOML config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Chain.ChainID == 0 {
		c.Chain.ChainID = 31337
	}
	if c.Chain.Hardfork == "" {
		c.Chain.Hardfork = "cancun"
	}
	if c.Mining.BlockGasLimit == 0 {
		c.Mining.BlockGasLimit = 30_000_000
	}
	if c.Mining.MinGasPrice == "" {
		c.Mining.MinGasPrice = "0"
	}
}

// ChainConfigFor builds a *params.ChainConfig with every fork from genesis
// through the named hardfork active at block/time zero, and every later
// fork left disabled — the shape blockbuilder.RulesAt expects.
func (c *Config) ChainConfigFor() (*params.ChainConfig, error) {
	cfg := &params.ChainConfig{ChainID: new(big.Int).SetUint64(c.Chain.ChainID)}
	zero := big.NewInt(0)
	zeroTime := uint64(0)

	cfg.HomesteadBlock = zero
	cfg.EIP150Block = zero
	cfg.EIP155Block = zero
	cfg.EIP158Block = zero
	cfg.ByzantiumBlock = zero
	cfg.ConstantinopleBlock = zero
	cfg.PetersburgBlock = zero
	cfg.IstanbulBlock = zero
	cfg.MuirGlacierBlock = zero
	cfg.BerlinBlock = zero

	switch c.Chain.Hardfork {
	case "berlin":
		return cfg, nil
	case "london":
		cfg.LondonBlock = zero
	case "shanghai":
		cfg.LondonBlock = zero
		cfg.ShanghaiTime = &zeroTime
	case "cancun", "":
		cfg.LondonBlock = zero
		cfg.ShanghaiTime = &zeroTime
		cfg.CancunTime = &zeroTime
	default:
		return nil, fmt.Errorf("config: unknown hardfork %q", c.Chain.Hardfork)
	}
	if c.Chain.PostMerge {
		cfg.TerminalTotalDifficultyPassed = true
		cfg.TerminalTotalDifficulty = zero
	}
	return cfg, nil
}

// MinGasPriceWei parses MinGasPrice, defaulting to zero on an empty string.
func (c *MiningConfig) MinGasPriceWei() (*big.Int, error) {
	if c.MinGasPrice == "" {
		return big.NewInt(0), nil
	}
	v, ok := new(big.Int).SetString(c.MinGasPrice, 10)
	if !ok {
		return nil, fmt.Errorf("config: invalid min_gas_price %q", c.MinGasPrice)
	}
	return v, nil
}

// BalanceWei parses an AccountEntry's Balance field.
func (a *AccountEntry) BalanceWei() (*big.Int, error) {
	if a.Balance == "" {
		return big.NewInt(0), nil
	}
	v, ok := new(big.Int).SetString(a.Balance, 10)
	if !ok {
		return nil, fmt.Errorf("config: invalid balance %q for account", a.Balance)
	}
	return v, nil
}

// CoinbaseOrDefault returns addr if non-zero, otherwise a fixed well-known
// development coinbase so a node started without explicit configuration
// still has somewhere to credit mining rewards.
func CoinbaseOrDefault(addr common.Address) common.Address {
	if addr != (common.Address{}) {
		return addr
	}
	return common.HexToAddress("0xc014bace00000000000000000000000000c014")
}
