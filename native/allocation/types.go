package allocation

import (
	"math/big"

	"launchcore/core/faults"
	"launchcore/core/types"
)

// Kind selects the destination of one allocation entry.
type Kind uint8

const (
	// KindVault routes the entry to a vesting vault allocation.
	KindVault Kind = iota + 1
	// KindStaking routes the entry to the staking factory's seed stake.
	KindStaking
)

// Valid reports whether the kind is a known variant.
func (k Kind) Valid() bool {
	switch k {
	case KindVault, KindStaking:
		return true
	default:
		return false
	}
}

func (k Kind) String() string {
	switch k {
	case KindVault:
		return "vault"
	case KindStaking:
		return "staking"
	default:
		return "unknown"
	}
}

// Entry is one percentage slice of newly minted supply. The duration fields
// are interpreted by the entry's kind: cliff and vesting for vaults, lockup
// and stream for staking.
type Entry struct {
	Kind            Kind          `json:"kind"`
	Recipient       types.Address `json:"recipient"`
	Percentage      uint32        `json:"percentage"`
	Cliff           int64         `json:"cliff"`
	VestingDuration int64         `json:"vestingDuration"`
	LockupDuration  int64         `json:"lockupDuration"`
	StreamDuration  int64         `json:"streamDuration"`
}

func (e Entry) validate() error {
	if !e.Kind.Valid() {
		return faults.Validationf("unknown allocation kind %d", e.Kind)
	}
	if e.Percentage == 0 || e.Percentage > 100 {
		return faults.Validationf("entry percentage must be in [1,100], got %d", e.Percentage)
	}
	switch e.Kind {
	case KindVault:
		if e.Recipient.IsZero() {
			return faults.Validationf("vault entry requires a beneficiary")
		}
		if e.Cliff < 0 || e.VestingDuration < 0 {
			return faults.Validationf("vault entry durations must be non-negative")
		}
	case KindStaking:
		if e.LockupDuration < 0 || e.StreamDuration <= 0 {
			return faults.Validationf("staking entry requires a positive stream duration")
		}
	}
	return nil
}

// Config is the per-asset allocation configuration. A disabled config is the
// explicit sentinel leaving 100% of supply outside the core.
type Config struct {
	Asset     types.Address `json:"asset"`
	Entries   []Entry       `json:"entries"`
	Disabled  bool          `json:"disabled"`
	CreatedAt int64         `json:"createdAt"`
}

// Clone returns a deep copy of the config.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	clone.Entries = append([]Entry(nil), c.Entries...)
	return &clone
}

// EntryResult records how one entry was settled during a fan-out.
type EntryResult struct {
	Kind      Kind          `json:"kind"`
	Recipient types.Address `json:"recipient"`
	Amount    *big.Int      `json:"amount"`
}

// FanOut summarises a completed OnAssetMinted dispatch.
type FanOut struct {
	Asset       types.Address `json:"asset"`
	TotalSupply *big.Int      `json:"totalSupply"`
	Allocated   *big.Int      `json:"allocated"`
	Remainder   *big.Int      `json:"remainder"`
	Entries     []EntryResult `json:"entries"`
}
