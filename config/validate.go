package config

import (
	"fmt"
	"math/big"

	"launchcore/core/types"
)

// Validate checks the loaded configuration for values the daemon cannot run
// with. Defaults are applied before validation, so empty sections pass.
func Validate(cfg *Config) error {
	if cfg.RateLimit.RequestsPerMinute < 0 || cfg.RateLimit.Burst < 0 {
		return fmt.Errorf("ratelimit: negative values")
	}
	if cfg.Allocation.MaxEntries < 0 {
		return fmt.Errorf("allocation: MaxEntries < 0")
	}
	for i, d := range cfg.Allocation.Deployers {
		if _, err := types.ParseAddress(d); err != nil {
			return fmt.Errorf("allocation: Deployers[%d]: %w", i, err)
		}
	}
	var total uint64
	vaultRecipients := make(map[types.Address]struct{})
	for i, entry := range cfg.Allocation.DefaultSplit {
		switch entry.Kind {
		case "vault":
			recipient, err := types.ParseAddress(entry.Recipient)
			if err != nil {
				return fmt.Errorf("allocation: DefaultSplit[%d].Recipient: %w", i, err)
			}
			if _, dup := vaultRecipients[recipient]; dup {
				return fmt.Errorf("allocation: DefaultSplit[%d]: duplicate vault recipient %s", i, entry.Recipient)
			}
			vaultRecipients[recipient] = struct{}{}
		case "staking":
		default:
			return fmt.Errorf("allocation: DefaultSplit[%d].Kind %q unknown", i, entry.Kind)
		}
		if entry.Percentage == 0 || entry.Percentage > 100 {
			return fmt.Errorf("allocation: DefaultSplit[%d].Percentage out of range", i)
		}
		total += uint64(entry.Percentage)
	}
	if total > 100 {
		return fmt.Errorf("allocation: DefaultSplit percentages sum to %d", total)
	}
	if cfg.Valve.Manager != "" {
		if _, err := types.ParseAddress(cfg.Valve.Manager); err != nil {
			return fmt.Errorf("valve: Manager: %w", err)
		}
	}
	if cfg.Valve.FloorUnits != "" {
		if _, ok := new(big.Int).SetString(cfg.Valve.FloorUnits, 10); !ok {
			return fmt.Errorf("valve: FloorUnits %q is not a decimal integer", cfg.Valve.FloorUnits)
		}
	}
	return nil
}

// ValveManager returns the parsed valve manager address, or the zero address
// when unset.
func (c *Config) ValveManager() (types.Address, error) {
	if c.Valve.Manager == "" {
		return types.ZeroAddress, nil
	}
	return types.ParseAddress(c.Valve.Manager)
}

// ValveFloorUnits returns the parsed baseline floor, defaulting to zero.
func (c *Config) ValveFloorUnits() (*big.Int, error) {
	if c.Valve.FloorUnits == "" {
		return big.NewInt(0), nil
	}
	floor, ok := new(big.Int).SetString(c.Valve.FloorUnits, 10)
	if !ok {
		return nil, fmt.Errorf("valve: FloorUnits %q is not a decimal integer", c.Valve.FloorUnits)
	}
	return floor, nil
}
