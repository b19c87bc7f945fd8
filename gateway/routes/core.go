package routes

import (
	"sync"

	"launchcore/native/allocation"
	"launchcore/native/staking"
	"launchcore/native/valve"
	"launchcore/native/vault"
	"launchcore/state"
)

// Core bundles the engines behind the HTTP surface. Engine operations span
// multiple state reads and writes, so every mutating request serializes on
// the core lock.
type Core struct {
	mu sync.Mutex

	Store      *state.Store
	Allocation *allocation.Engine
	Vault      *vault.Engine
	Staking    *staking.Engine
	Valve      *valve.Engine
}

func (c *Core) exec(fn func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fn()
}
