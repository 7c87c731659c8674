package registry

import (
	"fmt"

	"cc-wager-escrow-go/internal/store"

	"github.com/puzpuzpuz/xsync/v4"
)

// Registry maps an account to the one wager it is waiting on.
// Entries live only in memory and are created per engine instance.
type Registry struct {
	pending *xsync.Map[string, string]
}

func New() *Registry {
	return &Registry{pending: xsync.NewMap[string, string]()}
}

// Register associates accountId with wagerId. Registering the same pair again is a no-op;
// an account already waiting on a different wager gets ErrAccountBusy.
func (r *Registry) Register(accountId, wagerId string) error {
	var busyWith string
	r.pending.Compute(accountId, func(current string, loaded bool) (string, xsync.ComputeOp) {
		if loaded && current != wagerId {
			busyWith = current
			return current, xsync.CancelOp
		}
		return wagerId, xsync.UpdateOp
	})
	if busyWith != "" {
		return fmt.Errorf("account %s is waiting on wager %s: %w", accountId, busyWith, store.ErrAccountBusy)
	}
	return nil
}

func (r *Registry) Lookup(accountId string) (string, bool) {
	return r.pending.Load(accountId)
}

// Release removes the entry only if it still points at wagerId.
func (r *Registry) Release(accountId, wagerId string) bool {
	released := false
	r.pending.Compute(accountId, func(current string, loaded bool) (string, xsync.ComputeOp) {
		if !loaded || current != wagerId {
			return current, xsync.CancelOp
		}
		released = true
		return "", xsync.DeleteOp
	})
	return released
}

// ReleaseWager removes every account waiting on wagerId.
func (r *Registry) ReleaseWager(wagerId string, accountIds ...string) {
	for _, accountId := range accountIds {
		if accountId != "" {
			r.Release(accountId, wagerId)
		}
	}
}

// Snapshot copies the current associations.
func (r *Registry) Snapshot() map[string]string {
	out := make(map[string]string, r.pending.Size())
	r.pending.Range(func(accountId, wagerId string) bool {
		out[accountId] = wagerId
		return true
	})
	return out
}

func (r *Registry) Len() int {
	return r.pending.Size()
}
