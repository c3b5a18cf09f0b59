package envelope

import (
	"fmt"

	"github.com/rongwang/envelope-wallet/internal/models"
	"github.com/rongwang/envelope-wallet/internal/money"
)

// Snapshot is a point-in-time copy of a store, used for persistence.
type Snapshot struct {
	Owner       string
	MainBalance money.Money
	Envelopes   []models.Envelope
}

// Snapshot copies the store state under its lock.
func (s *Store) Snapshot() Snapshot {
	return s.SnapshotWith(nil)
}

// SnapshotWith copies the store state and, if read is non-nil, calls it before
// releasing the lock. Transfers cannot commit while read runs, so anything the
// Recorder writes (the ledger) can be copied in step with the balances.
// read must not call back into the store.
func (s *Store) SnapshotWith(read func()) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	if read != nil {
		read()
	}
	envs := make([]models.Envelope, 0, len(s.order))
	for _, id := range s.order {
		envs = append(envs, s.envelopes[id].Clone())
	}
	return Snapshot{Owner: s.owner, MainBalance: s.main, Envelopes: envs}
}

// Restore rebuilds a store from a snapshot, rejecting states that break the
// store's invariants.
func Restore(snap Snapshot, opts ...Option) (*Store, error) {
	s, err := NewStore(snap.Owner, snap.MainBalance, opts...)
	if err != nil {
		return nil, err
	}

	for _, e := range snap.Envelopes {
		if _, dup := s.envelopes[e.ID]; dup || e.ID == "" {
			return nil, fmt.Errorf("restore: invalid or duplicate envelope id %q", e.ID)
		}
		if e.Balance.IsNegative() {
			return nil, fmt.Errorf("restore envelope %s: %w", e.ID, money.ErrUnderflow)
		}
		if e.Balance.Currency != snap.MainBalance.Currency {
			return nil, fmt.Errorf("restore envelope %s: %w", e.ID, money.ErrCurrencyMismatch)
		}
		c := e.Clone()
		s.envelopes[c.ID] = &c
		s.order = append(s.order, c.ID)
	}

	if _, err := s.allocated(); err != nil {
		return nil, fmt.Errorf("restore: %w", err)
	}
	return s, nil
}
