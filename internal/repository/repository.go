package repository

import (
	"context"
	"slices"

	"github.com/rongwang/envelope-wallet/internal/envelope"
	"github.com/rongwang/envelope-wallet/internal/models"
)

// WalletState is everything persisted for one user
type WalletState struct {
	UserID        string
	Store         envelope.Snapshot
	Transactions  []models.TransactionRecord // append order
	Recurring     []models.RecurringPayment  // newest first
	Contacts      []models.Contact           // order added
	Notifications []models.Notification      // newest first
}

// Repository interface defines the methods that any repository implementation must satisfy
type Repository interface {
	// LoadWallet returns nil, nil when the user has no saved wallet
	LoadWallet(ctx context.Context, userID string) (*WalletState, error)
	// SaveWallet writes the whole state atomically
	SaveWallet(ctx context.Context, state *WalletState) error
}

func cloneState(s *WalletState) *WalletState {
	c := &WalletState{
		UserID: s.UserID,
		Store: envelope.Snapshot{
			Owner:       s.Store.Owner,
			MainBalance: s.Store.MainBalance,
			Envelopes:   make([]models.Envelope, len(s.Store.Envelopes)),
		},
		Transactions:  make([]models.TransactionRecord, len(s.Transactions)),
		Recurring:     make([]models.RecurringPayment, len(s.Recurring)),
		Contacts:      slices.Clone(s.Contacts),
		Notifications: slices.Clone(s.Notifications),
	}
	for i, e := range s.Store.Envelopes {
		c.Store.Envelopes[i] = e.Clone()
	}
	for i, t := range s.Transactions {
		if t.LocalAmount != nil {
			la := *t.LocalAmount
			t.LocalAmount = &la
		}
		c.Transactions[i] = t
	}
	for i, r := range s.Recurring {
		c.Recurring[i] = r.Clone()
	}
	for i, n := range c.Notifications {
		c.Notifications[i] = n.Clone()
	}
	return c
}
