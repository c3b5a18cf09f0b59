package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/rongwang/envelope-wallet/internal/contacts"
	"github.com/rongwang/envelope-wallet/internal/envelope"
	"github.com/rongwang/envelope-wallet/internal/ledger"
	"github.com/rongwang/envelope-wallet/internal/models"
	"github.com/rongwang/envelope-wallet/internal/notifications"
	"github.com/rongwang/envelope-wallet/internal/recurring"
	"github.com/rongwang/envelope-wallet/internal/repository"
	"github.com/rongwang/envelope-wallet/internal/utils"
)

// session is one user's wallet: envelope store, ledger, recurring
// templates, contacts and inbox. It lives until the process exits.
type session struct {
	userID    string
	store     *envelope.Store
	ledger    *ledger.Ledger
	recurring *recurring.Registry
	contacts  *contacts.Registry
	inbox     *notifications.Inbox

	// saveMu orders snapshots with their writes so a slow save never
	// overwrites a newer one
	saveMu sync.Mutex
}

// session returns the caller's wallet, loading it from the repository or
// opening a new one on first use. The repository read runs outside s.mu so a
// slow load for one user never stalls the others; concurrent first requests
// for the same user share one load.
func (s *DefaultService) session(ctx context.Context, userID string) (*session, error) {
	if userID == "" {
		return nil, ErrUserRequired
	}
	if sess := s.cachedSession(userID); sess != nil {
		return sess, nil
	}

	v, err, _ := s.loads.Do(userID, func() (any, error) {
		// a load that finished between the cache miss and Do
		if sess := s.cachedSession(userID); sess != nil {
			return sess, nil
		}

		state, err := s.repo.LoadWallet(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("error loading wallet: %w", err)
		}

		var sess *session
		if state == nil {
			sess, err = s.newSession(userID)
		} else {
			sess, err = s.restoreSession(state)
		}
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if existing, ok := s.sessions[userID]; ok {
			return existing, nil
		}
		s.sessions[userID] = sess
		s.log.Info("wallet opened", utils.FieldUserID, userID, "restored", state != nil)
		return sess, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*session), nil
}

func (s *DefaultService) cachedSession(userID string) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[userID]
}

func (s *DefaultService) storeOptions(led *ledger.Ledger) []envelope.Option {
	opts := []envelope.Option{envelope.WithRecorder(led.RecordTransfer)}
	if s.clock != nil {
		opts = append(opts, envelope.WithClock(s.clock))
	}
	if s.issuer != nil {
		opts = append(opts, envelope.WithShareLinker(s.issuer))
	}
	return opts
}

func (s *DefaultService) ledgerOptions() []ledger.Option {
	if s.clock == nil {
		return nil
	}
	return []ledger.Option{ledger.WithClock(s.clock)}
}

func (s *DefaultService) recurringOptions() []recurring.Option {
	if s.clock == nil {
		return nil
	}
	return []recurring.Option{recurring.WithClock(s.clock)}
}

func (s *DefaultService) contactOptions() []contacts.Option {
	if s.clock == nil {
		return nil
	}
	return []contacts.Option{contacts.WithClock(s.clock)}
}

func (s *DefaultService) inboxOptions() []notifications.Option {
	if s.clock == nil {
		return nil
	}
	return []notifications.Option{notifications.WithClock(s.clock)}
}

func (s *DefaultService) newSession(userID string) (*session, error) {
	led := ledger.New(s.ledgerOptions()...)
	store, err := envelope.NewStore(userID, s.initialBalance, s.storeOptions(led)...)
	if err != nil {
		return nil, fmt.Errorf("error opening wallet: %w", err)
	}
	return &session{
		userID:    userID,
		store:     store,
		ledger:    led,
		recurring: recurring.New(s.recurringOptions()...),
		contacts:  contacts.New(s.contactOptions()...),
		inbox:     notifications.New(s.inboxOptions()...),
	}, nil
}

func (s *DefaultService) restoreSession(state *repository.WalletState) (*session, error) {
	led, err := ledger.Restore(state.Transactions, s.ledgerOptions()...)
	if err != nil {
		return nil, fmt.Errorf("error restoring ledger: %w", err)
	}
	store, err := envelope.Restore(state.Store, s.storeOptions(led)...)
	if err != nil {
		return nil, fmt.Errorf("error restoring envelopes: %w", err)
	}
	return &session{
		userID:    state.UserID,
		store:     store,
		ledger:    led,
		recurring: recurring.Restore(state.Recurring, s.recurringOptions()...),
		contacts:  contacts.Restore(state.Contacts, s.contactOptions()...),
		inbox:     notifications.Restore(state.Notifications, s.inboxOptions()...),
	}, nil
}

// persist saves the session. Failures are logged; the in-memory wallet stays
// authoritative.
func (s *DefaultService) persist(ctx context.Context, sess *session) {
	sess.saveMu.Lock()
	defer sess.saveMu.Unlock()

	// the ledger is copied under the store lock so every envelope balance in
	// the snapshot matches the transfer records saved with it
	var records []models.TransactionRecord
	snap := sess.store.SnapshotWith(func() { records = sess.ledger.Records() })

	state := &repository.WalletState{
		UserID:        sess.userID,
		Store:         snap,
		Transactions:  records,
		Recurring:     sess.recurring.List(),
		Contacts:      sess.contacts.List(),
		Notifications: sess.inbox.List(),
	}
	// a client hanging up must not abort the write
	if err := s.repo.SaveWallet(context.WithoutCancel(ctx), state); err != nil {
		s.log.ErrorContext(ctx, "failed to save wallet", utils.FieldUserID, sess.userID, utils.FieldError, err)
	}
}
