// Package envelope keeps a wallet's main balance and its envelopes.
//
// Money only moves between the main balance and an envelope, so
// main + sum(envelopes) is unchanged by every store operation. All operations
// take the store lock, validate both sides of a transfer and only then mutate
// state: a failed call leaves the store exactly as it was.
package envelope

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rongwang/envelope-wallet/internal/models"
	"github.com/rongwang/envelope-wallet/internal/money"
)

var (
	ErrInvalidName                 = errors.New("envelope name is required")
	ErrInvalidAmount               = errors.New("amount must be greater than zero")
	ErrInvalidGoal                 = errors.New("goal must be greater than zero")
	ErrInvalidType                 = errors.New("invalid envelope type")
	ErrInvalidCategory             = errors.New("invalid envelope category")
	ErrInvalidParticipant          = errors.New("participant id is required")
	ErrEnvelopeNotFound            = errors.New("envelope not found")
	ErrInsufficientMainBalance     = errors.New("insufficient main balance")
	ErrInsufficientEnvelopeBalance = errors.New("insufficient envelope balance")
	ErrEnvelopeNotEmpty            = errors.New("envelope still holds funds")
	ErrNotShared                   = errors.New("envelope is not shared")
)

// Direction of a transfer between the main balance and an envelope
type Direction string

const (
	DirectionFund     Direction = "fund"
	DirectionWithdraw Direction = "withdraw"
)

// Transfer describes a completed (or about to be committed) fund/withdraw.
// Envelope and MainBalance hold the post-transfer state.
type Transfer struct {
	Direction   Direction
	Owner       string
	Envelope    models.Envelope
	Amount      money.Money
	MainBalance money.Money
	RecordID    string
}

// Recorder is invoked inside the store's critical section after a transfer
// has been validated and before it is committed. A non-nil error aborts the
// transfer. The returned id is stored in Transfer.RecordID.
type Recorder func(Transfer) (string, error)

// ShareLinker produces the share URL and QR payload of a shared envelope
type ShareLinker interface {
	Link(ownerID, envelopeID string) (shareURL, qrCode string, err error)
}

// Option configures a Store
type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(s *Store) { s.newID = newID }
}

func WithRecorder(r Recorder) Option {
	return func(s *Store) { s.record = r }
}

func WithShareLinker(l ShareLinker) Option {
	return func(s *Store) { s.share = l }
}

// Store holds one wallet's main balance and envelopes
type Store struct {
	mu        sync.Mutex
	owner     string
	main      money.Money
	envelopes map[string]*models.Envelope
	order     []string

	now    func() time.Time
	newID  func() string
	record Recorder
	share  ShareLinker
}

// NewStore creates a store for owner with the given main balance and no
// envelopes.
func NewStore(owner string, mainBalance money.Money, opts ...Option) (*Store, error) {
	if mainBalance.IsNegative() {
		return nil, fmt.Errorf("initial main balance: %w", money.ErrUnderflow)
	}
	s := &Store{
		owner:     owner,
		main:      mainBalance,
		envelopes: make(map[string]*models.Envelope),
		now:       func() time.Time { return time.Now().UTC() },
		newID:     func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CreateParams are the inputs of Create
type CreateParams struct {
	Type         models.EnvelopeType
	Name         string
	Description  string
	Category     models.Category
	Goal         *money.Money
	Participants []string
}

// Create adds an empty envelope. Shared envelopes always list the creator as
// a participant.
func (s *Store) Create(p CreateParams) (models.Envelope, error) {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return models.Envelope{}, ErrInvalidName
	}

	typ := p.Type
	if typ == "" {
		typ = models.EnvelopeIndividual
	}
	if !typ.Valid() {
		return models.Envelope{}, fmt.Errorf("%w: %q", ErrInvalidType, p.Type)
	}

	category := p.Category
	if category == "" {
		category = models.CategoryOther
	}
	if !category.Valid() {
		return models.Envelope{}, fmt.Errorf("%w: %q", ErrInvalidCategory, p.Category)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var goal *money.Money
	if p.Goal != nil {
		if !p.Goal.IsPositive() {
			return models.Envelope{}, ErrInvalidGoal
		}
		if p.Goal.Currency != s.main.Currency {
			return models.Envelope{}, fmt.Errorf("goal: %w", money.ErrCurrencyMismatch)
		}
		g := *p.Goal
		goal = &g
	}

	env := &models.Envelope{
		ID:          s.newID(),
		Name:        name,
		Description: strings.TrimSpace(p.Description),
		Balance:     money.Zero(s.main.Currency),
		Type:        typ,
		Category:    category,
		Goal:        goal,
		CreatedBy:   s.owner,
		CreatedAt:   s.now(),
	}
	if _, exists := s.envelopes[env.ID]; exists {
		return models.Envelope{}, fmt.Errorf("duplicate envelope id %q", env.ID)
	}

	if typ == models.EnvelopeShared {
		env.Participants = participants(s.owner, p.Participants)
		if s.share != nil {
			url, qr, err := s.share.Link(s.owner, env.ID)
			if err != nil {
				return models.Envelope{}, fmt.Errorf("error creating share link: %w", err)
			}
			env.ShareURL, env.QRCode = url, qr
		}
	}

	s.envelopes[env.ID] = env
	s.order = append(s.order, env.ID)
	return env.Clone(), nil
}

// Fund moves amount from the main balance into the envelope.
func (s *Store) Fund(id string, amount money.Money) (Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	env, ok := s.envelopes[id]
	if !ok {
		return Transfer{}, ErrEnvelopeNotFound
	}
	if err := s.checkAmount(amount); err != nil {
		return Transfer{}, err
	}

	newMain, err := money.Subtract(s.main, amount)
	if err != nil {
		if errors.Is(err, money.ErrUnderflow) {
			return Transfer{}, ErrInsufficientMainBalance
		}
		return Transfer{}, err
	}
	newEnv, err := money.Add(env.Balance, amount)
	if err != nil {
		return Transfer{}, err
	}

	return s.commit(DirectionFund, env, amount, newMain, newEnv)
}

// Withdraw moves amount from the envelope back to the main balance.
func (s *Store) Withdraw(id string, amount money.Money) (Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	env, ok := s.envelopes[id]
	if !ok {
		return Transfer{}, ErrEnvelopeNotFound
	}
	if err := s.checkAmount(amount); err != nil {
		return Transfer{}, err
	}

	newEnv, err := money.Subtract(env.Balance, amount)
	if err != nil {
		if errors.Is(err, money.ErrUnderflow) {
			return Transfer{}, ErrInsufficientEnvelopeBalance
		}
		return Transfer{}, err
	}
	newMain, err := money.Add(s.main, amount)
	if err != nil {
		return Transfer{}, err
	}

	return s.commit(DirectionWithdraw, env, amount, newMain, newEnv)
}

// commit runs the recorder and applies both balances. Caller holds s.mu.
func (s *Store) commit(dir Direction, env *models.Envelope, amount, newMain, newEnv money.Money) (Transfer, error) {
	after := env.Clone()
	after.Balance = newEnv
	t := Transfer{
		Direction:   dir,
		Owner:       s.owner,
		Envelope:    after,
		Amount:      amount,
		MainBalance: newMain,
	}

	if s.record != nil {
		id, err := s.record(t)
		if err != nil {
			return Transfer{}, fmt.Errorf("error recording %s: %w", dir, err)
		}
		t.RecordID = id
	}

	s.main = newMain
	env.Balance = newEnv
	return t, nil
}

func (s *Store) checkAmount(amount money.Money) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if amount.Currency != s.main.Currency {
		return fmt.Errorf("%w: wallet holds %s", money.ErrCurrencyMismatch, s.main.Currency)
	}
	return nil
}

// Delete removes an empty envelope.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	env, ok := s.envelopes[id]
	if !ok {
		return ErrEnvelopeNotFound
	}
	if !env.Balance.IsZero() {
		return ErrEnvelopeNotEmpty
	}

	delete(s.envelopes, id)
	s.order = slices.DeleteFunc(s.order, func(v string) bool { return v == id })
	return nil
}

// List returns envelopes in creation order, optionally only those of one type.
func (s *Store) List(filter *models.EnvelopeType) []models.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Envelope, 0, len(s.order))
	for _, id := range s.order {
		env := s.envelopes[id]
		if filter != nil && env.Type != *filter {
			continue
		}
		out = append(out, env.Clone())
	}
	return out
}

// Get returns a copy of one envelope.
func (s *Store) Get(id string) (models.Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	env, ok := s.envelopes[id]
	if !ok {
		return models.Envelope{}, ErrEnvelopeNotFound
	}
	return env.Clone(), nil
}

// AddParticipant records userID as a participant of a shared envelope.
// Adding an existing participant is a no-op.
func (s *Store) AddParticipant(id, userID string) (models.Envelope, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return models.Envelope{}, ErrInvalidParticipant
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	env, ok := s.envelopes[id]
	if !ok {
		return models.Envelope{}, ErrEnvelopeNotFound
	}
	if env.Type != models.EnvelopeShared {
		return models.Envelope{}, ErrNotShared
	}
	if !slices.Contains(env.Participants, userID) {
		env.Participants = append(env.Participants, userID)
	}
	return env.Clone(), nil
}

// Owner returns the id of the wallet owner.
func (s *Store) Owner() string {
	return s.owner
}

// Currency returns the currency every amount in this store must carry.
func (s *Store) Currency() string {
	return s.main.Currency
}

// MainBalance returns the unallocated balance.
func (s *Store) MainBalance() money.Money {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.main
}

// Allocated returns the sum of all envelope balances.
func (s *Store) Allocated() (money.Money, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.allocated()
}

// Total returns main balance plus everything held in envelopes.
func (s *Store) Total() (money.Money, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum, err := s.allocated()
	if err != nil {
		return money.Money{}, err
	}
	return money.Add(s.main, sum)
}

// Summary is the account view of a store, read under one lock so the parts
// always add up.
type Summary struct {
	MainBalance   money.Money
	Allocated     money.Money
	Total         money.Money
	EnvelopeCount int
}

// Summary returns main balance, allocated sum, total and envelope count as of
// a single instant.
func (s *Store) Summary() (Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	allocated, err := s.allocated()
	if err != nil {
		return Summary{}, err
	}
	total, err := money.Add(s.main, allocated)
	if err != nil {
		return Summary{}, err
	}
	return Summary{
		MainBalance:   s.main,
		Allocated:     allocated,
		Total:         total,
		EnvelopeCount: len(s.order),
	}, nil
}

func (s *Store) allocated() (money.Money, error) {
	sum := money.Zero(s.main.Currency)
	for _, id := range s.order {
		var err error
		if sum, err = money.Add(sum, s.envelopes[id].Balance); err != nil {
			return money.Money{}, err
		}
	}
	return sum, nil
}

// participants returns the creator followed by the other distinct ids
func participants(creator string, ids []string) []string {
	out := []string{creator}
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || slices.Contains(out, id) {
			continue
		}
		out = append(out, id)
	}
	return out
}
