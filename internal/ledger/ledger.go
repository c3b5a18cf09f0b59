// Package ledger is the append-only transaction history of a wallet.
package ledger

import (
	"errors"
	"fmt"
	"iter"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rongwang/envelope-wallet/internal/models"
)

var (
	ErrNotFound      = errors.New("transaction not found")
	ErrInvalidType   = errors.New("invalid transaction type")
	ErrInvalidStatus = errors.New("invalid transaction status")
	ErrInvalidMethod = errors.New("invalid payment method")
	ErrDuplicateID   = errors.New("duplicate transaction id")
)

// Filter narrows a Query. Zero value matches everything.
type Filter struct {
	Type       *models.TransactionType
	SearchText string
	// Contacts keeps records whose Contact equals one of these, ignoring case
	Contacts []string
}

// Option configures a Ledger
type Option func(*Ledger)

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(l *Ledger) { l.newID = newID }
}

// Ledger stores records in append order. Records are never changed after
// Append returns.
type Ledger struct {
	mu      sync.RWMutex
	records []models.TransactionRecord
	ids     map[string]struct{}

	now   func() time.Time
	newID func() string
}

func New(opts ...Option) *Ledger {
	l := &Ledger{
		ids:   make(map[string]struct{}),
		now:   func() time.Time { return time.Now().UTC() },
		newID: func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Restore builds a ledger holding records in the given append order.
func Restore(records []models.TransactionRecord, opts ...Option) (*Ledger, error) {
	l := New(opts...)
	for _, r := range records {
		if _, err := l.Append(r); err != nil {
			return nil, fmt.Errorf("restore %s: %w", r.ID, err)
		}
	}
	return l, nil
}

// Append validates rec, fills in id, date and status when missing, and
// stores it.
func (l *Ledger) Append(rec models.TransactionRecord) (models.TransactionRecord, error) {
	if !rec.Type.Valid() {
		return models.TransactionRecord{}, fmt.Errorf("%w: %q", ErrInvalidType, rec.Type)
	}
	if rec.Status == "" {
		rec.Status = models.StatusCompleted
	}
	if !rec.Status.Valid() {
		return models.TransactionRecord{}, fmt.Errorf("%w: %q", ErrInvalidStatus, rec.Status)
	}
	if rec.Method != "" && !rec.Method.Valid() {
		return models.TransactionRecord{}, fmt.Errorf("%w: %q", ErrInvalidMethod, rec.Method)
	}
	if rec.LocalAmount != nil {
		la := *rec.LocalAmount
		rec.LocalAmount = &la
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if rec.ID == "" {
		rec.ID = l.newID()
	}
	if _, dup := l.ids[rec.ID]; dup {
		return models.TransactionRecord{}, fmt.Errorf("%w: %s", ErrDuplicateID, rec.ID)
	}
	if rec.Date.IsZero() {
		rec.Date = l.now()
	}

	l.records = append(l.records, rec)
	l.ids[rec.ID] = struct{}{}
	return cloneRecord(rec), nil
}

// Query yields matching records newest first. Entries with the same date
// come out latest-appended first. The sequence is lazy and can be ranged
// over any number of times; each pass sees the records present when it
// starts.
func (l *Ledger) Query(f Filter) iter.Seq[models.TransactionRecord] {
	needle := strings.ToLower(strings.TrimSpace(f.SearchText))

	return func(yield func(models.TransactionRecord) bool) {
		l.mu.RLock()
		// records are append-only, so the prefix stays valid after unlock
		recs := l.records[:len(l.records):len(l.records)]
		l.mu.RUnlock()

		matched := make([]int, 0, len(recs))
		for i := len(recs) - 1; i >= 0; i-- {
			if f.matches(&recs[i], needle) {
				matched = append(matched, i)
			}
		}
		slices.SortStableFunc(matched, func(a, b int) int {
			return recs[b].Date.Compare(recs[a].Date)
		})

		for _, i := range matched {
			if !yield(cloneRecord(recs[i])) {
				return
			}
		}
	}
}

func (f Filter) matches(r *models.TransactionRecord, needle string) bool {
	if f.Type != nil && r.Type != *f.Type {
		return false
	}
	if len(f.Contacts) > 0 && !slices.ContainsFunc(f.Contacts, func(c string) bool {
		return strings.EqualFold(c, r.Contact)
	}) {
		return false
	}
	if needle == "" {
		return true
	}
	return strings.Contains(strings.ToLower(r.Contact), needle) ||
		strings.Contains(strings.ToLower(r.Description), needle) ||
		strings.Contains(r.Amount.String(), needle)
}

// Get returns the record with the given id.
func (l *Ledger) Get(id string) (models.TransactionRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if _, ok := l.ids[id]; !ok {
		return models.TransactionRecord{}, ErrNotFound
	}
	for i := len(l.records) - 1; i >= 0; i-- {
		if l.records[i].ID == id {
			return cloneRecord(l.records[i]), nil
		}
	}
	return models.TransactionRecord{}, ErrNotFound
}

// Len returns the number of stored records.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// Records returns every record in append order.
func (l *Ledger) Records() []models.TransactionRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]models.TransactionRecord, len(l.records))
	for i, r := range l.records {
		out[i] = cloneRecord(r)
	}
	return out
}

func cloneRecord(r models.TransactionRecord) models.TransactionRecord {
	if r.LocalAmount != nil {
		la := *r.LocalAmount
		r.LocalAmount = &la
	}
	return r
}
