// Package recurring keeps saved payment templates. Templates are bookkeeping
// only: marking one paid records the date and moves no money.
package recurring

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
	ErrNotFound             = errors.New("recurring payment not found")
	ErrInvalidName          = errors.New("recurring payment name is required")
	ErrInvalidRecipient     = errors.New("recipient is required")
	ErrInvalidRecipientType = errors.New("invalid recipient type")
	ErrInvalidAmount        = errors.New("amount must be greater than zero")
)

// Data is the user-editable part of a template
type Data struct {
	Name          string
	RecipientType models.RecipientType
	Recipient     string
	Amount        money.Money
	Description   string
	Category      string
}

func (d Data) normalize() (Data, error) {
	d.Name = strings.TrimSpace(d.Name)
	d.Recipient = strings.TrimSpace(d.Recipient)
	d.Description = strings.TrimSpace(d.Description)
	d.Category = strings.TrimSpace(d.Category)
	if d.RecipientType == "" {
		d.RecipientType = models.RecipientUsername
	}

	switch {
	case d.Name == "":
		return d, ErrInvalidName
	case !d.RecipientType.Valid():
		return d, fmt.Errorf("%w: %q", ErrInvalidRecipientType, d.RecipientType)
	case d.Recipient == "":
		return d, ErrInvalidRecipient
	case !d.Amount.IsPositive():
		return d, ErrInvalidAmount
	}
	return d, nil
}

type Option func(*Registry)

func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(r *Registry) { r.newID = newID }
}

// Registry holds templates newest first
type Registry struct {
	mu    sync.Mutex
	items []*models.RecurringPayment

	now   func() time.Time
	newID func() string
}

func New(opts ...Option) *Registry {
	r := &Registry{
		now:   func() time.Time { return time.Now().UTC() },
		newID: func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Restore builds a registry from templates already ordered newest first.
func Restore(items []models.RecurringPayment, opts ...Option) *Registry {
	r := New(opts...)
	for _, it := range items {
		c := it.Clone()
		r.items = append(r.items, &c)
	}
	return r
}

func (r *Registry) Create(d Data) (models.RecurringPayment, error) {
	d, err := d.normalize()
	if err != nil {
		return models.RecurringPayment{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p := &models.RecurringPayment{
		ID:        r.newID(),
		CreatedAt: r.now(),
	}
	apply(p, d)
	r.items = slices.Insert(r.items, 0, p)
	return p.Clone(), nil
}

// Update replaces the editable fields of a template. LastPaid and CreatedAt
// are kept.
func (r *Registry) Update(id string, d Data) (models.RecurringPayment, error) {
	d, err := d.normalize()
	if err != nil {
		return models.RecurringPayment{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.find(id)
	if p == nil {
		return models.RecurringPayment{}, ErrNotFound
	}
	apply(p, d)
	return p.Clone(), nil
}

func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.items)
	r.items = slices.DeleteFunc(r.items, func(p *models.RecurringPayment) bool { return p.ID == id })
	if len(r.items) == n {
		return ErrNotFound
	}
	return nil
}

// MarkPaid stamps LastPaid with when, or the current time if when is zero.
func (r *Registry) MarkPaid(id string, when time.Time) (models.RecurringPayment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.find(id)
	if p == nil {
		return models.RecurringPayment{}, ErrNotFound
	}
	if when.IsZero() {
		when = r.now()
	}
	p.LastPaid = &when
	return p.Clone(), nil
}

func (r *Registry) Get(id string) (models.RecurringPayment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.find(id)
	if p == nil {
		return models.RecurringPayment{}, ErrNotFound
	}
	return p.Clone(), nil
}

// List returns all templates, newest first.
func (r *Registry) List() []models.RecurringPayment {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.RecurringPayment, len(r.items))
	for i, p := range r.items {
		out[i] = p.Clone()
	}
	return out
}

func (r *Registry) find(id string) *models.RecurringPayment {
	for _, p := range r.items {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func apply(p *models.RecurringPayment, d Data) {
	p.Name = d.Name
	p.RecipientType = d.RecipientType
	p.Recipient = d.Recipient
	p.Amount = d.Amount
	p.Description = d.Description
	p.Category = d.Category
}
