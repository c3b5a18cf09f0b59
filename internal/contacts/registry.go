// Package contacts keeps the people a user pays and gets paid by.
package contacts

import (
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rongwang/envelope-wallet/internal/models"
)

var (
	ErrNotFound      = errors.New("contact not found")
	ErrInvalidName   = errors.New("contact name is required")
	ErrInvalidHandle = errors.New("contact needs a username or an address")
)

type Option func(*Registry)

func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(r *Registry) { r.newID = newID }
}

// Registry holds contacts in the order they were added
type Registry struct {
	mu    sync.Mutex
	items []models.Contact

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

// Restore builds a registry from contacts in the order they were added.
func Restore(items []models.Contact, opts ...Option) *Registry {
	r := New(opts...)
	r.items = slices.Clone(items)
	return r
}

// Add stores c unless the same person is already known. A contact counts as
// known when its id, username or address matches a stored one; the stored
// contact is then returned with added=false.
func (r *Registry) Add(c models.Contact) (contact models.Contact, added bool, err error) {
	c.ID = strings.TrimSpace(c.ID)
	c.Name = strings.TrimSpace(c.Name)
	c.Username = strings.TrimSpace(c.Username)
	c.Address = strings.TrimSpace(c.Address)
	c.Avatar = strings.TrimSpace(c.Avatar)
	switch {
	case c.Name == "":
		return models.Contact{}, false, ErrInvalidName
	case c.Username == "" && c.Address == "":
		return models.Contact{}, false, ErrInvalidHandle
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.items {
		if samePerson(existing, c) {
			return existing, false, nil
		}
	}

	if c.ID == "" {
		c.ID = r.newID()
	}
	c.AddedAt = r.now()
	r.items = append(r.items, c)
	return c, true, nil
}

func samePerson(a, b models.Contact) bool {
	return (b.ID != "" && a.ID == b.ID) ||
		(b.Username != "" && strings.EqualFold(a.Username, b.Username)) ||
		(b.Address != "" && strings.EqualFold(a.Address, b.Address))
}

func (r *Registry) Get(id string) (models.Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := slices.IndexFunc(r.items, func(c models.Contact) bool { return c.ID == id })
	if i < 0 {
		return models.Contact{}, ErrNotFound
	}
	return r.items[i], nil
}

func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.items)
	r.items = slices.DeleteFunc(r.items, func(c models.Contact) bool { return c.ID == id })
	if len(r.items) == n {
		return ErrNotFound
	}
	return nil
}

// Search returns the contacts whose name, username or address contains q,
// ignoring case. A blank q matches every contact.
func (r *Registry) Search(q string) []models.Contact {
	needle := strings.ToLower(strings.TrimSpace(q))

	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.Contact, 0, len(r.items))
	for _, c := range r.items {
		if needle == "" ||
			strings.Contains(strings.ToLower(c.Name), needle) ||
			strings.Contains(strings.ToLower(c.Username), needle) ||
			strings.Contains(strings.ToLower(c.Address), needle) {
			out = append(out, c)
		}
	}
	return out
}

// List returns every contact in the order added.
func (r *Registry) List() []models.Contact {
	return r.Search("")
}
