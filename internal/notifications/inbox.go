// Package notifications is a wallet's in-app inbox.
package notifications

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rongwang/envelope-wallet/internal/models"
)

var (
	ErrNotFound     = errors.New("notification not found")
	ErrInvalidType  = errors.New("invalid notification type")
	ErrInvalidTitle = errors.New("notification title is required")
)

// DefaultLimit caps how many notifications an inbox keeps
const DefaultLimit = 200

type Option func(*Inbox)

func WithClock(now func() time.Time) Option {
	return func(b *Inbox) { b.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(b *Inbox) { b.newID = newID }
}

// WithLimit sets how many notifications are kept; the oldest are dropped
// first.
func WithLimit(n int) Option {
	return func(b *Inbox) { b.limit = n }
}

// Inbox holds notifications newest first
type Inbox struct {
	mu    sync.Mutex
	items []models.Notification

	limit int
	now   func() time.Time
	newID func() string
}

func New(opts ...Option) *Inbox {
	b := &Inbox{
		limit: DefaultLimit,
		now:   func() time.Time { return time.Now().UTC() },
		newID: func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Restore builds an inbox from notifications already ordered newest first.
func Restore(items []models.Notification, opts ...Option) *Inbox {
	b := New(opts...)
	for _, n := range items {
		b.items = append(b.items, n.Clone())
	}
	b.trim()
	return b
}

// Push stores n as unread, filling in its id and timestamp when missing.
func (b *Inbox) Push(n models.Notification) (models.Notification, error) {
	n.Title = strings.TrimSpace(n.Title)
	n.Message = strings.TrimSpace(n.Message)
	if !n.Type.Valid() {
		return models.Notification{}, fmt.Errorf("%w: %q", ErrInvalidType, n.Type)
	}
	if n.Title == "" {
		return models.Notification{}, ErrInvalidTitle
	}
	n.Read = false
	n = n.Clone()

	b.mu.Lock()
	defer b.mu.Unlock()

	if n.ID == "" {
		n.ID = b.newID()
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = b.now()
	}
	b.items = slices.Insert(b.items, 0, n)
	b.trim()
	return n.Clone(), nil
}

func (b *Inbox) trim() {
	if b.limit > 0 && len(b.items) > b.limit {
		b.items = b.items[:b.limit]
	}
}

// List returns every notification, newest first.
func (b *Inbox) List() []models.Notification {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]models.Notification, len(b.items))
	for i, n := range b.items {
		out[i] = n.Clone()
	}
	return out
}

func (b *Inbox) UnreadCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	unread := 0
	for _, n := range b.items {
		if !n.Read {
			unread++
		}
	}
	return unread
}

// MarkRead flags one notification as read. Marking it twice is a no-op.
func (b *Inbox) MarkRead(id string) (models.Notification, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	i := slices.IndexFunc(b.items, func(n models.Notification) bool { return n.ID == id })
	if i < 0 {
		return models.Notification{}, ErrNotFound
	}
	b.items[i].Read = true
	return b.items[i].Clone(), nil
}

// MarkAllRead flags everything read and returns how many changed.
func (b *Inbox) MarkAllRead() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	changed := 0
	for i := range b.items {
		if !b.items[i].Read {
			b.items[i].Read = true
			changed++
		}
	}
	return changed
}
