package models

import (
	"math/bits"
	"slices"
	"strings"
	"time"

	"github.com/rongwang/envelope-wallet/internal/money"
)

// EnvelopeType distinguishes personal envelopes from shared ones
type EnvelopeType string

const (
	EnvelopeIndividual EnvelopeType = "individual"
	EnvelopeShared     EnvelopeType = "shared"
)

func (t EnvelopeType) Valid() bool {
	return t == EnvelopeIndividual || t == EnvelopeShared
}

// Category is the fixed set of envelope categories
type Category string

const (
	CategoryTravel        Category = "Travel"
	CategoryBills         Category = "Bills"
	CategoryFood          Category = "Food"
	CategoryEntertainment Category = "Entertainment"
	CategorySavings       Category = "Savings"
	CategoryEmergency     Category = "Emergency"
	CategoryShopping      Category = "Shopping"
	CategoryOther         Category = "Other"
)

// Categories lists every category in display order
var Categories = []Category{
	CategoryTravel,
	CategoryBills,
	CategoryFood,
	CategoryEntertainment,
	CategorySavings,
	CategoryEmergency,
	CategoryShopping,
	CategoryOther,
}

func (c Category) Valid() bool {
	return slices.Contains(Categories, c)
}

// ParseCategory matches a category name case-insensitively
func ParseCategory(s string) (Category, bool) {
	for _, c := range Categories {
		if strings.EqualFold(string(c), strings.TrimSpace(s)) {
			return c, true
		}
	}
	return "", false
}

// Envelope is a named sub-balance carved out of the main balance
type Envelope struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Description  string       `json:"description"`
	Balance      money.Money  `json:"balance"`
	Type         EnvelopeType `json:"type"`
	Category     Category     `json:"category"`
	Goal         *money.Money `json:"goal,omitempty"`
	CreatedBy    string       `json:"createdBy"`
	CreatedAt    time.Time    `json:"createdAt"`
	Participants []string     `json:"participants,omitempty"`
	ShareURL     string       `json:"shareUrl,omitempty"`
	QRCode       string       `json:"qrCode,omitempty"`
}

// GoalProgress returns the funded share of the goal as a whole percent,
// capped at 100. Envelopes without a goal report 0.
func (e Envelope) GoalProgress() int {
	if e.Goal == nil || e.Goal.Cents <= 0 || e.Balance.Cents <= 0 {
		return 0
	}
	if e.Balance.Cents >= e.Goal.Cents {
		return 100
	}
	// balance < goal, so the 128-bit quotient fits and hi < goal
	hi, lo := bits.Mul64(uint64(e.Balance.Cents), 100)
	q, _ := bits.Div64(hi, lo, uint64(e.Goal.Cents))
	return int(q)
}

// Clone returns a deep copy so callers cannot reach into store state
func (e Envelope) Clone() Envelope {
	c := e
	if e.Goal != nil {
		g := *e.Goal
		c.Goal = &g
	}
	if e.Participants != nil {
		c.Participants = slices.Clone(e.Participants)
	}
	return c
}

// TransactionType is the kind of a ledger entry
type TransactionType string

const (
	TransactionSend    TransactionType = "send"
	TransactionReceive TransactionType = "receive"
	TransactionRequest TransactionType = "request"
	TransactionPayment TransactionType = "payment"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TransactionSend, TransactionReceive, TransactionRequest, TransactionPayment:
		return true
	}
	return false
}

// Outgoing reports whether the entry takes money out of the wallet
func (t TransactionType) Outgoing() bool {
	return t == TransactionSend || t == TransactionPayment
}

type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusCompleted TransactionStatus = "completed"
	StatusFailed    TransactionStatus = "failed"
)

func (s TransactionStatus) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

type PaymentMethod string

const (
	MethodWallet PaymentMethod = "wallet"
	MethodCard   PaymentMethod = "card"
)

func (m PaymentMethod) Valid() bool {
	return m == MethodWallet || m == MethodCard
}

// TransactionRecord is an immutable ledger entry. Amount is signed:
// negative for money leaving the wallet.
type TransactionRecord struct {
	ID           string            `json:"id"`
	Type         TransactionType   `json:"type"`
	Amount       money.Money       `json:"amount"`
	Date         time.Time         `json:"date"`
	Status       TransactionStatus `json:"status"`
	Contact      string            `json:"contact,omitempty"`
	Description  string            `json:"description,omitempty"`
	EnvelopeID   string            `json:"envelopeId,omitempty"`
	Method       PaymentMethod     `json:"method,omitempty"`
	CardLast4    string            `json:"cardLast4,omitempty"`
	CardBrand    string            `json:"cardBrand,omitempty"`
	TxHash       string            `json:"txHash,omitempty"`
	LocalAmount  *money.Money      `json:"localAmount,omitempty"`
	ExchangeRate string            `json:"exchangeRate,omitempty"`
}

// RecipientType says how a recurring payment addresses its payee
type RecipientType string

const (
	RecipientUsername RecipientType = "username"
	RecipientAddress  RecipientType = "address"
)

func (r RecipientType) Valid() bool {
	return r == RecipientUsername || r == RecipientAddress
}

// RecurringPayment is a saved payment template. Marking it paid only stamps
// LastPaid.
type RecurringPayment struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	RecipientType RecipientType `json:"recipientType"`
	Recipient     string        `json:"recipient"`
	Amount        money.Money   `json:"amount"`
	Description   string        `json:"description,omitempty"`
	Category      string        `json:"category,omitempty"`
	LastPaid      *time.Time    `json:"lastPaid,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
}

// Clone returns a copy that does not share the LastPaid pointer
func (p RecurringPayment) Clone() RecurringPayment {
	c := p
	if p.LastPaid != nil {
		t := *p.LastPaid
		c.LastPaid = &t
	}
	return c
}

// Contact is someone the user sends money to or receives it from. A contact
// is reachable by username, by wallet address, or both.
type Contact struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Username string    `json:"username,omitempty"`
	Address  string    `json:"address,omitempty"`
	Avatar   string    `json:"avatar,omitempty"`
	AddedAt  time.Time `json:"addedAt"`
}

// Handles lists every non-empty string a ledger record may use to name the
// contact in its Contact field.
func (c Contact) Handles() []string {
	out := make([]string, 0, 3)
	for _, h := range []string{c.Name, c.Username, c.Address} {
		if h != "" {
			out = append(out, h)
		}
	}
	return out
}

type NotificationType string

const (
	NotificationPayment  NotificationType = "payment"
	NotificationRequest  NotificationType = "request"
	NotificationEnvelope NotificationType = "envelope"
	NotificationSystem   NotificationType = "system"
)

func (t NotificationType) Valid() bool {
	switch t {
	case NotificationPayment, NotificationRequest, NotificationEnvelope, NotificationSystem:
		return true
	}
	return false
}

// Notification is an inbox entry. Only Read ever changes after it is pushed.
type Notification struct {
	ID        string           `json:"id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Timestamp time.Time        `json:"timestamp"`
	Read      bool             `json:"read"`
	Amount    *money.Money     `json:"amount,omitempty"`
	Contact   string           `json:"contact,omitempty"`
}

func (n Notification) Clone() Notification {
	c := n
	if n.Amount != nil {
		a := *n.Amount
		c.Amount = &a
	}
	return c
}
