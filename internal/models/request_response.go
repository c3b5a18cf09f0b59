package models

import (
	"time"

	"github.com/rongwang/envelope-wallet/internal/money"
)

// Request models
type CreateEnvelopeRequest struct {
	Type         string   `json:"type" binding:"omitempty,oneof=individual shared"`
	Name         string   `json:"name" binding:"required"`
	Description  string   `json:"description"`
	Category     string   `json:"category"`
	Goal         string   `json:"goal"`
	Participants []string `json:"participants"`
}

// AmountRequest funds or withdraws. Currency defaults to the wallet's.
type AmountRequest struct {
	Amount   string `json:"amount" binding:"required"`
	Currency string `json:"currency"`
}

type AddParticipantRequest struct {
	UserID string `json:"userId" binding:"required"`
}

type RecordTransactionRequest struct {
	Type          string `json:"type" binding:"required,oneof=send receive request payment"`
	Amount        string `json:"amount" binding:"required"`
	Status        string `json:"status" binding:"omitempty,oneof=pending completed failed"`
	Contact       string `json:"contact"`
	Description   string `json:"description"`
	Method        string `json:"method" binding:"omitempty,oneof=wallet card"`
	CardLast4     string `json:"cardLast4" binding:"omitempty,len=4,numeric"`
	CardBrand     string `json:"cardBrand"`
	TxHash        string `json:"txHash"`
	LocalAmount   string `json:"localAmount"`
	LocalCurrency string `json:"localCurrency"`
	ExchangeRate  string `json:"exchangeRate"`
}

type RecurringPaymentRequest struct {
	Name          string `json:"name" binding:"required"`
	RecipientType string `json:"recipientType" binding:"omitempty,oneof=username address"`
	Recipient     string `json:"recipient" binding:"required"`
	Amount        string `json:"amount" binding:"required"`
	Description   string `json:"description"`
	Category      string `json:"category"`
}

type AddContactRequest struct {
	ID       string `json:"id"`
	Name     string `json:"name" binding:"required"`
	Username string `json:"username"`
	Address  string `json:"address"`
	Avatar   string `json:"avatar"`
}

// Response models
type EnvelopeView struct {
	Envelope
	GoalProgress     int    `json:"goalProgress"`
	FormattedBalance string `json:"formattedBalance"`
}

func NewEnvelopeView(e Envelope) EnvelopeView {
	return EnvelopeView{
		Envelope:         e,
		GoalProgress:     e.GoalProgress(),
		FormattedBalance: e.Balance.Format(),
	}
}

type AccountResponse struct {
	Status               string      `json:"status"`
	UserID               string      `json:"userId"`
	Currency             string      `json:"currency"`
	MainBalance          money.Money `json:"mainBalance"`
	Allocated            money.Money `json:"allocated"`
	Total                money.Money `json:"total"`
	FormattedMainBalance string      `json:"formattedMainBalance"`
	EnvelopeCount        int         `json:"envelopeCount"`
}

type EnvelopeResponse struct {
	Status   string       `json:"status"`
	Envelope EnvelopeView `json:"envelope"`
}

type EnvelopeListResponse struct {
	Status    string         `json:"status"`
	Envelopes []EnvelopeView `json:"envelopes"`
	Count     int            `json:"count"`
}

type TransferResponse struct {
	Status        string       `json:"status"`
	Direction     string       `json:"direction"`
	Amount        money.Money  `json:"amount"`
	Envelope      EnvelopeView `json:"envelope"`
	MainBalance   money.Money  `json:"mainBalance"`
	TransactionID string       `json:"transactionId,omitempty"`
	Replayed      bool         `json:"replayed,omitempty"`
}

type ShareResponse struct {
	Status   string       `json:"status"`
	OwnerID  string       `json:"ownerId"`
	Envelope EnvelopeView `json:"envelope"`
}

type TransactionResponse struct {
	Status      string            `json:"status"`
	Transaction TransactionRecord `json:"transaction"`
}

type TransactionListResponse struct {
	Status       string              `json:"status"`
	Transactions []TransactionRecord `json:"transactions"`
	Count        int                 `json:"count"`
}

type RecurringPaymentResponse struct {
	Status  string           `json:"status"`
	Payment RecurringPayment `json:"payment"`
}

type RecurringPaymentListResponse struct {
	Status   string             `json:"status"`
	Payments []RecurringPayment `json:"payments"`
	Count    int                `json:"count"`
}

// ContactView adds the date of the latest ledger record naming the contact
type ContactView struct {
	Contact
	LastTransaction *time.Time `json:"lastTransaction,omitempty"`
}

type ContactResponse struct {
	Status  string      `json:"status"`
	Contact ContactView `json:"contact"`
	Added   bool        `json:"added"`
}

type ContactListResponse struct {
	Status   string        `json:"status"`
	Contacts []ContactView `json:"contacts"`
	Count    int           `json:"count"`
}

type NotificationResponse struct {
	Status       string       `json:"status"`
	Notification Notification `json:"notification"`
}

type NotificationListResponse struct {
	Status        string         `json:"status"`
	Notifications []Notification `json:"notifications"`
	Count         int            `json:"count"`
	Unread        int            `json:"unread"`
}

type MessageResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
