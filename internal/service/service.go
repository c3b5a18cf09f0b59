package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rongwang/envelope-wallet/internal/envelope"
	"github.com/rongwang/envelope-wallet/internal/events"
	"github.com/rongwang/envelope-wallet/internal/idempotency"
	"github.com/rongwang/envelope-wallet/internal/ledger"
	"github.com/rongwang/envelope-wallet/internal/models"
	"github.com/rongwang/envelope-wallet/internal/money"
	"github.com/rongwang/envelope-wallet/internal/recurring"
	"github.com/rongwang/envelope-wallet/internal/repository"
	"github.com/rongwang/envelope-wallet/internal/share"
	"github.com/rongwang/envelope-wallet/internal/utils"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

var (
	ErrUserRequired    = errors.New("user id is required")
	ErrSharingDisabled = errors.New("envelope sharing is not configured")
	ErrInvalidRate     = errors.New("invalid exchange rate")
)

// Service defines all the business logic operations
type Service interface {
	// Account
	GetAccount(ctx context.Context, userID string) (*models.AccountResponse, error)

	// Envelope operations
	CreateEnvelope(ctx context.Context, userID string, req models.CreateEnvelopeRequest) (*models.EnvelopeResponse, error)
	FundEnvelope(ctx context.Context, userID, envelopeID string, req models.AmountRequest, idempotencyKey string) (*models.TransferResponse, error)
	WithdrawFromEnvelope(ctx context.Context, userID, envelopeID string, req models.AmountRequest, idempotencyKey string) (*models.TransferResponse, error)
	DeleteEnvelope(ctx context.Context, userID, envelopeID string) error
	ListEnvelopes(ctx context.Context, userID, envelopeType string) (*models.EnvelopeListResponse, error)
	GetEnvelope(ctx context.Context, userID, envelopeID string) (*models.EnvelopeResponse, error)

	// Envelope sharing
	AddParticipant(ctx context.Context, userID, envelopeID string, req models.AddParticipantRequest) (*models.EnvelopeResponse, error)
	ResolveShareToken(ctx context.Context, token string) (*models.ShareResponse, error)

	// Transaction ledger
	RecordTransaction(ctx context.Context, userID string, req models.RecordTransactionRequest) (*models.TransactionResponse, error)
	ListTransactions(ctx context.Context, userID, txType, search string) (*models.TransactionListResponse, error)
	GetTransaction(ctx context.Context, userID, transactionID string) (*models.TransactionResponse, error)

	// Recurring payments
	CreateRecurring(ctx context.Context, userID string, req models.RecurringPaymentRequest) (*models.RecurringPaymentResponse, error)
	UpdateRecurring(ctx context.Context, userID, paymentID string, req models.RecurringPaymentRequest) (*models.RecurringPaymentResponse, error)
	DeleteRecurring(ctx context.Context, userID, paymentID string) error
	ListRecurring(ctx context.Context, userID string) (*models.RecurringPaymentListResponse, error)
	MarkRecurringPaid(ctx context.Context, userID, paymentID string) (*models.RecurringPaymentResponse, error)

	// Contacts
	ListContacts(ctx context.Context, userID, search string) (*models.ContactListResponse, error)
	AddContact(ctx context.Context, userID string, req models.AddContactRequest) (*models.ContactResponse, error)
	GetContact(ctx context.Context, userID, contactID string) (*models.ContactResponse, error)
	RemoveContact(ctx context.Context, userID, contactID string) error
	ContactTransactions(ctx context.Context, userID, contactID string) (*models.TransactionListResponse, error)

	// Notifications
	ListNotifications(ctx context.Context, userID string) (*models.NotificationListResponse, error)
	MarkNotificationRead(ctx context.Context, userID, notificationID string) (*models.NotificationResponse, error)
	MarkAllNotificationsRead(ctx context.Context, userID string) (*models.NotificationListResponse, error)
}

// Options configures a DefaultService. Zero fields get working defaults.
type Options struct {
	InitialBalance money.Money
	Issuer         *share.Issuer
	Publisher      events.Publisher
	Idempotency    *idempotency.Store[models.TransferResponse]
	Logger         *utils.Logger
	Clock          func() time.Time
}

// DefaultService implements the Service interface
type DefaultService struct {
	repo           repository.Repository
	initialBalance money.Money
	issuer         *share.Issuer
	publisher      events.Publisher
	idem           *idempotency.Store[models.TransferResponse]
	log            *utils.Logger
	clock          func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
	loads    singleflight.Group

	pending sync.WaitGroup
}

// NewDefaultService creates a new DefaultService
func NewDefaultService(repo repository.Repository, opts Options) *DefaultService {
	s := &DefaultService{
		repo:           repo,
		initialBalance: opts.InitialBalance,
		issuer:         opts.Issuer,
		publisher:      opts.Publisher,
		idem:           opts.Idempotency,
		log:            opts.Logger,
		clock:          opts.Clock,
		sessions:       make(map[string]*session),
	}
	if s.initialBalance.Currency == "" {
		s.initialBalance = money.New(s.initialBalance.Cents, "USD")
	}
	if s.publisher == nil {
		s.publisher = events.NopPublisher{}
	}
	if s.idem == nil {
		s.idem = idempotency.NewStore[models.TransferResponse](1000, 24*time.Hour)
	}
	if s.log == nil {
		s.log = utils.NopLogger()
	}
	s.log = s.log.WithComponent("service")
	return s
}

// Wait blocks until background event publishing has finished.
func (s *DefaultService) Wait() {
	s.pending.Wait()
}

// Account
func (s *DefaultService) GetAccount(ctx context.Context, userID string) (*models.AccountResponse, error) {
	sess, err := s.session(ctx, userID)
	if err != nil {
		return nil, err
	}

	sum, err := sess.store.Summary()
	if err != nil {
		return nil, fmt.Errorf("error summing balances: %w", err)
	}

	return &models.AccountResponse{
		Status:               "success",
		UserID:               userID,
		Currency:             sum.MainBalance.Currency,
		MainBalance:          sum.MainBalance,
		Allocated:            sum.Allocated,
		Total:                sum.Total,
		FormattedMainBalance: sum.MainBalance.Format(),
		EnvelopeCount:        sum.EnvelopeCount,
	}, nil
}

// Envelope operations
func (s *DefaultService) CreateEnvelope(
	ctx context.Context,
	userID string,
	req models.CreateEnvelopeRequest,
) (*models.EnvelopeResponse, error) {
	sess, err := s.session(ctx, userID)
	if err != nil {
		return nil, err
	}

	params := envelope.CreateParams{
		Type:         models.EnvelopeType(strings.ToLower(strings.TrimSpace(req.Type))),
		Name:         req.Name,
		Description:  req.Description,
		Participants: req.Participants,
	}
	if req.Category != "" {
		c, ok := models.ParseCategory(req.Category)
		if !ok {
			return nil, fmt.Errorf("%w: %q", envelope.ErrInvalidCategory, req.Category)
		}
		params.Category = c
	}
	if strings.TrimSpace(req.Goal) != "" {
		goal, err := money.Parse(req.Goal, sess.store.Currency())
		if err != nil {
			return nil, fmt.Errorf("%w: %v", envelope.ErrInvalidGoal, err)
		}
		params.Goal = &goal
	}

	env, err := sess.store.Create(params)
	if err != nil {
		return nil, fmt.Errorf("error creating envelope: %w", err)
	}
	if env.Type == models.EnvelopeShared {
		s.notify(ctx, sess, models.Notification{
			Type:    models.NotificationEnvelope,
			Title:   "Shared envelope created",
			Message: fmt.Sprintf("%s is shared with %d participants", env.Name, len(env.Participants)),
		})
	}
	s.persist(ctx, sess)

	s.log.InfoContext(ctx, "envelope created",
		utils.FieldOperation, "create",
		utils.FieldUserID, userID,
		utils.FieldEnvelopeID, env.ID,
		"type", env.Type)

	return &models.EnvelopeResponse{Status: "success", Envelope: models.NewEnvelopeView(env)}, nil
}

func (s *DefaultService) FundEnvelope(
	ctx context.Context,
	userID, envelopeID string,
	req models.AmountRequest,
	idempotencyKey string,
) (*models.TransferResponse, error) {
	return s.transfer(ctx, userID, envelopeID, req, idempotencyKey, envelope.DirectionFund)
}

func (s *DefaultService) WithdrawFromEnvelope(
	ctx context.Context,
	userID, envelopeID string,
	req models.AmountRequest,
	idempotencyKey string,
) (*models.TransferResponse, error) {
	return s.transfer(ctx, userID, envelopeID, req, idempotencyKey, envelope.DirectionWithdraw)
}

func (s *DefaultService) transfer(
	ctx context.Context,
	userID, envelopeID string,
	req models.AmountRequest,
	idempotencyKey string,
	dir envelope.Direction,
) (*models.TransferResponse, error) {
	sess, err := s.session(ctx, userID)
	if err != nil {
		return nil, err
	}

	currency := req.Currency
	if currency == "" {
		currency = sess.store.Currency()
	}
	amount, err := money.Parse(req.Amount, currency)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", envelope.ErrInvalidAmount, err)
	}

	// the fingerprint covers what the request does, not how it was spelled
	payload := []byte(fmt.Sprintf("%s|%s|%d|%s", dir, envelopeID, amount.Cents, amount.Currency))
	resp, replayed, err := s.idem.Do(ctx, userID, idempotencyKey, payload, func(ctx context.Context) (models.TransferResponse, error) {
		return s.executeTransfer(ctx, sess, envelopeID, amount, dir)
	})
	if err != nil {
		return nil, err
	}
	resp.Replayed = replayed
	return &resp, nil
}

func (s *DefaultService) executeTransfer(
	ctx context.Context,
	sess *session,
	envelopeID string,
	amount money.Money,
	dir envelope.Direction,
) (models.TransferResponse, error) {
	var (
		t   envelope.Transfer
		err error
	)
	if dir == envelope.DirectionFund {
		t, err = sess.store.Fund(envelopeID, amount)
	} else {
		t, err = sess.store.Withdraw(envelopeID, amount)
	}
	if err != nil {
		return models.TransferResponse{}, fmt.Errorf("error processing %s: %w", dir, err)
	}

	s.persist(ctx, sess)
	if rec, err := sess.ledger.Get(t.RecordID); err == nil {
		s.publish(sess.userID, rec)
	}

	s.log.InfoContext(ctx, "envelope "+string(dir),
		utils.FieldOperation, string(dir),
		utils.FieldUserID, sess.userID,
		utils.FieldEnvelopeID, envelopeID,
		utils.FieldAmount, amount.Cents)

	return models.TransferResponse{
		Status:        "success",
		Direction:     string(dir),
		Amount:        amount,
		Envelope:      models.NewEnvelopeView(t.Envelope),
		MainBalance:   t.MainBalance,
		TransactionID: t.RecordID,
	}, nil
}

func (s *DefaultService) DeleteEnvelope(ctx context.Context, userID, envelopeID string) error {
	sess, err := s.session(ctx, userID)
	if err != nil {
		return err
	}

	if err := sess.store.Delete(envelopeID); err != nil {
		return fmt.Errorf("error deleting envelope: %w", err)
	}
	s.persist(ctx, sess)

	s.log.InfoContext(ctx, "envelope deleted",
		utils.FieldOperation, "delete",
		utils.FieldUserID, userID,
		utils.FieldEnvelopeID, envelopeID)
	return nil
}

func (s *DefaultService) ListEnvelopes(ctx context.Context, userID, envelopeType string) (*models.EnvelopeListResponse, error) {
	sess, err := s.session(ctx, userID)
	if err != nil {
		return nil, err
	}

	var filter *models.EnvelopeType
	if envelopeType != "" {
		t := models.EnvelopeType(strings.ToLower(envelopeType))
		if !t.Valid() {
			return nil, fmt.Errorf("%w: %q", envelope.ErrInvalidType, envelopeType)
		}
		filter = &t
	}

	envs := sess.store.List(filter)
	views := make([]models.EnvelopeView, len(envs))
	for i, e := range envs {
		views[i] = models.NewEnvelopeView(e)
	}
	return &models.EnvelopeListResponse{Status: "success", Envelopes: views, Count: len(views)}, nil
}

func (s *DefaultService) GetEnvelope(ctx context.Context, userID, envelopeID string) (*models.EnvelopeResponse, error) {
	sess, err := s.session(ctx, userID)
	if err != nil {
		return nil, err
	}

	env, err := sess.store.Get(envelopeID)
	if err != nil {
		return nil, err
	}
	return &models.EnvelopeResponse{Status: "success", Envelope: models.NewEnvelopeView(env)}, nil
}

// Envelope sharing
func (s *DefaultService) AddParticipant(
	ctx context.Context,
	userID, envelopeID string,
	req models.AddParticipantRequest,
) (*models.EnvelopeResponse, error) {
	sess, err := s.session(ctx, userID)
	if err != nil {
		return nil, err
	}

	env, err := sess.store.AddParticipant(envelopeID, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("error adding participant: %w", err)
	}
	s.persist(ctx, sess)

	return &models.EnvelopeResponse{Status: "success", Envelope: models.NewEnvelopeView(env)}, nil
}

// ResolveShareToken returns the envelope a share link points at
func (s *DefaultService) ResolveShareToken(ctx context.Context, token string) (*models.ShareResponse, error) {
	if s.issuer == nil {
		return nil, ErrSharingDisabled
	}

	ownerID, envelopeID, err := s.issuer.Verify(share.TokenFromURL(token))
	if err != nil {
		return nil, err
	}

	sess, err := s.session(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	env, err := sess.store.Get(envelopeID)
	if err != nil {
		return nil, err
	}
	if env.Type != models.EnvelopeShared {
		return nil, envelope.ErrNotShared
	}

	return &models.ShareResponse{Status: "success", OwnerID: ownerID, Envelope: models.NewEnvelopeView(env)}, nil
}

// Transaction ledger

// RecordTransaction appends a send/receive/request/payment to the history.
// It does not move the main balance. The amount is given as a magnitude and
// signed by type.
func (s *DefaultService) RecordTransaction(
	ctx context.Context,
	userID string,
	req models.RecordTransactionRequest,
) (*models.TransactionResponse, error) {
	sess, err := s.session(ctx, userID)
	if err != nil {
		return nil, err
	}

	amount, err := money.ParsePositive(req.Amount, sess.store.Currency())
	if err != nil {
		return nil, err
	}
	txType := models.TransactionType(req.Type)
	if txType.Outgoing() {
		if amount, err = amount.Negate(); err != nil {
			return nil, err
		}
	}

	rec := models.TransactionRecord{
		Type:        txType,
		Amount:      amount,
		Status:      models.TransactionStatus(req.Status),
		Contact:     strings.TrimSpace(req.Contact),
		Description: strings.TrimSpace(req.Description),
		Method:      models.PaymentMethod(req.Method),
		CardLast4:   req.CardLast4,
		CardBrand:   req.CardBrand,
		TxHash:      req.TxHash,
	}
	if req.LocalAmount != "" {
		local, err := money.ParsePositive(req.LocalAmount, req.LocalCurrency)
		if err != nil {
			return nil, fmt.Errorf("local amount: %w", err)
		}
		rec.LocalAmount = &local
	}
	if req.ExchangeRate != "" {
		rate, err := decimal.NewFromString(req.ExchangeRate)
		if err != nil || !rate.IsPositive() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidRate, req.ExchangeRate)
		}
		rec.ExchangeRate = rate.String()
	}

	stored, err := sess.ledger.Append(rec)
	if err != nil {
		return nil, fmt.Errorf("error recording transaction: %w", err)
	}
	if note, ok := transactionNotification(stored); ok {
		s.notify(ctx, sess, note)
	}
	s.persist(ctx, sess)
	s.publish(userID, stored)

	s.log.InfoContext(ctx, "transaction recorded",
		utils.FieldOperation, "record",
		utils.FieldUserID, userID,
		"type", stored.Type,
		utils.FieldAmount, stored.Amount.Cents)

	return &models.TransactionResponse{Status: "success", Transaction: stored}, nil
}

func (s *DefaultService) ListTransactions(ctx context.Context, userID, txType, search string) (*models.TransactionListResponse, error) {
	sess, err := s.session(ctx, userID)
	if err != nil {
		return nil, err
	}

	filter := ledger.Filter{SearchText: search}
	if txType != "" && txType != "all" {
		t := models.TransactionType(strings.ToLower(txType))
		if !t.Valid() {
			return nil, fmt.Errorf("%w: %q", ledger.ErrInvalidType, txType)
		}
		filter.Type = &t
	}

	recs := slices.Collect(sess.ledger.Query(filter))
	if recs == nil {
		recs = []models.TransactionRecord{}
	}
	return &models.TransactionListResponse{Status: "success", Transactions: recs, Count: len(recs)}, nil
}

func (s *DefaultService) GetTransaction(ctx context.Context, userID, transactionID string) (*models.TransactionResponse, error) {
	sess, err := s.session(ctx, userID)
	if err != nil {
		return nil, err
	}

	rec, err := sess.ledger.Get(transactionID)
	if err != nil {
		return nil, err
	}
	return &models.TransactionResponse{Status: "success", Transaction: rec}, nil
}

// Recurring payments
func (s *DefaultService) recurringData(sess *session, req models.RecurringPaymentRequest) (recurring.Data, error) {
	amount, err := money.Parse(req.Amount, sess.store.Currency())
	if err != nil {
		return recurring.Data{}, fmt.Errorf("%w: %v", recurring.ErrInvalidAmount, err)
	}
	return recurring.Data{
		Name:          req.Name,
		RecipientType: models.RecipientType(req.RecipientType),
		Recipient:     req.Recipient,
		Amount:        amount,
		Description:   req.Description,
		Category:      req.Category,
	}, nil
}

func (s *DefaultService) CreateRecurring(
	ctx context.Context,
	userID string,
	req models.RecurringPaymentRequest,
) (*models.RecurringPaymentResponse, error) {
	sess, err := s.session(ctx, userID)
	if err != nil {
		return nil, err
	}
	data, err := s.recurringData(sess, req)
	if err != nil {
		return nil, err
	}

	p, err := sess.recurring.Create(data)
	if err != nil {
		return nil, fmt.Errorf("error creating recurring payment: %w", err)
	}
	s.persist(ctx, sess)

	return &models.RecurringPaymentResponse{Status: "success", Payment: p}, nil
}

func (s *DefaultService) UpdateRecurring(
	ctx context.Context,
	userID, paymentID string,
	req models.RecurringPaymentRequest,
) (*models.RecurringPaymentResponse, error) {
	sess, err := s.session(ctx, userID)
	if err != nil {
		return nil, err
	}
	data, err := s.recurringData(sess, req)
	if err != nil {
		return nil, err
	}

	p, err := sess.recurring.Update(paymentID, data)
	if err != nil {
		return nil, fmt.Errorf("error updating recurring payment: %w", err)
	}
	s.persist(ctx, sess)

	return &models.RecurringPaymentResponse{Status: "success", Payment: p}, nil
}

func (s *DefaultService) DeleteRecurring(ctx context.Context, userID, paymentID string) error {
	sess, err := s.session(ctx, userID)
	if err != nil {
		return err
	}

	if err := sess.recurring.Remove(paymentID); err != nil {
		return fmt.Errorf("error removing recurring payment: %w", err)
	}
	s.persist(ctx, sess)
	return nil
}

func (s *DefaultService) ListRecurring(ctx context.Context, userID string) (*models.RecurringPaymentListResponse, error) {
	sess, err := s.session(ctx, userID)
	if err != nil {
		return nil, err
	}

	payments := sess.recurring.List()
	return &models.RecurringPaymentListResponse{Status: "success", Payments: payments, Count: len(payments)}, nil
}

// MarkRecurringPaid stamps the template's last paid date. No money moves.
func (s *DefaultService) MarkRecurringPaid(ctx context.Context, userID, paymentID string) (*models.RecurringPaymentResponse, error) {
	sess, err := s.session(ctx, userID)
	if err != nil {
		return nil, err
	}

	var when time.Time
	if s.clock != nil {
		when = s.clock()
	}
	p, err := sess.recurring.MarkPaid(paymentID, when)
	if err != nil {
		return nil, fmt.Errorf("error marking recurring payment paid: %w", err)
	}
	s.persist(ctx, sess)

	s.log.InfoContext(ctx, "recurring payment marked paid",
		utils.FieldOperation, "mark_paid",
		utils.FieldUserID, userID,
		"payment_id", paymentID)

	return &models.RecurringPaymentResponse{Status: "success", Payment: p}, nil
}

// publish sends the record in the background. Delivery is best-effort: the
// record is already committed.
func (s *DefaultService) publish(userID string, rec models.TransactionRecord) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := s.publisher.PublishTransactionRecorded(context.Background(), userID, rec); err != nil {
			s.log.Warn("failed to publish transaction event",
				utils.FieldUserID, userID,
				"transaction_id", rec.ID,
				utils.FieldError, err)
		}
	}()
}
