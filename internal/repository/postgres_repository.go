package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rongwang/envelope-wallet/internal/envelope"
	"github.com/rongwang/envelope-wallet/internal/models"
	"github.com/rongwang/envelope-wallet/internal/money"
)

// PostgresRepository implements the Repository interface using PostgreSQL
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{
		db: db,
	}
}

// GetDB returns the underlying database connection
func (r *PostgresRepository) GetDB() *sqlx.DB {
	return r.db
}

type walletRow struct {
	UserID           string    `db:"user_id"`
	Currency         string    `db:"currency"`
	MainBalanceCents int64     `db:"main_balance_cents"`
	UpdatedAt        time.Time `db:"updated_at"`
}

type envelopeRow struct {
	ID           string        `db:"id"`
	UserID       string        `db:"user_id"`
	Position     int           `db:"position"`
	Name         string        `db:"name"`
	Description  string        `db:"description"`
	BalanceCents int64         `db:"balance_cents"`
	Type         string        `db:"type"`
	Category     string        `db:"category"`
	GoalCents    sql.NullInt64 `db:"goal_cents"`
	CreatedBy    string        `db:"created_by"`
	CreatedAt    time.Time     `db:"created_at"`
	ShareURL     string        `db:"share_url"`
	QRCode       string        `db:"qr_code"`
}

type participantRow struct {
	EnvelopeID    string `db:"envelope_id"`
	ParticipantID string `db:"participant_id"`
}

type transactionRow struct {
	ID               string         `db:"id"`
	Seq              int64          `db:"seq"`
	Type             string         `db:"type"`
	AmountCents      int64          `db:"amount_cents"`
	Currency         string         `db:"currency"`
	Date             time.Time      `db:"date"`
	Status           string         `db:"status"`
	Contact          string         `db:"contact"`
	Description      string         `db:"description"`
	EnvelopeID       string         `db:"envelope_id"`
	Method           string         `db:"method"`
	CardLast4        string         `db:"card_last4"`
	CardBrand        string         `db:"card_brand"`
	TxHash           string         `db:"tx_hash"`
	LocalAmountCents sql.NullInt64  `db:"local_amount_cents"`
	LocalCurrency    sql.NullString `db:"local_currency"`
	ExchangeRate     string         `db:"exchange_rate"`
}

type recurringRow struct {
	ID            string       `db:"id"`
	Position      int          `db:"position"`
	Name          string       `db:"name"`
	RecipientType string       `db:"recipient_type"`
	Recipient     string       `db:"recipient"`
	AmountCents   int64        `db:"amount_cents"`
	Currency      string       `db:"currency"`
	Description   string       `db:"description"`
	Category      string       `db:"category"`
	LastPaid      sql.NullTime `db:"last_paid"`
	CreatedAt     time.Time    `db:"created_at"`
}

type contactRow struct {
	ID       string    `db:"id"`
	Position int       `db:"position"`
	Name     string    `db:"name"`
	Username string    `db:"username"`
	Address  string    `db:"address"`
	Avatar   string    `db:"avatar"`
	AddedAt  time.Time `db:"added_at"`
}

type notificationRow struct {
	ID          string         `db:"id"`
	Position    int            `db:"position"`
	Type        string         `db:"type"`
	Title       string         `db:"title"`
	Message     string         `db:"message"`
	CreatedAt   time.Time      `db:"created_at"`
	Read        bool           `db:"read"`
	AmountCents sql.NullInt64  `db:"amount_cents"`
	Currency    sql.NullString `db:"currency"`
	Contact     string         `db:"contact"`
}

// LoadWallet reads a user's wallet in one read-only transaction
func (r *PostgresRepository) LoadWallet(ctx context.Context, userID string) (*WalletState, error) {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{ReadOnly: true, Isolation: sql.LevelRepeatableRead})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var w walletRow
	err = tx.GetContext(ctx, &w,
		`SELECT user_id, currency, main_balance_cents, updated_at FROM wallets WHERE user_id = $1`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Wallet not found
		}
		return nil, err
	}

	var envRows []envelopeRow
	err = tx.SelectContext(ctx, &envRows, `
		SELECT id, user_id, position, name, description, balance_cents, type, category,
		       goal_cents, created_by, created_at, share_url, qr_code
		FROM envelopes WHERE user_id = $1 ORDER BY position`, userID)
	if err != nil {
		return nil, fmt.Errorf("error loading envelopes: %w", err)
	}

	var partRows []participantRow
	err = tx.SelectContext(ctx, &partRows, `
		SELECT envelope_id, participant_id FROM envelope_participants
		WHERE user_id = $1 ORDER BY envelope_id, position`, userID)
	if err != nil {
		return nil, fmt.Errorf("error loading participants: %w", err)
	}

	var txRows []transactionRow
	err = tx.SelectContext(ctx, &txRows, `
		SELECT id, seq, type, amount_cents, currency, date, status, contact, description,
		       envelope_id, method, card_last4, card_brand, tx_hash,
		       local_amount_cents, local_currency, exchange_rate
		FROM transactions WHERE user_id = $1 ORDER BY seq`, userID)
	if err != nil {
		return nil, fmt.Errorf("error loading transactions: %w", err)
	}

	var recRows []recurringRow
	err = tx.SelectContext(ctx, &recRows, `
		SELECT id, position, name, recipient_type, recipient, amount_cents, currency,
		       description, category, last_paid, created_at
		FROM recurring_payments WHERE user_id = $1 ORDER BY position`, userID)
	if err != nil {
		return nil, fmt.Errorf("error loading recurring payments: %w", err)
	}

	var contactRows []contactRow
	err = tx.SelectContext(ctx, &contactRows, `
		SELECT id, position, name, username, address, avatar, added_at
		FROM contacts WHERE user_id = $1 ORDER BY position`, userID)
	if err != nil {
		return nil, fmt.Errorf("error loading contacts: %w", err)
	}

	var noteRows []notificationRow
	err = tx.SelectContext(ctx, &noteRows, `
		SELECT id, position, type, title, message, created_at, read, amount_cents, currency, contact
		FROM notifications WHERE user_id = $1 ORDER BY position`, userID)
	if err != nil {
		return nil, fmt.Errorf("error loading notifications: %w", err)
	}

	participants := make(map[string][]string)
	for _, p := range partRows {
		participants[p.EnvelopeID] = append(participants[p.EnvelopeID], p.ParticipantID)
	}

	state := &WalletState{
		UserID: userID,
		Store: envelope.Snapshot{
			Owner:       userID,
			MainBalance: money.New(w.MainBalanceCents, w.Currency),
			Envelopes:   make([]models.Envelope, 0, len(envRows)),
		},
		Transactions:  make([]models.TransactionRecord, 0, len(txRows)),
		Recurring:     make([]models.RecurringPayment, 0, len(recRows)),
		Contacts:      make([]models.Contact, 0, len(contactRows)),
		Notifications: make([]models.Notification, 0, len(noteRows)),
	}
	for _, e := range envRows {
		env := models.Envelope{
			ID:           e.ID,
			Name:         e.Name,
			Description:  e.Description,
			Balance:      money.New(e.BalanceCents, w.Currency),
			Type:         models.EnvelopeType(e.Type),
			Category:     models.Category(e.Category),
			CreatedBy:    e.CreatedBy,
			CreatedAt:    e.CreatedAt.UTC(),
			Participants: participants[e.ID],
			ShareURL:     e.ShareURL,
			QRCode:       e.QRCode,
		}
		if e.GoalCents.Valid {
			g := money.New(e.GoalCents.Int64, w.Currency)
			env.Goal = &g
		}
		state.Store.Envelopes = append(state.Store.Envelopes, env)
	}
	for _, t := range txRows {
		rec := models.TransactionRecord{
			ID:           t.ID,
			Type:         models.TransactionType(t.Type),
			Amount:       money.New(t.AmountCents, t.Currency),
			Date:         t.Date.UTC(),
			Status:       models.TransactionStatus(t.Status),
			Contact:      t.Contact,
			Description:  t.Description,
			EnvelopeID:   t.EnvelopeID,
			Method:       models.PaymentMethod(t.Method),
			CardLast4:    t.CardLast4,
			CardBrand:    t.CardBrand,
			TxHash:       t.TxHash,
			ExchangeRate: t.ExchangeRate,
		}
		if t.LocalAmountCents.Valid {
			la := money.New(t.LocalAmountCents.Int64, t.LocalCurrency.String)
			rec.LocalAmount = &la
		}
		state.Transactions = append(state.Transactions, rec)
	}
	for _, p := range recRows {
		rp := models.RecurringPayment{
			ID:            p.ID,
			Name:          p.Name,
			RecipientType: models.RecipientType(p.RecipientType),
			Recipient:     p.Recipient,
			Amount:        money.New(p.AmountCents, p.Currency),
			Description:   p.Description,
			Category:      p.Category,
			CreatedAt:     p.CreatedAt.UTC(),
		}
		if p.LastPaid.Valid {
			lp := p.LastPaid.Time.UTC()
			rp.LastPaid = &lp
		}
		state.Recurring = append(state.Recurring, rp)
	}
	for _, c := range contactRows {
		state.Contacts = append(state.Contacts, models.Contact{
			ID:       c.ID,
			Name:     c.Name,
			Username: c.Username,
			Address:  c.Address,
			Avatar:   c.Avatar,
			AddedAt:  c.AddedAt.UTC(),
		})
	}
	for _, n := range noteRows {
		note := models.Notification{
			ID:        n.ID,
			Type:      models.NotificationType(n.Type),
			Title:     n.Title,
			Message:   n.Message,
			Timestamp: n.CreatedAt.UTC(),
			Read:      n.Read,
			Contact:   n.Contact,
		}
		if n.AmountCents.Valid {
			amt := money.New(n.AmountCents.Int64, n.Currency.String)
			note.Amount = &amt
		}
		state.Notifications = append(state.Notifications, note)
	}

	return state, nil
}

// SaveWallet writes the account, envelopes, new ledger entries, recurring
// templates, contacts and notifications in a single transaction
func (r *PostgresRepository) SaveWallet(ctx context.Context, state *WalletState) error {
	if state == nil || state.UserID == "" {
		return errors.New("wallet state needs a user id")
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = saveAccount(ctx, tx, state); err != nil {
		return fmt.Errorf("error saving account: %w", err)
	}
	if err = saveEnvelopes(ctx, tx, state); err != nil {
		return fmt.Errorf("error saving envelopes: %w", err)
	}
	if err = appendTransactions(ctx, tx, state); err != nil {
		return fmt.Errorf("error saving transactions: %w", err)
	}
	if err = saveRecurring(ctx, tx, state); err != nil {
		return fmt.Errorf("error saving recurring payments: %w", err)
	}
	if err = saveContacts(ctx, tx, state); err != nil {
		return fmt.Errorf("error saving contacts: %w", err)
	}
	if err = saveNotifications(ctx, tx, state); err != nil {
		return fmt.Errorf("error saving notifications: %w", err)
	}

	err = tx.Commit()
	return err
}

func saveAccount(ctx context.Context, tx *sqlx.Tx, state *WalletState) error {
	main := state.Store.MainBalance
	_, err := tx.ExecContext(ctx, `
		INSERT INTO wallets (user_id, currency, main_balance_cents, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET currency = EXCLUDED.currency,
		    main_balance_cents = EXCLUDED.main_balance_cents,
		    updated_at = EXCLUDED.updated_at`,
		state.UserID, main.Currency, main.Cents, time.Now().UTC())
	return err
}

func saveEnvelopes(ctx context.Context, tx *sqlx.Tx, state *WalletState) error {
	// participants go with their envelopes via ON DELETE CASCADE
	if _, err := tx.ExecContext(ctx, `DELETE FROM envelopes WHERE user_id = $1`, state.UserID); err != nil {
		return err
	}

	for i, e := range state.Store.Envelopes {
		var goal sql.NullInt64
		if e.Goal != nil {
			goal = sql.NullInt64{Int64: e.Goal.Cents, Valid: true}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO envelopes (id, user_id, position, name, description, balance_cents, type,
			                       category, goal_cents, created_by, created_at, share_url, qr_code)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			e.ID, state.UserID, i, e.Name, e.Description, e.Balance.Cents, string(e.Type),
			string(e.Category), goal, e.CreatedBy, e.CreatedAt, e.ShareURL, e.QRCode)
		if err != nil {
			return err
		}

		for pos, p := range e.Participants {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO envelope_participants (user_id, envelope_id, position, participant_id)
				VALUES ($1, $2, $3, $4)`,
				state.UserID, e.ID, pos, p)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// appendTransactions inserts only the entries past the stored ones; the
// ledger never rewrites history
func appendTransactions(ctx context.Context, tx *sqlx.Tx, state *WalletState) error {
	var stored int64
	err := tx.GetContext(ctx, &stored, `SELECT COUNT(*) FROM transactions WHERE user_id = $1`, state.UserID)
	if err != nil {
		return err
	}

	for seq := stored; seq < int64(len(state.Transactions)); seq++ {
		t := state.Transactions[seq]
		var localCents sql.NullInt64
		var localCurrency sql.NullString
		if t.LocalAmount != nil {
			localCents = sql.NullInt64{Int64: t.LocalAmount.Cents, Valid: true}
			localCurrency = sql.NullString{String: t.LocalAmount.Currency, Valid: true}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO transactions (id, user_id, seq, type, amount_cents, currency, date, status,
			                          contact, description, envelope_id, method, card_last4,
			                          card_brand, tx_hash, local_amount_cents, local_currency, exchange_rate)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
			t.ID, state.UserID, seq, string(t.Type), t.Amount.Cents, t.Amount.Currency, t.Date,
			string(t.Status), t.Contact, t.Description, t.EnvelopeID, string(t.Method), t.CardLast4,
			t.CardBrand, t.TxHash, localCents, localCurrency, t.ExchangeRate)
		if err != nil {
			return err
		}
	}
	return nil
}

func saveRecurring(ctx context.Context, tx *sqlx.Tx, state *WalletState) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM recurring_payments WHERE user_id = $1`, state.UserID); err != nil {
		return err
	}

	for i, p := range state.Recurring {
		var lastPaid sql.NullTime
		if p.LastPaid != nil {
			lastPaid = sql.NullTime{Time: *p.LastPaid, Valid: true}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO recurring_payments (id, user_id, position, name, recipient_type, recipient,
			                                amount_cents, currency, description, category, last_paid, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			p.ID, state.UserID, i, p.Name, string(p.RecipientType), p.Recipient,
			p.Amount.Cents, p.Amount.Currency, p.Description, p.Category, lastPaid, p.CreatedAt)
		if err != nil {
			return err
		}
	}
	return nil
}

func saveContacts(ctx context.Context, tx *sqlx.Tx, state *WalletState) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM contacts WHERE user_id = $1`, state.UserID); err != nil {
		return err
	}

	for i, c := range state.Contacts {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO contacts (id, user_id, position, name, username, address, avatar, added_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			c.ID, state.UserID, i, c.Name, c.Username, c.Address, c.Avatar, c.AddedAt)
		if err != nil {
			return err
		}
	}
	return nil
}

func saveNotifications(ctx context.Context, tx *sqlx.Tx, state *WalletState) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM notifications WHERE user_id = $1`, state.UserID); err != nil {
		return err
	}

	for i, n := range state.Notifications {
		var amountCents sql.NullInt64
		var currency sql.NullString
		if n.Amount != nil {
			amountCents = sql.NullInt64{Int64: n.Amount.Cents, Valid: true}
			currency = sql.NullString{String: n.Amount.Currency, Valid: true}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO notifications (id, user_id, position, type, title, message, created_at,
			                           read, amount_cents, currency, contact)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			n.ID, state.UserID, i, string(n.Type), n.Title, n.Message, n.Timestamp,
			n.Read, amountCents, currency, n.Contact)
		if err != nil {
			return err
		}
	}
	return nil
}
