package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rongwang/envelope-wallet/internal/contacts"
	"github.com/rongwang/envelope-wallet/internal/envelope"
	"github.com/rongwang/envelope-wallet/internal/idempotency"
	"github.com/rongwang/envelope-wallet/internal/ledger"
	"github.com/rongwang/envelope-wallet/internal/models"
	"github.com/rongwang/envelope-wallet/internal/money"
	"github.com/rongwang/envelope-wallet/internal/notifications"
	"github.com/rongwang/envelope-wallet/internal/recurring"
	"github.com/rongwang/envelope-wallet/internal/repository"
	"github.com/rongwang/envelope-wallet/internal/share"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu      sync.Mutex
	records []models.TransactionRecord
	err     error
}

func (p *recordingPublisher) PublishTransactionRecorded(_ context.Context, _ string, rec models.TransactionRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records = append(p.records, rec)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) published() []models.TransactionRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.TransactionRecord(nil), p.records...)
}

type failingRepository struct {
	repository.Repository
}

func (failingRepository) SaveWallet(context.Context, *repository.WalletState) error {
	return errors.New("database down")
}

// blockingRepository holds LoadWallet for one user until release is closed
type blockingRepository struct {
	repository.Repository
	slowUser string
	entered  chan struct{}
	release  chan struct{}

	mu    sync.Mutex
	loads map[string]int
}

func newBlockingRepository(slowUser string) *blockingRepository {
	return &blockingRepository{
		Repository: repository.NewMemoryRepository(),
		slowUser:   slowUser,
		entered:    make(chan struct{}),
		release:    make(chan struct{}),
		loads:      make(map[string]int),
	}
}

func (r *blockingRepository) LoadWallet(ctx context.Context, userID string) (*repository.WalletState, error) {
	r.mu.Lock()
	r.loads[userID]++
	first := r.loads[userID] == 1
	r.mu.Unlock()

	if userID == r.slowUser {
		if first {
			close(r.entered)
		}
		<-r.release
	}
	return r.Repository.LoadWallet(ctx, userID)
}

func (r *blockingRepository) loadCount(userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loads[userID]
}

// savingRepository keeps every state written to it
type savingRepository struct {
	repository.Repository

	mu     sync.Mutex
	states []*repository.WalletState
}

func (r *savingRepository) SaveWallet(ctx context.Context, state *repository.WalletState) error {
	r.mu.Lock()
	r.states = append(r.states, state)
	r.mu.Unlock()
	return r.Repository.SaveWallet(ctx, state)
}

func (r *savingRepository) saved() []*repository.WalletState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*repository.WalletState(nil), r.states...)
}

func newTestService(t *testing.T, repo repository.Repository) (*DefaultService, *recordingPublisher) {
	t.Helper()
	if repo == nil {
		repo = repository.NewMemoryRepository()
	}
	pub := &recordingPublisher{}
	svc := NewDefaultService(repo, Options{
		InitialBalance: money.New(100000, "USD"),
		Issuer:         share.NewIssuer("test-secret", "https://zappcash.app", time.Hour),
		Publisher:      pub,
		Idempotency:    idempotency.NewStore[models.TransferResponse](100, time.Hour),
	})
	return svc, pub
}

func TestEnvelopeLifecycle(t *testing.T) {
	svc, pub := newTestService(t, nil)
	ctx := context.Background()

	created, err := svc.CreateEnvelope(ctx, "alice", models.CreateEnvelopeRequest{
		Name:     "Travel",
		Category: "travel",
		Goal:     "500",
	})
	require.NoError(t, err)
	env := created.Envelope
	assert.Equal(t, models.CategoryTravel, env.Category)
	assert.Equal(t, money.New(50000, "USD"), *env.Goal)
	assert.True(t, env.Balance.IsZero())

	funded, err := svc.FundEnvelope(ctx, "alice", env.ID, models.AmountRequest{Amount: "200"}, "")
	require.NoError(t, err)
	assert.Equal(t, money.New(20000, "USD"), funded.Envelope.Balance)
	assert.Equal(t, money.New(80000, "USD"), funded.MainBalance)
	assert.Equal(t, 40, funded.Envelope.GoalProgress)
	assert.NotEmpty(t, funded.TransactionID)

	withdrawn, err := svc.WithdrawFromEnvelope(ctx, "alice", env.ID, models.AmountRequest{Amount: "50.00"}, "")
	require.NoError(t, err)
	assert.Equal(t, money.New(15000, "USD"), withdrawn.Envelope.Balance)
	assert.Equal(t, money.New(85000, "USD"), withdrawn.MainBalance)

	acct, err := svc.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, money.New(100000, "USD"), acct.Total)
	assert.Equal(t, money.New(15000, "USD"), acct.Allocated)
	assert.Equal(t, "$850.00", acct.FormattedMainBalance)

	err = svc.DeleteEnvelope(ctx, "alice", env.ID)
	assert.ErrorIs(t, err, envelope.ErrEnvelopeNotEmpty)

	txs, err := svc.ListTransactions(ctx, "alice", "", "")
	require.NoError(t, err)
	require.Equal(t, 2, txs.Count)
	assert.Equal(t, withdrawn.TransactionID, txs.Transactions[0].ID)

	svc.Wait()
	assert.Len(t, pub.published(), 2)
}

func TestWalletsAreIsolatedPerUser(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	created, err := svc.CreateEnvelope(ctx, "alice", models.CreateEnvelopeRequest{Name: "Food"})
	require.NoError(t, err)

	_, err = svc.FundEnvelope(ctx, "bob", created.Envelope.ID, models.AmountRequest{Amount: "1"}, "")
	assert.ErrorIs(t, err, envelope.ErrEnvelopeNotFound)

	list, err := svc.ListEnvelopes(ctx, "bob", "")
	require.NoError(t, err)
	assert.Zero(t, list.Count)

	_, err = svc.GetAccount(ctx, "")
	assert.ErrorIs(t, err, ErrUserRequired)
}

func TestFundValidation(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()
	created, err := svc.CreateEnvelope(ctx, "alice", models.CreateEnvelopeRequest{Name: "Food"})
	require.NoError(t, err)
	id := created.Envelope.ID

	_, err = svc.FundEnvelope(ctx, "alice", id, models.AmountRequest{Amount: "abc"}, "")
	assert.ErrorIs(t, err, envelope.ErrInvalidAmount)
	_, err = svc.FundEnvelope(ctx, "alice", id, models.AmountRequest{Amount: "0"}, "")
	assert.ErrorIs(t, err, envelope.ErrInvalidAmount)
	_, err = svc.FundEnvelope(ctx, "alice", id, models.AmountRequest{Amount: "1500"}, "")
	assert.ErrorIs(t, err, envelope.ErrInsufficientMainBalance)
	_, err = svc.FundEnvelope(ctx, "alice", id, models.AmountRequest{Amount: "5", Currency: "EUR"}, "")
	assert.ErrorIs(t, err, money.ErrCurrencyMismatch)
	_, err = svc.WithdrawFromEnvelope(ctx, "alice", id, models.AmountRequest{Amount: "1"}, "")
	assert.ErrorIs(t, err, envelope.ErrInsufficientEnvelopeBalance)

	txs, err := svc.ListTransactions(ctx, "alice", "", "")
	require.NoError(t, err)
	assert.Zero(t, txs.Count, "failed transfers write no history")
}

func TestCreateEnvelopeValidation(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	_, err := svc.CreateEnvelope(ctx, "alice", models.CreateEnvelopeRequest{Name: "  "})
	assert.ErrorIs(t, err, envelope.ErrInvalidName)
	_, err = svc.CreateEnvelope(ctx, "alice", models.CreateEnvelopeRequest{Name: "x", Goal: "0"})
	assert.ErrorIs(t, err, envelope.ErrInvalidGoal)
	_, err = svc.CreateEnvelope(ctx, "alice", models.CreateEnvelopeRequest{Name: "x", Goal: "lots"})
	assert.ErrorIs(t, err, envelope.ErrInvalidGoal)
	_, err = svc.CreateEnvelope(ctx, "alice", models.CreateEnvelopeRequest{Name: "x", Category: "Pets"})
	assert.ErrorIs(t, err, envelope.ErrInvalidCategory)
	_, err = svc.ListEnvelopes(ctx, "alice", "group")
	assert.ErrorIs(t, err, envelope.ErrInvalidType)
}

func TestIdempotentFund(t *testing.T) {
	svc, pub := newTestService(t, nil)
	ctx := context.Background()
	created, err := svc.CreateEnvelope(ctx, "alice", models.CreateEnvelopeRequest{Name: "Food"})
	require.NoError(t, err)
	id := created.Envelope.ID

	first, err := svc.FundEnvelope(ctx, "alice", id, models.AmountRequest{Amount: "10"}, "key-1")
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	// same request spelled differently is the same request
	second, err := svc.FundEnvelope(ctx, "alice", id, models.AmountRequest{Amount: "10.00"}, "key-1")
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.TransactionID, second.TransactionID)

	_, err = svc.FundEnvelope(ctx, "alice", id, models.AmountRequest{Amount: "11"}, "key-1")
	assert.ErrorIs(t, err, idempotency.ErrKeyReused)
	_, err = svc.WithdrawFromEnvelope(ctx, "alice", id, models.AmountRequest{Amount: "10"}, "key-1")
	assert.ErrorIs(t, err, idempotency.ErrKeyReused)

	acct, err := svc.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, money.New(99000, "USD"), acct.MainBalance)

	svc.Wait()
	assert.Len(t, pub.published(), 1)
}

func TestWalletSurvivesRestart(t *testing.T) {
	repo := repository.NewMemoryRepository()
	ctx := context.Background()

	svc, _ := newTestService(t, repo)
	created, err := svc.CreateEnvelope(ctx, "alice", models.CreateEnvelopeRequest{Name: "Trip", Type: "shared", Participants: []string{"bob"}})
	require.NoError(t, err)
	_, err = svc.FundEnvelope(ctx, "alice", created.Envelope.ID, models.AmountRequest{Amount: "25"}, "")
	require.NoError(t, err)
	rent, err := svc.CreateRecurring(ctx, "alice", models.RecurringPaymentRequest{Name: "Rent", Recipient: "@landlord", Amount: "1200"})
	require.NoError(t, err)
	maria, err := svc.AddContact(ctx, "alice", models.AddContactRequest{Name: "Maria", Username: "@maria"})
	require.NoError(t, err)
	_, err = svc.RecordTransaction(ctx, "alice", models.RecordTransactionRequest{Type: "receive", Amount: "9", Contact: "@maria"})
	require.NoError(t, err)
	svc.Wait()

	restarted, _ := newTestService(t, repo)
	env, err := restarted.GetEnvelope(ctx, "alice", created.Envelope.ID)
	require.NoError(t, err)
	assert.Equal(t, money.New(2500, "USD"), env.Envelope.Balance)
	assert.Equal(t, []string{"alice", "bob"}, env.Envelope.Participants)

	acct, err := restarted.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, money.New(97500, "USD"), acct.MainBalance)

	txs, err := restarted.ListTransactions(ctx, "alice", "payment", "")
	require.NoError(t, err)
	assert.Equal(t, 1, txs.Count)

	payments, err := restarted.ListRecurring(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, 1, payments.Count)
	assert.Equal(t, rent.Payment.ID, payments.Payments[0].ID)

	contact, err := restarted.GetContact(ctx, "alice", maria.Contact.ID)
	require.NoError(t, err)
	assert.Equal(t, "@maria", contact.Contact.Username)
	assert.NotNil(t, contact.Contact.LastTransaction)

	inbox, err := restarted.ListNotifications(ctx, "alice")
	require.NoError(t, err)
	// shared envelope, then the payment from maria
	require.Equal(t, 2, inbox.Count)
	assert.Equal(t, 2, inbox.Unread)
	assert.Equal(t, models.NotificationPayment, inbox.Notifications[0].Type)
}

func TestSaveFailureDoesNotFailRequest(t *testing.T) {
	svc, _ := newTestService(t, failingRepository{repository.NewMemoryRepository()})
	ctx := context.Background()

	created, err := svc.CreateEnvelope(ctx, "alice", models.CreateEnvelopeRequest{Name: "Food"})
	require.NoError(t, err)
	_, err = svc.FundEnvelope(ctx, "alice", created.Envelope.ID, models.AmountRequest{Amount: "5"}, "")
	assert.NoError(t, err)
}

func TestPublishFailureIsBestEffort(t *testing.T) {
	svc, pub := newTestService(t, nil)
	pub.err = errors.New("broker down")
	ctx := context.Background()

	resp, err := svc.RecordTransaction(ctx, "alice", models.RecordTransactionRequest{Type: "send", Amount: "3", Contact: "@bob"})
	require.NoError(t, err)
	assert.Equal(t, money.New(-300, "USD"), resp.Transaction.Amount)
	svc.Wait()
	assert.Len(t, pub.published(), 1)
}

func TestRecordTransaction(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	resp, err := svc.RecordTransaction(ctx, "alice", models.RecordTransactionRequest{
		Type:          "payment",
		Amount:        "12.50",
		Contact:       "Cafe Britt",
		Description:   "Coffee beans",
		Method:        "card",
		CardLast4:     "4242",
		CardBrand:     "Visa",
		LocalAmount:   "6500",
		LocalCurrency: "CRC",
		ExchangeRate:  "520.000",
	})
	require.NoError(t, err)
	rec := resp.Transaction
	assert.Equal(t, money.New(-1250, "USD"), rec.Amount)
	assert.Equal(t, models.StatusCompleted, rec.Status)
	assert.Equal(t, money.New(650000, "CRC"), *rec.LocalAmount)
	assert.Equal(t, "520", rec.ExchangeRate)

	recv, err := svc.RecordTransaction(ctx, "alice", models.RecordTransactionRequest{Type: "receive", Amount: "40", Contact: "Alice"})
	require.NoError(t, err)
	assert.Equal(t, money.New(4000, "USD"), recv.Transaction.Amount)

	// recording does not move the main balance
	acct, err := svc.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, money.New(100000, "USD"), acct.MainBalance)

	got, err := svc.GetTransaction(ctx, "alice", rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec, got.Transaction)
	_, err = svc.GetTransaction(ctx, "alice", "missing")
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	search, err := svc.ListTransactions(ctx, "alice", "all", "coffee")
	require.NoError(t, err)
	assert.Equal(t, 1, search.Count)

	_, err = svc.ListTransactions(ctx, "alice", "refund", "")
	assert.ErrorIs(t, err, ledger.ErrInvalidType)
	_, err = svc.RecordTransaction(ctx, "alice", models.RecordTransactionRequest{Type: "send", Amount: "-4"})
	assert.ErrorIs(t, err, money.ErrInvalidAmount)
	_, err = svc.RecordTransaction(ctx, "alice", models.RecordTransactionRequest{Type: "send", Amount: "4", ExchangeRate: "x"})
	assert.ErrorIs(t, err, ErrInvalidRate)
}

func TestRecurringPayments(t *testing.T) {
	paidAt := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	svc := NewDefaultService(repository.NewMemoryRepository(), Options{
		InitialBalance: money.New(100000, "USD"),
		Clock:          func() time.Time { return paidAt },
	})
	ctx := context.Background()

	created, err := svc.CreateRecurring(ctx, "alice", models.RecurringPaymentRequest{
		Name: "Rent", RecipientType: "username", Recipient: "@landlord", Amount: "1200",
	})
	require.NoError(t, err)
	id := created.Payment.ID

	updated, err := svc.UpdateRecurring(ctx, "alice", id, models.RecurringPaymentRequest{
		Name: "Rent", Recipient: "@landlord", Amount: "1250",
	})
	require.NoError(t, err)
	assert.Equal(t, money.New(125000, "USD"), updated.Payment.Amount)

	paid, err := svc.MarkRecurringPaid(ctx, "alice", id)
	require.NoError(t, err)
	require.NotNil(t, paid.Payment.LastPaid)
	assert.Equal(t, paidAt, *paid.Payment.LastPaid)

	acct, err := svc.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, money.New(100000, "USD"), acct.MainBalance, "marking paid moves no money")
	txs, err := svc.ListTransactions(ctx, "alice", "", "")
	require.NoError(t, err)
	assert.Zero(t, txs.Count)

	_, err = svc.CreateRecurring(ctx, "alice", models.RecurringPaymentRequest{Name: "x", Recipient: "y", Amount: "nope"})
	assert.ErrorIs(t, err, recurring.ErrInvalidAmount)

	require.NoError(t, svc.DeleteRecurring(ctx, "alice", id))
	assert.ErrorIs(t, svc.DeleteRecurring(ctx, "alice", id), recurring.ErrNotFound)
	_, err = svc.MarkRecurringPaid(ctx, "alice", id)
	assert.ErrorIs(t, err, recurring.ErrNotFound)
}

func TestSharing(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	created, err := svc.CreateEnvelope(ctx, "alice", models.CreateEnvelopeRequest{Name: "Trip", Type: "shared"})
	require.NoError(t, err)
	env := created.Envelope
	require.NotEmpty(t, env.ShareURL)
	assert.Equal(t, []string{"alice"}, env.Participants)

	withBob, err := svc.AddParticipant(ctx, "alice", env.ID, models.AddParticipantRequest{UserID: "bob"})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, withBob.Envelope.Participants)

	resolved, err := svc.ResolveShareToken(ctx, env.ShareURL)
	require.NoError(t, err)
	assert.Equal(t, "alice", resolved.OwnerID)
	assert.Equal(t, env.ID, resolved.Envelope.ID)

	_, err = svc.ResolveShareToken(ctx, "garbage")
	assert.ErrorIs(t, err, share.ErrInvalidToken)

	solo, err := svc.CreateEnvelope(ctx, "alice", models.CreateEnvelopeRequest{Name: "Solo"})
	require.NoError(t, err)
	assert.Empty(t, solo.Envelope.ShareURL)
	_, err = svc.AddParticipant(ctx, "alice", solo.Envelope.ID, models.AddParticipantRequest{UserID: "bob"})
	assert.ErrorIs(t, err, envelope.ErrNotShared)

	noShare := NewDefaultService(repository.NewMemoryRepository(), Options{})
	_, err = noShare.ResolveShareToken(ctx, env.ShareURL)
	assert.ErrorIs(t, err, ErrSharingDisabled)
}

func TestConcurrentFundsAcrossUsers(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	users := []string{"u1", "u2", "u3"}
	ids := make(map[string]string)
	for _, u := range users {
		created, err := svc.CreateEnvelope(ctx, u, models.CreateEnvelopeRequest{Name: "Pot"})
		require.NoError(t, err)
		ids[u] = created.Envelope.ID
	}

	var wg sync.WaitGroup
	for _, u := range users {
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(u string) {
				defer wg.Done()
				_, err := svc.FundEnvelope(ctx, u, ids[u], models.AmountRequest{Amount: "10"}, "")
				assert.NoError(t, err)
			}(u)
		}
	}
	wg.Wait()
	svc.Wait()

	for _, u := range users {
		acct, err := svc.GetAccount(ctx, u)
		require.NoError(t, err)
		assert.Equal(t, money.New(80000, "USD"), acct.MainBalance)
		assert.Equal(t, money.New(20000, "USD"), acct.Allocated)
	}
}

func TestGetAccountTotalIsStableDuringTransfers(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()
	created, err := svc.CreateEnvelope(ctx, "alice", models.CreateEnvelopeRequest{Name: "Pot"})
	require.NoError(t, err)
	id := created.Envelope.ID

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
			}
			_, _ = svc.FundEnvelope(ctx, "alice", id, models.AmountRequest{Amount: "7"}, "")
			_, _ = svc.WithdrawFromEnvelope(ctx, "alice", id, models.AmountRequest{Amount: "7"}, "")
		}
	}()

	for i := 0; i < 500; i++ {
		acct, err := svc.GetAccount(ctx, "alice")
		require.NoError(t, err)
		require.Equal(t, money.New(100000, "USD"), acct.Total, "read %d", i)
		require.Equal(t, 1, acct.EnvelopeCount)
	}
	close(stop)
	<-done
	svc.Wait()
}

func TestSlowLoadDoesNotBlockOtherUsers(t *testing.T) {
	repo := newBlockingRepository("slow")
	svc, _ := newTestService(t, repo)
	ctx := context.Background()

	slowDone := make(chan error, 1)
	go func() {
		_, err := svc.GetAccount(ctx, "slow")
		slowDone <- err
	}()
	<-repo.entered

	fastDone := make(chan error, 1)
	go func() {
		_, err := svc.GetAccount(ctx, "fast")
		fastDone <- err
	}()

	select {
	case err := <-fastDone:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		close(repo.release)
		t.Fatal("another user's load blocked the service")
	}

	close(repo.release)
	require.NoError(t, <-slowDone)
}

func TestConcurrentFirstRequestsShareOneLoad(t *testing.T) {
	repo := newBlockingRepository("alice")
	svc, _ := newTestService(t, repo)
	ctx := context.Background()

	var wg sync.WaitGroup
	accounts := make([]*models.AccountResponse, 8)
	for i := range accounts {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			acct, err := svc.GetAccount(ctx, "alice")
			assert.NoError(t, err)
			accounts[i] = acct
		}(i)
	}
	<-repo.entered
	close(repo.release)
	wg.Wait()

	assert.Equal(t, 1, repo.loadCount("alice"))
	sess, err := svc.session(ctx, "alice")
	require.NoError(t, err)
	assert.Same(t, sess, svc.cachedSession("alice"))
	for _, acct := range accounts {
		require.NotNil(t, acct)
		assert.Equal(t, money.New(100000, "USD"), acct.MainBalance)
	}
}

// Every saved wallet must carry exactly the transfer records that explain its
// envelope balances.
func TestSavedStateMatchesTransferRecords(t *testing.T) {
	repo := &savingRepository{Repository: repository.NewMemoryRepository()}
	svc, _ := newTestService(t, repo)
	ctx := context.Background()
	created, err := svc.CreateEnvelope(ctx, "alice", models.CreateEnvelopeRequest{Name: "Pot"})
	require.NoError(t, err)
	id := created.Envelope.ID

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				if (g+i)%3 == 0 {
					_, _ = svc.WithdrawFromEnvelope(ctx, "alice", id, models.AmountRequest{Amount: "4"}, "")
				} else {
					_, _ = svc.FundEnvelope(ctx, "alice", id, models.AmountRequest{Amount: "3"}, "")
				}
			}
		}(g)
	}
	wg.Wait()
	svc.Wait()

	states := repo.saved()
	require.NotEmpty(t, states)
	for n, st := range states {
		var held, moved int64
		for _, e := range st.Store.Envelopes {
			held += e.Balance.Cents
		}
		for _, rec := range st.Transactions {
			if rec.EnvelopeID != "" {
				moved -= rec.Amount.Cents
			}
		}
		require.Equal(t, held, moved, "save %d", n)
		require.Equal(t, int64(100000), st.Store.MainBalance.Cents+held, "save %d", n)
	}
}

func TestContactsAndNotifications(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	added, err := svc.AddContact(ctx, "alice", models.AddContactRequest{Name: "Bob", Address: "0xB0B"})
	require.NoError(t, err)
	assert.True(t, added.Added)
	dup, err := svc.AddContact(ctx, "alice", models.AddContactRequest{Name: "Robert", Address: "0xb0b"})
	require.NoError(t, err)
	assert.False(t, dup.Added)
	assert.Equal(t, added.Contact.ID, dup.Contact.ID)

	_, err = svc.AddContact(ctx, "alice", models.AddContactRequest{Name: "Nobody"})
	assert.ErrorIs(t, err, contacts.ErrInvalidHandle)

	_, err = svc.RecordTransaction(ctx, "alice", models.RecordTransactionRequest{Type: "request", Amount: "12", Contact: "0xb0b"})
	require.NoError(t, err)
	_, err = svc.RecordTransaction(ctx, "alice", models.RecordTransactionRequest{Type: "payment", Amount: "3", Contact: "Bob"})
	require.NoError(t, err)

	history, err := svc.ContactTransactions(ctx, "alice", added.Contact.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, history.Count)

	found, err := svc.ListContacts(ctx, "alice", "0XB")
	require.NoError(t, err)
	require.Equal(t, 1, found.Count)
	assert.NotNil(t, found.Contacts[0].LastTransaction)

	inbox, err := svc.ListNotifications(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, 1, inbox.Count)
	assert.Equal(t, "0xb0b requested $12.00", inbox.Notifications[0].Message)

	_, err = svc.MarkNotificationRead(ctx, "alice", "missing")
	assert.ErrorIs(t, err, notifications.ErrNotFound)
	read, err := svc.MarkAllNotificationsRead(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, read.Unread)

	require.NoError(t, svc.RemoveContact(ctx, "alice", added.Contact.ID))
	_, err = svc.ContactTransactions(ctx, "alice", added.Contact.ID)
	assert.ErrorIs(t, err, contacts.ErrNotFound)
	svc.Wait()
}
