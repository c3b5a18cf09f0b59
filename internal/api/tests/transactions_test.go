package api_test

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/rongwang/envelope-wallet/internal/api/testutils"
	"github.com/rongwang/envelope-wallet/internal/models"
	"github.com/rongwang/envelope-wallet/internal/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listTransactions(t *testing.T, testCtx *testutils.TestContext, userID, query string) models.TransactionListResponse {
	t.Helper()
	w := testutils.PerformRequest(testCtx.Router, http.MethodGet, "/api/transactions"+query, nil, testutils.UserHeaders(userID))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp models.TransactionListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestRecordTransaction(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)
	user := testCtx.TestUserID

	// Test case 1: outgoing amounts are stored negative
	w := testutils.PerformRequest(
		testCtx.Router,
		http.MethodPost,
		"/api/transactions",
		models.RecordTransactionRequest{
			Type:        "send",
			Amount:      "25.00",
			Contact:     "@maria",
			Description: "Dinner split",
			Method:      "wallet",
			TxHash:      "0xabc123",
		},
		testutils.UserHeaders(user),
	)
	require.Equal(t, http.StatusCreated, w.Code)
	var sent models.TransactionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sent))
	assert.NotEmpty(t, sent.Transaction.ID)
	assert.Equal(t, money.New(-2500, "USD"), sent.Transaction.Amount)
	assert.Equal(t, models.StatusCompleted, sent.Transaction.Status)
	assert.Equal(t, "0xabc123", sent.Transaction.TxHash)

	// Test case 2: card payment with a local amount
	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodPost,
		"/api/transactions",
		models.RecordTransactionRequest{
			Type:          "payment",
			Amount:        "12.50",
			Status:        "pending",
			Contact:       "Cafe Britt",
			Method:        "card",
			CardLast4:     "4242",
			CardBrand:     "Visa",
			LocalAmount:   "6500",
			LocalCurrency: "CRC",
			ExchangeRate:  "520",
		},
		testutils.UserHeaders(user),
	)
	require.Equal(t, http.StatusCreated, w.Code)
	var paid models.TransactionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &paid))
	assert.Equal(t, models.StatusPending, paid.Transaction.Status)
	require.NotNil(t, paid.Transaction.LocalAmount)
	assert.Equal(t, money.New(650000, "CRC"), *paid.Transaction.LocalAmount)

	// Test case 3: recording never moves the main balance
	assert.Equal(t, money.New(100000, "USD"), getAccount(t, testCtx, user).MainBalance)

	// Test case 4: get by id
	w = testutils.PerformRequest(testCtx.Router, http.MethodGet, "/api/transactions/"+sent.Transaction.ID, nil, testutils.UserHeaders(user))
	require.Equal(t, http.StatusOK, w.Code)
	var got models.TransactionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, sent.Transaction.ID, got.Transaction.ID)
	assert.Equal(t, "Dinner split", got.Transaction.Description)

	w = testutils.PerformRequest(testCtx.Router, http.MethodGet, "/api/transactions/non-existent-id", nil, testutils.UserHeaders(user))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "TRANSACTION_NOT_FOUND", decodeError(t, w.Body.Bytes()).Code)

	// Test case 5: invalid requests
	invalid := []models.RecordTransactionRequest{
		{Type: "refund", Amount: "1"},
		{Type: "send", Amount: "0"},
		{Type: "send", Amount: "1", CardLast4: "42"},
		{Type: "send", Amount: "1", ExchangeRate: "-1"},
		{Type: "send"},
	}
	for _, req := range invalid {
		w = testutils.PerformRequest(testCtx.Router, http.MethodPost, "/api/transactions", req, testutils.UserHeaders(user))
		assert.Equal(t, http.StatusBadRequest, w.Code, "%+v", req)
	}
	assert.Equal(t, 2, listTransactions(t, testCtx, user, "").Count)
}

func TestQueryTransactions(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)
	user := testCtx.TestUserID

	record := func(req models.RecordTransactionRequest) {
		w := testutils.PerformRequest(testCtx.Router, http.MethodPost, "/api/transactions", req, testutils.UserHeaders(user))
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}
	record(models.RecordTransactionRequest{Type: "receive", Amount: "40", Contact: "Alice", Description: "Concert tickets"})
	record(models.RecordTransactionRequest{Type: "send", Amount: "15.75", Contact: "Bob", Description: "Lunch"})
	record(models.RecordTransactionRequest{Type: "request", Amount: "60", Contact: "Carol", Description: "Rent share"})

	travel := testutils.CreateEnvelope(t, testCtx, user, models.CreateEnvelopeRequest{Name: "Travel"})
	w := testutils.PerformRequest(testCtx.Router, http.MethodPost, "/api/envelopes/"+travel.ID+"/fund",
		models.AmountRequest{Amount: "200"}, testutils.UserHeaders(user))
	require.Equal(t, http.StatusOK, w.Code)

	// Test case 1: newest first, fund writes an audit entry
	all := listTransactions(t, testCtx, user, "")
	require.Equal(t, 4, all.Count)
	assert.Equal(t, models.TransactionPayment, all.Transactions[0].Type)
	assert.Equal(t, travel.ID, all.Transactions[0].EnvelopeID)
	assert.Equal(t, "Travel", all.Transactions[0].Contact)
	assert.Equal(t, money.New(-20000, "USD"), all.Transactions[0].Amount)
	assert.Equal(t, "Concert tickets", all.Transactions[3].Description)

	// Test case 2: same query twice gives the same answer
	assert.Equal(t, all, listTransactions(t, testCtx, user, ""))
	assert.Equal(t, 4, listTransactions(t, testCtx, user, "?type=all").Count)

	// Test case 3: type filter
	sends := listTransactions(t, testCtx, user, "?type=send")
	require.Equal(t, 1, sends.Count)
	assert.Equal(t, "Bob", sends.Transactions[0].Contact)

	// Test case 4: search by contact, description and amount
	assert.Equal(t, 1, listTransactions(t, testCtx, user, "?q=alice").Count)
	assert.Equal(t, 1, listTransactions(t, testCtx, user, "?q=RENT").Count)
	assert.Equal(t, 1, listTransactions(t, testCtx, user, "?q=15.75").Count)
	assert.Equal(t, 0, listTransactions(t, testCtx, user, "?type=send&q=alice").Count)

	// Test case 5: empty result is an empty list
	empty := listTransactions(t, testCtx, user, "?q=nothing-matches")
	assert.NotNil(t, empty.Transactions)
	assert.Zero(t, empty.Count)

	w = testutils.PerformRequest(testCtx.Router, http.MethodGet, "/api/transactions?type=refund", nil, testutils.UserHeaders(user))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
