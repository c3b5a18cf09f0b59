package api_test

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/rongwang/envelope-wallet/internal/api/testutils"
	"github.com/rongwang/envelope-wallet/internal/models"
	"github.com/rongwang/envelope-wallet/internal/share"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSharedEnvelope(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)
	owner := testCtx.TestUserID

	trip := testutils.CreateEnvelope(t, testCtx, owner, models.CreateEnvelopeRequest{
		Name:         "Group Trip",
		Type:         "shared",
		Category:     "Travel",
		Participants: []string{"carol", "carol", owner},
	})

	// Test case 1: creator is listed once and first, duplicates dropped
	assert.Equal(t, models.EnvelopeShared, trip.Type)
	assert.Equal(t, []string{owner, "carol"}, trip.Participants)
	assert.True(t, strings.HasPrefix(trip.ShareURL, testutils.TestShareBase+"/envelope/"))
	assert.Equal(t, trip.ShareURL, trip.QRCode)

	// Test case 2: add a participant
	w := testutils.PerformRequest(
		testCtx.Router,
		http.MethodPost,
		"/api/envelopes/"+trip.ID+"/participants",
		models.AddParticipantRequest{UserID: "dave"},
		testutils.UserHeaders(owner),
	)
	require.Equal(t, http.StatusOK, w.Code)
	var withDave models.EnvelopeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &withDave))
	assert.Equal(t, []string{owner, "carol", "dave"}, withDave.Envelope.Participants)

	// adding again is a no-op
	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodPost,
		"/api/envelopes/"+trip.ID+"/participants",
		models.AddParticipantRequest{UserID: "dave"},
		testutils.UserHeaders(owner),
	)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &withDave))
	assert.Len(t, withDave.Envelope.Participants, 3)

	// Test case 3: anyone holding the link can resolve it
	token := share.TokenFromURL(trip.ShareURL)
	w = testutils.PerformRequest(testCtx.Router, http.MethodGet, "/api/share/"+token, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resolved models.ShareResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resolved))
	assert.Equal(t, owner, resolved.OwnerID)
	assert.Equal(t, trip.ID, resolved.Envelope.ID)
	assert.Equal(t, "Group Trip", resolved.Envelope.Name)

	// Test case 4: tampered token
	w = testutils.PerformRequest(testCtx.Router, http.MethodGet, "/api/share/"+token+"x", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_SHARE_TOKEN", decodeError(t, w.Body.Bytes()).Code)

	// Test case 5: link to a deleted envelope
	w = testutils.PerformRequest(testCtx.Router, http.MethodDelete, "/api/envelopes/"+trip.ID, nil, testutils.UserHeaders(owner))
	require.Equal(t, http.StatusOK, w.Code)
	w = testutils.PerformRequest(testCtx.Router, http.MethodGet, "/api/share/"+token, nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestParticipantsNeedSharedEnvelope(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)
	owner := testCtx.TestUserID

	solo := testutils.CreateEnvelope(t, testCtx, owner, models.CreateEnvelopeRequest{Name: "Solo"})
	assert.Empty(t, solo.ShareURL)
	assert.Empty(t, solo.Participants)

	w := testutils.PerformRequest(
		testCtx.Router,
		http.MethodPost,
		"/api/envelopes/"+solo.ID+"/participants",
		models.AddParticipantRequest{UserID: "dave"},
		testutils.UserHeaders(owner),
	)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "ENVELOPE_NOT_SHARED", decodeError(t, w.Body.Bytes()).Code)

	// a token for an individual envelope does not resolve
	token, err := testCtx.Issuer.Issue(owner, solo.ID)
	require.NoError(t, err)
	w = testutils.PerformRequest(testCtx.Router, http.MethodGet, "/api/share/"+token, nil, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodPost,
		"/api/envelopes/"+solo.ID+"/participants",
		map[string]string{},
		testutils.UserHeaders(owner),
	)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
