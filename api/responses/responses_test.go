package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/koipond/koipond-backend/pkg/errors"
	"github.com/koipond/koipond-backend/pkg/types"
)

func TestWriteSuccess(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccessStatus(w, http.StatusCreated, map[string]string{"hello": "world"})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body types.SuccessEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "world", body.Data.(map[string]any)["hello"])
}

func TestWriteErrorMapsTypedError(t *testing.T) {
	w := httptest.NewRecorder()
	err := pkgerrors.New(pkgerrors.CodeValidation, "bad input").
		WithDetails(map[string]string{"field": "quantity"})
	WriteError(context.Background(), nil, w, err)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var body types.ErrorEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, string(pkgerrors.CodeValidation), body.Error.Code)
	assert.Equal(t, "bad input", body.Error.Message)
	assert.NotNil(t, body.Error.Details)
	assert.False(t, body.Error.Retryable)
}

func TestWriteErrorMarksCarrierFailuresRetryable(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(context.Background(), nil, w, pkgerrors.New(pkgerrors.CodeExternalService, "shipping quote timed out"))

	assert.Equal(t, http.StatusBadGateway, w.Code)
	var body types.ErrorEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.True(t, body.Error.Retryable)
	assert.Equal(t, "shipping quote timed out", body.Error.Message)
}

func TestWriteErrorHidesUntypedErrors(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(context.Background(), nil, w, errors.New("pq: connection refused"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var body types.ErrorEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, string(pkgerrors.CodeInternal), body.Error.Code)
	assert.Equal(t, "internal server error", body.Error.Message)
	assert.Nil(t, body.Error.Details)
}

func TestPublicErrorKeepsStateConflictMessage(t *testing.T) {
	apiErr := PublicError(pkgerrors.New(pkgerrors.CodeStateConflict, "insufficient stock"))
	assert.Equal(t, string(pkgerrors.CodeStateConflict), apiErr.Code)
	assert.Equal(t, "insufficient stock", apiErr.Message)
	assert.False(t, apiErr.Retryable)

	apiErr = PublicError(pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("dial tcp"), "quote shipping"))
	assert.True(t, apiErr.Retryable)
	assert.NotContains(t, apiErr.Message, "dial tcp")
}

func TestWriteAPIErrorKeepsDetails(t *testing.T) {
	w := httptest.NewRecorder()
	WriteAPIError(w, http.StatusUnprocessableEntity, types.APIError{
		Code:    string(pkgerrors.CodeStateConflict),
		Message: "no order could be placed",
		Details: map[string]int{"failed": 2},
	})

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var body types.ErrorEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "no order could be placed", body.Error.Message)
	assert.Equal(t, float64(2), body.Error.Details.(map[string]any)["failed"])
}
