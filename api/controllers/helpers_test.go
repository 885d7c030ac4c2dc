package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/koipond/koipond-backend/api/middleware"
	"github.com/koipond/koipond-backend/pkg/enums"
	"github.com/koipond/koipond-backend/pkg/types"
)

type testRequest struct {
	method   string
	target   string
	body     string
	identity *middleware.Identity
	params   map[string]string
}

func serve(t *testing.T, h http.Handler, tr testRequest) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if tr.body != "" {
		body = strings.NewReader(tr.body)
	}
	req := httptest.NewRequest(tr.method, tr.target, body)
	ctx := req.Context()
	if tr.identity != nil {
		ctx = middleware.WithIdentity(ctx, *tr.identity)
	}
	if len(tr.params) > 0 {
		rctx := chi.NewRouteContext()
		for k, v := range tr.params {
			rctx.URLParams.Add(k, v)
		}
		ctx = context.WithValue(ctx, chi.RouteCtxKey, rctx)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req.WithContext(ctx))
	return rec
}

func buyerIdentity() *middleware.Identity {
	return &middleware.Identity{UserID: uuid.New(), Role: enums.UserRoleBuyer}
}

func adminIdentity() *middleware.Identity {
	return &middleware.Identity{UserID: uuid.New(), Role: enums.UserRoleAdmin}
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	envelope := struct {
		Data json.RawMessage `json:"data"`
	}{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, dest))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) types.APIError {
	t.Helper()
	var envelope types.ErrorEnvelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
	return envelope.Error
}
