package ghn

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/koipond/koipond-backend/pkg/errors"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{},
	}
}

func TestFeeRequest(t *testing.T) {
	var captured *http.Request
	var payload map[string]any

	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		captured = req
		raw, err := io.ReadAll(req.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, &payload))
		return jsonResponse(http.StatusOK, `{"code":200,"message":"Success","data":{"total":36300,"service_fee":36300}}`), nil
	})

	client, err := NewClient("tok", WithBaseURL("http://carrier.test/"), WithHTTPClient(&http.Client{Transport: rt}))
	require.NoError(t, err)

	fee, err := client.Fee(context.Background(), FeeRequest{
		ShopID:        "885",
		ServiceTypeID: 2,
		ToDistrictID:  1442,
		ToWardCode:    "20109",
		Weight:        1500,
		Length:        20,
		Width:         20,
		Height:        10,
		Items:         []FeeItem{{Name: "koi food", Quantity: 3, Weight: 500}},
	})
	require.NoError(t, err)
	assert.Equal(t, "36300", fee.String())

	assert.Equal(t, "http://carrier.test/shiip/public-api/v2/shipping-order/fee", captured.URL.String())
	assert.Equal(t, "tok", captured.Header.Get("Token"))
	assert.Equal(t, "885", captured.Header.Get("ShopId"))
	assert.EqualValues(t, 1442, payload["to_district_id"])
	assert.Equal(t, "20109", payload["to_ward_code"])
	assert.EqualValues(t, 1500, payload["weight"])
	_, leaked := payload["ShopID"]
	assert.False(t, leaked)
}

func TestFeeErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "http status", status: http.StatusInternalServerError, body: "boom"},
		{name: "carrier code", status: http.StatusOK, body: `{"code":400,"message":"ward not supported"}`},
		{name: "bad json", status: http.StatusOK, body: `{"code":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := roundTripFunc(func(*http.Request) (*http.Response, error) {
				return jsonResponse(tt.status, tt.body), nil
			})
			client, err := NewClient("tok", WithHTTPClient(&http.Client{Transport: rt}))
			require.NoError(t, err)

			_, err = client.Fee(context.Background(), FeeRequest{ShopID: "1"})
			require.Error(t, err)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeExternalService))
		})
	}
}

func TestNewClientRequiresToken(t *testing.T) {
	_, err := NewClient("  ")
	require.Error(t, err)
}

func TestFeeRequiresShopID(t *testing.T) {
	client, err := NewClient("tok")
	require.NoError(t, err)
	_, err = client.Fee(context.Background(), FeeRequest{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
