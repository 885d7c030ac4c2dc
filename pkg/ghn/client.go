// Package ghn is a client for the carrier's shipping fee API.
package ghn

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/koipond/koipond-backend/pkg/errors"
)

const (
	defaultBaseURL              = "https://online-gateway.ghn.vn"
	feePath                     = "/shiip/public-api/v2/shipping-order/fee"
	responseBodyReadLimit int64 = 1024
)

var errTokenRequired = errors.New("carrier api token is required")

// Client calls the carrier fee endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the carrier base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimSpace(baseURL); trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// NewClient builds a carrier client authenticated with token.
func NewClient(token string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return nil, errTokenRequired
	}

	client := &Client{
		token:      trimmed,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// FeeItem is one parcel item as the carrier expects it.
type FeeItem struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Weight   int    `json:"weight"`
}

// FeeRequest is the fee quote payload. Dimensions are centimetres and
// weight is grams.
type FeeRequest struct {
	ShopID        string    `json:"-"`
	ServiceTypeID int       `json:"service_type_id"`
	ToDistrictID  int       `json:"to_district_id"`
	ToWardCode    string    `json:"to_ward_code"`
	Weight        int       `json:"weight"`
	Length        int       `json:"length"`
	Width         int       `json:"width"`
	Height        int       `json:"height"`
	Items         []FeeItem `json:"items,omitempty"`
}

// Fee asks the carrier for the total shipping fee.
func (c *Client) Fee(ctx context.Context, req FeeRequest) (decimal.Decimal, error) {
	if c == nil {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeExternalService, "carrier client not configured")
	}
	if strings.TrimSpace(req.ShopID) == "" {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "carrier shop id is required")
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeExternalService, err, "marshal fee request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.buildURL(feePath), bytes.NewReader(payload))
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeExternalService, err, "build fee request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Token", c.token)
	httpReq.Header.Set("ShopId", req.ShopID)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeExternalService, err, "execute fee request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeExternalService,
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "fee request failed")
	}

	var apiResp struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Data    *struct {
			Total json.Number `json:"total"`
		} `json:"data"`
	}
	decoder := json.NewDecoder(resp.Body)
	decoder.UseNumber()
	if err := decoder.Decode(&apiResp); err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeExternalService, err, "decode fee response")
	}
	if apiResp.Code != http.StatusOK || apiResp.Data == nil {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeExternalService, "carrier rejected fee request").
			WithDetails(map[string]any{"carrier_code": apiResp.Code, "carrier_message": apiResp.Message})
	}

	fee, err := decimal.NewFromString(apiResp.Data.Total.String())
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeExternalService, err, "parse fee total")
	}
	return fee, nil
}

func (c *Client) buildURL(path string) string {
	return strings.TrimRight(c.baseURL, "/") + "/" + strings.TrimLeft(path, "/")
}
