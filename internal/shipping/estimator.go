package shipping

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"

	"github.com/koipond/koipond-backend/pkg/config"
	"github.com/koipond/koipond-backend/pkg/enums"
	pkgerrors "github.com/koipond/koipond-backend/pkg/errors"
	"github.com/koipond/koipond-backend/pkg/ghn"
	"github.com/koipond/koipond-backend/pkg/metrics"
)

// Item is one product line in a parcel.
type Item struct {
	Name        string
	Quantity    int
	WeightGrams int
}

// Parcel dimensions in centimetres.
type Parcel struct {
	Length int
	Width  int
	Height int
}

// QuoteRequest describes one vendor group's shipment.
type QuoteRequest struct {
	ShopAccountID string
	ToDistrictID  int
	ToWardCode    string
	WeightGrams   int
	Parcel        Parcel
	Items         []Item
	ShipType      enums.ShipType
}

// Estimator quotes a shipping fee for a parcel.
type Estimator interface {
	Quote(ctx context.Context, req QuoteRequest) (decimal.Decimal, error)
}

type feeClient interface {
	Fee(ctx context.Context, req ghn.FeeRequest) (decimal.Decimal, error)
}

// CarrierEstimator calls the carrier with a deadline and a circuit breaker.
type CarrierEstimator struct {
	client  feeClient
	breaker *gobreaker.CircuitBreaker[decimal.Decimal]
	timeout time.Duration
	metrics *metrics.SettlementMetrics
}

// NewCarrierEstimator wires the carrier client behind a breaker.
func NewCarrierEstimator(client feeClient, cfg config.ShippingConfig, m *metrics.SettlementMetrics) (*CarrierEstimator, error) {
	if client == nil {
		return nil, fmt.Errorf("carrier client required")
	}
	timeout := cfg.QuoteTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	minRequests := cfg.BreakerMinRequests
	if minRequests == 0 {
		minRequests = 3
	}
	ratio := cfg.BreakerFailRatio
	if ratio <= 0 {
		ratio = 0.6
	}

	var st gobreaker.Settings
	st.Name = "carrier-fee"
	st.Timeout = cfg.BreakerOpenTimeout
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
		return counts.Requests >= minRequests && failureRatio >= ratio
	}
	// bad input is the caller's fault, not the carrier's
	st.IsSuccessful = func(err error) bool {
		return err == nil || pkgerrors.IsCode(err, pkgerrors.CodeValidation)
	}

	return &CarrierEstimator{
		client:  client,
		breaker: gobreaker.NewCircuitBreaker[decimal.Decimal](st),
		timeout: timeout,
		metrics: m,
	}, nil
}

// Quote returns the carrier fee. Timeouts and an open breaker surface as
// retryable external service errors; no default fee is ever substituted.
func (e *CarrierEstimator) Quote(ctx context.Context, req QuoteRequest) (decimal.Decimal, error) {
	if err := validate(req); err != nil {
		return decimal.Zero, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	fee, err := e.breaker.Execute(func() (decimal.Decimal, error) {
		return e.client.Fee(ctx, toFeeRequest(req))
	})
	if err != nil {
		err = classify(ctx, err)
		e.metrics.ObserveQuote("error", time.Since(start))
		return decimal.Zero, err
	}
	if fee.IsNegative() {
		e.metrics.ObserveQuote("error", time.Since(start))
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeExternalService, "carrier returned a negative fee")
	}
	e.metrics.ObserveQuote("ok", time.Since(start))
	return fee, nil
}

func validate(req QuoteRequest) error {
	switch {
	case req.ShopAccountID == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "shop has no carrier account")
	case req.ToDistrictID <= 0:
		return pkgerrors.New(pkgerrors.CodeValidation, "destination district is required")
	case req.ToWardCode == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "destination ward is required")
	case req.WeightGrams <= 0:
		return pkgerrors.New(pkgerrors.CodeValidation, "parcel weight must be positive")
	}
	return nil
}

func classify(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return pkgerrors.Wrap(pkgerrors.CodeExternalService, err, "carrier temporarily unavailable").
			WithDetails(map[string]any{"breaker_open": true})
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return pkgerrors.Wrap(pkgerrors.CodeExternalService, err, "shipping quote timed out").
			WithDetails(map[string]any{"timeout": true})
	default:
		return pkgerrors.WrapUntyped(pkgerrors.CodeExternalService, err, "shipping quote failed")
	}
}

func toFeeRequest(req QuoteRequest) ghn.FeeRequest {
	shipType := req.ShipType
	if !shipType.IsValid() {
		shipType = enums.ShipTypeStandard
	}
	items := make([]ghn.FeeItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, ghn.FeeItem{Name: it.Name, Quantity: it.Quantity, Weight: it.WeightGrams})
	}
	return ghn.FeeRequest{
		ShopID:        req.ShopAccountID,
		ServiceTypeID: shipType.CarrierServiceType(),
		ToDistrictID:  req.ToDistrictID,
		ToWardCode:    req.ToWardCode,
		Weight:        req.WeightGrams,
		Length:        req.Parcel.Length,
		Width:         req.Parcel.Width,
		Height:        req.Parcel.Height,
		Items:         items,
	}
}
