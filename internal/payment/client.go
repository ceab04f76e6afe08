package payment

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
)

// maxResponseSize bounds how much of a gateway response is read.
const maxResponseSize = 1 << 20

var _ Gateway = (*Client)(nil)

// ClientConfig configures the gateway client.
type ClientConfig struct {
	// URL is the gateway charge endpoint.
	URL string
	// Timeout bounds a single charge request. Zero means no timeout.
	Timeout time.Duration
	// TracerProvider instruments outgoing requests. Defaults to the global
	// provider.
	TracerProvider trace.TracerProvider
}

// Client charges cards through the gateway's HTTP API. Every charge is a single
// synchronous request; failures are reported to the caller and never retried.
type Client struct {
	url  string
	http *http.Client
}

// NewClient creates a Client for the configured endpoint.
func NewClient(cfg ClientConfig) *Client {
	var opts []otelhttp.Option
	if cfg.TracerProvider != nil {
		opts = append(opts, otelhttp.WithTracerProvider(cfg.TracerProvider))
	}
	return &Client{
		url: cfg.URL,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport, opts...),
		},
	}
}

// Charge sends the card and amount to the gateway.
//
// A 2xx response carrying a transaction yields a Receipt. Any other status with
// a JSON body yields *DeclinedError holding that body. A body that is not JSON
// yields ErrInvalidResponse. Transport errors are returned wrapped.
func (c *Client) Charge(ctx context.Context, card Card, amount decimal.Decimal) (*Receipt, error) {
	body := encodeChargeRequest(card, amount)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "send charge")
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, errors.Wrap(err, "read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if len(data) == 0 || !jx.Valid(data) {
			return nil, errors.Wrapf(ErrInvalidResponse, "status %d", resp.StatusCode)
		}
		return nil, &DeclinedError{StatusCode: resp.StatusCode, Body: data}
	}

	receipt, err := decodeChargeResponse(data)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidResponse, "decode response: %s", err)
	}
	return receipt, nil
}

func encodeChargeRequest(card Card, amount decimal.Decimal) []byte {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.ObjStart()
	e.FieldStart("credit_card")
	e.ObjStart()
	e.FieldStart("name")
	e.Str(card.Name)
	e.FieldStart("number")
	e.Str(card.Number)
	e.FieldStart("expiration_year")
	e.Int(card.ExpirationYear)
	e.FieldStart("expiration_month")
	e.Int(card.ExpirationMonth)
	e.FieldStart("cvv")
	e.Str(card.CVV)
	e.ObjEnd()
	e.FieldStart("amount_charged")
	e.Num(jx.Num(amount.String()))
	e.ObjEnd()

	return bytes.Clone(e.Bytes())
}

func decodeChargeResponse(data []byte) (*Receipt, error) {
	var (
		receipt        Receipt
		hasTransaction bool
	)
	d := jx.DecodeBytes(data)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "transaction":
			hasTransaction = true
			return decodeTransaction(d, &receipt)
		case "credit_card":
			if d.Next() != jx.Object {
				return d.Skip()
			}
			var s CardSummary
			if err := decodeCardSummary(d, &s); err != nil {
				return errors.Wrap(err, "credit_card")
			}
			receipt.Card = &s
			return nil
		default:
			return d.Skip()
		}
	}); err != nil {
		return nil, err
	}
	if !hasTransaction {
		return nil, errors.New("transaction missing")
	}
	if receipt.TransactionID == "" {
		return nil, errors.New("transaction id missing")
	}
	return &receipt, nil
}

func decodeTransaction(d *jx.Decoder, r *Receipt) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "id":
			// Gateways disagree on whether ids are strings or numbers.
			if d.Next() == jx.Number {
				n, err := d.Num()
				if err != nil {
					return err
				}
				r.TransactionID = n.String()
				return nil
			}
			v, err := d.Str()
			r.TransactionID = v
			return err
		case "success":
			v, err := d.Bool()
			r.Success = v
			return err
		case "amount_charged":
			n, err := d.Num()
			if err != nil {
				return err
			}
			amount, err := decimal.NewFromString(strings.Trim(n.String(), `"`))
			if err != nil {
				return errors.Wrap(err, "amount_charged")
			}
			r.AmountCharged = amount
			return nil
		default:
			return d.Skip()
		}
	})
}

func decodeCardSummary(d *jx.Decoder, s *CardSummary) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "name":
			s.Name, err = d.Str()
		case "first_digits":
			s.FirstDigits, err = decodeDigits(d)
		case "last_digits":
			s.LastDigits, err = decodeDigits(d)
		case "expiration_year":
			s.ExpirationYear, err = d.Int()
		case "expiration_month":
			s.ExpirationMonth, err = d.Int()
		default:
			err = d.Skip()
		}
		return err
	})
}

// decodeDigits accepts digit groups sent either as strings or as numbers.
func decodeDigits(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Number {
		n, err := d.Num()
		if err != nil {
			return "", err
		}
		return n.String(), nil
	}
	return d.Str()
}
