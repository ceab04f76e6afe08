package order

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/shop-orders/internal/domain/pricing"
	"github.com/xenking/shop-orders/internal/domain/product"
	"github.com/xenking/shop-orders/internal/payment"
)

const instrumentationName = "github.com/xenking/shop-orders/internal/domain/order"

// CreateRequest holds the input for placing an order.
type CreateRequest struct {
	ProductID int64
	Quantity  int
}

// ShippingUpdate holds the only fields a customer may edit on an order.
type ShippingUpdate struct {
	Email    string
	Shipping ShippingInformation
}

// PaymentRequest holds the card submitted to settle an order.
type PaymentRequest struct {
	Card payment.Card
}

// Option configures a Service.
type Option func(*Service)

// WithTracerProvider sets the tracer provider used for lifecycle spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracer = tp.Tracer(instrumentationName) }
}

// WithMeterProvider sets the meter provider used for lifecycle counters.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) { s.meter = mp.Meter(instrumentationName) }
}

// WithClock overrides the creation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service is the order lifecycle state machine. It validates every transition,
// derives prices and taxes, and settles payment through the gateway.
//
// Mutating operations hold the order's lock for their whole duration, including
// the gateway call, so concurrent edits and payments of the same order are
// serialized. Locks of other orders are never taken.
type Service struct {
	products product.Repository
	orders   Repository
	gateway  payment.Gateway
	locker   Locker

	now    func() time.Time
	tracer trace.Tracer
	meter  metric.Meter

	ordersCreated    metric.Int64Counter
	ordersPaid       metric.Int64Counter
	paymentsDeclined metric.Int64Counter
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	products product.Repository,
	orders Repository,
	gateway payment.Gateway,
	locker Locker,
	opts ...Option,
) (*Service, error) {
	s := &Service{
		products: products,
		orders:   orders,
		gateway:  gateway,
		locker:   locker,
		now:      time.Now,
		tracer:   tracenoop.NewTracerProvider().Tracer(instrumentationName),
		meter:    metricnoop.NewMeterProvider().Meter(instrumentationName),
	}
	for _, o := range opts {
		o(s)
	}

	var err error
	if s.ordersCreated, err = s.meter.Int64Counter("shop.orders.created",
		metric.WithDescription("Orders placed"),
	); err != nil {
		return nil, errors.Wrap(err, "orders created counter")
	}
	if s.ordersPaid, err = s.meter.Int64Counter("shop.orders.paid",
		metric.WithDescription("Orders settled by the payment gateway"),
	); err != nil {
		return nil, errors.Wrap(err, "orders paid counter")
	}
	if s.paymentsDeclined, err = s.meter.Int64Counter("shop.payments.failed",
		metric.WithDescription("Payments declined or not completed by the gateway"),
	); err != nil {
		return nil, errors.Wrap(err, "payments failed counter")
	}

	return s, nil
}

// Create validates the requested product and quantity, prices the order and
// persists it unpaid with no destination.
func (s *Service) Create(ctx context.Context, req CreateRequest) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.Create",
		trace.WithAttributes(
			attribute.Int64("product.id", req.ProductID),
			attribute.Int("order.quantity", req.Quantity),
		),
	)
	defer func() { endSpan(span, rerr) }()

	if req.Quantity <= 0 {
		return nil, ValidationError(ResourceProduct, CodeInvalidQuantity, "quantity must be greater than 0")
	}

	p, err := s.products.GetByID(ctx, req.ProductID)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			return nil, NotFoundError(ResourceProduct, CodeOutOfInventory, "product does not exist")
		}
		return nil, errors.Wrap(err, "get product")
	}
	if !p.InStock {
		return nil, ValidationError(ResourceProduct, CodeOutOfInventory, "product is out of stock")
	}

	o := &Order{
		ProductID:     p.ID,
		Quantity:      req.Quantity,
		TotalPrice:    p.Price.Mul(decimal.NewFromInt(int64(req.Quantity))),
		ShippingPrice: pricing.ShippingPrice(p.Weight, req.Quantity),
		CreatedAt:     s.now().UTC(),
	}
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	s.ordersCreated.Add(ctx, 1)
	span.SetAttributes(attribute.Int64("order.id", o.ID))
	return o, nil
}

// Get returns the order with the given id.
func (s *Service) Get(ctx context.Context, id int64) (*Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, errOrderNotFound()
		}
		return nil, errors.Wrapf(err, "get order %d", id)
	}
	return o, nil
}

// UpdateShipping sets the email and destination of an unpaid order and
// recomputes its taxed total from the destination province.
func (s *Service) UpdateShipping(ctx context.Context, id int64, req ShippingUpdate) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.UpdateShipping",
		trace.WithAttributes(attribute.Int64("order.id", id)),
	)
	defer func() { endSpan(span, rerr) }()

	unlock, err := s.locker.Lock(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "lock order %d", id)
	}
	defer unlock()

	o, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !req.complete() {
		return nil, ValidationError(ResourceOrder, CodeMissingFields,
			"email and complete shipping information are required")
	}
	if o.Paid {
		return nil, errAlreadyPaid()
	}

	shipping := req.Shipping
	o.Email = req.Email
	o.Shipping = &shipping
	o.TotalPriceTax = decimal.NewNullDecimal(pricing.TotalWithTax(o.TotalPrice, shipping.Province))

	if err := s.update(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// Pay charges the order's amount due through the gateway. On success the order
// is marked paid together with the gateway's card summary and transaction; on
// any failure the order is left untouched.
func (s *Service) Pay(ctx context.Context, id int64, req PaymentRequest) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.Pay",
		trace.WithAttributes(attribute.Int64("order.id", id)),
	)
	defer func() { endSpan(span, rerr) }()

	unlock, err := s.locker.Lock(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "lock order %d", id)
	}
	defer unlock()

	o, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !o.Addressed() {
		return nil, ValidationError(ResourceOrder, CodeMissingFields,
			"shipping information and email are required before payment")
	}
	if o.Paid {
		return nil, errAlreadyPaid()
	}
	if !cardComplete(req.Card) {
		return nil, ValidationError(ResourceCreditCard, CodeMissingFields,
			"credit card name, number, expiration and cvv are required")
	}

	lg := zctx.From(ctx).With(zap.Int64("order_id", id))
	amount := o.AmountDue()
	span.SetAttributes(attribute.String("payment.amount", amount.String()))

	receipt, err := s.gateway.Charge(ctx, req.Card, amount)
	if err != nil {
		s.paymentsDeclined.Add(ctx, 1)
		lg.Warn("Payment not completed", zap.Error(err))
		return nil, gatewayError(err)
	}

	// The stored card summary comes from the gateway only; submitted card data
	// is never persisted.
	o.Paid = true
	o.CreditCard = nil
	if receipt.Card != nil {
		summary := *receipt.Card
		o.CreditCard = &summary
	}
	o.Transaction = &Transaction{
		ID:            receipt.TransactionID,
		Success:       receipt.Success,
		AmountCharged: receipt.AmountCharged,
	}

	if err := s.update(ctx, o); err != nil {
		lg.Error("Charged order could not be stored",
			zap.String("transaction_id", receipt.TransactionID),
			zap.Error(err),
		)
		return nil, err
	}

	s.ordersPaid.Add(ctx, 1)
	lg.Info("Order paid", zap.String("transaction_id", receipt.TransactionID))
	return o, nil
}

func (s *Service) update(ctx context.Context, o *Order) error {
	if err := s.orders.Update(ctx, o); err != nil {
		switch {
		case errors.Is(err, ErrSettled):
			return errAlreadyPaid()
		case errors.Is(err, ErrNotFound):
			return errOrderNotFound()
		default:
			return errors.Wrapf(err, "update order %d", o.ID)
		}
	}
	return nil
}

func (r ShippingUpdate) complete() bool {
	for _, v := range []string{
		r.Email,
		r.Shipping.Country,
		r.Shipping.Address,
		r.Shipping.PostalCode,
		r.Shipping.City,
		r.Shipping.Province,
	} {
		if strings.TrimSpace(v) == "" {
			return false
		}
	}
	return true
}

func cardComplete(c payment.Card) bool {
	return strings.TrimSpace(c.Name) != "" &&
		strings.TrimSpace(c.Number) != "" &&
		strings.TrimSpace(c.CVV) != "" &&
		c.ExpirationYear > 0 &&
		c.ExpirationMonth > 0
}

// gatewayError converts a gateway failure into a lifecycle error.
func gatewayError(err error) *Error {
	var declined *payment.DeclinedError
	switch {
	case errors.As(err, &declined):
		return &Error{
			Kind:     KindGateway,
			Resource: ResourceCreditCard,
			Code:     CodeCardDeclined,
			Name:     "payment was declined",
			Body:     declined.Body,
			Err:      err,
		}
	case errors.Is(err, payment.ErrInvalidResponse):
		return &Error{
			Kind:     KindGateway,
			Resource: ResourcePayment,
			Code:     CodeInvalidResponse,
			Name:     "payment service unavailable",
			Err:      err,
		}
	default:
		return &Error{
			Kind:     KindGateway,
			Resource: ResourcePayment,
			Code:     CodeUnavailable,
			Name:     "payment service unreachable",
			Err:      err,
		}
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
