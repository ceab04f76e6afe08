package order

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/shop-orders/internal/domain/product"
	"github.com/xenking/shop-orders/internal/payment"
)

// --- Mock implementations ---

type mockProductRepo struct {
	byID   map[int64]*product.Product
	getErr error
}

func (m *mockProductRepo) List(_ context.Context) ([]product.Product, error) {
	return nil, nil
}

func (m *mockProductRepo) GetByID(_ context.Context, id int64) (*product.Product, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return p, nil
}

// mockOrderRepo stores copies so tests can observe exactly what was persisted.
type mockOrderRepo struct {
	mu        sync.Mutex
	nextID    int64
	orders    map[int64]Order
	updates   int
	createErr error
	updateErr error
}

func newOrderRepo() *mockOrderRepo {
	return &mockOrderRepo{orders: make(map[int64]Order)}
}

func (m *mockOrderRepo) Create(_ context.Context, o *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.nextID++
	o.ID = m.nextID
	m.orders[o.ID] = *o
	return nil
}

func (m *mockOrderRepo) GetByID(_ context.Context, id int64) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &o, nil
}

func (m *mockOrderRepo) Update(_ context.Context, o *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	stored, ok := m.orders[o.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Paid {
		return ErrSettled
	}
	m.updates++
	m.orders[o.ID] = *o
	return nil
}

func (m *mockOrderRepo) stored(t *testing.T, id int64) Order {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	require.True(t, ok, "order %d not stored", id)
	return o
}

type mockGateway struct {
	receipt *payment.Receipt
	err     error
	calls   int
	card    payment.Card
	amount  decimal.Decimal
}

func (m *mockGateway) Charge(_ context.Context, card payment.Card, amount decimal.Decimal) (*payment.Receipt, error) {
	m.calls++
	m.card = card
	m.amount = amount
	return m.receipt, m.err
}

type mockLocker struct {
	mu     sync.Mutex
	locked map[int64]bool
	err    error
}

func (m *mockLocker) Lock(_ context.Context, id int64) (func(), error) {
	if m.err != nil {
		return nil, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locked == nil {
		m.locked = make(map[int64]bool)
	}
	if m.locked[id] {
		return nil, errors.Errorf("order %d locked twice", id)
	}
	m.locked[id] = true
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.locked, id)
	}, nil
}

// --- Helpers ---

var testTime = time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)

func newTestProduct(id int64, price string, inStock bool, weight int) product.Product {
	return product.Product{
		ID:          id,
		Name:        "Brown eggs",
		Description: "Raw organic brown eggs in a basket",
		Price:       decimal.RequireFromString(price),
		InStock:     inStock,
		Image:       "0.jpg",
		Weight:      weight,
	}
}

func newProductRepo(products ...product.Product) *mockProductRepo {
	byID := make(map[int64]*product.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}
	return &mockProductRepo{byID: byID}
}

type fixture struct {
	svc     *Service
	orders  *mockOrderRepo
	gateway *mockGateway
	locker  *mockLocker
}

func newFixture(t *testing.T, products ...product.Product) *fixture {
	t.Helper()

	f := &fixture{
		orders:  newOrderRepo(),
		gateway: &mockGateway{},
		locker:  &mockLocker{},
	}
	svc, err := NewService(newProductRepo(products...), f.orders, f.gateway, f.locker,
		WithClock(func() time.Time { return testTime }),
	)
	require.NoError(t, err)
	f.svc = svc
	return f
}

func validShipping() ShippingUpdate {
	return ShippingUpdate{
		Email: "jgnault@uqac.ca",
		Shipping: ShippingInformation{
			Country:    "Canada",
			Address:    "201, rue Président-Kennedy",
			PostalCode: "G7X 3Y7",
			City:       "Chicoutimi",
			Province:   "QC",
		},
	}
}

func validCard() payment.Card {
	return payment.Card{
		Name:            "John Doe",
		Number:          "4242 4242 4242 4242",
		ExpirationYear:  2030,
		ExpirationMonth: 9,
		CVV:             "123",
	}
}

func successReceipt(amount string) *payment.Receipt {
	return &payment.Receipt{
		TransactionID: "wgEQ4zAUdYqpr21rt8A10dDrKbfcLmqi",
		Success:       true,
		AmountCharged: decimal.RequireFromString(amount),
		Card: &payment.CardSummary{
			Name:            "John Doe",
			FirstDigits:     "4242",
			LastDigits:      "4242",
			ExpirationYear:  2030,
			ExpirationMonth: 9,
		},
	}
}

func requireLifecycleError(t *testing.T, err error, kind Kind, code string) *Error {
	t.Helper()
	e, ok := AsError(err)
	require.True(t, ok, "expected *Error, got %T: %v", err, err)
	assert.Equal(t, kind, e.Kind)
	assert.Equal(t, code, e.Code)
	return e
}

// createAddressed places an order for product 1 and sets its destination.
func (f *fixture) createAddressed(t *testing.T) *Order {
	t.Helper()
	ctx := context.Background()
	o, err := f.svc.Create(ctx, CreateRequest{ProductID: 1, Quantity: 2})
	require.NoError(t, err)
	o, err = f.svc.UpdateShipping(ctx, o.ID, validShipping())
	require.NoError(t, err)
	return o
}

// --- Create ---

func TestCreate(t *testing.T) {
	f := newFixture(t, newTestProduct(1, "1000", true, 400))

	o, err := f.svc.Create(context.Background(), CreateRequest{ProductID: 1, Quantity: 2})
	require.NoError(t, err)

	assert.Equal(t, int64(1), o.ID)
	assert.Equal(t, "2000", o.TotalPrice.String())
	assert.Equal(t, 10, o.ShippingPrice) // 800 g falls in the ≤2000 g tier
	assert.False(t, o.TotalPriceTax.Valid)
	assert.False(t, o.Paid)
	assert.Nil(t, o.Shipping)
	assert.Nil(t, o.CreditCard)
	assert.Nil(t, o.Transaction)
	assert.Empty(t, o.Email)
	assert.Equal(t, testTime, o.CreatedAt)

	stored := f.orders.stored(t, o.ID)
	assert.Equal(t, 2, stored.Quantity)
	assert.Equal(t, int64(1), stored.ProductID)
}

func TestCreate_LightOrderShipping(t *testing.T) {
	f := newFixture(t, newTestProduct(1, "10", true, 250))

	o, err := f.svc.Create(context.Background(), CreateRequest{ProductID: 1, Quantity: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, o.ShippingPrice)
}

func TestCreate_InvalidQuantity(t *testing.T) {
	for _, qty := range []int{0, -1, -100} {
		// Quantity is rejected regardless of product state.
		for _, p := range []product.Product{
			newTestProduct(1, "10", true, 100),
			newTestProduct(1, "10", false, 100),
		} {
			f := newFixture(t, p)

			_, err := f.svc.Create(context.Background(), CreateRequest{ProductID: 1, Quantity: qty})
			e := requireLifecycleError(t, err, KindValidation, CodeInvalidQuantity)
			assert.Equal(t, ResourceProduct, e.Resource)
		}
	}

	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), CreateRequest{ProductID: 99, Quantity: 0})
	requireLifecycleError(t, err, KindValidation, CodeInvalidQuantity)
}

func TestCreate_ProductNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(context.Background(), CreateRequest{ProductID: 42, Quantity: 1})
	e := requireLifecycleError(t, err, KindNotFound, CodeOutOfInventory)
	assert.Equal(t, ResourceProduct, e.Resource)
	assert.Empty(t, f.orders.orders)
}

func TestCreate_OutOfStock(t *testing.T) {
	f := newFixture(t, newTestProduct(1, "10", false, 100))

	_, err := f.svc.Create(context.Background(), CreateRequest{ProductID: 1, Quantity: 1})
	requireLifecycleError(t, err, KindValidation, CodeOutOfInventory)
	assert.Empty(t, f.orders.orders)
}

func TestCreate_RepositoryErrors(t *testing.T) {
	t.Run("product lookup", func(t *testing.T) {
		orders := newOrderRepo()
		svc, err := NewService(&mockProductRepo{getErr: errors.New("db down")}, orders, &mockGateway{}, &mockLocker{})
		require.NoError(t, err)

		_, err = svc.Create(context.Background(), CreateRequest{ProductID: 1, Quantity: 1})
		require.Error(t, err)
		_, ok := AsError(err)
		assert.False(t, ok)
		assert.Contains(t, err.Error(), "get product")
	})

	t.Run("order create", func(t *testing.T) {
		f := newFixture(t, newTestProduct(1, "10", true, 100))
		f.orders.createErr = errors.New("db write failed")

		_, err := f.svc.Create(context.Background(), CreateRequest{ProductID: 1, Quantity: 1})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "create order")
	})
}

// --- Get ---

func TestGet_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Get(context.Background(), 1000)
	e := requireLifecycleError(t, err, KindNotFound, CodeNotFound)
	assert.Equal(t, ResourceOrder, e.Resource)
}

// --- UpdateShipping ---

func TestUpdateShipping(t *testing.T) {
	f := newFixture(t, newTestProduct(1, "1000", true, 400))
	ctx := context.Background()

	created, err := f.svc.Create(ctx, CreateRequest{ProductID: 1, Quantity: 2})
	require.NoError(t, err)

	o, err := f.svc.UpdateShipping(ctx, created.ID, validShipping())
	require.NoError(t, err)

	assert.Equal(t, "jgnault@uqac.ca", o.Email)
	require.NotNil(t, o.Shipping)
	assert.Equal(t, "Chicoutimi", o.Shipping.City)
	require.True(t, o.TotalPriceTax.Valid)
	assert.Equal(t, "2300", o.TotalPriceTax.Decimal.String())

	stored := f.orders.stored(t, created.ID)
	assert.Equal(t, "2300", stored.TotalPriceTax.Decimal.String())
	assert.Equal(t, "2000", stored.TotalPrice.String())
	assert.Equal(t, 10, stored.ShippingPrice)
	assert.Empty(t, f.locker.locked, "lock must be released")
}

func TestUpdateShipping_RecomputesTax(t *testing.T) {
	f := newFixture(t, newTestProduct(1, "1000", true, 400))
	ctx := context.Background()

	o := f.createAddressed(t)

	req := validShipping()
	req.Shipping.Province = "AB"
	o, err := f.svc.UpdateShipping(ctx, o.ID, req)
	require.NoError(t, err)
	assert.Equal(t, "2100", o.TotalPriceTax.Decimal.String())

	req.Shipping.Province = "ZZ"
	o, err = f.svc.UpdateShipping(ctx, o.ID, req)
	require.NoError(t, err)
	assert.Equal(t, "2300", o.TotalPriceTax.Decimal.String())
}

func TestUpdateShipping_MissingFields(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*ShippingUpdate)
	}{
		{"email", func(u *ShippingUpdate) { u.Email = "" }},
		{"country", func(u *ShippingUpdate) { u.Shipping.Country = "" }},
		{"address", func(u *ShippingUpdate) { u.Shipping.Address = " " }},
		{"postal code", func(u *ShippingUpdate) { u.Shipping.PostalCode = "" }},
		{"city", func(u *ShippingUpdate) { u.Shipping.City = "" }},
		{"province", func(u *ShippingUpdate) { u.Shipping.Province = "" }},
		{"whole shipping information", func(u *ShippingUpdate) { u.Shipping = ShippingInformation{} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, newTestProduct(1, "1000", true, 400))
			created, err := f.svc.Create(context.Background(), CreateRequest{ProductID: 1, Quantity: 1})
			require.NoError(t, err)

			req := validShipping()
			tt.modify(&req)

			_, err = f.svc.UpdateShipping(context.Background(), created.ID, req)
			requireLifecycleError(t, err, KindValidation, CodeMissingFields)

			stored := f.orders.stored(t, created.ID)
			assert.Nil(t, stored.Shipping)
			assert.False(t, stored.TotalPriceTax.Valid)
		})
	}
}

func TestUpdateShipping_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.UpdateShipping(context.Background(), 7, validShipping())
	requireLifecycleError(t, err, KindNotFound, CodeNotFound)
}

func TestUpdateShipping_AfterPaid(t *testing.T) {
	f := newFixture(t, newTestProduct(1, "1000", true, 400))
	o := f.createAddressed(t)
	f.gateway.receipt = successReceipt("2310")

	_, err := f.svc.Pay(context.Background(), o.ID, PaymentRequest{Card: validCard()})
	require.NoError(t, err)
	before := f.orders.stored(t, o.ID)

	req := validShipping()
	req.Email = "other@example.com"
	req.Shipping.Province = "AB"
	_, err = f.svc.UpdateShipping(context.Background(), o.ID, req)
	requireLifecycleError(t, err, KindConflict, CodeAlreadyPaid)

	assert.Equal(t, before, f.orders.stored(t, o.ID))
}

func TestUpdateShipping_LockError(t *testing.T) {
	f := newFixture(t, newTestProduct(1, "1000", true, 400))
	created, err := f.svc.Create(context.Background(), CreateRequest{ProductID: 1, Quantity: 1})
	require.NoError(t, err)

	f.locker.err = context.DeadlineExceeded
	_, err = f.svc.UpdateShipping(context.Background(), created.ID, validShipping())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Nil(t, f.orders.stored(t, created.ID).Shipping)
}

// --- Pay ---

func TestPay(t *testing.T) {
	f := newFixture(t, newTestProduct(1, "1000", true, 400))
	o := f.createAddressed(t)
	f.gateway.receipt = successReceipt("2310")

	paid, err := f.svc.Pay(context.Background(), o.ID, PaymentRequest{Card: validCard()})
	require.NoError(t, err)

	// 2000 × 1.15 + 10 shipping.
	assert.Equal(t, "2310", f.gateway.amount.String())
	assert.Equal(t, 1, f.gateway.calls)
	assert.Equal(t, validCard(), f.gateway.card)

	assert.True(t, paid.Paid)
	require.NotNil(t, paid.Transaction)
	assert.Equal(t, "wgEQ4zAUdYqpr21rt8A10dDrKbfcLmqi", paid.Transaction.ID)
	assert.True(t, paid.Transaction.Success)
	assert.Equal(t, "2310", paid.Transaction.AmountCharged.String())
	require.NotNil(t, paid.CreditCard)
	assert.Equal(t, "4242", paid.CreditCard.LastDigits)

	stored := f.orders.stored(t, o.ID)
	assert.True(t, stored.Paid)
	assert.NotNil(t, stored.Transaction)
	assert.NotNil(t, stored.CreditCard)
	assert.Equal(t, "jgnault@uqac.ca", stored.Email)
	assert.Empty(t, f.locker.locked)
}

func TestPay_StoresOnlyGatewayCardSummary(t *testing.T) {
	submitted := validCard()
	submitted.Name = "Name Typed By Customer"
	submitted.Number = "5555 6666 7777 8888"
	submitted.ExpirationYear = 2099
	submitted.ExpirationMonth = 12

	t.Run("GatewayOmitsSummary", func(t *testing.T) {
		f := newFixture(t, newTestProduct(1, "1000", true, 400))
		o := f.createAddressed(t)
		receipt := successReceipt("2310")
		receipt.Card = nil
		f.gateway.receipt = receipt

		paid, err := f.svc.Pay(context.Background(), o.ID, PaymentRequest{Card: submitted})
		require.NoError(t, err)
		assert.True(t, paid.Paid)
		assert.Nil(t, paid.CreditCard)

		stored := f.orders.stored(t, o.ID)
		assert.True(t, stored.Paid)
		assert.Nil(t, stored.CreditCard)
	})

	t.Run("GatewaySummaryWins", func(t *testing.T) {
		f := newFixture(t, newTestProduct(1, "1000", true, 400))
		o := f.createAddressed(t)
		f.gateway.receipt = successReceipt("2310")

		_, err := f.svc.Pay(context.Background(), o.ID, PaymentRequest{Card: submitted})
		require.NoError(t, err)

		stored := f.orders.stored(t, o.ID)
		require.NotNil(t, stored.CreditCard)
		assert.Equal(t, payment.CardSummary{
			Name:            "John Doe",
			FirstDigits:     "4242",
			LastDigits:      "4242",
			ExpirationYear:  2030,
			ExpirationMonth: 9,
		}, *stored.CreditCard)
	})
}

func TestPay_RequiresDestination(t *testing.T) {
	f := newFixture(t, newTestProduct(1, "1000", true, 400))
	created, err := f.svc.Create(context.Background(), CreateRequest{ProductID: 1, Quantity: 1})
	require.NoError(t, err)

	_, err = f.svc.Pay(context.Background(), created.ID, PaymentRequest{Card: validCard()})
	e := requireLifecycleError(t, err, KindValidation, CodeMissingFields)
	assert.Equal(t, ResourceOrder, e.Resource)
	assert.Zero(t, f.gateway.calls)
}

func TestPay_IncompleteCard(t *testing.T) {
	f := newFixture(t, newTestProduct(1, "1000", true, 400))
	o := f.createAddressed(t)

	card := validCard()
	card.CVV = ""
	_, err := f.svc.Pay(context.Background(), o.ID, PaymentRequest{Card: card})
	e := requireLifecycleError(t, err, KindValidation, CodeMissingFields)
	assert.Equal(t, ResourceCreditCard, e.Resource)
	assert.Zero(t, f.gateway.calls)
}

func TestPay_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Pay(context.Background(), 3, PaymentRequest{Card: validCard()})
	requireLifecycleError(t, err, KindNotFound, CodeNotFound)
	assert.Zero(t, f.gateway.calls)
}

func TestPay_AlreadyPaid(t *testing.T) {
	f := newFixture(t, newTestProduct(1, "1000", true, 400))
	o := f.createAddressed(t)
	f.gateway.receipt = successReceipt("2310")

	_, err := f.svc.Pay(context.Background(), o.ID, PaymentRequest{Card: validCard()})
	require.NoError(t, err)
	before := f.orders.stored(t, o.ID)

	_, err = f.svc.Pay(context.Background(), o.ID, PaymentRequest{Card: validCard()})
	requireLifecycleError(t, err, KindConflict, CodeAlreadyPaid)

	assert.Equal(t, 1, f.gateway.calls)
	assert.Equal(t, before, f.orders.stored(t, o.ID))
}

func TestPay_GatewayFailures(t *testing.T) {
	declinedBody := []byte(`{"errors":{"credit_card":{"code":"card-declined","name":"declined"}}}`)

	tests := []struct {
		name     string
		err      error
		wantCode string
		wantBody []byte
	}{
		{
			name:     "declined",
			err:      &payment.DeclinedError{StatusCode: 422, Body: declinedBody},
			wantCode: CodeCardDeclined,
			wantBody: declinedBody,
		},
		{
			name:     "invalid response",
			err:      errors.Wrap(payment.ErrInvalidResponse, "decode"),
			wantCode: CodeInvalidResponse,
		},
		{
			name:     "unreachable",
			err:      errors.New("dial tcp: connection refused"),
			wantCode: CodeUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, newTestProduct(1, "1000", true, 400))
			o := f.createAddressed(t)
			before := f.orders.stored(t, o.ID)
			updates := f.orders.updates
			f.gateway.err = tt.err

			_, err := f.svc.Pay(context.Background(), o.ID, PaymentRequest{Card: validCard()})
			e := requireLifecycleError(t, err, KindGateway, tt.wantCode)
			assert.Equal(t, tt.wantBody, e.Body)

			assert.Equal(t, updates, f.orders.updates, "no write on gateway failure")
			after := f.orders.stored(t, o.ID)
			assert.Equal(t, before, after)
			assert.False(t, after.Paid)
			assert.Empty(t, f.locker.locked)
		})
	}
}

func TestPay_StoreRejectsSettledOrder(t *testing.T) {
	f := newFixture(t, newTestProduct(1, "1000", true, 400))
	o := f.createAddressed(t)
	f.gateway.receipt = successReceipt("2310")
	f.orders.updateErr = ErrSettled

	_, err := f.svc.Pay(context.Background(), o.ID, PaymentRequest{Card: validCard()})
	requireLifecycleError(t, err, KindConflict, CodeAlreadyPaid)
}

func TestPay_ConcurrentRequestsChargeOnce(t *testing.T) {
	f := newFixture(t, newTestProduct(1, "1000", true, 400))
	o := f.createAddressed(t)
	f.gateway.receipt = successReceipt("2310")

	// Serialize through a real mutex-based locker so both requests race for
	// the same order.
	var mu sync.Mutex
	svc, err := NewService(newProductRepo(newTestProduct(1, "1000", true, 400)), f.orders, f.gateway,
		lockerFunc(func(context.Context, int64) (func(), error) {
			mu.Lock()
			return mu.Unlock, nil
		}),
	)
	require.NoError(t, err)

	var (
		wg   sync.WaitGroup
		errs = make([]error, 2)
	)
	for i := range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = svc.Pay(context.Background(), o.ID, PaymentRequest{Card: validCard()})
		}()
	}
	wg.Wait()

	var succeeded, conflicts int
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		requireLifecycleError(t, err, KindConflict, CodeAlreadyPaid)
		conflicts++
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, conflicts)
	assert.Equal(t, 1, f.gateway.calls)
}

type lockerFunc func(ctx context.Context, id int64) (func(), error)

func (f lockerFunc) Lock(ctx context.Context, id int64) (func(), error) { return f(ctx, id) }
