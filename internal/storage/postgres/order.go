package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/shop-orders/internal/domain/order"
	"github.com/xenking/shop-orders/internal/payment"
)

const (
	orderColumns = `id, product_id, product_quantity, total_price, shipping_price, total_price_tax,
		email, shipping_country, shipping_address, shipping_postal_code, shipping_city, shipping_province,
		paid, credit_card_name, credit_card_first_digits, credit_card_last_digits,
		credit_card_expiration_year, credit_card_expiration_month,
		transaction_id, transaction_success, transaction_amount_charged, created_at`

	createOrderSQL = `INSERT INTO orders (product_id, product_quantity, total_price, shipping_price, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	getOrderByIDSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	// Only unpaid orders are writable; product, quantity and prices are never
	// part of an update.
	updateOrderSQL = `UPDATE orders SET
			email = $2,
			shipping_country = $3,
			shipping_address = $4,
			shipping_postal_code = $5,
			shipping_city = $6,
			shipping_province = $7,
			total_price_tax = $8,
			paid = $9,
			credit_card_name = $10,
			credit_card_first_digits = $11,
			credit_card_last_digits = $12,
			credit_card_expiration_year = $13,
			credit_card_expiration_month = $14,
			transaction_id = $15,
			transaction_success = $16,
			transaction_amount_charged = $17
		WHERE id = $1 AND paid = FALSE`

	orderPaidSQL = `SELECT paid FROM orders WHERE id = $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order and fills in its database-assigned ID.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	createdAt := o.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	err := r.pool.QueryRow(ctx, createOrderSQL,
		o.ProductID, o.Quantity, o.TotalPrice, o.ShippingPrice, createdAt,
	).Scan(&o.ID, &o.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating order for product %d: %w", o.ProductID, err)
	}
	return nil
}

// GetByID returns the order with the given ID or order.ErrNotFound.
func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %d: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %d: %w", id, err)
	}
	return &o, nil
}

// Update writes the mutable fields of an unpaid order in a single statement.
// It returns order.ErrSettled when the stored order is already paid and
// order.ErrNotFound when it does not exist.
func (r *OrderRepository) Update(ctx context.Context, o *order.Order) error {
	var (
		shipping    order.ShippingInformation
		card        payment.CardSummary
		transaction order.Transaction
		cardYear    *int
		cardMonth   *int
		txSuccess   *bool
		txAmount    decimal.NullDecimal
	)
	if o.Shipping != nil {
		shipping = *o.Shipping
	}
	if o.CreditCard != nil {
		card = *o.CreditCard
		cardYear, cardMonth = &card.ExpirationYear, &card.ExpirationMonth
	}
	if o.Transaction != nil {
		transaction = *o.Transaction
		txSuccess = &transaction.Success
		txAmount = decimal.NewNullDecimal(transaction.AmountCharged)
	}

	tag, err := r.pool.Exec(ctx, updateOrderSQL,
		o.ID,
		nullString(o.Email),
		nullString(shipping.Country),
		nullString(shipping.Address),
		nullString(shipping.PostalCode),
		nullString(shipping.City),
		nullString(shipping.Province),
		o.TotalPriceTax,
		o.Paid,
		nullString(card.Name),
		nullString(card.FirstDigits),
		nullString(card.LastDigits),
		cardYear,
		cardMonth,
		nullString(transaction.ID),
		txSuccess,
		txAmount,
	)
	if err != nil {
		return fmt.Errorf("updating order %d: %w", o.ID, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var paid bool
	if err := r.pool.QueryRow(ctx, orderPaidSQL, o.ID).Scan(&paid); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return order.ErrNotFound
		}
		return fmt.Errorf("checking order %d: %w", o.ID, err)
	}
	if paid {
		return order.ErrSettled
	}
	return fmt.Errorf("updating order %d: no rows affected", o.ID)
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o         order.Order
		quantity  int32
		shipPrice int32
		email     *string
		ship      [5]*string
		cardName  *string
		cardFirst *string
		cardLast  *string
		cardYear  *int32
		cardMonth *int32
		txID      *string
		txSuccess *bool
		txAmount  decimal.NullDecimal
	)
	err := row.Scan(
		&o.ID, &o.ProductID, &quantity, &o.TotalPrice, &shipPrice, &o.TotalPriceTax,
		&email, &ship[0], &ship[1], &ship[2], &ship[3], &ship[4],
		&o.Paid, &cardName, &cardFirst, &cardLast, &cardYear, &cardMonth,
		&txID, &txSuccess, &txAmount, &o.CreatedAt,
	)
	if err != nil {
		return o, err
	}

	o.Quantity = int(quantity)
	o.ShippingPrice = int(shipPrice)
	o.Email = deref(email)
	o.CreatedAt = o.CreatedAt.UTC()

	if ship[0] != nil {
		o.Shipping = &order.ShippingInformation{
			Country:    deref(ship[0]),
			Address:    deref(ship[1]),
			PostalCode: deref(ship[2]),
			City:       deref(ship[3]),
			Province:   deref(ship[4]),
		}
	}
	if o.Paid && (cardName != nil || cardFirst != nil || cardLast != nil || cardYear != nil || cardMonth != nil) {
		o.CreditCard = &payment.CardSummary{
			Name:        deref(cardName),
			FirstDigits: deref(cardFirst),
			LastDigits:  deref(cardLast),
		}
		if cardYear != nil {
			o.CreditCard.ExpirationYear = int(*cardYear)
		}
		if cardMonth != nil {
			o.CreditCard.ExpirationMonth = int(*cardMonth)
		}
	}
	if o.Paid {
		o.Transaction = &order.Transaction{
			ID:            deref(txID),
			Success:       txSuccess != nil && *txSuccess,
			AmountCharged: txAmount.Decimal,
		}
	}
	return o, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
