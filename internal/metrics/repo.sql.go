package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatcart/chatcart/internal/commerce"
	"github.com/chatcart/chatcart/internal/platform/db"
)

// ErrDuplicateRecord indicates an ingest collided with an existing record ID.
var ErrDuplicateRecord = errors.New("metrics: duplicate record")

const uniqueViolationCode = "23505"

// PGRepository provides PostgreSQL backed persistence for canonical records.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewPGRepository constructs a repository.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// ListOrders returns orders for the merchant inside [from, to), line items
// attached, ordered chronologically.
func (r *PGRepository) ListOrders(ctx context.Context, merchantID int64, from, to time.Time) ([]commerce.OrderRecord, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, customer_id, ordered_at, status, total
FROM dashboard_orders WHERE merchant_id = $1 AND ordered_at >= $2 AND ordered_at < $3 ORDER BY ordered_at, id`, merchantID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var orders []commerce.OrderRecord
	index := make(map[string]int)
	for rows.Next() {
		var order commerce.OrderRecord
		var status string
		if err := rows.Scan(&order.ID, &order.CustomerID, &order.OrderedAt, &status, &order.Total); err != nil {
			return nil, err
		}
		order.Status = commerce.OrderStatus(status)
		index[order.ID] = len(orders)
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return orders, nil
	}

	itemRows, err := r.pool.Query(ctx, `SELECT i.order_id, i.product_id, i.quantity, i.unit_price
FROM dashboard_order_items i
JOIN dashboard_orders o ON o.merchant_id = i.merchant_id AND o.id = i.order_id
WHERE i.merchant_id = $1 AND o.ordered_at >= $2 AND o.ordered_at < $3 ORDER BY i.order_id, i.product_id`, merchantID, from, to)
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()
	for itemRows.Next() {
		var orderID string
		var item commerce.LineItem
		if err := itemRows.Scan(&orderID, &item.ProductID, &item.Quantity, &item.UnitPrice); err != nil {
			return nil, err
		}
		if idx, ok := index[orderID]; ok {
			orders[idx].Items = append(orders[idx].Items, item)
		}
	}
	if err := itemRows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

// ListPayments returns payments for the merchant inside [from, to).
func (r *PGRepository) ListPayments(ctx context.Context, merchantID int64, from, to time.Time) ([]commerce.PaymentRecord, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, order_id, amount, status, paid_at
FROM dashboard_payments WHERE merchant_id = $1 AND paid_at >= $2 AND paid_at < $3 ORDER BY paid_at, id`, merchantID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var payments []commerce.PaymentRecord
	for rows.Next() {
		var payment commerce.PaymentRecord
		var status string
		if err := rows.Scan(&payment.ID, &payment.OrderID, &payment.Amount, &status, &payment.PaidAt); err != nil {
			return nil, err
		}
		payment.Status = commerce.PaymentStatus(status)
		payments = append(payments, payment)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return payments, nil
}

// ListProducts returns the merchant catalog.
func (r *PGRepository) ListProducts(ctx context.Context, merchantID int64) ([]commerce.ProductRecord, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, unit_price FROM dashboard_products WHERE merchant_id = $1 ORDER BY id`, merchantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var products []commerce.ProductRecord
	for rows.Next() {
		var product commerce.ProductRecord
		if err := rows.Scan(&product.ID, &product.Name, &product.UnitPrice); err != nil {
			return nil, err
		}
		products = append(products, product)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

// ListCustomers returns the merchant's known customers.
func (r *PGRepository) ListCustomers(ctx context.Context, merchantID int64) ([]commerce.CustomerRecord, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name FROM dashboard_customers WHERE merchant_id = $1 ORDER BY id`, merchantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var customers []commerce.CustomerRecord
	for rows.Next() {
		var customer commerce.CustomerRecord
		if err := rows.Scan(&customer.ID, &customer.Name); err != nil {
			return nil, err
		}
		customers = append(customers, customer)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return customers, nil
}

// SaveBatch persists a normalized batch inside one transaction. A primary
// key collision surfaces as ErrDuplicateRecord and rolls the batch back.
func (r *PGRepository) SaveBatch(ctx context.Context, merchantID int64, batch commerce.NormalizedBatch) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return saveBatchTx(ctx, tx, merchantID, batch)
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return ErrDuplicateRecord
		}
		return err
	}
	return nil
}

func saveBatchTx(ctx context.Context, tx pgx.Tx, merchantID int64, batch commerce.NormalizedBatch) error {
	for _, order := range batch.Orders {
		if _, err := tx.Exec(ctx, `INSERT INTO dashboard_orders (merchant_id, id, customer_id, ordered_at, status, total)
VALUES ($1, $2, $3, $4, $5, $6)`, merchantID, order.ID, order.CustomerID, order.OrderedAt, string(order.Status), order.Total); err != nil {
			return err
		}
		for _, item := range order.Items {
			if _, err := tx.Exec(ctx, `INSERT INTO dashboard_order_items (merchant_id, order_id, product_id, quantity, unit_price)
VALUES ($1, $2, $3, $4, $5)`, merchantID, order.ID, item.ProductID, item.Quantity, item.UnitPrice); err != nil {
				return err
			}
		}
	}
	for _, payment := range batch.Payments {
		if _, err := tx.Exec(ctx, `INSERT INTO dashboard_payments (merchant_id, id, order_id, amount, status, paid_at)
VALUES ($1, $2, $3, $4, $5, $6)`, merchantID, payment.ID, payment.OrderID, payment.Amount, string(payment.Status), payment.PaidAt); err != nil {
			return err
		}
	}
	for _, product := range batch.Products {
		if _, err := tx.Exec(ctx, `INSERT INTO dashboard_products (merchant_id, id, name, unit_price)
VALUES ($1, $2, $3, $4)
ON CONFLICT (merchant_id, id) DO UPDATE SET name = EXCLUDED.name, unit_price = EXCLUDED.unit_price`, merchantID, product.ID, product.Name, product.UnitPrice); err != nil {
			return err
		}
	}
	for _, customer := range batch.Customers {
		if _, err := tx.Exec(ctx, `INSERT INTO dashboard_customers (merchant_id, id, name)
VALUES ($1, $2, $3)
ON CONFLICT (merchant_id, id) DO UPDATE SET name = EXCLUDED.name`, merchantID, customer.ID, customer.Name); err != nil {
			return err
		}
	}
	return nil
}

// ListMerchants returns the distinct merchant IDs that have records, used by
// the cache warmup job.
func (r *PGRepository) ListMerchants(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT merchant_id FROM dashboard_orders ORDER BY merchant_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var merchants []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		merchants = append(merchants, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return merchants, nil
}
