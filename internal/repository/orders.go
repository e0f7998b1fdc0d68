package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/storefront/internal/model"
)

const orderColumns = `o.id, o.user_id, o.status, o.total_amount, o.items, o.order_type,
	o.fio, o.phone, o.email, o.comment, o.created_at, o.updated_at`

func scanOrder(row rowScanner, extra ...any) (*model.Order, error) {
	var (
		o     model.Order
		items []byte
	)
	dest := []any{&o.ID, &o.UserID, &o.Status, &o.TotalAmount, &items, &o.OrderType,
		&o.Contact.FIO, &o.Contact.Phone, &o.Contact.Email, &o.Contact.Comment, &o.CreatedAt, &o.UpdatedAt}
	dest = append(dest, extra...)

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	if len(items) > 0 {
		if err := json.Unmarshal(items, &o.Items); err != nil {
			return nil, fmt.Errorf("decode order items: %w", err)
		}
	}
	return &o, nil
}

// CreateOrder сохраняет заказ и его график доставок в одной транзакции.
// Даты доставок вычисляет вызывающая сторона от order.CreatedAt.
func (r *PostgresRepository) CreateOrder(ctx context.Context, order model.Order, schedule []time.Time) (*model.Order, error) {
	items, err := json.Marshal(order.Items)
	if err != nil {
		return nil, fmt.Errorf("encode order items: %w", err)
	}

	var saved *model.Order
	err = r.inTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx,
			`INSERT INTO orders AS o (user_id, status, total_amount, items, order_type, fio, phone, email, comment, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			 RETURNING `+orderColumns,
			order.UserID, order.Status, order.TotalAmount, items, order.OrderType,
			order.Contact.FIO, order.Contact.Phone, order.Contact.Email, order.Contact.Comment, order.CreatedAt,
		)

		o, err := scanOrder(row)
		if err != nil {
			if isPgCode(err, pgerrcode.ForeignKeyViolation) {
				return ErrUserNotFound
			}
			return fmt.Errorf("insert order: %w", err)
		}

		o.Deliveries = make([]model.Delivery, 0, len(schedule))
		for _, date := range schedule {
			var d model.Delivery
			err := tx.QueryRow(ctx,
				`INSERT INTO deliveries (order_id, delivery_date, status)
				 VALUES ($1, $2, $3)
				 RETURNING id, order_id, delivery_date, status`,
				o.ID, date, model.DeliveryStatusScheduled,
			).Scan(&d.ID, &d.OrderID, &d.Date, &d.Status)
			if err != nil {
				return fmt.Errorf("insert delivery: %w", err)
			}
			o.Deliveries = append(o.Deliveries, d)
		}

		saved = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// GetOrder возвращает заказ по идентификатору без доставок.
func (r *PostgresRepository) GetOrder(ctx context.Context, orderID int64) (*model.Order, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders o WHERE o.id = $1`, orderID)

	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

// ListOrders возвращает заказы всех пользователей, кроме заказов с перечисленными статусами,
// вместе с телефоном владельца.
func (r *PostgresRepository) ListOrders(ctx context.Context, exclude []model.OrderStatus) ([]model.Order, error) {
	statuses := make([]string, 0, len(exclude))
	for _, s := range exclude {
		statuses = append(statuses, string(s))
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+orderColumns+`, u.phone_number
		 FROM orders o
		 LEFT JOIN users u ON u.user_id = o.user_id
		 WHERE o.status <> ALL($1::text[])
		 ORDER BY o.created_at DESC, o.id DESC`,
		statuses,
	)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var res []model.Order
	for rows.Next() {
		var phone *string
		o, err := scanOrder(rows, &phone)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		o.OwnerPhone = phone
		res = append(res, *o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// GetOrdersByUser возвращает заказы пользователя, новые первыми, с вложенными доставками.
func (r *PostgresRepository) GetOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+orderColumns+`
		 FROM orders o
		 WHERE o.user_id = $1
		 ORDER BY o.created_at DESC, o.id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var (
		res   []model.Order
		ids   []int64
		index = make(map[int64]int)
	)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		o.Deliveries = []model.Delivery{}
		index[o.ID] = len(res)
		ids = append(ids, o.ID)
		res = append(res, *o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	if len(ids) == 0 {
		return res, nil
	}

	deliveries, err := r.selectDeliveries(ctx,
		`SELECT id, order_id, delivery_date, status
		 FROM deliveries
		 WHERE order_id = ANY($1)
		 ORDER BY delivery_date, id`,
		ids,
	)
	if err != nil {
		return nil, err
	}

	for _, d := range deliveries {
		i := index[d.OrderID]
		res[i].Deliveries = append(res[i].Deliveries, d)
	}

	return res, nil
}

// UpdateOrderStatus безусловно перезаписывает статус заказа.
func (r *PostgresRepository) UpdateOrderStatus(ctx context.Context, orderID int64, status model.OrderStatus) (*model.Order, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE orders AS o SET status = $2, updated_at = NOW()
		 WHERE o.id = $1
		 RETURNING `+orderColumns,
		orderID, status,
	)

	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("update order status: %w", err)
	}
	return o, nil
}

// GetOrderDeliveries возвращает доставки заказа по возрастанию даты.
func (r *PostgresRepository) GetOrderDeliveries(ctx context.Context, orderID int64) ([]model.Delivery, error) {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, orderID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check order: %w", err)
	}
	if !exists {
		return nil, ErrOrderNotFound
	}

	return r.selectDeliveries(ctx,
		`SELECT id, order_id, delivery_date, status
		 FROM deliveries
		 WHERE order_id = $1
		 ORDER BY delivery_date, id`,
		orderID,
	)
}

// UpdateDeliveryDate переносит доставку на другую дату.
func (r *PostgresRepository) UpdateDeliveryDate(ctx context.Context, deliveryID int64, date time.Time) (*model.Delivery, error) {
	return r.updateDelivery(ctx,
		`UPDATE deliveries SET delivery_date = $2 WHERE id = $1
		 RETURNING id, order_id, delivery_date, status`,
		deliveryID, date,
	)
}

// UpdateDeliveryStatus меняет статус доставки.
func (r *PostgresRepository) UpdateDeliveryStatus(ctx context.Context, deliveryID int64, status model.DeliveryStatus) (*model.Delivery, error) {
	return r.updateDelivery(ctx,
		`UPDATE deliveries SET status = $2 WHERE id = $1
		 RETURNING id, order_id, delivery_date, status`,
		deliveryID, status,
	)
}

func (r *PostgresRepository) updateDelivery(ctx context.Context, query string, args ...any) (*model.Delivery, error) {
	var d model.Delivery
	err := r.pool.QueryRow(ctx, query, args...).Scan(&d.ID, &d.OrderID, &d.Date, &d.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDeliveryNotFound
		}
		return nil, fmt.Errorf("update delivery: %w", err)
	}
	return &d, nil
}

func (r *PostgresRepository) selectDeliveries(ctx context.Context, query string, args ...any) ([]model.Delivery, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select deliveries: %w", err)
	}
	defer rows.Close()

	res := []model.Delivery{}
	for rows.Next() {
		var d model.Delivery
		if err := rows.Scan(&d.ID, &d.OrderID, &d.Date, &d.Status); err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		res = append(res, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
