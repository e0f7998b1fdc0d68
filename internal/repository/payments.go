package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/storefront/internal/model"
)

const transactionColumns = `id, user_id, payer_id, order_id, amount, status, payment_id,
	transaction_type, description, created_at, updated_at`

func scanTransaction(row rowScanner) (*model.Transaction, error) {
	var t model.Transaction
	err := row.Scan(&t.ID, &t.UserID, &t.PayerID, &t.OrderID, &t.Amount, &t.Status, &t.PaymentID,
		&t.Type, &t.Description, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateTransaction сохраняет запись о созданной платёжной сессии.
func (r *PostgresRepository) CreateTransaction(ctx context.Context, t model.Transaction) (*model.Transaction, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO transactions (user_id, payer_id, order_id, amount, status, payment_id, transaction_type, description)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING `+transactionColumns,
		t.UserID, t.PayerID, t.OrderID, t.Amount, t.Status, t.PaymentID, t.Type, t.Description,
	)

	saved, err := scanTransaction(row)
	if err != nil {
		switch {
		case isPgCode(err, pgerrcode.UniqueViolation):
			return nil, ErrTransactionExists
		case isPgCode(err, pgerrcode.ForeignKeyViolation):
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("insert transaction: %w", err)
	}
	return saved, nil
}

// GetTransactionsByUser возвращает платежи, зачисляемые пользователю, новые первыми.
func (r *PostgresRepository) GetTransactionsByUser(ctx context.Context, userID int64) ([]model.Transaction, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+transactionColumns+`
		 FROM transactions
		 WHERE user_id = $1
		 ORDER BY created_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select transactions: %w", err)
	}
	defer rows.Close()

	res := []model.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		res = append(res, *t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// PaymentTx — операции, доступные внутри единицы работы по обработке уведомления шлюза.
// Все изменения фиксируются одним коммитом.
type PaymentTx interface {
	// LockTransaction блокирует транзакцию по payment_id до конца единицы работы.
	LockTransaction(ctx context.Context, paymentID string) (*model.Transaction, error)
	// MarkEventApplied записывает пару (payment_id, status). false означает, что событие уже применялось.
	MarkEventApplied(ctx context.Context, paymentID string, status model.PaymentStatus) (bool, error)
	SetTransactionStatus(ctx context.Context, transactionID int64, status model.PaymentStatus) error
	LockOrder(ctx context.Context, orderID int64) (*model.Order, error)
	SetOrderStatus(ctx context.Context, orderID int64, status model.OrderStatus) error
	ClearCart(ctx context.Context, userID int64) error
	// CreditBalance увеличивает баланс и возвращает новое значение.
	CreditBalance(ctx context.Context, userID int64, amount decimal.Decimal) (decimal.Decimal, error)
}

// WithPaymentTx выполняет fn в одной транзакции БД. При конфликте сериализации или дедлоке
// fn вызывается повторно, поэтому она не должна накапливать состояние между вызовами.
func (r *PostgresRepository) WithPaymentTx(ctx context.Context, fn func(tx PaymentTx) error) error {
	return r.withRetry(ctx, func() error {
		return r.inTx(ctx, func(tx pgx.Tx) error {
			return fn(&paymentTx{tx: tx})
		})
	})
}

type paymentTx struct {
	tx pgx.Tx
}

func (p *paymentTx) LockTransaction(ctx context.Context, paymentID string) (*model.Transaction, error) {
	row := p.tx.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE payment_id = $1 FOR UPDATE`,
		paymentID,
	)

	t, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("lock transaction: %w", err)
	}
	return t, nil
}

func (p *paymentTx) MarkEventApplied(ctx context.Context, paymentID string, status model.PaymentStatus) (bool, error) {
	tag, err := p.tx.Exec(ctx,
		`INSERT INTO payment_events (payment_id, status) VALUES ($1, $2)
		 ON CONFLICT (payment_id, status) DO NOTHING`,
		paymentID, status,
	)
	if err != nil {
		return false, fmt.Errorf("insert payment event: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (p *paymentTx) SetTransactionStatus(ctx context.Context, transactionID int64, status model.PaymentStatus) error {
	_, err := p.tx.Exec(ctx,
		`UPDATE transactions SET status = $2, updated_at = NOW() WHERE id = $1`,
		transactionID, status,
	)
	if err != nil {
		return fmt.Errorf("update transaction status: %w", err)
	}
	return nil
}

func (p *paymentTx) LockOrder(ctx context.Context, orderID int64) (*model.Order, error) {
	row := p.tx.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders o WHERE o.id = $1 FOR UPDATE`,
		orderID,
	)

	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("lock order: %w", err)
	}
	return o, nil
}

func (p *paymentTx) SetOrderStatus(ctx context.Context, orderID int64, status model.OrderStatus) error {
	_, err := p.tx.Exec(ctx,
		`UPDATE orders SET status = $2, updated_at = NOW() WHERE id = $1`,
		orderID, status,
	)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	return nil
}

func (p *paymentTx) ClearCart(ctx context.Context, userID int64) error {
	if _, err := p.tx.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

func (p *paymentTx) CreditBalance(ctx context.Context, userID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := p.tx.QueryRow(ctx,
		`UPDATE users SET balance = balance + $2 WHERE user_id = $1 RETURNING balance`,
		userID, amount,
	).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, ErrUserNotFound
		}
		return decimal.Zero, fmt.Errorf("credit balance: %w", err)
	}
	return balance, nil
}
