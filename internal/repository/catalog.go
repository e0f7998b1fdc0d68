package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgerrcode"

	"github.com/mmeshcher/storefront/internal/model"
)

// ListProducts возвращает каталог товаров.
func (r *PostgresRepository) ListProducts(ctx context.Context) ([]model.Product, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, title, description, photos, price_per_delivery, max_deliveries, max_months, type, size
		 FROM products
		 ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	defer rows.Close()

	res := []model.Product{}
	for rows.Next() {
		var (
			p      model.Product
			photos []byte
		)
		if err := rows.Scan(&p.ID, &p.Title, &p.Description, &photos, &p.PricePerDelivery,
			&p.MaxDeliveries, &p.MaxMonths, &p.Type, &p.Size); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		if p.Photos, err = decodePhotos(photos); err != nil {
			return nil, err
		}
		res = append(res, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

const cartColumns = `id, user_id, item_id, quantity, price, type, deliveries_per_month,
	subscription_months, delivery_date, title, photos`

func scanCartItem(row rowScanner) (*model.CartItem, error) {
	var (
		c      model.CartItem
		photos []byte
	)
	err := row.Scan(&c.ID, &c.UserID, &c.ItemID, &c.Quantity, &c.Price, &c.Type, &c.DeliveriesPerMonth,
		&c.SubscriptionMonths, &c.DeliveryDate, &c.Title, &photos)
	if err != nil {
		return nil, err
	}
	if c.Photos, err = decodePhotos(photos); err != nil {
		return nil, err
	}
	return &c, nil
}

func decodePhotos(raw []byte) ([]string, error) {
	photos := []string{}
	if len(raw) == 0 {
		return photos, nil
	}
	if err := json.Unmarshal(raw, &photos); err != nil {
		return nil, fmt.Errorf("decode photos: %w", err)
	}
	return photos, nil
}

// AddCartItem добавляет строку в корзину пользователя.
func (r *PostgresRepository) AddCartItem(ctx context.Context, item model.CartItem) (*model.CartItem, error) {
	photos := item.Photos
	if photos == nil {
		photos = []string{}
	}
	rawPhotos, err := json.Marshal(photos)
	if err != nil {
		return nil, fmt.Errorf("encode photos: %w", err)
	}

	row := r.pool.QueryRow(ctx,
		`INSERT INTO cart_items (user_id, item_id, quantity, price, type, deliveries_per_month,
			subscription_months, delivery_date, title, photos)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING `+cartColumns,
		item.UserID, item.ItemID, item.Quantity, item.Price, item.Type, item.DeliveriesPerMonth,
		item.SubscriptionMonths, item.DeliveryDate, item.Title, rawPhotos,
	)

	saved, err := scanCartItem(row)
	if err != nil {
		if isPgCode(err, pgerrcode.ForeignKeyViolation) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("insert cart item: %w", err)
	}
	return saved, nil
}

// GetCart возвращает содержимое корзины пользователя в порядке добавления.
func (r *PostgresRepository) GetCart(ctx context.Context, userID int64) ([]model.CartItem, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+cartColumns+` FROM cart_items WHERE user_id = $1 ORDER BY id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select cart: %w", err)
	}
	defer rows.Close()

	res := []model.CartItem{}
	for rows.Next() {
		c, err := scanCartItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		res = append(res, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// DeleteCartItem удаляет строку корзины.
func (r *PostgresRepository) DeleteCartItem(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM cart_items WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete cart item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCartItemNotFound
	}
	return nil
}
