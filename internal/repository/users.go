package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/storefront/internal/model"
)

const userColumns = `id, user_id, username, phone_number, first_name, last_name, avatar,
	balance, blocked, source_param, join_time`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.UserID, &u.Username, &u.PhoneNumber, &u.FirstName, &u.LastName,
		&u.Avatar, &u.Balance, &u.Blocked, &u.SourceParam, &u.JoinTime)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// UpsertUser создаёт пользователя при первом контакте или обновляет его профиль.
// Пустые поля профиля существующие значения не затирают.
func (r *PostgresRepository) UpsertUser(ctx context.Context, u model.User) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO users (user_id, username, phone_number, first_name, last_name, avatar, source_param)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (user_id) DO UPDATE SET
			username     = COALESCE(EXCLUDED.username, users.username),
			phone_number = COALESCE(EXCLUDED.phone_number, users.phone_number),
			first_name   = COALESCE(EXCLUDED.first_name, users.first_name),
			last_name    = COALESCE(EXCLUDED.last_name, users.last_name),
			avatar       = COALESCE(EXCLUDED.avatar, users.avatar),
			source_param = COALESCE(users.source_param, EXCLUDED.source_param)
		 RETURNING `+userColumns,
		u.UserID, u.Username, u.PhoneNumber, u.FirstName, u.LastName, u.Avatar, u.SourceParam,
	)

	saved, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return saved, nil
}

// GetUser возвращает пользователя по идентификатору платформы.
func (r *PostgresRepository) GetUser(ctx context.Context, userID int64) (*model.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE user_id = $1`, userID)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// GetActiveUsers возвращает всех незаблокированных пользователей.
func (r *PostgresRepository) GetActiveUsers(ctx context.Context) ([]model.User, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+userColumns+` FROM users WHERE blocked = FALSE ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("select users: %w", err)
	}
	defer rows.Close()

	var res []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		res = append(res, *u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
