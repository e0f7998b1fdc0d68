package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/storefront/internal/model"
)

// CreateSource заводит новую метку источника.
func (r *PostgresRepository) CreateSource(ctx context.Context, startParam, note string) (*model.Source, error) {
	var s model.Source
	err := r.pool.QueryRow(ctx,
		`INSERT INTO sources (start_param, note) VALUES ($1, $2)
		 RETURNING id, start_param, note, created_at`,
		startParam, note,
	).Scan(&s.ID, &s.StartParam, &s.Note, &s.CreatedAt)
	if err != nil {
		if isPgCode(err, pgerrcode.UniqueViolation) {
			return nil, ErrSourceExists
		}
		return nil, fmt.Errorf("insert source: %w", err)
	}
	return &s, nil
}

// ListSources возвращает метки с количеством уникальных посетителей.
func (r *PostgresRepository) ListSources(ctx context.Context) ([]model.Source, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT s.id, s.start_param, s.note, s.created_at, COUNT(DISTINCT v.user_id)
		 FROM sources s
		 LEFT JOIN source_visits v ON v.source_id = s.id
		 GROUP BY s.id
		 ORDER BY s.created_at DESC, s.id DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("select sources: %w", err)
	}
	defer rows.Close()

	res := []model.Source{}
	for rows.Next() {
		var s model.Source
		if err := rows.Scan(&s.ID, &s.StartParam, &s.Note, &s.CreatedAt, &s.Visits); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		res = append(res, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// LogSourceVisit фиксирует заход пользователя по метке. Повторный заход той же парой
// (метка, пользователь) не записывается; в этом случае возвращается false.
func (r *PostgresRepository) LogSourceVisit(ctx context.Context, startParam string, userID int64, phone *string) (bool, error) {
	var sourceID int64
	err := r.pool.QueryRow(ctx, `SELECT id FROM sources WHERE start_param = $1`, startParam).Scan(&sourceID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, ErrSourceNotFound
		}
		return false, fmt.Errorf("get source: %w", err)
	}

	tag, err := r.pool.Exec(ctx,
		`INSERT INTO source_visits (source_id, user_id, phone_number) VALUES ($1, $2, $3)
		 ON CONFLICT (source_id, user_id) DO NOTHING`,
		sourceID, userID, phone,
	)
	if err != nil {
		return false, fmt.Errorf("insert source visit: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// CreateActionLog добавляет запись в журнал действий пользователя.
func (r *PostgresRepository) CreateActionLog(ctx context.Context, entry model.UserActionLog) (*model.UserActionLog, error) {
	var data []byte
	if len(entry.Data) > 0 {
		data = entry.Data
	}

	var saved model.UserActionLog
	var raw []byte
	err := r.pool.QueryRow(ctx,
		`INSERT INTO user_action_logs (user_id, phone_number, action, data)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, user_id, phone_number, action, data, timestamp`,
		entry.UserID, entry.PhoneNumber, entry.Action, data,
	).Scan(&saved.ID, &saved.UserID, &saved.PhoneNumber, &saved.Action, &raw, &saved.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("insert action log: %w", err)
	}
	saved.Data = raw
	return &saved, nil
}

// ListActionLogs возвращает журнал действий с необязательными фильтрами по пользователю и действию.
func (r *PostgresRepository) ListActionLogs(ctx context.Context, userID *int64, action *string) ([]model.UserActionLog, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, phone_number, action, data, timestamp
		 FROM user_action_logs
		 WHERE ($1::bigint IS NULL OR user_id = $1)
		   AND ($2::text IS NULL OR action = $2)
		 ORDER BY timestamp DESC, id DESC
		 LIMIT 1000`,
		userID, action,
	)
	if err != nil {
		return nil, fmt.Errorf("select action logs: %w", err)
	}
	defer rows.Close()

	res := []model.UserActionLog{}
	for rows.Next() {
		var (
			l   model.UserActionLog
			raw []byte
		)
		if err := rows.Scan(&l.ID, &l.UserID, &l.PhoneNumber, &l.Action, &raw, &l.Timestamp); err != nil {
			return nil, fmt.Errorf("scan action log: %w", err)
		}
		l.Data = raw
		res = append(res, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
