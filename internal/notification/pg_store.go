package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/triage-scheduling/internal/identity"
)

type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

const notificationColumns = `id, recipient_id, recipient_kind, title, message, category, priority,
	is_read, read_at, action_url, metadata, created_at, expires_at`

func scanNotification(row pgx.Row) (*Notification, error) {
	var (
		n         Notification
		actionURL *string
		metadata  []byte
	)

	err := row.Scan(
		&n.ID,
		&n.RecipientID,
		&n.RecipientKind,
		&n.Title,
		&n.Message,
		&n.Category,
		&n.Priority,
		&n.IsRead,
		&n.ReadAt,
		&actionURL,
		&metadata,
		&n.CreatedAt,
		&n.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotificationNotFound
		}
		return nil, err
	}

	if actionURL != nil {
		n.ActionURL = *actionURL
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &n.Metadata); err != nil {
			return nil, fmt.Errorf("decode notification metadata: %w", err)
		}
	}
	return &n, nil
}

func (s *PgStore) Insert(ctx context.Context, n *Notification) error {
	var metadata []byte
	if len(n.Metadata) > 0 {
		var err error
		metadata, err = json.Marshal(n.Metadata)
		if err != nil {
			return fmt.Errorf("encode notification metadata: %w", err)
		}
	}

	var actionURL *string
	if n.ActionURL != "" {
		actionURL = &n.ActionURL
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO notifications (id, recipient_id, recipient_kind, title, message, category, priority,
			is_read, read_at, action_url, metadata, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, n.ID, n.RecipientID, n.RecipientKind, n.Title, n.Message, n.Category, n.Priority,
		n.IsRead, n.ReadAt, actionURL, metadata, n.CreatedAt, n.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *PgStore) Get(ctx context.Context, id uuid.UUID) (*Notification, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE id = $1
	`, id)
	return scanNotification(row)
}

func (s *PgStore) MarkRead(ctx context.Context, id uuid.UUID, at time.Time) (*Notification, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE notifications
		SET is_read = true,
		    read_at = COALESCE(read_at, $2)
		WHERE id = $1
		RETURNING `+notificationColumns,
		id, at)
	return scanNotification(row)
}

func (s *PgStore) MarkAllRead(ctx context.Context, recipient identity.Principal, at time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE notifications
		SET is_read = true,
		    read_at = $3
		WHERE recipient_id = $1
		  AND recipient_kind = $2
		  AND is_read = false
		  AND expires_at > $3
	`, recipient.ID, recipient.Kind, at)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PgStore) List(ctx context.Context, recipient identity.Principal, q ListQuery, now time.Time) ([]Notification, int, error) {
	q.normalize()

	var total int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM notifications
		WHERE recipient_id = $1
		  AND recipient_kind = $2
		  AND expires_at > $3
		  AND ($4 = false OR is_read = false)
	`, recipient.ID, recipient.Kind, now, q.UnreadOnly).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE recipient_id = $1
		  AND recipient_kind = $2
		  AND expires_at > $3
		  AND ($4 = false OR is_read = false)
		ORDER BY created_at DESC, id
		LIMIT $5 OFFSET $6
	`, recipient.ID, recipient.Kind, now, q.UnreadOnly, q.Limit, q.offset())
	if err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var result []Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, *n)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return result, total, nil
}

func (s *PgStore) CountUnread(ctx context.Context, recipient identity.Principal, now time.Time) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM notifications
		WHERE recipient_id = $1
		  AND recipient_kind = $2
		  AND is_read = false
		  AND expires_at > $3
	`, recipient.ID, recipient.Kind, now).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

func (s *PgStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM notifications WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

func (s *PgStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM notifications WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("purge expired notifications: %w", err)
	}
	return tag.RowsAffected(), nil
}
