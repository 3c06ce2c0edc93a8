package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/okane/internal/model"
)

// PostgresMailRepo はPostgreSQLを使用したメール監視リポジトリ。
type PostgresMailRepo struct {
	db *sql.DB
}

// NewPostgresMailRepo はPostgresMailRepoを生成する。
func NewPostgresMailRepo(db *sql.DB) *PostgresMailRepo {
	return &PostgresMailRepo{db: db}
}

const mailColumns = `id, user_id, message_id, sender_raw, sender_email, subject, body, received_at, created_at`

func scanMail(row scanner) (*model.MailMessage, error) {
	m := &model.MailMessage{}
	if err := row.Scan(
		&m.ID, &m.UserID, &m.MessageID, &m.SenderRaw, &m.SenderEmail,
		&m.Subject, &m.Body, &m.ReceivedAt, &m.CreatedAt,
	); err != nil {
		return nil, err
	}
	return m, nil
}

// SetMonitoring はユーザーのメール監視状態を設定する。
func (r *PostgresMailRepo) SetMonitoring(ctx context.Context, userID string, monitoring bool) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO mail_monitors (user_id, is_monitoring, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (user_id) DO UPDATE SET is_monitoring = EXCLUDED.is_monitoring, updated_at = now()`,
		userID, monitoring,
	)
	if err != nil {
		return fmt.Errorf("メール監視状態の更新に失敗しました: %w", err)
	}
	return nil
}

// IsMonitoring はユーザーがメール監視中かを返す。
func (r *PostgresMailRepo) IsMonitoring(ctx context.Context, userID string) (bool, error) {
	var monitoring bool
	err := r.db.QueryRowContext(ctx,
		`SELECT is_monitoring FROM mail_monitors WHERE user_id = $1`,
		userID,
	).Scan(&monitoring)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("メール監視状態の取得に失敗しました: %w", err)
	}
	return monitoring, nil
}

// Insert はメールを保存する。(user_id, message_id) が重複する場合は保存せずfalseを返す。
func (r *PostgresMailRepo) Insert(ctx context.Context, m *model.MailMessage) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO mail_messages (`+mailColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (user_id, message_id) DO NOTHING`,
		m.ID, m.UserID, m.MessageID, m.SenderRaw, m.SenderEmail,
		m.Subject, m.Body, m.ReceivedAt, m.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("メールの保存に失敗しました: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("メール保存件数の取得に失敗しました: %w", err)
	}
	return n > 0, nil
}

// TrimToLatest は新しい順にkeep件を残し、古いメールを削除する。
func (r *PostgresMailRepo) TrimToLatest(ctx context.Context, userID string, keep int) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM mail_messages
		 WHERE user_id = $1
		   AND id NOT IN (
		       SELECT id FROM mail_messages
		       WHERE user_id = $1
		       ORDER BY received_at DESC, created_at DESC
		       LIMIT $2
		   )`,
		userID, keep,
	)
	if err != nil {
		return 0, fmt.Errorf("古いメールの削除に失敗しました: %w", err)
	}
	return res.RowsAffected()
}

// ListLatest は受信日時の新しい順にlimit件返す。
func (r *PostgresMailRepo) ListLatest(ctx context.Context, userID string, limit int) ([]*model.MailMessage, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+mailColumns+` FROM mail_messages
		 WHERE user_id = $1
		 ORDER BY received_at DESC, created_at DESC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("メール一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var mails []*model.MailMessage
	for rows.Next() {
		m, err := scanMail(rows)
		if err != nil {
			return nil, fmt.Errorf("メールの読み取りに失敗しました: %w", err)
		}
		mails = append(mails, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("メール一覧の走査に失敗しました: %w", err)
	}
	return mails, nil
}

// compile-time interface check
var _ MailRepository = (*PostgresMailRepo)(nil)
