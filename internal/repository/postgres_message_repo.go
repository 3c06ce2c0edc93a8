package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/okane/internal/model"
)

// PostgresMessageRepo はPostgreSQLを使用した会話ログリポジトリ。
type PostgresMessageRepo struct {
	db *sql.DB
}

// NewPostgresMessageRepo はPostgresMessageRepoを生成する。
func NewPostgresMessageRepo(db *sql.DB) *PostgresMessageRepo {
	return &PostgresMessageRepo{db: db}
}

// Append はメッセージを追記し、採番したSeqをmsgに設定する。
// seqはユーザー内で単調増加する。同一ユーザーへの同時追記は行ロックで直列化する。
func (r *PostgresMessageRepo) Append(ctx context.Context, msg *model.ConversationMessage) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// ユーザー行をロックして採番を直列化する
	if _, err := tx.ExecContext(ctx, `SELECT 1 FROM users WHERE id = $1 FOR UPDATE`, msg.UserID); err != nil {
		return fmt.Errorf("会話ログの採番ロックに失敗しました: %w", err)
	}

	var seq int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO messages (id, user_id, seq, sender, text, emotion, created_at)
		 VALUES ($1, $2,
		         (SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE user_id = $2),
		         $3, $4, $5, $6)
		 RETURNING seq`,
		msg.ID, msg.UserID, msg.Sender, msg.Text, nullString(string(msg.Emotion)), msg.CreatedAt,
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("会話ログの追記に失敗しました: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	msg.Seq = seq
	return nil
}

// ListByUserID はユーザーの会話ログをSeq昇順で最新limit件返す。
func (r *PostgresMessageRepo) ListByUserID(ctx context.Context, userID string, limit int) ([]*model.ConversationMessage, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, seq, sender, text, emotion, created_at FROM (
		     SELECT id, user_id, seq, sender, text, emotion, created_at
		     FROM messages WHERE user_id = $1
		     ORDER BY seq DESC
		     LIMIT $2
		 ) latest ORDER BY seq ASC`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("会話ログの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var msgs []*model.ConversationMessage
	for rows.Next() {
		msg := &model.ConversationMessage{}
		var emotion sql.NullString
		if err := rows.Scan(
			&msg.ID, &msg.UserID, &msg.Seq, &msg.Sender, &msg.Text, &emotion, &msg.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("会話ログの読み取りに失敗しました: %w", err)
		}
		msg.Emotion = model.Emotion(nullStringValue(emotion))
		msgs = append(msgs, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("会話ログの走査に失敗しました: %w", err)
	}

	return msgs, nil
}

// LatestAIEmotion は最新のAIメッセージの表情を返す。AIメッセージが無い場合は空文字を返す。
func (r *PostgresMessageRepo) LatestAIEmotion(ctx context.Context, userID string) (model.Emotion, error) {
	var emotion sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT emotion FROM messages
		 WHERE user_id = $1 AND sender = $2
		 ORDER BY seq DESC LIMIT 1`,
		userID, model.SenderAI,
	).Scan(&emotion)

	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("最新の表情の取得に失敗しました: %w", err)
	}
	return model.Emotion(nullStringValue(emotion)), nil
}

// DeleteByUserID はユーザーの会話ログを削除する。
func (r *PostgresMessageRepo) DeleteByUserID(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM messages WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("会話ログの削除に失敗しました: %w", err)
	}
	return nil
}

// DeleteOlderThan は指定時刻より前に作成されたメッセージを削除し、削除件数を返す。
func (r *PostgresMessageRepo) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM messages WHERE created_at < $1`,
		before,
	)
	if err != nil {
		return 0, fmt.Errorf("古い会話ログの削除に失敗しました: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// compile-time interface check
var _ MessageRepository = (*PostgresMessageRepo)(nil)
