package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresCacheStore はPostgreSQLのcache_entriesテーブルを使用したキーバリューストア。
type PostgresCacheStore struct {
	db *sql.DB
}

// NewPostgresCacheStore はPostgresCacheStoreを生成する。
func NewPostgresCacheStore(db *sql.DB) *PostgresCacheStore {
	return &PostgresCacheStore{db: db}
}

// Get はキーの値を取得する。存在しない場合はokがfalseになる。
func (s *PostgresCacheStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM cache_entries WHERE key = $1`,
		key,
	).Scan(&value)

	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("キャッシュの取得に失敗しました: %w", err)
	}
	return value, true, nil
}

// Put はキーに値を保存する。既存の値は上書きする。
func (s *PostgresCacheStore) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cache_entries (key, value, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("キャッシュの保存に失敗しました: %w", err)
	}
	return nil
}

// Delete はキーを削除する。存在しない場合もエラーにしない。
func (s *PostgresCacheStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE key = $1`,
		key,
	)
	if err != nil {
		return fmt.Errorf("キャッシュの削除に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ CacheStore = (*PostgresCacheStore)(nil)
