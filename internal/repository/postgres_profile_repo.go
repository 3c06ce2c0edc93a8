package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/okane/internal/model"
)

// PostgresProfileRepo はPostgreSQLを使用した構造化プロフィールリポジトリ。
type PostgresProfileRepo struct {
	db *sql.DB
}

// NewPostgresProfileRepo はPostgresProfileRepoを生成する。
func NewPostgresProfileRepo(db *sql.DB) *PostgresProfileRepo {
	return &PostgresProfileRepo{db: db}
}

// FindByUserID はユーザーの構造化プロフィールを取得する。見つからない場合はnilを返す。
func (r *PostgresProfileRepo) FindByUserID(ctx context.Context, userID string) (*model.StructuredProfile, error) {
	p := &model.StructuredProfile{}
	var birthDate sql.NullTime
	var occupation sql.NullString

	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, name, birth_date, occupation, family_structure, number_of_children, updated_at
		 FROM profiles WHERE user_id = $1`,
		userID,
	).Scan(
		&p.UserID, &p.Name, &birthDate, &occupation,
		&p.FamilyStructure, &p.NumberOfChildren, &p.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}

	if birthDate.Valid {
		t := birthDate.Time.UTC()
		p.BirthDate = &t
	}
	p.Occupation = nullStringValue(occupation)

	return p, nil
}

// Upsert は構造化プロフィールを作成または上書きし、保存後の値を返す。
// UNIQUE(user_id)制約を利用したINSERT ON CONFLICTで実装する。
func (r *PostgresProfileRepo) Upsert(ctx context.Context, userID string, profile model.StructuredProfile) (*model.StructuredProfile, error) {
	now := time.Now().UTC()
	profile.UserID = userID
	profile.UpdatedAt = now

	var birthDate sql.NullTime
	if profile.BirthDate != nil {
		birthDate = sql.NullTime{Time: *profile.BirthDate, Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO profiles (user_id, name, birth_date, occupation, family_structure, number_of_children, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		 ON CONFLICT (user_id) DO UPDATE SET
		     name = EXCLUDED.name,
		     birth_date = EXCLUDED.birth_date,
		     occupation = EXCLUDED.occupation,
		     family_structure = EXCLUDED.family_structure,
		     number_of_children = EXCLUDED.number_of_children,
		     updated_at = EXCLUDED.updated_at`,
		userID, profile.Name, birthDate, nullString(profile.Occupation),
		profile.FamilyStructure, profile.NumberOfChildren, now,
	)
	if err != nil {
		return nil, fmt.Errorf("プロフィールの保存に失敗しました: %w", err)
	}

	return &profile, nil
}

// DeleteByUserID はユーザーの構造化プロフィールを削除する。
func (r *PostgresProfileRepo) DeleteByUserID(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM profiles WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("プロフィールの削除に失敗しました: %w", err)
	}
	return nil
}

// nullString は空文字列をsql.NullStringに変換する。
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullStringValue はsql.NullStringから文字列を取得する。
func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// compile-time interface check
var _ ProfileRepository = (*PostgresProfileRepo)(nil)
