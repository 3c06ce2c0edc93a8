package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/okane/internal/model"
)

// PostgresDealSourceRepo はPostgreSQLを使用したセール情報フィードリポジトリ。
type PostgresDealSourceRepo struct {
	db *sql.DB
}

// NewPostgresDealSourceRepo はPostgresDealSourceRepoを生成する。
func NewPostgresDealSourceRepo(db *sql.DB) *PostgresDealSourceRepo {
	return &PostgresDealSourceRepo{db: db}
}

const dealSourceColumns = `id, feed_url, title, etag, last_modified, fetch_status,
	consecutive_errors, error_message, next_fetch_at, created_at, updated_at`

// scanner はsql.Rowとsql.Rowsの共通インターフェース。
type scanner interface {
	Scan(dest ...any) error
}

func scanDealSource(row scanner) (*model.DealSource, error) {
	src := &model.DealSource{}
	var etag, lastModified, errorMessage sql.NullString
	if err := row.Scan(
		&src.ID, &src.FeedURL, &src.Title, &etag, &lastModified, &src.FetchStatus,
		&src.ConsecutiveErrors, &errorMessage, &src.NextFetchAt, &src.CreatedAt, &src.UpdatedAt,
	); err != nil {
		return nil, err
	}
	src.ETag = nullStringValue(etag)
	src.LastModified = nullStringValue(lastModified)
	src.ErrorMessage = nullStringValue(errorMessage)
	return src, nil
}

// FindByFeedURL はフィードURLでソースを検索する。見つからない場合はnilを返す。
func (r *PostgresDealSourceRepo) FindByFeedURL(ctx context.Context, feedURL string) (*model.DealSource, error) {
	src, err := scanDealSource(r.db.QueryRowContext(ctx,
		`SELECT `+dealSourceColumns+` FROM deal_sources WHERE feed_url = $1`,
		feedURL,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("フィードURLによるセール情報ソースの検索に失敗しました: %w", err)
	}
	return src, nil
}

// Create はソースを作成する。
func (r *PostgresDealSourceRepo) Create(ctx context.Context, src *model.DealSource) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO deal_sources (`+dealSourceColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		src.ID, src.FeedURL, src.Title,
		nullString(src.ETag), nullString(src.LastModified), src.FetchStatus,
		src.ConsecutiveErrors, nullString(src.ErrorMessage), src.NextFetchAt,
		src.CreatedAt, src.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("セール情報ソースの作成に失敗しました: %w", err)
	}
	return nil
}

// ListDueForFetch はフェッチ対象のソースを取得する。
// next_fetch_at <= now() かつ fetch_status = 'active' のソースを
// FOR UPDATE SKIP LOCKEDで排他的に取得する。
func (r *PostgresDealSourceRepo) ListDueForFetch(ctx context.Context) ([]*model.DealSource, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+dealSourceColumns+`
		 FROM deal_sources
		 WHERE next_fetch_at <= now()
		   AND fetch_status = 'active'
		 ORDER BY next_fetch_at ASC
		 FOR UPDATE SKIP LOCKED`,
	)
	if err != nil {
		return nil, fmt.Errorf("フェッチ対象ソースの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var sources []*model.DealSource
	for rows.Next() {
		src, err := scanDealSource(rows)
		if err != nil {
			return nil, fmt.Errorf("フェッチ対象ソースの読み取りに失敗しました: %w", err)
		}
		sources = append(sources, src)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("フェッチ対象ソースの走査に失敗しました: %w", err)
	}

	return sources, nil
}

// UpdateFetchState はソースのフェッチ状態を更新する。
func (r *PostgresDealSourceRepo) UpdateFetchState(ctx context.Context, src *model.DealSource) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE deal_sources SET
		    title = $2,
		    fetch_status = $3,
		    consecutive_errors = $4,
		    error_message = $5,
		    next_fetch_at = $6,
		    etag = $7,
		    last_modified = $8,
		    updated_at = now()
		 WHERE id = $1`,
		src.ID,
		src.Title,
		src.FetchStatus,
		src.ConsecutiveErrors,
		nullString(src.ErrorMessage),
		src.NextFetchAt,
		nullString(src.ETag),
		nullString(src.LastModified),
	)
	if err != nil {
		return fmt.Errorf("フェッチ状態の更新に失敗しました: %w", err)
	}
	return nil
}

// PostgresDealRepo はPostgreSQLを使用したお得情報リポジトリ。
type PostgresDealRepo struct {
	db *sql.DB
}

// NewPostgresDealRepo はPostgresDealRepoを生成する。
func NewPostgresDealRepo(db *sql.DB) *PostgresDealRepo {
	return &PostgresDealRepo{db: db}
}

const dealColumns = `id, source_id, title, link, summary, published_at, created_at, updated_at`

func scanDeal(row scanner) (*model.Deal, error) {
	d := &model.Deal{}
	var summary sql.NullString
	var publishedAt sql.NullTime
	if err := row.Scan(
		&d.ID, &d.SourceID, &d.Title, &d.Link, &summary, &publishedAt, &d.CreatedAt, &d.UpdatedAt,
	); err != nil {
		return nil, err
	}
	d.Summary = nullStringValue(summary)
	if publishedAt.Valid {
		d.PublishedAt = &publishedAt.Time
	}
	return d, nil
}

// FindBySourceAndLink はソースIDとリンクでお得情報を検索する。見つからない場合はnilを返す。
func (r *PostgresDealRepo) FindBySourceAndLink(ctx context.Context, sourceID, link string) (*model.Deal, error) {
	d, err := scanDeal(r.db.QueryRowContext(ctx,
		`SELECT `+dealColumns+` FROM deals WHERE source_id = $1 AND link = $2`,
		sourceID, link,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("お得情報の検索に失敗しました: %w", err)
	}
	return d, nil
}

// Create はお得情報を作成する。
func (r *PostgresDealRepo) Create(ctx context.Context, d *model.Deal) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO deals (`+dealColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		d.ID, d.SourceID, d.Title, d.Link, nullString(d.Summary), d.PublishedAt,
		d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("お得情報の作成に失敗しました: %w", err)
	}
	return nil
}

// Update はお得情報を上書き更新する。
func (r *PostgresDealRepo) Update(ctx context.Context, d *model.Deal) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE deals SET title = $2, summary = $3, published_at = $4, updated_at = $5
		 WHERE id = $1`,
		d.ID, d.Title, nullString(d.Summary), d.PublishedAt, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("お得情報の更新に失敗しました: %w", err)
	}
	return nil
}

// ListLatest は公開日時の新しい順にlimit件返す。公開日時が無いものは取り込み日時で並べる。
func (r *PostgresDealRepo) ListLatest(ctx context.Context, limit int) ([]*model.Deal, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+dealColumns+` FROM deals
		 ORDER BY COALESCE(published_at, created_at) DESC, id DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("お得情報一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var deals []*model.Deal
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, fmt.Errorf("お得情報の読み取りに失敗しました: %w", err)
		}
		deals = append(deals, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("お得情報一覧の走査に失敗しました: %w", err)
	}
	return deals, nil
}

// compile-time interface check
var (
	_ DealSourceRepository = (*PostgresDealSourceRepo)(nil)
	_ DealRepository       = (*PostgresDealRepo)(nil)
)
