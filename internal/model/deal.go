package model

import "time"

// DealSource はセール情報を配信するRSS/Atomフィードを表す。
type DealSource struct {
	ID                string
	FeedURL           string
	Title             string
	ETag              string
	LastModified      string
	FetchStatus       FetchStatus
	ConsecutiveErrors int
	ErrorMessage      string
	NextFetchAt       time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// FetchStatus はフィードのフェッチ状態を表す。
type FetchStatus string

const (
	// FetchStatusActive はアクティブなフェッチ状態。
	FetchStatusActive FetchStatus = "active"
	// FetchStatusStopped は停止されたフェッチ状態。
	FetchStatusStopped FetchStatus = "stopped"
)

// Deal はセール情報フィードから取り込んだ1件のお得情報。
type Deal struct {
	ID          string
	SourceID    string
	Title       string
	Link        string
	Summary     string // プレーンテキスト化済み
	PublishedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ParsedDeal はフィードのパース結果から生成される保存前のお得情報。
type ParsedDeal struct {
	Title       string
	Link        string
	Summary     string
	PublishedAt *time.Time
}
