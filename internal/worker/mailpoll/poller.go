// Package mailpoll はメール置き場に届いた支払い通知メールを定期的に取り込む。
//
// 置き場はユーザーごとのMaildir形式で、<spoolDir>/<userID>/new に置かれたメールを
// 取り込み、処理済みのものを <spoolDir>/<userID>/cur に移す。
package mailpoll

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/okane/internal/mailwatch"
	"github.com/hitoshi/okane/internal/model"
)

// Ingester はメール1通を受け取る。
type Ingester interface {
	Ingest(ctx context.Context, userID string, raw io.Reader) (*mailwatch.IngestResult, error)
}

// Poller はメール置き場を定期的に走査して取り込む。
type Poller struct {
	spoolDir string
	ingester Ingester
	logger   *slog.Logger
}

// NewPoller はPollerを生成する。
func NewPoller(spoolDir string, ingester Ingester, logger *slog.Logger) *Poller {
	return &Poller{
		spoolDir: spoolDir,
		ingester: ingester,
		logger:   logger,
	}
}

// Start はinterval間隔で取り込みを実行する。起動直後にも1回実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (p *Poller) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.logger.Info("メールの取り込みを開始しました",
		slog.String("spool_dir", p.spoolDir),
		slog.Duration("interval", interval),
	)

	p.runAndLog(ctx)
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("メールの取り込みを停止しました")
			return
		case <-ticker.C:
			p.runAndLog(ctx)
		}
	}
}

func (p *Poller) runAndLog(ctx context.Context) {
	if _, err := p.RunOnce(ctx); err != nil {
		p.logger.Error("メールの取り込みに失敗しました",
			slog.String("error", err.Error()),
		)
	}
}

// RunOnce は全ユーザーの new を1回走査し、処理済みにしたメールの件数を返す。
// 受信結果が確定したメール（保存・重複・対象外・監視停止中・読み取り不可）は cur に移す。
// DBエラーなどで結果が確定しなかったメールは new に残し、次回に再試行する。
func (p *Poller) RunOnce(ctx context.Context) (int, error) {
	users, err := os.ReadDir(p.spoolDir)
	if err != nil {
		return 0, fmt.Errorf("メール置き場を読み取れません: %w", err)
	}

	done := 0
	for _, u := range users {
		if !u.IsDir() {
			continue
		}
		if _, err := uuid.Parse(u.Name()); err != nil {
			continue
		}
		n, err := p.pollUser(ctx, u.Name())
		done += n
		if err != nil {
			p.logger.Error("ユーザーのメールの取り込みに失敗しました",
				slog.String("user_id", u.Name()),
				slog.String("error", err.Error()),
			)
		}
		if ctx.Err() != nil {
			return done, ctx.Err()
		}
	}
	return done, nil
}

func (p *Poller) pollUser(ctx context.Context, userID string) (int, error) {
	newDir := filepath.Join(p.spoolDir, userID, "new")
	curDir := filepath.Join(p.spoolDir, userID, "cur")

	entries, err := os.ReadDir(newDir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	// Maildirのファイル名は受信時刻で始まるため、名前順に取り込む
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	done := 0
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if ctx.Err() != nil {
			return done, ctx.Err()
		}

		path := filepath.Join(newDir, e.Name())
		result, err := p.ingestFile(ctx, userID, path)
		var apiErr *model.APIError
		if err != nil && !errors.As(err, &apiErr) {
			p.logger.Warn("メールの取り込みを次回に再試行します",
				slog.String("user_id", userID),
				slog.String("file", e.Name()),
				slog.String("error", err.Error()),
			)
			continue
		}

		if err := os.MkdirAll(curDir, 0o750); err != nil {
			return done, err
		}
		if err := os.Rename(path, filepath.Join(curDir, e.Name())); err != nil {
			return done, err
		}
		done++

		attrs := []any{slog.String("user_id", userID), slog.String("file", e.Name())}
		if apiErr != nil {
			attrs = append(attrs, slog.String("code", apiErr.Code))
		} else {
			attrs = append(attrs, slog.String("result", result.Result))
		}
		p.logger.Debug("メールを処理済みにしました", attrs...)
	}
	return done, nil
}

func (p *Poller) ingestFile(ctx context.Context, userID, path string) (*mailwatch.IngestResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return p.ingester.Ingest(ctx, userID, f)
}
