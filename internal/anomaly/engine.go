// Package anomaly は支払い1件をプロフィールから求めた月予算と
// 固定のカテゴリ・店舗ルールに照らして判定する。
//
// ルールは上から順に評価し、最初に一致したものを採用する。
//  1. 月予算（年収/12の10%）の半分を超える支払い
//  2. 娯楽カテゴリで1万円を超える支払い
//  3. ギャンブル関連の店舗
package anomaly

import (
	"context"
	"fmt"
	"strings"

	"github.com/hitoshi/okane/internal/model"
	"github.com/hitoshi/okane/internal/profile"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	// monthlyBudgetRatio は月収のうち自由に使える予算とみなす割合。
	monthlyBudgetRatio = 0.10
	// overBudgetRatio は1回の支払いで問題とみなす月予算に対する割合。
	overBudgetRatio = 0.5
	// entertainmentLimit は娯楽カテゴリで問題とみなす金額（円）。
	entertainmentLimit = 10000
	// CategoryEntertainment は娯楽カテゴリ名。
	CategoryEntertainment = "娯楽"

	reasonNormal   = "正常な支出です。"
	reasonGambling = "ギャンブル関連の支出を検出しました。財務目標達成のため控えることをお勧めします。"
)

// DefaultGamblingKeywords はギャンブル関連とみなす店舗名のキーワード。
var DefaultGamblingKeywords = []string{"パチンコ", "競馬", "スロット", "競艇", "競輪"}

var yenPrinter = message.NewPrinter(language.Japanese)

// Engine は支払い判定のルールエンジン。
type Engine struct {
	gamblingKeywords []string
}

// Option はEngineの設定を変更する。
type Option func(*Engine)

// WithGamblingKeywords はギャンブル判定に使うキーワードを差し替える。
func WithGamblingKeywords(keywords ...string) Option {
	return func(e *Engine) {
		e.gamblingKeywords = keywords
	}
}

// NewEngine はEngineを生成する。
func NewEngine(opts ...Option) *Engine {
	e := &Engine{gamblingKeywords: DefaultGamblingKeywords}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate は支払いを判定する。
// ルール判定自体は失敗しない。エラーはctxが既に終了している場合のみ返す。
func (e *Engine) Evaluate(ctx context.Context, payment model.PaymentEvent, p model.RawProfile) (model.AnomalyVerdict, error) {
	if err := ctx.Err(); err != nil {
		return model.AnomalyVerdict{}, fmt.Errorf("支払い判定が中断されました: %w", err)
	}

	annualIncome := profile.ExtractDigits(p.AnnualIncome, 1)
	monthlyBudget := float64(annualIncome) / 12 * monthlyBudgetRatio

	if float64(payment.Amount) > monthlyBudget*overBudgetRatio {
		return model.AnomalyVerdict{
			IsProblematic: true,
			Reason:        fmt.Sprintf("高額な支出を検出しました。%sで¥%sは月予算の半分以上です。", payment.Merchant, FormatYen(payment.Amount)),
			Rule:          model.AnomalyRuleOverBudget,
		}, nil
	}

	if payment.Category == CategoryEntertainment && payment.Amount > entertainmentLimit {
		return model.AnomalyVerdict{
			IsProblematic: true,
			Reason:        fmt.Sprintf("娯楽費が高額です。%sでの¥%sの支出は予算を見直すことをお勧めします。", payment.Merchant, FormatYen(payment.Amount)),
			Rule:          model.AnomalyRuleEntertainment,
		}, nil
	}

	for _, kw := range e.gamblingKeywords {
		if strings.Contains(payment.Merchant, kw) {
			return model.AnomalyVerdict{
				IsProblematic: true,
				Reason:        reasonGambling,
				Rule:          model.AnomalyRuleGambling,
			}, nil
		}
	}

	return model.AnomalyVerdict{
		IsProblematic: false,
		Reason:        reasonNormal,
		Rule:          model.AnomalyRuleNone,
	}, nil
}

// FormatYen は金額を3桁区切りで整形する（25000 → "25,000"）。
func FormatYen(amount int64) string {
	return yenPrinter.Sprintf("%d", amount)
}
