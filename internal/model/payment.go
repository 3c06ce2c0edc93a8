package model

import "time"

// PaymentEvent は外部（実際の決済通知またはシミュレーション）から届く1件の支払い。
// 金額は円単位の整数で、生成後は変更しない。
type PaymentEvent struct {
	ID        string    `json:"id"`
	Amount    int64     `json:"amount"`
	Merchant  string    `json:"merchant"`
	Category  string    `json:"category"`
	Timestamp time.Time `json:"timestamp"`
}

// AnomalyRule は判定で一致したルール。
type AnomalyRule string

const (
	AnomalyRuleOverBudget    AnomalyRule = "over_budget"
	AnomalyRuleEntertainment AnomalyRule = "entertainment"
	AnomalyRuleGambling      AnomalyRule = "gambling"
	AnomalyRuleNone          AnomalyRule = "none"
)

// AnomalyVerdict は支払い1件に対する判定結果。
type AnomalyVerdict struct {
	IsProblematic bool        `json:"isProblematic"`
	Reason        string      `json:"reason"`
	Rule          AnomalyRule `json:"rule"`
}
