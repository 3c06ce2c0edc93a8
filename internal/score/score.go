// Package score はプロフィールからお財布スコアを算出する。
package score

import (
	"math"

	"github.com/hitoshi/okane/internal/model"
	"github.com/hitoshi/okane/internal/profile"
)

// プロフィールが無い場合の既定スコア。
const defaultScore = 50

// 数値を読み取れない場合の既定値。
const (
	fallbackIncome     = 1
	fallbackNetWorth   = 0
	fallbackAge        = 25
	fallbackFamilySize = 1
)

// Compute はRawProfileからスコアの内訳を算出する。
// pがnilの場合は全項目50を返す。
//
// 数値は profile.ExtractDigits で取り出すため「500万円」は500として扱う。
// 読み取った値が0の場合も既定値を使う。
// WasteLevelは上限を設けないため、OverallScoreも0〜100を外れることがある。
func Compute(p *model.RawProfile) model.ScoreBreakdown {
	if p == nil {
		return model.ScoreBreakdown{
			SavingsRate:     defaultScore,
			WasteLevel:      defaultScore,
			Diversification: defaultScore,
			OverallScore:    defaultScore,
		}
	}

	income := float64(digitsOr(p.AnnualIncome, fallbackIncome))
	netWorth := float64(digitsOr(p.NetWorth, fallbackNetWorth))
	age := float64(digitsOr(p.Age, fallbackAge))
	familySize := float64(digitsOr(p.FamilySize, fallbackFamilySize))

	savingsRate := clamp(netWorth/income*20, 20, 95)
	wasteLevel := math.Max(60-age+familySize*5, 10)
	diversification := clamp(netWorth/50000*20+30, 30, 90)

	overall := math.Round((savingsRate + (100 - wasteLevel) + diversification) / 3)

	return model.ScoreBreakdown{
		SavingsRate:     int(math.Round(savingsRate)),
		WasteLevel:      int(math.Round(wasteLevel)),
		Diversification: int(math.Round(diversification)),
		OverallScore:    int(overall),
	}
}

// digitsOr は数字を取り出し、取り出せないか0の場合はfallbackを返す。
func digitsOr(text string, fallback int) int {
	n := profile.ExtractDigits(text, fallback)
	if n == 0 {
		return fallback
	}
	return n
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
