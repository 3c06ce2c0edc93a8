package model

import "time"

// RawProfile は初期設定の質問で集めた自由記述のプロフィール。
// 入力値は検証せずそのまま保持する（空でないことのみ保証）。
type RawProfile struct {
	Name         string `json:"name"`
	Age          string `json:"age"`
	AnnualIncome string `json:"annualIncome"`
	NetWorth     string `json:"netWorth"`
	FamilySize   string `json:"familySize"`
}

// FamilyStructure は世帯構成の区分。
type FamilyStructure string

const (
	// FamilyStructureSingle は単身世帯。
	FamilyStructureSingle FamilyStructure = "single"
	// FamilyStructureMarried は夫婦世帯。
	FamilyStructureMarried FamilyStructure = "married"
)

// StructuredProfile は永続化・API交換用に正規化したプロフィール。
// RawProfileから決定的に導出され、直接編集されることはない。
type StructuredProfile struct {
	UserID           string          `json:"userId,omitempty"`
	Name             string          `json:"name"`
	BirthDate        *time.Time      `json:"birthDate,omitempty"`
	Occupation       string          `json:"occupation,omitempty"`
	FamilyStructure  FamilyStructure `json:"familyStructure"`
	NumberOfChildren int             `json:"numberOfChildren"`
	UpdatedAt        time.Time       `json:"-"`
}

// ScoreBreakdown はお財布スコアの内訳。
// WasteLevelとOverallScoreは上限でクランプしないため100を超えることがある。
type ScoreBreakdown struct {
	SavingsRate     int `json:"savingsRate"`
	WasteLevel      int `json:"wasteLevel"`
	Diversification int `json:"diversification"`
	OverallScore    int `json:"overallScore"`
}
