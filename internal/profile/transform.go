// Package profile は初期設定で集めた自由記述プロフィールと
// 永続化用の構造化プロフィールの相互変換、およびプロフィールの保存・読み込みを提供する。
//
// 変換関数はすべて全域関数で、不正な入力に対してもエラーを返さず
// 既定値にフォールバックする。
package profile

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/okane/internal/model"
)

const (
	// defaultAge は年齢から数字を取り出せなかった場合の既定値。
	defaultAge = 28
	// adultsInMarriedHousehold は世帯人数から子どもの数を求める際に差し引く大人の人数。
	adultsInMarriedHousehold = 2
)

var digitRun = regexp.MustCompile(`[0-9]+`)

// onePersonWords は数字を使わずに単身を表す語。
var onePersonWords = []string{"一人", "ひとり", "独身", "単身"}

// ExtractDigits はtextから数字以外の文字をすべて取り除き、残りを10進整数として返す。
// 数字が残らない場合（またはintに収まらない場合）はfallbackを返す。
// 「万」などの単位語は解釈しない（"500万円" は 500）。
func ExtractDigits(text string, fallback int) int {
	var b strings.Builder
	for _, r := range text {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return fallback
	}
	n, err := strconv.Atoi(b.String())
	if err != nil {
		return fallback
	}
	return n
}

// AgeToBirthDate は年齢の記述からおおよその生年月日を求める。
// 年齢が読み取れない場合は28歳とみなし、now の年から年齢を引いた年の1月1日（UTC）を返す。
func AgeToBirthDate(ageText string, now time.Time) time.Time {
	age := ExtractDigits(ageText, defaultAge)
	return time.Date(now.Year()-age, time.January, 1, 0, 0, 0, 0, time.UTC)
}

// FamilySizeToStructure は家族構成の記述から世帯区分と子どもの数を推定する。
// 最初に現れる数字を世帯人数Nとみなす。Nが1（"1人"）または数字が無く単身を表す語を含む場合は
// 単身・子ども0人、それ以外は夫婦世帯で子どもの数を max(0, N-2) とする。
// "3人（夫婦＋子ども1人）" は世帯人数3として扱う。
func FamilySizeToStructure(text string) (model.FamilyStructure, int) {
	m := digitRun.FindString(text)
	if m == "" {
		for _, w := range onePersonWords {
			if strings.Contains(text, w) {
				return model.FamilyStructureSingle, 0
			}
		}
		return model.FamilyStructureMarried, 0
	}

	n, err := strconv.Atoi(m)
	if err != nil {
		return model.FamilyStructureMarried, 0
	}
	if n == 1 {
		return model.FamilyStructureSingle, 0
	}
	return model.FamilyStructureMarried, max(0, n-adultsInMarriedHousehold)
}

// ToStructured はRawProfileから構造化プロフィールを導出する。
func ToStructured(userID string, raw model.RawProfile, now time.Time) model.StructuredProfile {
	birth := AgeToBirthDate(raw.Age, now)
	structure, children := FamilySizeToStructure(raw.FamilySize)
	return model.StructuredProfile{
		UserID:           userID,
		Name:             raw.Name,
		BirthDate:        &birth,
		FamilyStructure:  structure,
		NumberOfChildren: children,
	}
}

// ToRaw は構造化プロフィールから表示用のRawProfileを復元する。
// 年収・純資産は構造化プロフィールに含まれないため空になる。
func ToRaw(sp model.StructuredProfile, now time.Time) model.RawProfile {
	raw := model.RawProfile{Name: sp.Name}

	if sp.BirthDate != nil {
		raw.Age = fmt.Sprintf("%d歳", now.Year()-sp.BirthDate.Year())
	}

	switch sp.FamilyStructure {
	case model.FamilyStructureSingle:
		raw.FamilySize = "1人"
	case model.FamilyStructureMarried:
		raw.FamilySize = fmt.Sprintf("%d人", sp.NumberOfChildren+adultsInMarriedHousehold)
	}

	return raw
}
