// Package onboarding は初期設定の質問フローを提供する。
//
// 状態は welcome → name → age → income → networth → family → complete の順に
// 一方向にだけ進む。回答1件ごとにRawProfileのフィールドを1つだけ書き込み、
// 書き込んだフィールドは上書きしない。
//
// 状態遷移は純粋関数 Reduce で表し、家族構成の回答後の待ち時間は
// Session が schedule.Scheduler を使って発行する。
package onboarding

import (
	"fmt"
	"strings"

	"github.com/hitoshi/okane/internal/model"
)

// State は初期設定フローの状態。
type State string

const (
	StateWelcome  State = "welcome"
	StateName     State = "name"
	StateAge      State = "age"
	StateIncome   State = "income"
	StateNetWorth State = "networth"
	StateFamily   State = "family"
	StateComplete State = "complete"
)

// visibleSteps は進捗インジケーターに表示するステップ。
var visibleSteps = []State{StateWelcome, StateName, StateAge, StateIncome, StateNetWorth, StateFamily}

// TotalSteps は進捗インジケーターのステップ数。
var TotalSteps = len(visibleSteps)

// AcceptsInput は状態が回答の入力を受け付けるかを返す。
func (s State) AcceptsInput() bool {
	switch s {
	case StateWelcome, StateName, StateAge, StateIncome, StateNetWorth:
		return true
	default:
		return false
	}
}

// Reduce は現在の状態と回答から次の状態と更新後のプロフィールを返す。
// 空白のみの回答、または入力を受け付けない状態での回答は拒否し、
// 状態とプロフィールをそのまま返す（okはfalse）。
// 回答は前後の空白も含めてそのまま保存する。
func Reduce(state State, p model.RawProfile, input string) (next State, updated model.RawProfile, ok bool) {
	if strings.TrimSpace(input) == "" || !state.AcceptsInput() {
		return state, p, false
	}

	switch state {
	case StateWelcome:
		p.Name = input
		return StateName, p, true
	case StateName:
		p.Age = input
		return StateAge, p, true
	case StateAge:
		p.AnnualIncome = input
		return StateIncome, p, true
	case StateIncome:
		p.NetWorth = input
		return StateNetWorth, p, true
	case StateNetWorth:
		p.FamilySize = input
		return StateFamily, p, true
	}
	return state, p, false
}

// Prompt は状態ごとのAIの問いかけと入力欄の表示内容。
type Prompt struct {
	Text        string        `json:"text"`
	Emotion     model.Emotion `json:"emotion"`
	Placeholder string        `json:"placeholder,omitempty"`
	ShowInput   bool          `json:"showInput"`
}

// PromptFor は状態に応じた問いかけを返す。nameの問いかけには回答済みの名前を含める。
func PromptFor(state State, p model.RawProfile) Prompt {
	switch state {
	case StateWelcome:
		return Prompt{
			Text:        "こんにちは！私はあなたの財務アシスタントです。最適なアドバイスをするために、いくつか質問させてください。まず、お名前を教えていただけますか？",
			Emotion:     model.EmotionSmile,
			Placeholder: "お名前を入力してください",
			ShowInput:   true,
		}
	case StateName:
		return Prompt{
			Text:        fmt.Sprintf("%sさん、よろしくお願いします！次に、年齢を教えてください。", p.Name),
			Emotion:     model.EmotionNormal,
			Placeholder: "年齢を入力してください（例：28歳）",
			ShowInput:   true,
		}
	case StateAge:
		return Prompt{
			Text:        "年収（税込み）はいくらぐらいですか？例：500万円",
			Emotion:     model.EmotionNormal,
			Placeholder: "年収を入力してください（例：500万円）",
			ShowInput:   true,
		}
	case StateIncome:
		return Prompt{
			Text:        "現在の純資産（貯金・投資など）はどのくらいありますか？例：300万円",
			Emotion:     model.EmotionNormal,
			Placeholder: "純資産を入力してください（例：300万円）",
			ShowInput:   true,
		}
	case StateNetWorth:
		return Prompt{
			Text:        "家族構成を教えてください。何人家族ですか？例：3人（夫婦＋子ども1人）",
			Emotion:     model.EmotionNormal,
			Placeholder: "家族構成を入力してください（例：3人家族）",
			ShowInput:   true,
		}
	case StateFamily:
		return Prompt{
			Text:    "ありがとうございます！設定が完了しました。これであなたに最適な財務アドバイスができます！",
			Emotion: model.EmotionSmile,
		}
	case StateComplete:
		return Prompt{
			Text:    "それでは始めましょう！",
			Emotion: model.EmotionSmile,
		}
	}
	return Prompt{Emotion: model.EmotionNormal}
}

// Progress は進捗インジケーターで完了済みとして表示するステップ数を返す。
// welcomeは1、familyは6、completeは全ステップ完了として6を返す。
func Progress(state State) int {
	if state == StateComplete {
		return TotalSteps
	}
	for i, s := range visibleSteps {
		if s == state {
			return i + 1
		}
	}
	return 0
}
