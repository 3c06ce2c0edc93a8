package onboarding

import (
	"strings"
	"testing"

	"github.com/hitoshi/okane/internal/model"
)

func TestReduce_FullFlow(t *testing.T) {
	answers := []struct {
		input     string
		wantState State
	}{
		{"太郎", StateName},
		{"28歳", StateAge},
		{"500万円", StateIncome},
		{"300万円", StateNetWorth},
		{"3人家族", StateFamily},
	}

	state := StateWelcome
	var p model.RawProfile
	for _, a := range answers {
		var ok bool
		state, p, ok = Reduce(state, p, a.input)
		if !ok {
			t.Fatalf("Reduce(%q) rejected", a.input)
		}
		if state != a.wantState {
			t.Fatalf("state = %q, want %q", state, a.wantState)
		}
	}

	want := model.RawProfile{Name: "太郎", Age: "28歳", AnnualIncome: "500万円", NetWorth: "300万円", FamilySize: "3人家族"}
	if p != want {
		t.Errorf("profile = %+v, want %+v", p, want)
	}
}

func TestReduce_Rejects(t *testing.T) {
	p := model.RawProfile{Name: "太郎"}

	tests := []struct {
		name  string
		state State
		input string
	}{
		{"空文字列", StateName, ""},
		{"空白のみ", StateName, "  \t\n"},
		{"全角空白のみ", StateName, "　"},
		{"familyは入力を受け付けない", StateFamily, "追加"},
		{"completeは入力を受け付けない", StateComplete, "追加"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, updated, ok := Reduce(tt.state, p, tt.input)
			if ok {
				t.Error("should be rejected")
			}
			if next != tt.state || updated != p {
				t.Errorf("state or profile changed: %q %+v", next, updated)
			}
		})
	}
}

func TestReduce_KeepsAnswerVerbatim(t *testing.T) {
	_, p, ok := Reduce(StateWelcome, model.RawProfile{}, "  太郎 ")
	if !ok || p.Name != "  太郎 " {
		t.Errorf("name = %q, ok = %v", p.Name, ok)
	}
}

func TestReduce_WritesOneFieldPerStep(t *testing.T) {
	_, p, _ := Reduce(StateAge, model.RawProfile{Name: "太郎", Age: "28"}, "500万円")
	if p.Name != "太郎" || p.Age != "28" || p.AnnualIncome != "500万円" || p.NetWorth != "" || p.FamilySize != "" {
		t.Errorf("unexpected profile: %+v", p)
	}
}

func TestPromptFor(t *testing.T) {
	p := model.RawProfile{Name: "太郎"}

	tests := []struct {
		state       State
		wantText    string
		wantEmotion model.Emotion
		wantInput   bool
	}{
		{StateWelcome, "まず、お名前を教えていただけますか？", model.EmotionSmile, true},
		{StateName, "太郎さん、よろしくお願いします！次に、年齢を教えてください。", model.EmotionNormal, true},
		{StateAge, "年収（税込み）はいくらぐらいですか？", model.EmotionNormal, true},
		{StateIncome, "現在の純資産", model.EmotionNormal, true},
		{StateNetWorth, "何人家族ですか？", model.EmotionNormal, true},
		{StateFamily, "設定が完了しました。", model.EmotionSmile, false},
		{StateComplete, "それでは始めましょう！", model.EmotionSmile, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			got := PromptFor(tt.state, p)
			if !strings.Contains(got.Text, tt.wantText) {
				t.Errorf("text = %q, want to contain %q", got.Text, tt.wantText)
			}
			if got.Emotion != tt.wantEmotion {
				t.Errorf("emotion = %q, want %q", got.Emotion, tt.wantEmotion)
			}
			if got.ShowInput != tt.wantInput {
				t.Errorf("showInput = %v, want %v", got.ShowInput, tt.wantInput)
			}
			if got.ShowInput != tt.state.AcceptsInput() {
				t.Error("ShowInput should match AcceptsInput")
			}
		})
	}
}

func TestProgress(t *testing.T) {
	tests := []struct {
		state State
		want  int
	}{
		{StateWelcome, 1},
		{StateName, 2},
		{StateAge, 3},
		{StateIncome, 4},
		{StateNetWorth, 5},
		{StateFamily, 6},
		{StateComplete, 6},
		{State("unknown"), 0},
	}

	for _, tt := range tests {
		if got := Progress(tt.state); got != tt.want {
			t.Errorf("Progress(%q) = %d, want %d", tt.state, got, tt.want)
		}
	}
	if TotalSteps != 6 {
		t.Errorf("TotalSteps = %d, want 6", TotalSteps)
	}
}
