// Package emotion はAIの返信文からアバターの表情を決める。
package emotion

import (
	"strings"

	"github.com/hitoshi/okane/internal/model"
)

type rule struct {
	emotion  model.Emotion
	keywords []string
}

// 上から順に判定し、最初に一致した表情を採用する。
var rules = []rule{
	{model.EmotionSmile, []string{"おめでとう", "良い", "素晴らしい", "成功"}},
	{model.EmotionCry, []string{"申し訳", "残念", "失敗", "困った"}},
	{model.EmotionMad, []string{"警告", "危険", "注意", "予算を超えて"}},
}

// Classify はtextに含まれるキーワードから表情を返す。
// 判定は大文字小文字を区別しない。どれにも一致しなければnormal。
func Classify(text string) model.Emotion {
	lower := strings.ToLower(text)
	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(lower, kw) {
				return r.emotion
			}
		}
	}
	return model.EmotionNormal
}
