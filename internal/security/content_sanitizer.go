package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	xhtml "golang.org/x/net/html"
)

// TextSanitizer はユーザーが入力した自由記述からHTMLを取り除く。
// 初期設定の回答、チャットのメッセージ、支払いの店舗名に使用する。
type TextSanitizer interface {
	// Sanitize はタグを除去したプレーンテキストを返す。
	// エンティティは元の文字に戻す。前後の空白は変更しない。
	Sanitize(text string) string
	// StripTags はタグだけを除去し、それ以外の文字列は入力のまま返す。
	// "&lt;b&gt;" のようなエンティティの文字列もそのまま残す。
	StripTags(text string) string
}

type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はbluemondayのStrictPolicyでタグをすべて除去するTextSanitizerを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize はタグを除去したプレーンテキストを返す。
func (s *textSanitizer) Sanitize(text string) string {
	if text == "" {
		return ""
	}
	// StrictPolicyは&や<をエンティティ化するため元に戻す
	return html.UnescapeString(s.policy.Sanitize(text))
}

// StripTags はタグだけを除去し、エンティティの文字列を含むそれ以外の入力をそのまま返す。
// 初期設定の回答のように入力どおりに保存する値に使う。
func (s *textSanitizer) StripTags(text string) string {
	if text == "" {
		return ""
	}
	// &を先にエスケープしておき、パース時にエンティティとして解釈させない
	escaped := strings.ReplaceAll(text, "&", "&amp;")
	return html.UnescapeString(s.policy.Sanitize(escaped))
}

// maxSummaryRunes はお得情報の要約の最大文字数。
const maxSummaryRunes = 200

// blockElements は前後で改行するHTML要素。
var blockElements = map[string]bool{
	"br": true, "p": true, "div": true, "tr": true, "li": true, "table": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
}

// HTMLToText はHTMLの本文から表示用のテキストを抽出する。
// script/style要素の中身は捨て、ブロック要素の境界を改行にする。
// 各行の前後の空白を除き、空行は詰める。
func HTMLToText(rawHTML string) string {
	if strings.TrimSpace(rawHTML) == "" {
		return ""
	}

	doc, err := xhtml.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return ""
	}

	var b strings.Builder
	var walk func(n *xhtml.Node)
	walk = func(n *xhtml.Node) {
		if n.Type == xhtml.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == xhtml.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == xhtml.ElementNode && blockElements[n.Data] {
			b.WriteByte('\n')
		}
	}
	walk(doc)

	var lines []string
	for _, line := range strings.Split(b.String(), "\n") {
		if l := strings.Join(strings.Fields(line), " "); l != "" {
			lines = append(lines, l)
		}
	}
	return strings.Join(lines, "\n")
}

// PlainTextSummary はフィードの説明文（HTML）から表示用の要約テキストを抽出する。
// 空白を1つにまとめ、maxSummaryRunes文字で切り詰める。
func PlainTextSummary(rawHTML string) string {
	text := strings.Join(strings.Fields(HTMLToText(rawHTML)), " ")
	runes := []rune(text)
	if len(runes) > maxSummaryRunes {
		return string(runes[:maxSummaryRunes]) + "…"
	}
	return text
}
