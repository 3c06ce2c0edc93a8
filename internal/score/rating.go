package score

// Rating は総合スコアの評価区分。
type Rating struct {
	Label string `json:"label"`
	Color string `json:"color"`
}

var (
	ratingExcellent = Rating{Label: "優秀", Color: "#10b981"}
	ratingGood      = Rating{Label: "良好", Color: "#3b82f6"}
	ratingFair      = Rating{Label: "要改善", Color: "#f59e0b"}
	ratingPoor      = Rating{Label: "注意", Color: "#ef4444"}
)

// Rate は総合スコアを評価区分に変換する。
func Rate(overall int) Rating {
	switch {
	case overall >= 80:
		return ratingExcellent
	case overall >= 60:
		return ratingGood
	case overall >= 40:
		return ratingFair
	default:
		return ratingPoor
	}
}

// Advice は総合スコアに応じた改善アドバイスを返す。60以上の場合は空文字列。
func Advice(overall int) string {
	switch {
	case overall < 40:
		return "貯蓄習慣の見直しと無駄遣いの削減から始めましょう"
	case overall < 60:
		return "分散投資を検討して、より安定した資産形成を目指しましょう"
	default:
		return ""
	}
}
