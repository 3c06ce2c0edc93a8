package mailwatch

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/width"

	"github.com/hitoshi/okane/internal/model"
)

// MailCategory はメールから取り出した支払いのカテゴリ名。
const MailCategory = "カード利用"

var (
	reAmount   = regexp.MustCompile(`(?m)(?:ご利用金額|利用金額|お支払い金額|お支払金額|支払金額|ご請求金額)\s*:?\s*¥?\s*([0-9][0-9,]*)\s*円?`)
	reMerchant = regexp.MustCompile(`(?m)(?:ご利用先|利用先|ご利用店名|利用店名|加盟店名|店舗名)\s*:?[ \t]*(\S[^\n]*)$`)
)

// ExtractPayment はカード会社の利用通知メールの本文から金額と利用先を取り出す。
// 全角の数字・記号は半角として扱う。どちらかが見つからない場合はokがfalse。
func ExtractPayment(m *model.MailMessage) (event model.PaymentEvent, ok bool) {
	text := width.Fold.String(m.Body)

	am := reAmount.FindStringSubmatch(text)
	if am == nil {
		return model.PaymentEvent{}, false
	}
	amount, err := strconv.ParseInt(strings.ReplaceAll(am[1], ",", ""), 10, 64)
	if err != nil {
		return model.PaymentEvent{}, false
	}

	mm := reMerchant.FindStringSubmatch(text)
	if mm == nil {
		return model.PaymentEvent{}, false
	}
	merchant := strings.TrimSpace(mm[1])
	if merchant == "" {
		return model.PaymentEvent{}, false
	}

	return model.PaymentEvent{
		Amount:    amount,
		Merchant:  merchant,
		Category:  MailCategory,
		Timestamp: m.ReceivedAt,
	}, true
}
