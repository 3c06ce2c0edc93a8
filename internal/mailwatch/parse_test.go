package mailwatch

import (
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/okane/internal/security"
)

var receivedAt = time.Date(2025, time.January, 10, 9, 0, 0, 0, time.UTC)

const plainMail = "From: Card Info <Info@Card.example.jp>\n" +
	"To: taro@example.com\n" +
	"Subject: =?ISO-2022-JP?B?GyRCJDRNeE1RJE4kKkNOJGkkOxsoQg==?=\n" +
	"Date: Fri, 10 Jan 2025 18:30:00 +0900\n" +
	"Message-ID: <abc123@card.example.jp>\n" +
	"MIME-Version: 1.0\n" +
	"Content-Type: text/plain; charset=ISO-2022-JP\n" +
	"Content-Transfer-Encoding: base64\n" +
	"\n" +
	"GyRCJDRNeE1RNmIzWyEnIzEhJCMyIzgjMDFfGyhCDQobJEIkNE14TVFAaCEnJTslViVzJSQlbCVW\n" +
	"JXMhIUtcRTkbKEINCg==\n"

const multipartMail = "From: =?UTF-8?B?44Kr44O844OJ5Lya56S+?= <notice@bank.example.jp>\n" +
	"Subject: =?UTF-8?B?44GU5Yip55So44Gu44GK55+l44KJ44Gb?=\n" +
	"Date: Sat, 11 Jan 2025 08:00:00 +0900\n" +
	"Message-ID: <m-2@bank.example.jp>\n" +
	"MIME-Version: 1.0\n" +
	"Content-Type: multipart/mixed; boundary=\"outer\"\n" +
	"\n" +
	"--outer\n" +
	"Content-Type: multipart/alternative; boundary=\"inner\"\n" +
	"\n" +
	"--inner\n" +
	"Content-Type: text/plain; charset=UTF-8\n" +
	"Content-Transfer-Encoding: quoted-printable\n" +
	"\n" +
	"=E5=88=A9=E7=94=A8=E5=BA=97=E5=90=8D: =E3=82=A4=E3=82=AA=E3=83=B3\n" +
	"=E5=88=A9=E7=94=A8=E9=87=91=E9=A1=8D: 3,000=E5=86=86\n" +
	"--inner\n" +
	"Content-Type: text/html; charset=UTF-8\n" +
	"\n" +
	"<p>HTML版</p>\n" +
	"--inner--\n" +
	"--outer\n" +
	"Content-Type: application/pdf\n" +
	"Content-Disposition: attachment; filename=\"meisai.pdf\"\n" +
	"Content-Transfer-Encoding: base64\n" +
	"\n" +
	"JVBERi0xLjQK\n" +
	"--outer--\n"

const htmlOnlyMail = "From: shop@example.jp\n" +
	"Subject: Receipt\n" +
	"Content-Type: text/html; charset=UTF-8\n" +
	"Content-Transfer-Encoding: base64\n" +
	"\n" +
	"PGh0bWw+PGJvZHk+PHA+44GU5Yip55So5YWI77ya44OR44OB44Oz44Kz5bqXPC9wPjxwPuOBlOWIqeeUqOmHkemhje+8mjgsMDAw5YaGPC9wPjwvYm9keT48L2h0bWw+\n"

func TestParseMessage_ISO2022JP(t *testing.T) {
	m, err := ParseMessage(strings.NewReader(plainMail), security.HTMLToText, receivedAt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if m.Subject != "ご利用のお知らせ" {
		t.Errorf("subject = %q", m.Subject)
	}
	if m.SenderRaw != "Card Info <Info@Card.example.jp>" {
		t.Errorf("senderRaw = %q", m.SenderRaw)
	}
	if m.SenderEmail != "info@card.example.jp" {
		t.Errorf("senderEmail = %q, want lower-cased address", m.SenderEmail)
	}
	if m.MessageID != "abc123@card.example.jp" {
		t.Errorf("messageID = %q", m.MessageID)
	}
	if want := time.Date(2025, time.January, 10, 9, 30, 0, 0, time.UTC); !m.ReceivedAt.Equal(want) {
		t.Errorf("receivedAt = %v, want %v", m.ReceivedAt, want)
	}
	if m.Body != "ご利用金額：１，２８０円\nご利用先：セブンイレブン　本店" {
		t.Errorf("body = %q", m.Body)
	}
}

func TestParseMessage_NestedMultipart(t *testing.T) {
	m, err := ParseMessage(strings.NewReader(multipartMail), security.HTMLToText, receivedAt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if m.SenderRaw != "カード会社 <notice@bank.example.jp>" {
		t.Errorf("senderRaw = %q", m.SenderRaw)
	}
	if m.Subject != "ご利用のお知らせ" {
		t.Errorf("subject = %q", m.Subject)
	}
	// text/plainを優先し、添付ファイルは読まない
	if m.Body != "利用店名: イオン\n利用金額: 3,000円" {
		t.Errorf("body = %q", m.Body)
	}
}

func TestParseMessage_HTMLOnlyAndMissingHeaders(t *testing.T) {
	m, err := ParseMessage(strings.NewReader(htmlOnlyMail), security.HTMLToText, receivedAt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if m.Body != "ご利用先：パチンコ店\nご利用金額：8,000円" {
		t.Errorf("body = %q", m.Body)
	}
	if !m.ReceivedAt.Equal(receivedAt) {
		t.Errorf("Dateが無い場合は受信時刻を使う: %v", m.ReceivedAt)
	}
	if !strings.HasPrefix(m.MessageID, "generated-") {
		t.Errorf("messageID = %q, want generated id", m.MessageID)
	}

	again, err := ParseMessage(strings.NewReader(htmlOnlyMail), security.HTMLToText, receivedAt.Add(time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again.MessageID != m.MessageID {
		t.Errorf("同じメールには同じIDを付ける: %q != %q", again.MessageID, m.MessageID)
	}
}

func TestParseMessage_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"ヘッダーが無い", "not a mail"},
		{"boundaryが無いmultipart", "From: a@example.com\nContent-Type: multipart/mixed\n\nbody\n"},
		{"大きすぎる", "From: a@example.com\n\n" + strings.Repeat("a", maxMessageBytes)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseMessage(strings.NewReader(tt.input), security.HTMLToText, receivedAt); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestSenderAddress(t *testing.T) {
	tests := []struct {
		from string
		want string
	}{
		{"Info@Example.JP", "info@example.jp"},
		{"Card <Card@Example.jp>", "card@example.jp"},
		{"壊れた表示名 <broken@example.jp>", "broken@example.jp"},
	}

	for _, tt := range tests {
		t.Run(tt.from, func(t *testing.T) {
			if got := senderAddress(tt.from); got != tt.want {
				t.Errorf("senderAddress(%q) = %q, want %q", tt.from, got, tt.want)
			}
		})
	}
}
