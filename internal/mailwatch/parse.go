package mailwatch

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/text/encoding/htmlindex"

	"github.com/hitoshi/okane/internal/model"
)

const (
	// maxMessageBytes は1通のメールとして読み込む上限。
	maxMessageBytes = 2 << 20
	// maxBodyRunes は保存する本文の最大文字数。
	maxBodyRunes = 5000
	// maxPartDepth はmultipartの入れ子をたどる深さの上限。
	maxPartDepth = 5
)

// errTooLarge はメールが上限を超えた場合のエラー。
var errTooLarge = errors.New("メールが大きすぎます")

// charsetReader はUTF-8以外の文字コード（ISO-2022-JP、Shift_JISなど）をUTF-8に変換する。
func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, fmt.Errorf("未対応の文字コードです: %s", charset)
	}
	return enc.NewDecoder().Reader(input), nil
}

var wordDecoder = &mime.WordDecoder{CharsetReader: charsetReader}

// ParseMessage はRFC 5322形式のメールを読み取り、保存前のMailMessageを返す。
// htmlToTextはHTMLのみのメール本文をテキストにする関数。
// Message-IDが無い場合は送信元・日時・件名から決まるIDを生成する。
// Dateヘッダーが無いか読めない場合はreceivedAtを受信日時とする。
func ParseMessage(r io.Reader, htmlToText func(string) string, receivedAt time.Time) (*model.MailMessage, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxMessageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("メールの読み込みに失敗しました: %w", err)
	}
	if len(data) > maxMessageBytes {
		return nil, errTooLarge
	}

	msg, err := mail.ReadMessage(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("メールヘッダーを読み取れません: %w", err)
	}

	out := &model.MailMessage{
		SenderRaw:  decodeHeader(msg.Header.Get("From")),
		Subject:    decodeHeader(msg.Header.Get("Subject")),
		ReceivedAt: receivedAt,
	}
	out.SenderEmail = senderAddress(msg.Header.Get("From"))
	if date, err := msg.Header.Date(); err == nil {
		out.ReceivedAt = date
	}

	out.MessageID = strings.Trim(strings.TrimSpace(msg.Header.Get("Message-Id")), "<>")
	if out.MessageID == "" {
		out.MessageID = syntheticMessageID(msg.Header)
	}

	plain, html, err := readBody(msg.Header, msg.Body, 0)
	if err != nil {
		return nil, fmt.Errorf("メール本文を読み取れません: %w", err)
	}
	body := plain
	if strings.TrimSpace(body) == "" && html != "" && htmlToText != nil {
		body = htmlToText(html)
	}
	out.Body = truncateRunes(normalizeNewlines(body), maxBodyRunes)
	return out, nil
}

// decodeHeader はRFC 2047でエンコードされたヘッダー値をデコードする。
// デコードできない場合は元の値を返す。
func decodeHeader(v string) string {
	decoded, err := wordDecoder.DecodeHeader(v)
	if err != nil {
		return strings.TrimSpace(v)
	}
	return strings.TrimSpace(decoded)
}

// senderAddress はFromヘッダーからメールアドレスを取り出して小文字にする。
func senderAddress(from string) string {
	parser := &mail.AddressParser{WordDecoder: wordDecoder}
	if addr, err := parser.Parse(from); err == nil {
		return strings.ToLower(addr.Address)
	}
	// 表示名が規格外でも <...> があればアドレスとして扱う
	if start := strings.LastIndex(from, "<"); start >= 0 {
		if end := strings.Index(from[start:], ">"); end > 0 {
			return strings.ToLower(strings.TrimSpace(from[start+1 : start+end]))
		}
	}
	return strings.ToLower(strings.TrimSpace(from))
}

// syntheticMessageID はMessage-IDの無いメールに付けるIDを返す。
// 同じメールを再送しても同じIDになるよう、送信元・日時・件名から求める。
func syntheticMessageID(h mail.Header) string {
	sum := sha256.Sum256([]byte(h.Get("From") + "\n" + h.Get("Date") + "\n" + h.Get("Subject")))
	return "generated-" + hex.EncodeToString(sum[:16])
}

// partHeader はメール本体とmultipartの各パートに共通するヘッダーの取得口。
type partHeader interface {
	Get(key string) string
}

// readBody は本文を読み、text/plainとtext/htmlのそれぞれ最初のパートを返す。
func readBody(h partHeader, body io.Reader, depth int) (plain, html string, err error) {
	mediaType, params, err := mime.ParseMediaType(h.Get("Content-Type"))
	if err != nil {
		mediaType, params = "text/plain", map[string]string{}
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		if depth >= maxPartDepth {
			return "", "", nil
		}
		boundary := params["boundary"]
		if boundary == "" {
			return "", "", errors.New("multipartのboundaryがありません")
		}
		mr := multipart.NewReader(body, boundary)
		for {
			part, err := mr.NextRawPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				return plain, html, err
			}
			partPlain, partHTML, err := readBody(part.Header, part, depth+1)
			if err != nil {
				return plain, html, err
			}
			if plain == "" {
				plain = partPlain
			}
			if html == "" {
				html = partHTML
			}
		}
		return plain, html, nil
	}

	if mediaType != "text/plain" && mediaType != "text/html" {
		// 添付ファイルなどは読まない
		return "", "", nil
	}
	if strings.HasPrefix(strings.ToLower(h.Get("Content-Disposition")), "attachment") {
		return "", "", nil
	}

	text, err := decodePart(body, h.Get("Content-Transfer-Encoding"), params["charset"])
	if err != nil {
		return "", "", err
	}
	if mediaType == "text/html" {
		return "", text, nil
	}
	return text, "", nil
}

// decodePart は転送エンコーディングと文字コードを解いてUTF-8の文字列にする。
// 未対応の文字コードは変換せずに読む。
func decodePart(body io.Reader, transferEncoding, charset string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(transferEncoding)) {
	case "quoted-printable":
		body = quotedprintable.NewReader(body)
	case "base64":
		body = base64.NewDecoder(base64.StdEncoding, body)
	}

	switch strings.ToLower(strings.TrimSpace(charset)) {
	case "", "utf-8", "utf8", "us-ascii":
	default:
		// 未対応の文字コードはそのまま読む
		if r, err := charsetReader(charset, body); err == nil {
			body = r
		}
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.TrimSpace(strings.ReplaceAll(s, "\r", "\n"))
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
