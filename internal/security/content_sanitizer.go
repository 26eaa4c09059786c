// Package security はアプリケーションのセキュリティ機能を提供する。
//
// DisplaySanitizer はディレクトリAPIから受け取った連絡先の表示用テキストと画像URLを無害化する。
// bluemondayのStrictPolicyで全てのタグを除去し、画像URLは安全なスキームのみ通過させる。
package security

import (
	"html"
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// DisplaySanitizer は表示用の値をサニタイズするインターフェース。
type DisplaySanitizer interface {
	// Text はマークアップを除去したプレーンテキストを返す。
	// 前後の空白は取り除く。同一入力に対して常に同一出力を返す（冪等）。
	Text(raw string) string
	// ImageURL は画像として参照してよいURLならそのまま、そうでなければ空文字列を返す。
	// 許可するのはhttp / httpsの絶対URLと、"/" で始まるサイト内パス。
	ImageURL(raw string) string
}

// displaySanitizer はDisplaySanitizerの実装。
// bluemondayのポリシーはスレッドセーフなため共有してよい。
type displaySanitizer struct {
	policy *bluemonday.Policy
}

// NewDisplaySanitizer はDisplaySanitizerの新しいインスタンスを生成する。
func NewDisplaySanitizer() *displaySanitizer {
	return &displaySanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Text はタグを除去する。StrictPolicyがエスケープした文字はJSONで返すため元に戻す。
func (s *displaySanitizer) Text(raw string) string {
	if raw == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(raw)))
}

// ImageURL はjavascript: / data: などのスキームやプロトコル相対URLを拒否する。
func (s *displaySanitizer) ImageURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}

	switch {
	case u.Scheme == "http" || u.Scheme == "https":
		if u.Host == "" {
			return ""
		}
		return u.String()
	case u.Scheme == "" && u.Host == "" && strings.HasPrefix(raw, "/") && !strings.HasPrefix(raw, "//"):
		return raw
	default:
		return ""
	}
}
