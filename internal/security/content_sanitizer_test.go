package security

import (
	"sync"
	"testing"
)

// TestText_StripsMarkup はタグが除去されテキストのみが残ることを検証する。
func TestText_StripsMarkup(t *testing.T) {
	sanitizer := NewDisplaySanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "プレーンテキストはそのまま", input: "Ada Lovelace", want: "Ada Lovelace"},
		{name: "太字タグを除去", input: "<b>Ada</b> Lovelace", want: "Ada Lovelace"},
		{name: "scriptタグを内容ごと除去", input: `Ada<script>alert("x")</script>`, want: "Ada"},
		{name: "imgのonerror属性を除去", input: `<img src=x onerror=alert(1)>Ada`, want: "Ada"},
		{name: "アンパサンドは元の文字に戻す", input: "Tom & Jerry", want: "Tom & Jerry"},
		{name: "前後の空白を除去", input: "  Ada  ", want: "Ada"},
		{name: "日本語", input: "<i>山田</i> 太郎", want: "山田 太郎"},
		{name: "空文字列", input: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizer.Text(tt.input); got != tt.want {
				t.Errorf("Text(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// TestText_Idempotent は同一入力に対して常に同一出力を返すことを検証する。
func TestText_Idempotent(t *testing.T) {
	sanitizer := NewDisplaySanitizer()
	input := "<p>Ada &amp; <em>Grace</em></p>"

	first := sanitizer.Text(input)
	for i := 0; i < 5; i++ {
		if got := sanitizer.Text(input); got != first {
			t.Fatalf("iteration %d: got %q, want %q", i, got, first)
		}
	}
}

// TestImageURL は画像URLの許可・拒否を検証する。
func TestImageURL(t *testing.T) {
	sanitizer := NewDisplaySanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "httpsの絶対URL", input: "https://cdn.example.com/a.png", want: "https://cdn.example.com/a.png"},
		{name: "httpの絶対URL", input: "http://localhost:5000/uploads/a.png", want: "http://localhost:5000/uploads/a.png"},
		{name: "サイト内パス", input: "/uploads/a.png", want: "/uploads/a.png"},
		{name: "javascriptスキームは拒否", input: "javascript:alert(1)", want: ""},
		{name: "dataスキームは拒否", input: "data:image/png;base64,AAAA", want: ""},
		{name: "プロトコル相対URLは拒否", input: "//evil.example.com/a.png", want: ""},
		{name: "ホストなしのhttpsは拒否", input: "https:///a.png", want: ""},
		{name: "相対パスは拒否", input: "uploads/a.png", want: ""},
		{name: "空文字列", input: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizer.ImageURL(tt.input); got != tt.want {
				t.Errorf("ImageURL(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// TestDisplaySanitizer_ConcurrentUse は並行呼び出しで競合しないことを検証する。
func TestDisplaySanitizer_ConcurrentUse(t *testing.T) {
	sanitizer := NewDisplaySanitizer()
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if got := sanitizer.Text("<b>x</b>"); got != "x" {
				t.Errorf("Text = %q", got)
			}
		}()
	}
	wg.Wait()
}

var _ DisplaySanitizer = (*displaySanitizer)(nil)
