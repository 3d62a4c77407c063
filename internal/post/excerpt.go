package post

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ExcerptMaxLength は自動生成される抜粋の最大文字数。
const ExcerptMaxLength = 150

// excerptPolicy はマークアップを全て除去するポリシー。
var excerptPolicy = bluemonday.StrictPolicy()

// Excerpt は記事本文からプレーンテキストの抜粋を導出する。
// マークアップを除去し、実体参照を復号したうえで150文字に切り詰める。
// 切り詰めが発生した場合のみ末尾に "..." を付与する。
// 決定的な純粋関数であり、明示的な抜粋が与えられない場合にのみ使われる。
func Excerpt(content string) string {
	plain := html.UnescapeString(excerptPolicy.Sanitize(content))
	plain = strings.TrimSpace(plain)

	runes := []rune(plain)
	if len(runes) <= ExcerptMaxLength {
		return plain
	}
	return string(runes[:ExcerptMaxLength]) + "..."
}
