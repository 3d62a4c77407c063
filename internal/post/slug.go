// Package post はブログ記事のドメインロジックを提供する。
// スラッグ・抜粋の導出と記事CRUDのサービス層を含む。
package post

import "strings"

// Slugify はタイトルからURLセーフなスラッグを導出する。
// 小文字化したのち、英数字・スペース・ハイフン以外の文字を除去し、
// 空白の連続を1つのハイフンに置換し、ハイフンの連続を1つに圧縮し、
// 先頭・末尾のハイフンを取り除く。
// 決定的な純粋関数であり、英数字を含まないタイトルには空文字列を返す
// （空タイトルの拒否は呼び出し側の責務）。
// スラッグの衝突回避は行わず、一意性はデータストアの制約に委ねる。
func Slugify(title string) string {
	lower := strings.ToLower(title)

	// 英数字・スペース・ハイフン以外を除去
	var b strings.Builder
	b.Grow(len(lower))
	for _, r := range lower {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == ' ', r == '-':
			b.WriteRune(r)
		}
	}

	// 空白の連続をハイフンに置換
	slug := strings.Join(strings.Fields(b.String()), "-")

	// ハイフンの連続を1つに圧縮
	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}

	return strings.Trim(slug, "-")
}
