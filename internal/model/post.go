// Package model はドメインモデルを定義する。
package model

import "time"

// Category は記事のカテゴリを表す。
type Category string

const (
	// CategoryTech は技術カテゴリ。
	CategoryTech Category = "tech"
	// CategoryStartup はスタートアップカテゴリ。
	CategoryStartup Category = "startup"
	// CategoryVacancy は求人カテゴリ。
	CategoryVacancy Category = "vacancy"
	// CategoryFinance は金融カテゴリ。
	CategoryFinance Category = "finance"
	// CategoryNews はニュースカテゴリ。
	CategoryNews Category = "news"
)

// ValidCategories は許可されたカテゴリのセット。
var ValidCategories = map[Category]bool{
	CategoryTech:    true,
	CategoryStartup: true,
	CategoryVacancy: true,
	CategoryFinance: true,
	CategoryNews:    true,
}

// FeaturedImage はブロブストア上のアイキャッチ画像への参照を表す。
// FileIDは削除要求に使用するハンドル。
type FeaturedImage struct {
	URL          string
	FileID       string
	ThumbnailURL string
}

// Post はブログ記事を表す。
type Post struct {
	ID          string
	Title       string
	Slug        string
	Content     string // サニタイズ済みHTML
	Excerpt     string // プレーンテキストの要約（最大150文字+省略記号）
	Category    Category
	Author      string
	Tags        []string
	Published   bool
	PublishedAt *time.Time
	Image       *FeaturedImage
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// MinCommentLength はコメント本文の最小文字数。
const MinCommentLength = 5

// Comment は記事に属するコメントを表す。
// 親記事と (post.slug, comment.id) の組で一意に特定される。
type Comment struct {
	ID         string
	PostID     string
	Author     string
	Email      string
	Content    string
	UserID     *string // 認証済みプリンシパルのユーザーID（匿名の場合はnil）
	IsApproved bool
	CreatedAt  time.Time
}

// CommentWithPost はコメントと親記事のタイトル・スラッグを結合したモデル。
// 管理者向けの全記事横断コメント一覧で使用される。
type CommentWithPost struct {
	Comment
	PostTitle string
	PostSlug  string
}

// PostSort は記事一覧のソート方向を表す。
type PostSort string

const (
	// PostSortDesc はpublished_at降順（新しい順）。
	PostSortDesc PostSort = "desc"
	// PostSortAsc はpublished_at昇順（古い順）。
	PostSortAsc PostSort = "asc"
)
