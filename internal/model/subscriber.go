// Package model はドメインモデルを定義する。
package model

import (
	"regexp"
	"time"
)

// Frequency はニュースレターの配信頻度を表す。
type Frequency string

const (
	// FrequencyDaily は毎日配信。
	FrequencyDaily Frequency = "daily"
	// FrequencyWeekly は毎週配信。
	FrequencyWeekly Frequency = "weekly"
	// FrequencyMonthly は毎月配信。
	FrequencyMonthly Frequency = "monthly"
)

// ValidFrequencies は許可された配信頻度のセット。
var ValidFrequencies = map[Frequency]bool{
	FrequencyDaily:   true,
	FrequencyWeekly:  true,
	FrequencyMonthly: true,
}

// Preferences は購読者の配信設定を表す。
type Preferences struct {
	Categories []Category
	Frequency  Frequency
}

// SubscriberMetadata は購読イベント時に記録されるリクエストメタデータ。
// ipAddressとuserAgentはセンシティブ情報として一覧APIの射影から除外される。
type SubscriberMetadata struct {
	IPAddress string
	UserAgent string
	Referrer  string
}

// Subscriber はニュースレター購読者を表す。
// emailが自然キーであり、小文字化・トリム済みの正規化形で保存される。
type Subscriber struct {
	ID           string
	Email        string
	IsActive     bool
	SubscribedAt time.Time
	Preferences  Preferences
	Metadata     SubscriberMetadata
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// emailPattern はメールアドレスの形式チェックに使用する。
var emailPattern = regexp.MustCompile(`^\S+@\S+\.\S+$`)

// IsValidEmail はメールアドレスがRFC相当の形式かどうかを判定する。
func IsValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}
