// Package model はドメインモデルを定義する。
package model

import (
	"strings"
	"time"
)

// GuestUsernamePrefix はゲストユーザー名の接頭辞。
// 通常登録ではこの接頭辞を使用できない。
const GuestUsernamePrefix = "guest_"

// User はサービス利用ユーザーを表す。ゲストも含む。
// PasswordHashはbcryptハッシュで、ゲストの場合は空文字列。
type User struct {
	ID           string
	Username     string
	PasswordHash string
	IsGuest      bool
	CreatedAt    time.Time
}

// IsGuestUsername はユーザー名がゲスト用の名前空間に属するかを判定する。
func IsGuestUsername(username string) bool {
	return strings.HasPrefix(strings.ToLower(username), GuestUsernamePrefix)
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
