package model

import (
	"strings"
	"time"
	"unicode/utf8"
)

// 履歴に保存する画像関連のプレースホルダー
const (
	ImageOnlyContent = "Image Question"
	ImageMarker      = "Image uploaded"
)

// 教科・学年の最大長（文字数）。値そのものは自由な文字列として扱う。
const (
	MaxSubjectLength    = 64
	MaxClassLevelLength = 16
)

// Question は1回の解答リクエストとその解答の履歴レコード。
// 作成後は更新されない。
type Question struct {
	ID         string
	UserID     string // 空文字列はユーザー不明
	Content    string
	ImageURL   *string
	Subject    string
	ClassLevel string
	Solution   string
	CreatedAt  time.Time
}

// ValidateSubjectAndClass は教科と学年が空でなく、上限以内の長さであることを検証する。
// 対応一覧に無い教科（例: "General"）もそのまま受け付ける。
func ValidateSubjectAndClass(subject, classLevel string) *APIError {
	if strings.TrimSpace(subject) == "" {
		return NewValidationError("Subject is required")
	}
	if utf8.RuneCountInString(subject) > MaxSubjectLength {
		return NewValidationError("Subject is too long")
	}
	if strings.TrimSpace(classLevel) == "" {
		return NewValidationError("Class level is required")
	}
	if utf8.RuneCountInString(classLevel) > MaxClassLevelLength {
		return NewValidationError("Class level is too long")
	}
	return nil
}
