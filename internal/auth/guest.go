package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/hitoshi/snapsolve/internal/model"
)

// guestSuffixBytes はゲストユーザー名のランダム部分のバイト数。
const guestSuffixBytes = 4

// GenerateGuestUsername は "guest_<UNIXミリ秒>_<ランダム16進8文字>" 形式のユーザー名を生成する。
func GenerateGuestUsername(now time.Time) (string, error) {
	b := make([]byte, guestSuffixBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate guest suffix: %w", err)
	}
	return fmt.Sprintf("%s%d_%s", model.GuestUsernamePrefix, now.UnixMilli(), hex.EncodeToString(b)), nil
}
