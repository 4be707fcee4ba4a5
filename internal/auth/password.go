package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// MaxPasswordBytes はbcryptが受け付けるパスワードの最大バイト長。
const MaxPasswordBytes = 72

// dummyHash はユーザーが存在しない場合の比較に使うハッシュ。
// 応答時間からユーザー名の存在を推測されないようにする。
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("snapsolve-dummy-password"), bcrypt.DefaultCost)

// HashPassword はパスワードをbcryptでハッシュ化する。
// costが0以下の場合はbcrypt.DefaultCostを使用する。
func HashPassword(password string, cost int) (string, error) {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword はパスワードがハッシュと一致するかを検証する。
// 不一致の場合はfalse、ハッシュ自体が不正な場合はエラーを返す。
func CheckPassword(hash, password string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return false, fmt.Errorf("failed to compare password: %w", err)
}
