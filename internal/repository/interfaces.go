// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/snapsolve/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
// 更新・削除操作は提供しない。
type UserRepository interface {
	// Create はユーザーを作成する。
	// ユーザー名が既に存在する場合はErrDuplicateUsernameを返す。
	// 重複判定はDBの一意制約で行うため、同時登録でも成功するのは1件のみ。
	Create(ctx context.Context, user *model.User) error

	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByUsername はユーザー名でユーザーを取得する。見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.User, error)
}

// QuestionRepository は解答履歴の永続化インターフェース。追記のみ。
type QuestionRepository interface {
	// Create は履歴レコードを作成する。
	Create(ctx context.Context, question *model.Question) error

	// ListByUserID はユーザーの履歴をcreated_at降順で最大limit件返す。
	ListByUserID(ctx context.Context, userID string, limit int) ([]*model.Question, error)
}

// SessionStore はセッショントークンとユーザーIDの対応を有効期限付きで保持する。
type SessionStore interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。存在しない場合もエラーにしない。
	DeleteByID(ctx context.Context, id string) error
}
