package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/snapsolve/internal/model"
)

// PostgresQuestionRepo はPostgreSQLを使用した解答履歴リポジトリ。
type PostgresQuestionRepo struct {
	db *sql.DB
}

// NewPostgresQuestionRepo はPostgresQuestionRepoを生成する。
func NewPostgresQuestionRepo(db *sql.DB) *PostgresQuestionRepo {
	return &PostgresQuestionRepo{db: db}
}

// Create は履歴レコードを作成する。UserIDが空の場合はNULLで保存する。
func (r *PostgresQuestionRepo) Create(ctx context.Context, q *model.Question) error {
	var userID sql.NullString
	if q.UserID != "" {
		userID = sql.NullString{String: q.UserID, Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO questions (id, user_id, content, image_url, subject, class_level, solution, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		q.ID, userID, q.Content, q.ImageURL, q.Subject, q.ClassLevel, q.Solution, q.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert question: %w", err)
	}
	return nil
}

// ListByUserID はユーザーの履歴をcreated_at降順で最大limit件返す。
func (r *PostgresQuestionRepo) ListByUserID(ctx context.Context, userID string, limit int) ([]*model.Question, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, content, image_url, subject, class_level, solution, created_at
		 FROM questions
		 WHERE user_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list questions: %w", err)
	}
	defer rows.Close()

	questions := make([]*model.Question, 0)
	for rows.Next() {
		q := &model.Question{}
		var uid, imageURL sql.NullString
		if err := rows.Scan(&q.ID, &uid, &q.Content, &imageURL, &q.Subject, &q.ClassLevel, &q.Solution, &q.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan question: %w", err)
		}
		q.UserID = uid.String
		if imageURL.Valid {
			v := imageURL.String
			q.ImageURL = &v
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate questions: %w", err)
	}

	return questions, nil
}

// compile-time interface check
var _ QuestionRepository = (*PostgresQuestionRepo)(nil)
