package postgres

import (
	"context"
	"fmt"

	"scheduled-exam-service/internal/domain"

	"github.com/jackc/pgx/v4/pgxpool"
)

// QuestionBank reads the question bank with pgx.
type QuestionBank struct {
	pool *pgxpool.Pool
}

func NewQuestionBank(pool *pgxpool.Pool) *QuestionBank {
	return &QuestionBank{pool: pool}
}

// FetchByIDs returns existing questions among ids, inactive ones included so frozen
// exams keep working after a question is retired.
func (b *QuestionBank) FetchByIDs(ctx context.Context, ids []int64) ([]domain.Question, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := b.pool.Query(ctx, `
		SELECT q.id, q.category_id, COALESCE(c.name_en, c.name_ar),
		       q.question_ar, COALESCE(q.question_en, ''),
		       q.options_ar, COALESCE(q.options_en, '{}'),
		       q.difficulty, q.correct_answer
		FROM questions q
		JOIN categories c ON c.id = q.category_id
		WHERE q.id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Question, 0, len(ids))
	for rows.Next() {
		var q domain.Question
		if err := rows.Scan(&q.ID, &q.CategoryID, &q.CategoryName, &q.PromptAr, &q.PromptEn,
			&q.OptionsAr, &q.OptionsEn, &q.Difficulty, &q.CorrectAnswer); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// RandomIDs draws up to limit active questions from the given categories.
func (b *QuestionBank) RandomIDs(ctx context.Context, categoryIDs []int64, limit int) ([]int64, error) {
	rows, err := b.pool.Query(ctx, `
		SELECT id FROM questions
		WHERE category_id = ANY($1) AND is_active
		ORDER BY random()
		LIMIT $2`, categoryIDs, limit)
	if err != nil {
		return nil, fmt.Errorf("draw questions: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, 0, limit)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan question id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
