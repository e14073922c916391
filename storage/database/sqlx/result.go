package sqlxrepos

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/result"
)

const pqUniqueViolation = "23505"

var (
	answerColumns = []string{
		"answers.id", "answers.question_id", "answers.student_id", "answers.text",
		"answers.attachment", "answers.grade", "answers.created_at", "answers.updated_at",
	}
	resultColumns = []string{
		"results.id", "results.task_id", "results.student_id", "results.grade",
		"results.created_at", "results.updated_at",
	}
)

type resultRepository struct {
	db core.DB
}

var _ result.Repository = (*resultRepository)(nil)

func NewResultRepository(db core.DB) *resultRepository {
	return &resultRepository{db: db}
}

func (repo *resultRepository) CreateAnswer(ctx context.Context, ans result.Answer, exec ...core.DBExecutor) (result.Answer, error) {
	ans.ID = uuid.NewString()
	query, args, err := psql.Insert("answers").
		Columns("id", "question_id", "student_id", "text", "attachment", "grade", "created_at", "updated_at").
		Values(ans.ID, ans.QuestionID, ans.StudentID, ans.Text, ans.Attachment, ans.Grade, ans.CreatedAt, ans.UpdatedAt).
		ToSql()
	if err != nil {
		return result.Answer{}, errors.Wrap(err, "building query")
	}
	if _, err = getExec(repo.db, exec).ExecContext(ctx, query, args...); err != nil {
		return result.Answer{}, errors.Wrap(err, "creating answer")
	}
	return ans, nil
}

func (repo *resultRepository) QueryAnswers(ctx context.Context, filter *result.AnswerQueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]result.Answer, error) {
	qb := psql.Select(answerColumns...).From("answers")
	if filter != nil && !filter.IsEmpty() {
		if filter.TaskID != "" {
			qb = qb.Join("questions ON questions.id = answers.question_id").
				Where(sq.Eq{"questions.task_id": filter.TaskID})
		}
		if filter.Search != "" {
			qb = qb.Join("users ON users.id = answers.student_id").
				Where(sq.ILike{"users.email": "%" + filter.Search + "%"})
		}
		if filter.StudentID != "" {
			qb = qb.Where(sq.Eq{"answers.student_id": filter.StudentID})
		}
		if filter.ProfessorID != "" {
			qb = qb.Where(answerProfessorScope(filter.ProfessorID))
		}
	}
	qb = qb.OrderBy(orderByClauses(ordering, "answers.created_at DESC")...)

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	answers := make([]result.Answer, 0)
	if err = getExec(repo.db, exec).SelectContext(ctx, &answers, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying answers")
	}
	return answers, nil
}

func (repo *resultRepository) GetAnswer(ctx context.Context, filter result.AnswerGetFilter, exec ...core.DBExecutor) (result.Answer, error) {
	qb := psql.Select(answerColumns...).From("answers").Where(sq.Eq{"answers.id": filter.ID})
	if filter.StudentID != "" {
		qb = qb.Where(sq.Eq{"answers.student_id": filter.StudentID})
	}
	if filter.ProfessorID != "" {
		qb = qb.Where(answerProfessorScope(filter.ProfessorID))
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return result.Answer{}, errors.Wrap(err, "building query")
	}
	var ans result.Answer
	if err = getExec(repo.db, exec).GetContext(ctx, &ans, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return result.Answer{}, result.ErrAnswerNotFound
		}
		return result.Answer{}, errors.Wrap(err, "getting answer")
	}
	return ans, nil
}

func (repo *resultRepository) UpdateAnswer(ctx context.Context, ans result.Answer, exec ...core.DBExecutor) (result.Answer, error) {
	query, args, err := psql.Update("answers").
		Set("text", ans.Text).
		Set("attachment", ans.Attachment).
		Set("grade", ans.Grade).
		Set("updated_at", ans.UpdatedAt).
		Where(sq.Eq{"id": ans.ID}).
		ToSql()
	if err != nil {
		return result.Answer{}, errors.Wrap(err, "building query")
	}

	res, err := getExec(repo.db, exec).ExecContext(ctx, query, args...)
	if err != nil {
		return result.Answer{}, errors.Wrap(err, "updating answer")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return result.Answer{}, result.ErrAnswerNotFound
	}
	return ans, nil
}

func (repo *resultRepository) CreateResult(ctx context.Context, res result.Result, exec ...core.DBExecutor) (result.Result, error) {
	res.ID = uuid.NewString()
	query, args, err := psql.Insert("results").
		Columns("id", "task_id", "student_id", "grade", "created_at", "updated_at").
		Values(res.ID, res.TaskID, res.StudentID, res.Grade, res.CreatedAt, res.UpdatedAt).
		ToSql()
	if err != nil {
		return result.Result{}, errors.Wrap(err, "building query")
	}
	if _, err = getExec(repo.db, exec).ExecContext(ctx, query, args...); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return result.Result{}, result.ErrAlreadySubmitted
		}
		return result.Result{}, errors.Wrap(err, "creating result")
	}
	return res, nil
}

func (repo *resultRepository) ResultExists(ctx context.Context, studentID, taskID string, exec ...core.DBExecutor) (bool, error) {
	query, args, err := psql.Select("COUNT(*)").
		From("results").
		Where(sq.Eq{"student_id": studentID, "task_id": taskID}).
		ToSql()
	if err != nil {
		return false, errors.Wrap(err, "building query")
	}
	var count int
	if err = getExec(repo.db, exec).GetContext(ctx, &count, query, args...); err != nil {
		return false, errors.Wrap(err, "checking result existence")
	}
	return count > 0, nil
}

func (repo *resultRepository) QueryResults(ctx context.Context, filter *result.ResultQueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]result.Result, error) {
	qb := psql.Select(resultColumns...).From("results")
	if filter != nil && !filter.IsEmpty() {
		if filter.TaskID != "" {
			qb = qb.Where(sq.Eq{"results.task_id": filter.TaskID})
		}
		if filter.StudentID != "" {
			qb = qb.Where(sq.Eq{"results.student_id": filter.StudentID})
		}
		if filter.ProfessorID != "" {
			qb = qb.Where(resultProfessorScope(filter.ProfessorID))
		}
	}
	qb = qb.OrderBy(orderByClauses(ordering, "results.created_at DESC")...)

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	results := make([]result.Result, 0)
	if err = getExec(repo.db, exec).SelectContext(ctx, &results, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying results")
	}
	return results, nil
}

func (repo *resultRepository) GetResult(ctx context.Context, filter result.ResultGetFilter, exec ...core.DBExecutor) (result.Result, error) {
	qb := psql.Select(resultColumns...).From("results").Where(sq.Eq{"results.id": filter.ID})
	if filter.StudentID != "" {
		qb = qb.Where(sq.Eq{"results.student_id": filter.StudentID})
	}
	if filter.ProfessorID != "" {
		qb = qb.Where(resultProfessorScope(filter.ProfessorID))
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return result.Result{}, errors.Wrap(err, "building query")
	}
	var res result.Result
	if err = getExec(repo.db, exec).GetContext(ctx, &res, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return result.Result{}, result.ErrResultNotFound
		}
		return result.Result{}, errors.Wrap(err, "getting result")
	}
	return res, nil
}

func (repo *resultRepository) UpdateResult(ctx context.Context, res result.Result, exec ...core.DBExecutor) (result.Result, error) {
	query, args, err := psql.Update("results").
		Set("grade", res.Grade).
		Set("updated_at", res.UpdatedAt).
		Where(sq.Eq{"id": res.ID}).
		ToSql()
	if err != nil {
		return result.Result{}, errors.Wrap(err, "building query")
	}

	dbRes, err := getExec(repo.db, exec).ExecContext(ctx, query, args...)
	if err != nil {
		return result.Result{}, errors.Wrap(err, "updating result")
	}
	if n, err := dbRes.RowsAffected(); err == nil && n == 0 {
		return result.Result{}, result.ErrResultNotFound
	}
	return res, nil
}

// answerProfessorScope restricts answers to questions of courses owned by the professor.
func answerProfessorScope(professorID string) sq.Sqlizer {
	return sq.Expr(
		`answers.question_id IN (
			SELECT questions.id FROM questions
			JOIN tasks ON tasks.id = questions.task_id
			JOIN courses ON courses.id = tasks.course_id
			WHERE courses.professor_id = ?
		)`, professorID,
	)
}

// resultProfessorScope restricts results to tasks of courses owned by the professor.
func resultProfessorScope(professorID string) sq.Sqlizer {
	return sq.Expr(
		`results.task_id IN (
			SELECT tasks.id FROM tasks
			JOIN courses ON courses.id = tasks.course_id
			WHERE courses.professor_id = ?
		)`, professorID,
	)
}
