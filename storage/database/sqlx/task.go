package sqlxrepos

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/task"
)

var taskColumns = []string{
	"tasks.id", "tasks.title", "tasks.course_id", "tasks.start_at", "tasks.end_at",
	"tasks.created_at", "tasks.updated_at",
}

type taskRepository struct {
	db core.DB
}

var _ task.Repository = (*taskRepository)(nil)

func NewTaskRepository(db core.DB) *taskRepository {
	return &taskRepository{db: db}
}

func (repo *taskRepository) CheckTitleUniqueness(ctx context.Context, title, courseID string, excludedTasks []task.Task, exec ...core.DBExecutor) error {
	qb := psql.Select("COUNT(*)").From("tasks").Where(sq.Eq{"title": title, "course_id": courseID})
	if len(excludedTasks) > 0 {
		ids := make([]string, 0, len(excludedTasks))
		for _, t := range excludedTasks {
			ids = append(ids, t.ID)
		}
		qb = qb.Where(sq.NotEq{"id": ids})
	}
	query, args, err := qb.ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}

	var count int
	if err = getExec(repo.db, exec).GetContext(ctx, &count, query, args...); err != nil {
		return errors.Wrap(err, "checking task title uniqueness")
	}
	if count > 0 {
		return task.ErrTitleExists
	}
	return nil
}

func (repo *taskRepository) CreateTask(ctx context.Context, t task.Task, exec ...core.DBExecutor) (task.Task, error) {
	t.ID = uuid.NewString()
	query, args, err := psql.Insert("tasks").
		Columns("id", "title", "course_id", "start_at", "end_at", "created_at", "updated_at").
		Values(t.ID, t.Title, t.CourseID, t.StartAt, t.EndAt, t.CreatedAt, t.UpdatedAt).
		ToSql()
	if err != nil {
		return task.Task{}, errors.Wrap(err, "building query")
	}
	if _, err = getExec(repo.db, exec).ExecContext(ctx, query, args...); err != nil {
		return task.Task{}, errors.Wrap(err, "creating task")
	}
	return t, nil
}

func (repo *taskRepository) QueryTasks(ctx context.Context, filter *task.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]task.Task, error) {
	qb := psql.Select(taskColumns...).From("tasks")
	if filter != nil && !filter.IsEmpty() {
		if filter.CourseID != "" {
			qb = qb.Where(sq.Eq{"tasks.course_id": filter.CourseID})
		}
		if filter.ProfessorID != "" {
			qb = qb.Join("courses ON courses.id = tasks.course_id").
				Where(sq.Eq{"courses.professor_id": filter.ProfessorID})
		}
		if filter.StudentID != "" {
			qb = qb.Join("course_students ON course_students.course_id = tasks.course_id").
				Where(sq.Eq{"course_students.student_id": filter.StudentID})
		}
	}
	qb = qb.OrderBy(orderByClauses(ordering, "tasks.created_at DESC")...)

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	tasks := make([]task.Task, 0)
	if err = getExec(repo.db, exec).SelectContext(ctx, &tasks, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying tasks")
	}
	if err = repo.loadQuestions(ctx, tasks, exec); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (repo *taskRepository) GetTask(ctx context.Context, filter task.GetFilter, exec ...core.DBExecutor) (task.Task, error) {
	qb := psql.Select(taskColumns...).From("tasks").Where(sq.Eq{"tasks.id": filter.ID})
	if filter.ProfessorID != "" {
		qb = qb.Join("courses ON courses.id = tasks.course_id").
			Where(sq.Eq{"courses.professor_id": filter.ProfessorID})
	}
	if filter.StudentID != "" {
		qb = qb.Join("course_students ON course_students.course_id = tasks.course_id").
			Where(sq.Eq{"course_students.student_id": filter.StudentID})
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return task.Task{}, errors.Wrap(err, "building query")
	}
	var t task.Task
	if err = getExec(repo.db, exec).GetContext(ctx, &t, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return task.Task{}, task.ErrNotFound
		}
		return task.Task{}, errors.Wrap(err, "getting task")
	}

	tasks := []task.Task{t}
	if err = repo.loadQuestions(ctx, tasks, exec); err != nil {
		return task.Task{}, err
	}
	return tasks[0], nil
}

func (repo *taskRepository) UpdateTask(ctx context.Context, t task.Task, exec ...core.DBExecutor) (task.Task, error) {
	query, args, err := psql.Update("tasks").
		Set("title", t.Title).
		Set("start_at", t.StartAt).
		Set("end_at", t.EndAt).
		Set("updated_at", t.UpdatedAt).
		Where(sq.Eq{"id": t.ID}).
		ToSql()
	if err != nil {
		return task.Task{}, errors.Wrap(err, "building query")
	}

	res, err := getExec(repo.db, exec).ExecContext(ctx, query, args...)
	if err != nil {
		return task.Task{}, errors.Wrap(err, "updating task")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return task.Task{}, task.ErrNotFound
	}
	return t, nil
}

func (repo *taskRepository) DeleteTasksByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query, args, err := psql.Delete("tasks").Where(sq.Eq{"id": ids}).ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "building query")
	}
	res, err := getExec(repo.db, exec).ExecContext(ctx, query, args...)
	if err != nil {
		return 0, errors.Wrap(err, "deleting tasks")
	}
	n, err := res.RowsAffected()
	return int(n), errors.Wrap(err, "deleting tasks")
}

func (repo *taskRepository) CreateQuestions(ctx context.Context, questions []task.Question, exec ...core.DBExecutor) ([]task.Question, error) {
	if len(questions) == 0 {
		return questions, nil
	}
	qb := psql.Insert("questions").Columns("id", "text", "task_id")
	for i := range questions {
		questions[i].ID = uuid.NewString()
		qb = qb.Values(questions[i].ID, questions[i].Text, questions[i].TaskID)
	}
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	if _, err = getExec(repo.db, exec).ExecContext(ctx, query, args...); err != nil {
		return nil, errors.Wrap(err, "creating questions")
	}
	return questions, nil
}

func (repo *taskRepository) UpdateQuestionTexts(ctx context.Context, questions []task.Question, exec ...core.DBExecutor) error {
	db := getExec(repo.db, exec)
	for _, q := range questions {
		query, args, err := psql.Update("questions").
			Set("text", q.Text).
			Where(sq.Eq{"id": q.ID, "task_id": q.TaskID}).
			ToSql()
		if err != nil {
			return errors.Wrap(err, "building query")
		}
		if _, err = db.ExecContext(ctx, query, args...); err != nil {
			return errors.Wrap(err, "updating question")
		}
	}
	return nil
}

func (repo *taskRepository) DeleteQuestionsByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query, args, err := psql.Delete("questions").Where(sq.Eq{"id": ids}).ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "building query")
	}
	res, err := getExec(repo.db, exec).ExecContext(ctx, query, args...)
	if err != nil {
		return 0, errors.Wrap(err, "deleting questions")
	}
	n, err := res.RowsAffected()
	return int(n), errors.Wrap(err, "deleting questions")
}

func (repo *taskRepository) GetQuestion(ctx context.Context, filter task.QuestionGetFilter, exec ...core.DBExecutor) (task.Question, error) {
	qb := psql.Select("questions.id", "questions.text", "questions.task_id").
		From("questions").
		Where(sq.Eq{"questions.id": filter.ID})
	if filter.ProfessorID != "" {
		qb = qb.Join("tasks ON tasks.id = questions.task_id").
			Join("courses ON courses.id = tasks.course_id").
			Where(sq.Eq{"courses.professor_id": filter.ProfessorID})
	}
	if filter.StudentID != "" {
		qb = qb.Join("tasks ON tasks.id = questions.task_id").
			Join("course_students ON course_students.course_id = tasks.course_id").
			Where(sq.Eq{"course_students.student_id": filter.StudentID})
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return task.Question{}, errors.Wrap(err, "building query")
	}
	var q task.Question
	if err = getExec(repo.db, exec).GetContext(ctx, &q, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return task.Question{}, task.ErrQuestionNotFound
		}
		return task.Question{}, errors.Wrap(err, "getting question")
	}
	return q, nil
}

// loadQuestions fills Questions on each task in place.
func (repo *taskRepository) loadQuestions(ctx context.Context, tasks []task.Task, exec []core.DBExecutor) error {
	if len(tasks) == 0 {
		return nil
	}
	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		ids = append(ids, t.ID)
	}

	query, args, err := psql.Select("id", "text", "task_id").
		From("questions").
		Where(sq.Eq{"task_id": ids}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	var questions []task.Question
	if err = getExec(repo.db, exec).SelectContext(ctx, &questions, query, args...); err != nil {
		return errors.Wrap(err, "loading questions")
	}

	byTask := make(map[string][]task.Question, len(tasks))
	for _, q := range questions {
		byTask[q.TaskID] = append(byTask[q.TaskID], q)
	}
	for i := range tasks {
		tasks[i].Questions = byTask[tasks[i].ID]
	}
	return nil
}
