package task

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/course"
	"github.com/trezcool/elimu/core/user"
)

var (
	// errors
	ErrNotFound         = errors.New("task not found")
	ErrQuestionNotFound = errors.New("question not found")
	ErrTitleExists      = errors.New("a task with this title already exists in this course")
)

type (
	Repository interface {
		// CheckTitleUniqueness fails with ErrTitleExists if another task of
		// the same course (not in excludedTasks) holds the title.
		CheckTitleUniqueness(ctx context.Context, title, courseID string, excludedTasks []Task, exec ...core.DBExecutor) error
		CreateTask(ctx context.Context, t Task, exec ...core.DBExecutor) (Task, error)
		// QueryTasks applies AND operation on available QueryFilter fields;
		// questions are loaded on each returned task.
		QueryTasks(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Task, error)
		GetTask(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (Task, error)
		UpdateTask(ctx context.Context, t Task, exec ...core.DBExecutor) (Task, error)
		DeleteTasksByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error)

		CreateQuestions(ctx context.Context, questions []Question, exec ...core.DBExecutor) ([]Question, error)
		// UpdateQuestionTexts bulk-updates the text field only.
		UpdateQuestionTexts(ctx context.Context, questions []Question, exec ...core.DBExecutor) error
		DeleteQuestionsByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error)
		GetQuestion(ctx context.Context, filter QuestionGetFilter, exec ...core.DBExecutor) (Question, error)
	}

	Service interface {
		CheckTitleUniqueness(title, courseID string, excludedTasks ...Task) error
		Create(professor user.User, nt NewTask) (Task, error)
		QueryOwn(professor user.User, filter *QueryFilter, ordering []core.DBOrdering) ([]Task, error)
		QueryEnrolled(student user.User, filter *QueryFilter, ordering []core.DBOrdering) ([]Task, error)
		GetOwn(professor user.User, id string) (Task, error)
		GetEnrolled(student user.User, id string) (Task, error)
		// Update applies the task fields and the questions payload; question
		// creates, text updates and deletes are dispatched in bulk within a
		// single transaction.
		Update(professor user.User, id string, ut UpdateTask) (Task, error)
		Delete(professor user.User, ids ...string) error
	}

	service struct {
		db         core.DB
		repo       Repository
		courseRepo course.Repository
	}
)

var _ Service = (*service)(nil)

func NewService(db core.DB, repo Repository, courseRepo course.Repository) Service {
	return &service{
		db:         db,
		repo:       repo,
		courseRepo: courseRepo,
	}
}

func (svc *service) CheckTitleUniqueness(title, courseID string, excludedTasks ...Task) error {
	if err := svc.repo.CheckTitleUniqueness(context.Background(), title, courseID, excludedTasks); err != nil {
		if errors.Cause(err) == ErrTitleExists {
			return core.NewValidationError(err, core.FieldError{Field: "title", Error: err.Error()})
		}
		return err
	}
	return nil
}

func (svc *service) Create(professor user.User, nt NewTask) (Task, error) {
	ctx := context.Background()

	// the course must be owned by the caller
	crs, err := svc.courseRepo.GetCourse(ctx, course.GetFilter{ID: nt.CourseID, ProfessorID: professor.ID})
	if err != nil {
		return Task{}, err
	}

	now := time.Now().UTC()
	t := Task{
		Title:     nt.Title,
		CourseID:  crs.ID,
		StartAt:   nt.StartAt,
		EndAt:     nt.EndAt,
		CreatedAt: now,
		UpdatedAt: now,
	}

	tx, err := svc.db.Beginx()
	if err != nil {
		return Task{}, errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if t, err = svc.repo.CreateTask(ctx, t, tx); err != nil {
		return Task{}, err
	}
	questions := make([]Question, 0, len(nt.Questions))
	for _, qi := range nt.Questions {
		if qi.Text == "" {
			continue
		}
		questions = append(questions, Question{TaskID: t.ID, Text: qi.Text})
	}
	if len(questions) > 0 {
		if t.Questions, err = svc.repo.CreateQuestions(ctx, questions, tx); err != nil {
			return Task{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		return Task{}, errors.Wrap(err, "committing transaction")
	}
	return t, nil
}

func (svc *service) QueryOwn(professor user.User, filter *QueryFilter, ordering []core.DBOrdering) ([]Task, error) {
	if filter == nil {
		filter = new(QueryFilter)
	}
	filter.ProfessorID = professor.ID
	return svc.repo.QueryTasks(context.Background(), filter, ordering)
}

func (svc *service) QueryEnrolled(student user.User, filter *QueryFilter, ordering []core.DBOrdering) ([]Task, error) {
	if filter == nil {
		filter = new(QueryFilter)
	}
	filter.StudentID = student.ID
	return svc.repo.QueryTasks(context.Background(), filter, ordering)
}

func (svc *service) GetOwn(professor user.User, id string) (Task, error) {
	return svc.repo.GetTask(context.Background(), GetFilter{ID: id, ProfessorID: professor.ID})
}

func (svc *service) GetEnrolled(student user.User, id string) (Task, error) {
	return svc.repo.GetTask(context.Background(), GetFilter{ID: id, StudentID: student.ID})
}

func (svc *service) Update(professor user.User, id string, ut UpdateTask) (Task, error) {
	ctx := context.Background()
	t, err := svc.repo.GetTask(ctx, GetFilter{ID: id, ProfessorID: professor.ID})
	if err != nil {
		return Task{}, err
	}

	// dispatch the questions payload against the task's current question set
	currentIDs := t.QuestionIDs()
	var (
		toCreate []Question
		toUpdate []Question
		toDelete []string
	)
	for _, qi := range ut.Questions {
		switch {
		case qi.ID == "" && qi.Text != "":
			toCreate = append(toCreate, Question{TaskID: t.ID, Text: qi.Text})
		case qi.ID != "" && qi.Text != "" && currentIDs[qi.ID]:
			toUpdate = append(toUpdate, Question{ID: qi.ID, TaskID: t.ID, Text: qi.Text})
		case qi.ID != "" && qi.Text == "" && currentIDs[qi.ID]:
			toDelete = append(toDelete, qi.ID)
		}
	}

	t.Title = ut.Title
	t.StartAt = ut.StartAt
	t.EndAt = ut.EndAt
	t.UpdatedAt = time.Now().UTC()

	// all-or-nothing: a partially-applied question batch must never survive
	tx, err := svc.db.Beginx()
	if err != nil {
		return Task{}, errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if t, err = svc.repo.UpdateTask(ctx, t, tx); err != nil {
		return Task{}, err
	}
	if len(toCreate) > 0 {
		if _, err = svc.repo.CreateQuestions(ctx, toCreate, tx); err != nil {
			return Task{}, err
		}
	}
	if len(toUpdate) > 0 {
		if err = svc.repo.UpdateQuestionTexts(ctx, toUpdate, tx); err != nil {
			return Task{}, err
		}
	}
	if len(toDelete) > 0 {
		if _, err = svc.repo.DeleteQuestionsByID(ctx, toDelete, tx); err != nil {
			return Task{}, err
		}
	}
	if t, err = svc.repo.GetTask(ctx, GetFilter{ID: t.ID}, tx); err != nil {
		return Task{}, err
	}

	if err = tx.Commit(); err != nil {
		return Task{}, errors.Wrap(err, "committing transaction")
	}
	return t, nil
}

func (svc *service) Delete(professor user.User, ids ...string) error {
	ctx := context.Background()
	owned := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := svc.repo.GetTask(ctx, GetFilter{ID: id, ProfessorID: professor.ID}); err != nil {
			return err
		}
		owned = append(owned, id)
	}
	_, err := svc.repo.DeleteTasksByID(ctx, owned)
	return err
}
