package result

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/task"
	"github.com/trezcool/elimu/core/user"
)

var (
	// errors
	ErrAnswerNotFound = errors.New("answer not found")
	ErrResultNotFound = errors.New("result not found")
	// ErrAlreadySubmitted surfaces the (student, task) uniqueness constraint.
	ErrAlreadySubmitted = errors.New("you cannot submit a task for review a second time")
	ErrAnswerLocked     = errors.New("you cannot change an answer after submission for review")
	ErrTaskExpired      = errors.New("the task fulfillment time has expired")

	errQuestionScope   = "the question doesn't belong to user's courses"
	errContentRequired = "text or attachment is required"
)

// NowFunc returns the current time; mocked in tests.
var NowFunc func() time.Time = time.Now

type (
	Repository interface {
		CreateAnswer(ctx context.Context, ans Answer, exec ...core.DBExecutor) (Answer, error)
		// QueryAnswers applies AND operation on available AnswerQueryFilter fields.
		QueryAnswers(ctx context.Context, filter *AnswerQueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Answer, error)
		GetAnswer(ctx context.Context, filter AnswerGetFilter, exec ...core.DBExecutor) (Answer, error)
		UpdateAnswer(ctx context.Context, ans Answer, exec ...core.DBExecutor) (Answer, error)

		// CreateResult fails with ErrAlreadySubmitted if a result already
		// exists for the (student, task) pair.
		CreateResult(ctx context.Context, res Result, exec ...core.DBExecutor) (Result, error)
		ResultExists(ctx context.Context, studentID, taskID string, exec ...core.DBExecutor) (bool, error)
		// QueryResults applies AND operation on available ResultQueryFilter fields.
		QueryResults(ctx context.Context, filter *ResultQueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Result, error)
		GetResult(ctx context.Context, filter ResultGetFilter, exec ...core.DBExecutor) (Result, error)
		UpdateResult(ctx context.Context, res Result, exec ...core.DBExecutor) (Result, error)
	}

	Service interface {
		CreateAnswer(student user.User, na NewAnswer) (Answer, error)
		QueryOwnAnswers(student user.User, filter *AnswerQueryFilter, ordering []core.DBOrdering) ([]Answer, error)
		QueryCourseAnswers(professor user.User, filter *AnswerQueryFilter, ordering []core.DBOrdering) ([]Answer, error)
		GetOwnAnswer(student user.User, id string) (Answer, error)
		GetCourseAnswer(professor user.User, id string) (Answer, error)
		// UpdateAnswer edits an answer's text; it fails with a validation error
		// once the answer's task has been submitted for review.
		UpdateAnswer(student user.User, id string, ua UpdateAnswer) (Answer, error)
		// AttachFile stores the uploaded file under the media root and records
		// it on the answer; subject to the same submission lock as UpdateAnswer.
		AttachFile(student user.User, id, filename string, src io.Reader) (Answer, error)
		GradeAnswer(professor user.User, id string, ga GradeAnswer) (Answer, error)

		// Submit creates the task's Result, freezing the student's answers.
		Submit(student user.User, nr NewResult) (Result, error)
		QueryOwnResults(student user.User, filter *ResultQueryFilter, ordering []core.DBOrdering) ([]Result, error)
		QueryCourseResults(professor user.User, filter *ResultQueryFilter, ordering []core.DBOrdering) ([]Result, error)
		GetOwnResult(student user.User, id string) (Result, error)
		GetCourseResult(professor user.User, id string) (Result, error)
		GradeResult(professor user.User, id string, gr GradeResult) (Result, error)
	}

	service struct {
		repo     Repository
		taskRepo task.Repository
		conf     *core.Config
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, taskRepo task.Repository, conf *core.Config) Service {
	return &service{
		repo:     repo,
		taskRepo: taskRepo,
		conf:     conf,
	}
}

func (svc *service) CreateAnswer(student user.User, na NewAnswer) (Answer, error) {
	ctx := context.Background()

	// the question must belong to one of the student's enrolled courses
	q, err := svc.taskRepo.GetQuestion(ctx, task.QuestionGetFilter{ID: na.QuestionID, StudentID: student.ID})
	if err != nil {
		if errors.Cause(err) == task.ErrQuestionNotFound {
			return Answer{}, core.NewValidationError(err, core.FieldError{Field: "question", Error: errQuestionScope})
		}
		return Answer{}, err
	}

	if err = svc.checkNotSubmitted(ctx, student.ID, q.TaskID); err != nil {
		return Answer{}, err
	}

	now := NowFunc().UTC()
	ans := Answer{
		QuestionID: q.ID,
		StudentID:  student.ID,
		Text:       na.Text,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if !ans.HasContent() {
		return Answer{}, core.NewValidationError(nil, core.FieldError{Field: "text", Error: errContentRequired})
	}
	return svc.repo.CreateAnswer(ctx, ans)
}

func (svc *service) QueryOwnAnswers(student user.User, filter *AnswerQueryFilter, ordering []core.DBOrdering) ([]Answer, error) {
	if filter == nil {
		filter = new(AnswerQueryFilter)
	}
	filter.StudentID = student.ID
	return svc.repo.QueryAnswers(context.Background(), filter, ordering)
}

func (svc *service) QueryCourseAnswers(professor user.User, filter *AnswerQueryFilter, ordering []core.DBOrdering) ([]Answer, error) {
	if filter == nil {
		filter = new(AnswerQueryFilter)
	}
	filter.ProfessorID = professor.ID
	return svc.repo.QueryAnswers(context.Background(), filter, ordering)
}

func (svc *service) GetOwnAnswer(student user.User, id string) (Answer, error) {
	return svc.repo.GetAnswer(context.Background(), AnswerGetFilter{ID: id, StudentID: student.ID})
}

func (svc *service) GetCourseAnswer(professor user.User, id string) (Answer, error) {
	return svc.repo.GetAnswer(context.Background(), AnswerGetFilter{ID: id, ProfessorID: professor.ID})
}

func (svc *service) UpdateAnswer(student user.User, id string, ua UpdateAnswer) (Answer, error) {
	ctx := context.Background()
	ans, err := svc.getEditable(ctx, student, id)
	if err != nil {
		return Answer{}, err
	}

	ans.Text = ua.Text
	ans.UpdatedAt = NowFunc().UTC()
	if !ans.HasContent() {
		return Answer{}, core.NewValidationError(nil, core.FieldError{Field: "text", Error: errContentRequired})
	}
	return svc.repo.UpdateAnswer(ctx, ans)
}

func (svc *service) AttachFile(student user.User, id, filename string, src io.Reader) (Answer, error) {
	ctx := context.Background()
	ans, err := svc.getEditable(ctx, student, id)
	if err != nil {
		return Answer{}, err
	}

	relPath, err := svc.saveAttachment(student, filename, src)
	if err != nil {
		return Answer{}, err
	}
	ans.Attachment = relPath
	ans.UpdatedAt = NowFunc().UTC()
	return svc.repo.UpdateAnswer(ctx, ans)
}

func (svc *service) GradeAnswer(professor user.User, id string, ga GradeAnswer) (Answer, error) {
	ctx := context.Background()
	ans, err := svc.repo.GetAnswer(ctx, AnswerGetFilter{ID: id, ProfessorID: professor.ID})
	if err != nil {
		return Answer{}, err
	}

	ans.Grade = ga.Grade
	ans.UpdatedAt = NowFunc().UTC()
	return svc.repo.UpdateAnswer(ctx, ans)
}

func (svc *service) Submit(student user.User, nr NewResult) (Result, error) {
	ctx := context.Background()

	// the task must belong to one of the student's enrolled courses
	t, err := svc.taskRepo.GetTask(ctx, task.GetFilter{ID: nr.TaskID, StudentID: student.ID})
	if err != nil {
		return Result{}, err
	}
	if t.EndAt != nil && NowFunc().UTC().After(*t.EndAt) {
		return Result{}, core.NewValidationError(ErrTaskExpired, core.FieldError{Field: "task", Error: ErrTaskExpired.Error()})
	}

	now := NowFunc().UTC()
	res := Result{
		TaskID:    t.ID,
		StudentID: student.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	res, err = svc.repo.CreateResult(ctx, res)
	if err != nil {
		if errors.Cause(err) == ErrAlreadySubmitted {
			return Result{}, core.NewValidationError(err, core.FieldError{Field: "task", Error: ErrAlreadySubmitted.Error()})
		}
		return Result{}, err
	}
	return res, nil
}

func (svc *service) QueryOwnResults(student user.User, filter *ResultQueryFilter, ordering []core.DBOrdering) ([]Result, error) {
	if filter == nil {
		filter = new(ResultQueryFilter)
	}
	filter.StudentID = student.ID
	return svc.repo.QueryResults(context.Background(), filter, ordering)
}

func (svc *service) QueryCourseResults(professor user.User, filter *ResultQueryFilter, ordering []core.DBOrdering) ([]Result, error) {
	if filter == nil {
		filter = new(ResultQueryFilter)
	}
	filter.ProfessorID = professor.ID
	return svc.repo.QueryResults(context.Background(), filter, ordering)
}

func (svc *service) GetOwnResult(student user.User, id string) (Result, error) {
	return svc.repo.GetResult(context.Background(), ResultGetFilter{ID: id, StudentID: student.ID})
}

func (svc *service) GetCourseResult(professor user.User, id string) (Result, error) {
	return svc.repo.GetResult(context.Background(), ResultGetFilter{ID: id, ProfessorID: professor.ID})
}

func (svc *service) GradeResult(professor user.User, id string, gr GradeResult) (Result, error) {
	ctx := context.Background()
	res, err := svc.repo.GetResult(ctx, ResultGetFilter{ID: id, ProfessorID: professor.ID})
	if err != nil {
		return Result{}, err
	}

	res.Grade = gr.Grade
	res.UpdatedAt = NowFunc().UTC()
	return svc.repo.UpdateResult(ctx, res)
}

// getEditable fetches the student's answer and enforces the submission lock.
func (svc *service) getEditable(ctx context.Context, student user.User, id string) (Answer, error) {
	ans, err := svc.repo.GetAnswer(ctx, AnswerGetFilter{ID: id, StudentID: student.ID})
	if err != nil {
		return Answer{}, err
	}
	q, err := svc.taskRepo.GetQuestion(ctx, task.QuestionGetFilter{ID: ans.QuestionID})
	if err != nil {
		return Answer{}, err
	}
	if err = svc.checkNotSubmitted(ctx, student.ID, q.TaskID); err != nil {
		return Answer{}, err
	}
	return ans, nil
}

func (svc *service) checkNotSubmitted(ctx context.Context, studentID, taskID string) error {
	exists, err := svc.repo.ResultExists(ctx, studentID, taskID)
	if err != nil {
		return err
	}
	if exists {
		return core.NewValidationError(ErrAnswerLocked, core.FieldError{Field: "text", Error: ErrAnswerLocked.Error()})
	}
	return nil
}

// saveAttachment writes the upload under
// <MediaRoot>/answers/student_<id>/<filename> and returns the media-relative
// path recorded on the answer.
func (svc *service) saveAttachment(student user.User, filename string, src io.Reader) (string, error) {
	filename = filepath.Base(filepath.Clean(filename))
	if filename == "" || filename == "." || filename == string(filepath.Separator) {
		return "", core.NewValidationError(nil, core.FieldError{Field: "attachment", Error: "invalid file name"})
	}

	relPath := filepath.Join("answers", "student_"+student.ID, filename)
	absPath := filepath.Join(svc.conf.MediaRoot, relPath)
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return "", errors.Wrap(err, "creating attachment directory")
	}
	dst, err := os.Create(absPath)
	if err != nil {
		return "", errors.Wrap(err, "creating attachment file")
	}
	defer func() { _ = dst.Close() }()
	if _, err = io.Copy(dst, src); err != nil {
		return "", errors.Wrap(err, "writing attachment file")
	}
	return filepath.ToSlash(relPath), nil
}
