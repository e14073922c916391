package course

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/user"
)

var (
	// errors
	ErrNotFound    = errors.New("course not found")
	ErrTitleExists = errors.New("a course with this title already exists")
)

type (
	Repository interface {
		// CheckTitleUniqueness fails with ErrTitleExists if another course
		// (not in excludedCourses) holds the title.
		CheckTitleUniqueness(ctx context.Context, title string, excludedCourses []Course, exec ...core.DBExecutor) error
		CreateCourse(ctx context.Context, crs Course, exec ...core.DBExecutor) (Course, error)
		// QueryCourses applies AND operation on available QueryFilter fields.
		QueryCourses(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Course, error)
		GetCourse(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (Course, error)
		UpdateCourse(ctx context.Context, crs Course, exec ...core.DBExecutor) (Course, error)
		DeleteCoursesByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error)
		// AddStudent enrolls the student; enrolling an already-enrolled
		// student is a no-op.
		AddStudent(ctx context.Context, courseID, studentID string, exec ...core.DBExecutor) error
	}

	Service interface {
		CheckTitleUniqueness(title string, excludedCourses ...Course) error
		Create(professor user.User, nc NewCourse) (Course, error)
		Query(filter *QueryFilter, ordering []core.DBOrdering) ([]Course, error)
		GetByID(id string) (Course, error)
		// GetOwn and GetEnrolled scope retrieval to the caller; out-of-scope
		// courses surface as ErrNotFound.
		GetOwn(professor user.User, id string) (Course, error)
		GetEnrolled(student user.User, id string) (Course, error)
		Update(professor user.User, id string, uc UpdateCourse) (Course, error)
		Delete(professor user.User, ids ...string) error
		// Join enrolls the student; joining an already-joined course is a no-op.
		// MaxStudents is informational and not enforced here.
		Join(student user.User, courseID string) error
	}

	service struct {
		repo Repository
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (svc *service) CheckTitleUniqueness(title string, excludedCourses ...Course) error {
	if err := svc.repo.CheckTitleUniqueness(context.Background(), title, excludedCourses); err != nil {
		if errors.Cause(err) == ErrTitleExists {
			return core.NewValidationError(err, core.FieldError{Field: "title", Error: err.Error()})
		}
		return err
	}
	return nil
}

func (svc *service) Create(professor user.User, nc NewCourse) (Course, error) {
	now := time.Now().UTC()
	maxStudents := nc.MaxStudents
	if maxStudents == 0 {
		maxStudents = DefaultMaxStudents
	}
	crs := Course{
		Title:       nc.Title,
		ProfessorID: professor.ID,
		MaxStudents: maxStudents,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return svc.repo.CreateCourse(context.Background(), crs)
}

func (svc *service) Query(filter *QueryFilter, ordering []core.DBOrdering) ([]Course, error) {
	return svc.repo.QueryCourses(context.Background(), filter, ordering)
}

func (svc *service) GetByID(id string) (Course, error) {
	return svc.repo.GetCourse(context.Background(), GetFilter{ID: id})
}

func (svc *service) GetOwn(professor user.User, id string) (Course, error) {
	return svc.repo.GetCourse(context.Background(), GetFilter{ID: id, ProfessorID: professor.ID})
}

func (svc *service) GetEnrolled(student user.User, id string) (Course, error) {
	return svc.repo.GetCourse(context.Background(), GetFilter{ID: id, StudentID: student.ID})
}

func (svc *service) Update(professor user.User, id string, uc UpdateCourse) (Course, error) {
	ctx := context.Background()
	crs, err := svc.repo.GetCourse(ctx, GetFilter{ID: id, ProfessorID: professor.ID})
	if err != nil {
		return Course{}, err
	}

	crs.Title = uc.Title
	crs.MaxStudents = uc.MaxStudents
	crs.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateCourse(ctx, crs)
}

func (svc *service) Delete(professor user.User, ids ...string) error {
	ctx := context.Background()
	owned := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := svc.repo.GetCourse(ctx, GetFilter{ID: id, ProfessorID: professor.ID}); err != nil {
			return err
		}
		owned = append(owned, id)
	}
	_, err := svc.repo.DeleteCoursesByID(ctx, owned)
	return err
}

func (svc *service) Join(student user.User, courseID string) error {
	ctx := context.Background()
	crs, err := svc.repo.GetCourse(ctx, GetFilter{ID: courseID})
	if err != nil {
		return err
	}
	if crs.HasStudent(student.ID) {
		return nil
	}
	return svc.repo.AddStudent(ctx, crs.ID, student.ID)
}
