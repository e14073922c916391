package sqlxrepos

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/course"
)

var courseColumns = []string{
	"courses.id", "courses.title", "courses.professor_id", "courses.max_students",
	"courses.created_at", "courses.updated_at",
}

type courseRepository struct {
	db core.DB
}

var _ course.Repository = (*courseRepository)(nil)

func NewCourseRepository(db core.DB) *courseRepository {
	return &courseRepository{db: db}
}

func (repo *courseRepository) CheckTitleUniqueness(ctx context.Context, title string, excludedCourses []course.Course, exec ...core.DBExecutor) error {
	qb := psql.Select("COUNT(*)").From("courses").Where(sq.Eq{"title": title})
	if len(excludedCourses) > 0 {
		ids := make([]string, 0, len(excludedCourses))
		for _, crs := range excludedCourses {
			ids = append(ids, crs.ID)
		}
		qb = qb.Where(sq.NotEq{"id": ids})
	}
	query, args, err := qb.ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}

	var count int
	if err = getExec(repo.db, exec).GetContext(ctx, &count, query, args...); err != nil {
		return errors.Wrap(err, "checking course title uniqueness")
	}
	if count > 0 {
		return course.ErrTitleExists
	}
	return nil
}

func (repo *courseRepository) CreateCourse(ctx context.Context, crs course.Course, exec ...core.DBExecutor) (course.Course, error) {
	crs.ID = uuid.NewString()
	query, args, err := psql.Insert("courses").
		Columns("id", "title", "professor_id", "max_students", "created_at", "updated_at").
		Values(crs.ID, crs.Title, crs.ProfessorID, crs.MaxStudents, crs.CreatedAt, crs.UpdatedAt).
		ToSql()
	if err != nil {
		return course.Course{}, errors.Wrap(err, "building query")
	}
	if _, err = getExec(repo.db, exec).ExecContext(ctx, query, args...); err != nil {
		return course.Course{}, errors.Wrap(err, "creating course")
	}
	return crs, nil
}

func (repo *courseRepository) QueryCourses(ctx context.Context, filter *course.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]course.Course, error) {
	qb := psql.Select(courseColumns...).From("courses")
	if filter != nil && !filter.IsEmpty() {
		if filter.Search != "" {
			pattern := "%" + filter.Search + "%"
			qb = qb.Join("users ON users.id = courses.professor_id").
				Where(sq.Or{
					sq.ILike{"courses.title": pattern},
					sq.ILike{"users.first_name": pattern},
					sq.ILike{"users.last_name": pattern},
				})
		}
		if filter.ProfessorID != "" {
			qb = qb.Where(sq.Eq{"courses.professor_id": filter.ProfessorID})
		}
		if filter.StudentID != "" {
			qb = qb.Join("course_students ON course_students.course_id = courses.id").
				Where(sq.Eq{"course_students.student_id": filter.StudentID})
		}
	}
	qb = qb.OrderBy(orderByClauses(ordering, "courses.created_at DESC")...)

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	courses := make([]course.Course, 0)
	if err = getExec(repo.db, exec).SelectContext(ctx, &courses, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying courses")
	}
	if err = repo.loadRosters(ctx, courses, exec); err != nil {
		return nil, err
	}
	return courses, nil
}

func (repo *courseRepository) GetCourse(ctx context.Context, filter course.GetFilter, exec ...core.DBExecutor) (course.Course, error) {
	qb := psql.Select(courseColumns...).From("courses").Where(sq.Eq{"courses.id": filter.ID})
	if filter.ProfessorID != "" {
		qb = qb.Where(sq.Eq{"courses.professor_id": filter.ProfessorID})
	}
	if filter.StudentID != "" {
		qb = qb.Join("course_students ON course_students.course_id = courses.id").
			Where(sq.Eq{"course_students.student_id": filter.StudentID})
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return course.Course{}, errors.Wrap(err, "building query")
	}
	var crs course.Course
	if err = getExec(repo.db, exec).GetContext(ctx, &crs, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return course.Course{}, course.ErrNotFound
		}
		return course.Course{}, errors.Wrap(err, "getting course")
	}

	courses := []course.Course{crs}
	if err = repo.loadRosters(ctx, courses, exec); err != nil {
		return course.Course{}, err
	}
	return courses[0], nil
}

func (repo *courseRepository) UpdateCourse(ctx context.Context, crs course.Course, exec ...core.DBExecutor) (course.Course, error) {
	query, args, err := psql.Update("courses").
		Set("title", crs.Title).
		Set("max_students", crs.MaxStudents).
		Set("updated_at", crs.UpdatedAt).
		Where(sq.Eq{"id": crs.ID}).
		ToSql()
	if err != nil {
		return course.Course{}, errors.Wrap(err, "building query")
	}

	res, err := getExec(repo.db, exec).ExecContext(ctx, query, args...)
	if err != nil {
		return course.Course{}, errors.Wrap(err, "updating course")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return course.Course{}, course.ErrNotFound
	}
	return crs, nil
}

func (repo *courseRepository) DeleteCoursesByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query, args, err := psql.Delete("courses").Where(sq.Eq{"id": ids}).ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "building query")
	}
	res, err := getExec(repo.db, exec).ExecContext(ctx, query, args...)
	if err != nil {
		return 0, errors.Wrap(err, "deleting courses")
	}
	n, err := res.RowsAffected()
	return int(n), errors.Wrap(err, "deleting courses")
}

func (repo *courseRepository) AddStudent(ctx context.Context, courseID, studentID string, exec ...core.DBExecutor) error {
	query, args, err := psql.Insert("course_students").
		Columns("course_id", "student_id").
		Values(courseID, studentID).
		Suffix("ON CONFLICT DO NOTHING").
		ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	if _, err = getExec(repo.db, exec).ExecContext(ctx, query, args...); err != nil {
		return errors.Wrap(err, "enrolling student")
	}
	return nil
}

// loadRosters fills StudentIDs on each course in place.
func (repo *courseRepository) loadRosters(ctx context.Context, courses []course.Course, exec []core.DBExecutor) error {
	if len(courses) == 0 {
		return nil
	}
	ids := make([]string, 0, len(courses))
	for _, crs := range courses {
		ids = append(ids, crs.ID)
	}

	query, args, err := psql.Select("course_id", "student_id").
		From("course_students").
		Where(sq.Eq{"course_id": ids}).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	var rows []struct {
		CourseID  string `db:"course_id"`
		StudentID string `db:"student_id"`
	}
	if err = getExec(repo.db, exec).SelectContext(ctx, &rows, query, args...); err != nil {
		return errors.Wrap(err, "loading course rosters")
	}

	byCourse := make(map[string][]string, len(courses))
	for _, row := range rows {
		byCourse[row.CourseID] = append(byCourse[row.CourseID], row.StudentID)
	}
	for i := range courses {
		courses[i].StudentIDs = byCourse[courses[i].ID]
	}
	return nil
}
