package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/course"
)

type courseRepository struct {
	db *DB
}

var _ course.Repository = (*courseRepository)(nil)

func NewCourseRepository(db *DB) *courseRepository {
	return &courseRepository{db: db}
}

func (repo *courseRepository) CheckTitleUniqueness(ctx context.Context, title string, excludedCourses []course.Course, exec ...core.DBExecutor) error {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	excluded := make(map[string]bool, len(excludedCourses))
	for _, crs := range excludedCourses {
		excluded[crs.ID] = true
	}
	for _, crs := range repo.db.courses {
		if crs.Title == title && !excluded[crs.ID] {
			return course.ErrTitleExists
		}
	}
	return nil
}

func (repo *courseRepository) CreateCourse(ctx context.Context, crs course.Course, exec ...core.DBExecutor) (course.Course, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	crs.ID = uuid.NewString()
	repo.db.courses[crs.ID] = &crs
	return crs, nil
}

func (repo *courseRepository) QueryCourses(ctx context.Context, filter *course.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]course.Course, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	courses := make([]course.Course, 0, len(repo.db.courses))
	for _, crs := range repo.db.courses {
		if filter != nil && !repo.matchCourse(*crs, filter) {
			continue
		}
		courses = append(courses, repo.withRoster(*crs))
	}
	sort.Slice(courses, func(i, j int) bool { return courses[i].CreatedAt.After(courses[j].CreatedAt) })
	return courses, nil
}

func (repo *courseRepository) GetCourse(ctx context.Context, filter course.GetFilter, exec ...core.DBExecutor) (course.Course, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	crs, ok := repo.db.courses[filter.ID]
	if !ok {
		return course.Course{}, course.ErrNotFound
	}
	if filter.ProfessorID != "" && crs.ProfessorID != filter.ProfessorID {
		return course.Course{}, course.ErrNotFound
	}
	if filter.StudentID != "" && !repo.db.rosters[crs.ID][filter.StudentID] {
		return course.Course{}, course.ErrNotFound
	}
	return repo.withRoster(*crs), nil
}

func (repo *courseRepository) UpdateCourse(ctx context.Context, crs course.Course, exec ...core.DBExecutor) (course.Course, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.courses[crs.ID]; !ok {
		return course.Course{}, course.ErrNotFound
	}
	repo.db.courses[crs.ID] = &crs
	return repo.withRoster(crs), nil
}

func (repo *courseRepository) DeleteCoursesByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	var n int
	for _, id := range ids {
		if _, ok := repo.db.courses[id]; ok {
			delete(repo.db.courses, id)
			delete(repo.db.rosters, id)
			n++
		}
	}
	return n, nil
}

func (repo *courseRepository) AddStudent(ctx context.Context, courseID, studentID string, exec ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.courses[courseID]; !ok {
		return course.ErrNotFound
	}
	if repo.db.rosters[courseID] == nil {
		repo.db.rosters[courseID] = make(map[string]bool)
	}
	repo.db.rosters[courseID][studentID] = true
	return nil
}

func (repo *courseRepository) matchCourse(crs course.Course, filter *course.QueryFilter) bool {
	if filter.Search != "" {
		search := strings.ToLower(filter.Search)
		match := strings.Contains(strings.ToLower(crs.Title), search)
		if prof, ok := repo.db.users[crs.ProfessorID]; ok && !match {
			match = strings.Contains(strings.ToLower(prof.FirstName), search) ||
				strings.Contains(strings.ToLower(prof.LastName), search)
		}
		if !match {
			return false
		}
	}
	if filter.ProfessorID != "" && crs.ProfessorID != filter.ProfessorID {
		return false
	}
	if filter.StudentID != "" && !repo.db.rosters[crs.ID][filter.StudentID] {
		return false
	}
	return true
}

func (repo *courseRepository) withRoster(crs course.Course) course.Course {
	students := repo.db.rosters[crs.ID]
	crs.StudentIDs = make([]string, 0, len(students))
	for id := range students {
		crs.StudentIDs = append(crs.StudentIDs, id)
	}
	sort.Strings(crs.StudentIDs)
	return crs
}
