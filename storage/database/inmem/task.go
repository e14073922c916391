package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/task"
)

type taskRepository struct {
	db *DB
}

var _ task.Repository = (*taskRepository)(nil)

func NewTaskRepository(db *DB) *taskRepository {
	return &taskRepository{db: db}
}

func (repo *taskRepository) CheckTitleUniqueness(ctx context.Context, title, courseID string, excludedTasks []task.Task, exec ...core.DBExecutor) error {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	excluded := make(map[string]bool, len(excludedTasks))
	for _, t := range excludedTasks {
		excluded[t.ID] = true
	}
	for _, t := range repo.db.tasks {
		if t.Title == title && t.CourseID == courseID && !excluded[t.ID] {
			return task.ErrTitleExists
		}
	}
	return nil
}

func (repo *taskRepository) CreateTask(ctx context.Context, t task.Task, exec ...core.DBExecutor) (task.Task, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	t.ID = uuid.NewString()
	repo.db.tasks[t.ID] = &t
	return t, nil
}

func (repo *taskRepository) QueryTasks(ctx context.Context, filter *task.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]task.Task, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	tasks := make([]task.Task, 0, len(repo.db.tasks))
	for _, t := range repo.db.tasks {
		if filter != nil && !repo.matchTask(*t, filter) {
			continue
		}
		tasks = append(tasks, repo.withQuestions(*t))
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].CreatedAt.After(tasks[j].CreatedAt) })
	return tasks, nil
}

func (repo *taskRepository) GetTask(ctx context.Context, filter task.GetFilter, exec ...core.DBExecutor) (task.Task, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	t, ok := repo.db.tasks[filter.ID]
	if !ok {
		return task.Task{}, task.ErrNotFound
	}
	if !repo.inTaskScope(*t, filter.ProfessorID, filter.StudentID) {
		return task.Task{}, task.ErrNotFound
	}
	return repo.withQuestions(*t), nil
}

func (repo *taskRepository) UpdateTask(ctx context.Context, t task.Task, exec ...core.DBExecutor) (task.Task, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.tasks[t.ID]; !ok {
		return task.Task{}, task.ErrNotFound
	}
	repo.db.tasks[t.ID] = &t
	return repo.withQuestions(t), nil
}

func (repo *taskRepository) DeleteTasksByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	var n int
	for _, id := range ids {
		if _, ok := repo.db.tasks[id]; !ok {
			continue
		}
		delete(repo.db.tasks, id)
		for qid, q := range repo.db.questions {
			if q.TaskID == id {
				delete(repo.db.questions, qid)
			}
		}
		n++
	}
	return n, nil
}

func (repo *taskRepository) CreateQuestions(ctx context.Context, questions []task.Question, exec ...core.DBExecutor) ([]task.Question, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for i := range questions {
		questions[i].ID = uuid.NewString()
		q := questions[i]
		repo.db.questions[q.ID] = &q
	}
	return questions, nil
}

func (repo *taskRepository) UpdateQuestionTexts(ctx context.Context, questions []task.Question, exec ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, q := range questions {
		if orig, ok := repo.db.questions[q.ID]; ok && orig.TaskID == q.TaskID {
			orig.Text = q.Text
		}
	}
	return nil
}

func (repo *taskRepository) DeleteQuestionsByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	var n int
	for _, id := range ids {
		if _, ok := repo.db.questions[id]; ok {
			delete(repo.db.questions, id)
			n++
		}
	}
	return n, nil
}

func (repo *taskRepository) GetQuestion(ctx context.Context, filter task.QuestionGetFilter, exec ...core.DBExecutor) (task.Question, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	q, ok := repo.db.questions[filter.ID]
	if !ok {
		return task.Question{}, task.ErrQuestionNotFound
	}
	t, ok := repo.db.tasks[q.TaskID]
	if !ok || !repo.inTaskScope(*t, filter.ProfessorID, filter.StudentID) {
		return task.Question{}, task.ErrQuestionNotFound
	}
	return *q, nil
}

func (repo *taskRepository) matchTask(t task.Task, filter *task.QueryFilter) bool {
	if filter.CourseID != "" && t.CourseID != filter.CourseID {
		return false
	}
	return repo.inTaskScope(t, filter.ProfessorID, filter.StudentID)
}

func (repo *taskRepository) inTaskScope(t task.Task, professorID, studentID string) bool {
	if professorID != "" {
		crs, ok := repo.db.courses[t.CourseID]
		if !ok || crs.ProfessorID != professorID {
			return false
		}
	}
	if studentID != "" && !repo.db.rosters[t.CourseID][studentID] {
		return false
	}
	return true
}

func (repo *taskRepository) withQuestions(t task.Task) task.Task {
	var questions []task.Question
	for _, q := range repo.db.questions {
		if q.TaskID == t.ID {
			questions = append(questions, *q)
		}
	}
	sort.Slice(questions, func(i, j int) bool { return questions[i].ID < questions[j].ID })
	t.Questions = questions
	return t
}
