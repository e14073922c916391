package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/result"
)

type resultRepository struct {
	db *DB
}

var _ result.Repository = (*resultRepository)(nil)

func NewResultRepository(db *DB) *resultRepository {
	return &resultRepository{db: db}
}

func (repo *resultRepository) CreateAnswer(ctx context.Context, ans result.Answer, exec ...core.DBExecutor) (result.Answer, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	ans.ID = uuid.NewString()
	repo.db.answers[ans.ID] = &ans
	return ans, nil
}

func (repo *resultRepository) QueryAnswers(ctx context.Context, filter *result.AnswerQueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]result.Answer, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	answers := make([]result.Answer, 0, len(repo.db.answers))
	for _, ans := range repo.db.answers {
		if filter != nil && !repo.matchAnswer(*ans, filter) {
			continue
		}
		answers = append(answers, *ans)
	}
	sort.Slice(answers, func(i, j int) bool { return answers[i].CreatedAt.After(answers[j].CreatedAt) })
	return answers, nil
}

func (repo *resultRepository) GetAnswer(ctx context.Context, filter result.AnswerGetFilter, exec ...core.DBExecutor) (result.Answer, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	ans, ok := repo.db.answers[filter.ID]
	if !ok {
		return result.Answer{}, result.ErrAnswerNotFound
	}
	if filter.StudentID != "" && ans.StudentID != filter.StudentID {
		return result.Answer{}, result.ErrAnswerNotFound
	}
	if filter.ProfessorID != "" && !repo.answerInProfessorScope(*ans, filter.ProfessorID) {
		return result.Answer{}, result.ErrAnswerNotFound
	}
	return *ans, nil
}

func (repo *resultRepository) UpdateAnswer(ctx context.Context, ans result.Answer, exec ...core.DBExecutor) (result.Answer, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.answers[ans.ID]; !ok {
		return result.Answer{}, result.ErrAnswerNotFound
	}
	repo.db.answers[ans.ID] = &ans
	return ans, nil
}

func (repo *resultRepository) CreateResult(ctx context.Context, res result.Result, exec ...core.DBExecutor) (result.Result, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, existing := range repo.db.results {
		if existing.StudentID == res.StudentID && existing.TaskID == res.TaskID {
			return result.Result{}, result.ErrAlreadySubmitted
		}
	}
	res.ID = uuid.NewString()
	repo.db.results[res.ID] = &res
	return res, nil
}

func (repo *resultRepository) ResultExists(ctx context.Context, studentID, taskID string, exec ...core.DBExecutor) (bool, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, res := range repo.db.results {
		if res.StudentID == studentID && res.TaskID == taskID {
			return true, nil
		}
	}
	return false, nil
}

func (repo *resultRepository) QueryResults(ctx context.Context, filter *result.ResultQueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]result.Result, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	results := make([]result.Result, 0, len(repo.db.results))
	for _, res := range repo.db.results {
		if filter != nil && !repo.matchResult(*res, filter) {
			continue
		}
		results = append(results, *res)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].CreatedAt.After(results[j].CreatedAt) })
	return results, nil
}

func (repo *resultRepository) GetResult(ctx context.Context, filter result.ResultGetFilter, exec ...core.DBExecutor) (result.Result, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	res, ok := repo.db.results[filter.ID]
	if !ok {
		return result.Result{}, result.ErrResultNotFound
	}
	if filter.StudentID != "" && res.StudentID != filter.StudentID {
		return result.Result{}, result.ErrResultNotFound
	}
	if filter.ProfessorID != "" && !repo.taskInProfessorScope(res.TaskID, filter.ProfessorID) {
		return result.Result{}, result.ErrResultNotFound
	}
	return *res, nil
}

func (repo *resultRepository) UpdateResult(ctx context.Context, res result.Result, exec ...core.DBExecutor) (result.Result, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.results[res.ID]; !ok {
		return result.Result{}, result.ErrResultNotFound
	}
	repo.db.results[res.ID] = &res
	return res, nil
}

func (repo *resultRepository) matchAnswer(ans result.Answer, filter *result.AnswerQueryFilter) bool {
	if filter.TaskID != "" {
		q, ok := repo.db.questions[ans.QuestionID]
		if !ok || q.TaskID != filter.TaskID {
			return false
		}
	}
	if filter.Search != "" {
		usr, ok := repo.db.users[ans.StudentID]
		if !ok || !strings.Contains(strings.ToLower(usr.Email), strings.ToLower(filter.Search)) {
			return false
		}
	}
	if filter.StudentID != "" && ans.StudentID != filter.StudentID {
		return false
	}
	if filter.ProfessorID != "" && !repo.answerInProfessorScope(ans, filter.ProfessorID) {
		return false
	}
	return true
}

func (repo *resultRepository) matchResult(res result.Result, filter *result.ResultQueryFilter) bool {
	if filter.TaskID != "" && res.TaskID != filter.TaskID {
		return false
	}
	if filter.StudentID != "" && res.StudentID != filter.StudentID {
		return false
	}
	if filter.ProfessorID != "" && !repo.taskInProfessorScope(res.TaskID, filter.ProfessorID) {
		return false
	}
	return true
}

func (repo *resultRepository) answerInProfessorScope(ans result.Answer, professorID string) bool {
	q, ok := repo.db.questions[ans.QuestionID]
	if !ok {
		return false
	}
	return repo.taskInProfessorScope(q.TaskID, professorID)
}

func (repo *resultRepository) taskInProfessorScope(taskID, professorID string) bool {
	t, ok := repo.db.tasks[taskID]
	if !ok {
		return false
	}
	crs, ok := repo.db.courses[t.CourseID]
	return ok && crs.ProfessorID == professorID
}
