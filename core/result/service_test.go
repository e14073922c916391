package result_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/course"
	"github.com/trezcool/elimu/core/result"
	"github.com/trezcool/elimu/core/task"
	"github.com/trezcool/elimu/core/user"
	inmemdb "github.com/trezcool/elimu/storage/database/inmem"
)

type testEnv struct {
	db         *inmemdb.DB
	usrRepo    user.Repository
	courseRepo course.Repository
	taskRepo   task.Repository
	repo       result.Repository
	svc        result.Service
	taskSvc    task.Service
	conf       *core.Config
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	db := inmemdb.NewDB()
	taskRepo := inmemdb.NewTaskRepository(db)
	repo := inmemdb.NewResultRepository(db)
	conf := &core.Config{MediaRoot: t.TempDir()}
	return &testEnv{
		db:         db,
		usrRepo:    inmemdb.NewUserRepository(db),
		courseRepo: inmemdb.NewCourseRepository(db),
		taskRepo:   taskRepo,
		repo:       repo,
		svc:        result.NewService(repo, taskRepo, conf),
		taskSvc:    task.NewService(db, taskRepo, inmemdb.NewCourseRepository(db)),
		conf:       conf,
	}
}

func (env *testEnv) createUser(t *testing.T, first, email string, role user.Role) user.User {
	t.Helper()
	now := time.Now().UTC()
	usr, err := env.usrRepo.CreateUser(context.Background(), user.User{
		Role:      role,
		FirstName: first,
		Email:     email,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("createUser(): %v", err)
	}
	return usr
}

// createTask seeds a course owned by prof with the given roster and a task
// holding a single question.
func (env *testEnv) createTask(t *testing.T, prof user.User, endAt *time.Time, studentIDs ...string) task.Task {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	crs, err := env.courseRepo.CreateCourse(ctx, course.Course{
		Title:       "Course of " + prof.FirstName + " " + now.String(),
		ProfessorID: prof.ID,
		MaxStudents: course.DefaultMaxStudents,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		t.Fatalf("createTask(): %v", err)
	}
	for _, id := range studentIDs {
		if err = env.courseRepo.AddStudent(ctx, crs.ID, id); err != nil {
			t.Fatalf("createTask(): %v", err)
		}
	}
	tsk, err := env.taskSvc.Create(prof, task.NewTask{
		Title:     "Homework",
		CourseID:  crs.ID,
		EndAt:     endAt,
		Questions: []task.QuestionInput{{Text: "What is a monad?"}},
	})
	if err != nil {
		t.Fatalf("createTask(): %v", err)
	}
	return tsk
}

func assertFieldError(t *testing.T, err error, field string) {
	t.Helper()
	vErr, ok := err.(*core.ValidationError)
	if !ok {
		t.Fatalf("error = %v, want *core.ValidationError", err)
	}
	if len(vErr.Fields) != 1 || vErr.Fields[0].Field != field {
		t.Fatalf("Fields = %+v, want a %q error", vErr.Fields, field)
	}
}

func Test_service_CreateAnswer(t *testing.T) {
	env := setup(t)
	prof := env.createUser(t, "Ada", "ada@test.cd", user.RoleProfessor)
	student := env.createUser(t, "Sia", "sia@test.cd", user.RoleStudent)
	outsider := env.createUser(t, "Out", "out@test.cd", user.RoleStudent)
	tsk := env.createTask(t, prof, nil, student.ID)
	q := tsk.Questions[0]

	// the question must belong to one of the student's enrolled courses
	_, err := env.svc.CreateAnswer(outsider, result.NewAnswer{QuestionID: q.ID, Text: "42"})
	assertFieldError(t, err, "question")

	// text or attachment is required
	_, err = env.svc.CreateAnswer(student, result.NewAnswer{QuestionID: q.ID})
	assertFieldError(t, err, "text")

	ans, err := env.svc.CreateAnswer(student, result.NewAnswer{QuestionID: q.ID, Text: "42"})
	if err != nil {
		t.Fatalf("CreateAnswer() error = %v", err)
	}
	if ans.StudentID != student.ID || ans.QuestionID != q.ID || ans.Text != "42" {
		t.Errorf("CreateAnswer() = %+v", ans)
	}
	if ans.Grade != nil {
		t.Errorf("CreateAnswer() Grade = %v, want nil", *ans.Grade)
	}
}

func Test_service_UpdateAnswer(t *testing.T) {
	env := setup(t)
	prof := env.createUser(t, "Ada", "ada@test.cd", user.RoleProfessor)
	student := env.createUser(t, "Sia", "sia@test.cd", user.RoleStudent)
	other := env.createUser(t, "Oth", "oth@test.cd", user.RoleStudent)
	tsk := env.createTask(t, prof, nil, student.ID, other.ID)

	ans, err := env.svc.CreateAnswer(student, result.NewAnswer{QuestionID: tsk.Questions[0].ID, Text: "draft"})
	if err != nil {
		t.Fatalf("CreateAnswer() error = %v", err)
	}

	// another student's answer is out of scope
	if _, err = env.svc.UpdateAnswer(other, ans.ID, result.UpdateAnswer{Text: "hijack"}); err != result.ErrAnswerNotFound {
		t.Errorf("UpdateAnswer() error = %v, want %v", err, result.ErrAnswerNotFound)
	}

	got, err := env.svc.UpdateAnswer(student, ans.ID, result.UpdateAnswer{Text: "final"})
	if err != nil {
		t.Fatalf("UpdateAnswer() error = %v", err)
	}
	if got.Text != "final" {
		t.Errorf("UpdateAnswer() Text = %q, want %q", got.Text, "final")
	}
}

func Test_service_AttachFile(t *testing.T) {
	env := setup(t)
	prof := env.createUser(t, "Ada", "ada@test.cd", user.RoleProfessor)
	student := env.createUser(t, "Sia", "sia@test.cd", user.RoleStudent)
	tsk := env.createTask(t, prof, nil, student.ID)

	ans, err := env.svc.CreateAnswer(student, result.NewAnswer{QuestionID: tsk.Questions[0].ID, Text: "see attached"})
	if err != nil {
		t.Fatalf("CreateAnswer() error = %v", err)
	}

	got, err := env.svc.AttachFile(student, ans.ID, "../../evil/../essay.txt", strings.NewReader("my essay"))
	if err != nil {
		t.Fatalf("AttachFile() error = %v", err)
	}
	want := "answers/student_" + student.ID + "/essay.txt"
	if got.Attachment != want {
		t.Errorf("AttachFile() Attachment = %q, want %q", got.Attachment, want)
	}

	data, err := os.ReadFile(filepath.Join(env.conf.MediaRoot, filepath.FromSlash(got.Attachment)))
	if err != nil {
		t.Fatalf("reading attachment: %v", err)
	}
	if string(data) != "my essay" {
		t.Errorf("attachment content = %q", data)
	}
}

func Test_service_Submit(t *testing.T) {
	env := setup(t)
	prof := env.createUser(t, "Ada", "ada@test.cd", user.RoleProfessor)
	student := env.createUser(t, "Sia", "sia@test.cd", user.RoleStudent)
	outsider := env.createUser(t, "Out", "out@test.cd", user.RoleStudent)
	tsk := env.createTask(t, prof, nil, student.ID)

	// the task must belong to one of the student's enrolled courses
	if _, err := env.svc.Submit(outsider, result.NewResult{TaskID: tsk.ID}); err != task.ErrNotFound {
		t.Errorf("Submit() error = %v, want %v", err, task.ErrNotFound)
	}

	res, err := env.svc.Submit(student, result.NewResult{TaskID: tsk.ID})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if res.TaskID != tsk.ID || res.StudentID != student.ID {
		t.Errorf("Submit() = %+v", res)
	}
	if res.Grade != nil {
		t.Errorf("Submit() Grade = %v, want nil", *res.Grade)
	}

	// at most one result per (student, task)
	_, err = env.svc.Submit(student, result.NewResult{TaskID: tsk.ID})
	assertFieldError(t, err, "task")
}

func Test_service_Submit_expired(t *testing.T) {
	env := setup(t)
	prof := env.createUser(t, "Ada", "ada@test.cd", user.RoleProfessor)
	student := env.createUser(t, "Sia", "sia@test.cd", user.RoleStudent)

	endAt := time.Now().UTC().Add(1 * time.Hour)
	tsk := env.createTask(t, prof, &endAt, student.ID)

	// submitting within the window is fine
	result.NowFunc = func() time.Time { return endAt.Add(-time.Minute) }
	defer func() { result.NowFunc = time.Now }()
	if _, err := env.svc.Submit(student, result.NewResult{TaskID: tsk.ID}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	// a second student past the deadline is rejected
	late := env.createUser(t, "Lat", "lat@test.cd", user.RoleStudent)
	crs, err := env.courseRepo.GetCourse(context.Background(), course.GetFilter{ID: tsk.CourseID})
	if err != nil {
		t.Fatalf("GetCourse() error = %v", err)
	}
	if err = env.courseRepo.AddStudent(context.Background(), crs.ID, late.ID); err != nil {
		t.Fatalf("AddStudent() error = %v", err)
	}
	result.NowFunc = func() time.Time { return endAt.Add(time.Minute) }
	_, err = env.svc.Submit(late, result.NewResult{TaskID: tsk.ID})
	assertFieldError(t, err, "task")
}

func Test_service_answersLockAfterSubmit(t *testing.T) {
	env := setup(t)
	prof := env.createUser(t, "Ada", "ada@test.cd", user.RoleProfessor)
	student := env.createUser(t, "Sia", "sia@test.cd", user.RoleStudent)
	tsk := env.createTask(t, prof, nil, student.ID)
	q := tsk.Questions[0]

	ans, err := env.svc.CreateAnswer(student, result.NewAnswer{QuestionID: q.ID, Text: "draft"})
	if err != nil {
		t.Fatalf("CreateAnswer() error = %v", err)
	}
	if _, err = env.svc.Submit(student, result.NewResult{TaskID: tsk.ID}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	// no new answers, no edits, no attachments once submitted
	_, err = env.svc.CreateAnswer(student, result.NewAnswer{QuestionID: q.ID, Text: "too late"})
	assertFieldError(t, err, "text")
	_, err = env.svc.UpdateAnswer(student, ans.ID, result.UpdateAnswer{Text: "too late"})
	assertFieldError(t, err, "text")
	_, err = env.svc.AttachFile(student, ans.ID, "late.txt", strings.NewReader("late"))
	assertFieldError(t, err, "text")
}

func Test_service_grading(t *testing.T) {
	env := setup(t)
	prof := env.createUser(t, "Ada", "ada@test.cd", user.RoleProfessor)
	otherProf := env.createUser(t, "Bob", "bob@test.cd", user.RoleProfessor)
	student := env.createUser(t, "Sia", "sia@test.cd", user.RoleStudent)
	tsk := env.createTask(t, prof, nil, student.ID)

	ans, err := env.svc.CreateAnswer(student, result.NewAnswer{QuestionID: tsk.Questions[0].ID, Text: "42"})
	if err != nil {
		t.Fatalf("CreateAnswer() error = %v", err)
	}
	res, err := env.svc.Submit(student, result.NewResult{TaskID: tsk.ID})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	grade := 85

	// another professor's students are out of scope
	if _, err = env.svc.GradeAnswer(otherProf, ans.ID, result.GradeAnswer{Grade: &grade}); err != result.ErrAnswerNotFound {
		t.Errorf("GradeAnswer() error = %v, want %v", err, result.ErrAnswerNotFound)
	}
	if _, err = env.svc.GradeResult(otherProf, res.ID, result.GradeResult{Grade: &grade}); err != result.ErrResultNotFound {
		t.Errorf("GradeResult() error = %v, want %v", err, result.ErrResultNotFound)
	}

	gotAns, err := env.svc.GradeAnswer(prof, ans.ID, result.GradeAnswer{Grade: &grade})
	if err != nil {
		t.Fatalf("GradeAnswer() error = %v", err)
	}
	if gotAns.Grade == nil || *gotAns.Grade != grade {
		t.Errorf("GradeAnswer() Grade = %v, want %d", gotAns.Grade, grade)
	}
	gotRes, err := env.svc.GradeResult(prof, res.ID, result.GradeResult{Grade: &grade})
	if err != nil {
		t.Fatalf("GradeResult() error = %v", err)
	}
	if gotRes.Grade == nil || *gotRes.Grade != grade {
		t.Errorf("GradeResult() Grade = %v, want %d", gotRes.Grade, grade)
	}

	// the student sees the graded answer and result
	if _, err = env.svc.GetOwnAnswer(student, ans.ID); err != nil {
		t.Errorf("GetOwnAnswer() error = %v", err)
	}
	if _, err = env.svc.GetOwnResult(student, res.ID); err != nil {
		t.Errorf("GetOwnResult() error = %v", err)
	}
}

func Test_service_queries(t *testing.T) {
	env := setup(t)
	prof := env.createUser(t, "Ada", "ada@test.cd", user.RoleProfessor)
	otherProf := env.createUser(t, "Bob", "bob@test.cd", user.RoleProfessor)
	student := env.createUser(t, "Sia", "sia@test.cd", user.RoleStudent)
	tsk := env.createTask(t, prof, nil, student.ID)

	if _, err := env.svc.CreateAnswer(student, result.NewAnswer{QuestionID: tsk.Questions[0].ID, Text: "42"}); err != nil {
		t.Fatalf("CreateAnswer() error = %v", err)
	}
	if _, err := env.svc.Submit(student, result.NewResult{TaskID: tsk.ID}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	tests := []struct {
		name string
		n    int
		f    func() (int, error)
	}{
		{name: "own answers", n: 1, f: func() (int, error) {
			answers, err := env.svc.QueryOwnAnswers(student, nil, nil)
			return len(answers), err
		}},
		{name: "course answers", n: 1, f: func() (int, error) {
			answers, err := env.svc.QueryCourseAnswers(prof, nil, nil)
			return len(answers), err
		}},
		{name: "course answers, other professor", n: 0, f: func() (int, error) {
			answers, err := env.svc.QueryCourseAnswers(otherProf, nil, nil)
			return len(answers), err
		}},
		{name: "answers by task", n: 1, f: func() (int, error) {
			answers, err := env.svc.QueryOwnAnswers(student, &result.AnswerQueryFilter{TaskID: tsk.ID}, nil)
			return len(answers), err
		}},
		{name: "answers by student email", n: 1, f: func() (int, error) {
			answers, err := env.svc.QueryCourseAnswers(prof, &result.AnswerQueryFilter{Search: "SIA"}, nil)
			return len(answers), err
		}},
		{name: "own results", n: 1, f: func() (int, error) {
			results, err := env.svc.QueryOwnResults(student, nil, nil)
			return len(results), err
		}},
		{name: "course results", n: 1, f: func() (int, error) {
			results, err := env.svc.QueryCourseResults(prof, nil, nil)
			return len(results), err
		}},
		{name: "course results, other professor", n: 0, f: func() (int, error) {
			results, err := env.svc.QueryCourseResults(otherProf, nil, nil)
			return len(results), err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := tt.f()
			if err != nil {
				t.Fatalf("query error = %v", err)
			}
			if n != tt.n {
				t.Errorf("got %d rows, want %d", n, tt.n)
			}
		})
	}
}
