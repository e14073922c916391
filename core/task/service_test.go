package task_test

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/course"
	"github.com/trezcool/elimu/core/task"
	"github.com/trezcool/elimu/core/user"
	inmemdb "github.com/trezcool/elimu/storage/database/inmem"
)

type testEnv struct {
	db         *inmemdb.DB
	usrRepo    user.Repository
	courseRepo course.Repository
	repo       task.Repository
	svc        task.Service
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	db := inmemdb.NewDB()
	repo := inmemdb.NewTaskRepository(db)
	courseRepo := inmemdb.NewCourseRepository(db)
	return &testEnv{
		db:         db,
		usrRepo:    inmemdb.NewUserRepository(db),
		courseRepo: courseRepo,
		repo:       repo,
		svc:        task.NewService(db, repo, courseRepo),
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

func (env *testEnv) createCourse(t *testing.T, prof user.User, title string, studentIDs ...string) course.Course {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	crs, err := env.courseRepo.CreateCourse(ctx, course.Course{
		Title:       title,
		ProfessorID: prof.ID,
		MaxStudents: course.DefaultMaxStudents,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		t.Fatalf("createCourse(): %v", err)
	}
	for _, id := range studentIDs {
		if err = env.courseRepo.AddStudent(ctx, crs.ID, id); err != nil {
			t.Fatalf("createCourse(): %v", err)
		}
	}
	return crs
}

func Test_service_Create(t *testing.T) {
	env := setup(t)
	prof := env.createUser(t, "Ada", "ada@test.cd", user.RoleProfessor)
	otherProf := env.createUser(t, "Bob", "bob@test.cd", user.RoleProfessor)
	crs := env.createCourse(t, prof, "Algorithms")

	nt := task.NewTask{
		Title:    "Homework 1",
		CourseID: crs.ID,
		Questions: []task.QuestionInput{
			{Text: "What is a heap?"},
			{Text: ""}, // dropped
			{Text: "What is a trie?"},
		},
	}

	// the course must be owned by the caller
	if _, err := env.svc.Create(otherProf, nt); err != course.ErrNotFound {
		t.Errorf("Create() error = %v, want %v", err, course.ErrNotFound)
	}

	tsk, err := env.svc.Create(prof, nt)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if tsk.CourseID != crs.ID {
		t.Errorf("Create() CourseID = %v, want %v", tsk.CourseID, crs.ID)
	}
	if len(tsk.Questions) != 2 {
		t.Fatalf("Create() created %d questions, want 2", len(tsk.Questions))
	}
	for _, q := range tsk.Questions {
		if q.ID == "" || q.TaskID != tsk.ID {
			t.Errorf("Create() question = %+v", q)
		}
	}
}

func Test_service_Update_questionDispatch(t *testing.T) {
	env := setup(t)
	prof := env.createUser(t, "Ada", "ada@test.cd", user.RoleProfessor)
	crs := env.createCourse(t, prof, "Algorithms")

	tsk, err := env.svc.Create(prof, task.NewTask{
		Title:    "Homework 1",
		CourseID: crs.ID,
		Questions: []task.QuestionInput{
			{Text: "To keep"},
			{Text: "To edit"},
			{Text: "To drop"},
		},
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	var keep, edit, drop task.Question
	for _, q := range tsk.Questions {
		switch q.Text {
		case "To keep":
			keep = q
		case "To edit":
			edit = q
		case "To drop":
			drop = q
		}
	}

	got, err := env.svc.Update(prof, tsk.ID, task.UpdateTask{
		Title: "Homework 1 (v2)",
		Questions: []task.QuestionInput{
			{ID: edit.ID, Text: "Edited"},
			{ID: drop.ID, Text: ""},
			{Text: "Brand new"},
			{ID: "not-mine", Text: "ignored"}, // unknown id, ignored
		},
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if got.Title != "Homework 1 (v2)" {
		t.Errorf("Update() Title = %v", got.Title)
	}
	if len(got.Questions) != 3 {
		t.Fatalf("Update() left %d questions, want 3", len(got.Questions))
	}
	texts := make(map[string]string, len(got.Questions))
	for _, q := range got.Questions {
		texts[q.ID] = q.Text
	}
	if texts[keep.ID] != "To keep" {
		t.Errorf("kept question text = %q, want unchanged", texts[keep.ID])
	}
	if texts[edit.ID] != "Edited" {
		t.Errorf("edited question text = %q, want %q", texts[edit.ID], "Edited")
	}
	if _, ok := texts[drop.ID]; ok {
		t.Errorf("dropped question %v still present", drop.ID)
	}
}

func Test_service_scoping(t *testing.T) {
	env := setup(t)
	prof := env.createUser(t, "Ada", "ada@test.cd", user.RoleProfessor)
	otherProf := env.createUser(t, "Bob", "bob@test.cd", user.RoleProfessor)
	student := env.createUser(t, "Sia", "sia@test.cd", user.RoleStudent)
	outsider := env.createUser(t, "Out", "out@test.cd", user.RoleStudent)
	crs := env.createCourse(t, prof, "Algorithms", student.ID)

	tsk, err := env.svc.Create(prof, task.NewTask{Title: "Homework 1", CourseID: crs.ID})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if _, err = env.svc.GetOwn(otherProf, tsk.ID); err != task.ErrNotFound {
		t.Errorf("GetOwn() error = %v, want %v", err, task.ErrNotFound)
	}
	if _, err = env.svc.GetEnrolled(student, tsk.ID); err != nil {
		t.Errorf("GetEnrolled() error = %v", err)
	}
	if _, err = env.svc.GetEnrolled(outsider, tsk.ID); err != task.ErrNotFound {
		t.Errorf("GetEnrolled() error = %v, want %v", err, task.ErrNotFound)
	}

	enrolled, err := env.svc.QueryEnrolled(student, nil, nil)
	if err != nil {
		t.Fatalf("QueryEnrolled() error = %v", err)
	}
	if len(enrolled) != 1 {
		t.Errorf("QueryEnrolled() returned %d tasks, want 1", len(enrolled))
	}
	none, err := env.svc.QueryEnrolled(outsider, nil, nil)
	if err != nil {
		t.Fatalf("QueryEnrolled() error = %v", err)
	}
	if len(none) != 0 {
		t.Errorf("QueryEnrolled() returned %d tasks, want 0", len(none))
	}

	if err = env.svc.Delete(otherProf, tsk.ID); err != task.ErrNotFound {
		t.Errorf("Delete() error = %v, want %v", err, task.ErrNotFound)
	}
	if err = env.svc.Delete(prof, tsk.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
}

func TestNewTask_Validate_window(t *testing.T) {
	env := setup(t)
	prof := env.createUser(t, "Ada", "ada@test.cd", user.RoleProfessor)
	crs := env.createCourse(t, prof, "Algorithms")
	validate := validator.New()

	now := time.Now().UTC()
	later := now.Add(2 * time.Hour)

	tests := []struct {
		name    string
		startAt *time.Time
		endAt   *time.Time
		wantErr bool
	}{
		{name: "no window"},
		{name: "start only", startAt: &now},
		{name: "end only", endAt: &later},
		{name: "valid window", startAt: &now, endAt: &later},
		{name: "end before start", startAt: &later, endAt: &now, wantErr: true},
		{name: "end equals start", startAt: &now, endAt: &now, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nt := task.NewTask{Title: "HW " + tt.name, CourseID: crs.ID, StartAt: tt.startAt, EndAt: tt.endAt}
			err := nt.Validate(validate, env.svc)
			if !tt.wantErr {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			vErr, ok := err.(*core.ValidationError)
			if !ok {
				t.Fatalf("Validate() error = %v, want *core.ValidationError", err)
			}
			if len(vErr.Fields) != 1 || vErr.Fields[0].Field != "end_at" {
				t.Errorf("Validate() Fields = %+v, want an end_at error", vErr.Fields)
			}
		})
	}
}
