package echoapi

import (
	"net/http"
	"testing"
	"time"

	"github.com/trezcool/elimu/core/task"
	"github.com/trezcool/elimu/core/user"
)

func Test_taskApi_professorPortal(t *testing.T) {
	app := initApp(t)
	prof := app.createUser(t, "Ada", "Meta", "ada@test.cd", "doc001", user.RoleProfessor, true)
	otherProf := app.createUser(t, "Bob", "Uncle", "bob@test.cd", "doc002", user.RoleProfessor, true)
	student := app.createUser(t, "Sia", "Kim", "sia@test.cd", "doc003", user.RoleStudent, true)
	crs := app.createCourse(t, prof, "Algorithms")
	otherCrs := app.createCourse(t, otherProf, "Databases")

	profToken := getToken(t, prof)

	var tsk task.Task

	t.Run("create", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/professor/tasks", profToken,
			marchallObj(t, task.NewTask{
				Title:    "Homework 1",
				CourseID: crs.ID,
				Questions: []task.QuestionInput{
					{Text: "What is a heap?"},
					{Text: "What is a trie?"},
				},
			}))
		app.server.ServeHTTP(rec, req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("status = %d; body = %s", rec.Code, rec.Body.String())
		}
		decode(t, rec, &tsk)
		if tsk.CourseID != crs.ID || len(tsk.Questions) != 2 {
			t.Fatalf("create = %+v", tsk)
		}
	})
	if t.Failed() {
		t.FailNow()
	}
	// normalize question order for comparisons below
	var err error
	if tsk, err = app.taskSvc.GetOwn(prof, tsk.ID); err != nil {
		t.Fatalf("GetOwn(): %v", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	later := now.Add(2 * time.Hour)

	tests := []httpTest{
		{
			name: "professor role required", path: "/v1/professor/tasks", token: getToken(t, student),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "create under someone else's course", method: http.MethodPost, path: "/v1/professor/tasks",
			token: profToken, body: marchallObj(t, task.NewTask{Title: "Sneaky", CourseID: otherCrs.ID}),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "course not found"}),
		},
		{
			name: "duplicate title within course", method: http.MethodPost, path: "/v1/professor/tasks",
			token: profToken, body: marchallObj(t, task.NewTask{Title: "Homework 1", CourseID: crs.ID}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"title": "a task with this title already exists in this course"}),
		},
		{
			name: "window must end after start", method: http.MethodPost, path: "/v1/professor/tasks",
			token: profToken,
			body:  marchallObj(t, task.NewTask{Title: "Backwards", CourseID: crs.ID, StartAt: &later, EndAt: &now}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"end_at": "end_at must be greater than start_at"}),
		},
		{name: "query own", path: "/v1/professor/tasks", token: profToken, wantData: marchallList(t, tsk)},
		{name: "query own, none", path: "/v1/professor/tasks", token: getToken(t, otherProf), wantData: marchallList(t)},
		{name: "query by course", path: "/v1/professor/tasks?course_id=" + crs.ID, token: profToken, wantData: marchallList(t, tsk)},
		{name: "query by other course", path: "/v1/professor/tasks?course_id=" + otherCrs.ID, token: profToken, wantData: marchallList(t)},
		{name: "retrieve own", path: "/v1/professor/tasks/" + tsk.ID, token: profToken, wantData: marchallObj(t, tsk)},
		{
			name: "someone else's task is hidden", path: "/v1/professor/tasks/" + tsk.ID, token: getToken(t, otherProf),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "task not found"}),
		},
	}
	app.runTable(t, tests)

	t.Run("update dispatches questions", func(t *testing.T) {
		keep, edit := tsk.Questions[0], tsk.Questions[1]

		req, rec := newAuthRequest(http.MethodPut, "/v1/professor/tasks/"+tsk.ID, profToken,
			marchallObj(t, task.UpdateTask{
				Title:   "Homework 1 (v2)",
				StartAt: &now,
				EndAt:   &later,
				Questions: []task.QuestionInput{
					{ID: edit.ID, Text: "Edited"},
					{Text: "Brand new"},
				},
			}))
		app.server.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d; body = %s", rec.Code, rec.Body.String())
		}
		var got task.Task
		decode(t, rec, &got)
		if got.Title != "Homework 1 (v2)" {
			t.Errorf("Title = %v", got.Title)
		}
		if got.StartAt == nil || got.EndAt == nil {
			t.Errorf("window = (%v, %v)", got.StartAt, got.EndAt)
		}
		if len(got.Questions) != 3 {
			t.Fatalf("update left %d questions, want 3", len(got.Questions))
		}
		texts := make(map[string]string, len(got.Questions))
		for _, q := range got.Questions {
			texts[q.ID] = q.Text
		}
		if texts[keep.ID] != keep.Text {
			t.Errorf("kept question text = %q, want unchanged", texts[keep.ID])
		}
		if texts[edit.ID] != "Edited" {
			t.Errorf("edited question text = %q, want %q", texts[edit.ID], "Edited")
		}

		// delete a question by sending its id with an empty text
		req, rec = newAuthRequest(http.MethodPut, "/v1/professor/tasks/"+tsk.ID, profToken,
			marchallObj(t, task.UpdateTask{Questions: []task.QuestionInput{{ID: edit.ID}}}))
		app.server.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d; body = %s", rec.Code, rec.Body.String())
		}
		decode(t, rec, &got)
		if len(got.Questions) != 2 {
			t.Errorf("update left %d questions, want 2", len(got.Questions))
		}
		for _, q := range got.Questions {
			if q.ID == edit.ID {
				t.Errorf("question %v still present", edit.ID)
			}
		}
	})

	t.Run("destroy", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, "/v1/professor/tasks/"+tsk.ID, profToken)
		app.server.ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("status = %d; body = %s", rec.Code, rec.Body.String())
		}
		if _, err := app.taskSvc.GetOwn(prof, tsk.ID); err != task.ErrNotFound {
			t.Errorf("GetOwn() error = %v, want %v", err, task.ErrNotFound)
		}
	})
}

func Test_taskApi_studentPortal(t *testing.T) {
	app := initApp(t)
	prof := app.createUser(t, "Ada", "Meta", "ada@test.cd", "doc001", user.RoleProfessor, true)
	student := app.createUser(t, "Sia", "Kim", "sia@test.cd", "doc002", user.RoleStudent, true)
	outsider := app.createUser(t, "Out", "Sider", "out@test.cd", "doc003", user.RoleStudent, true)
	crs := app.createCourse(t, prof, "Algorithms", student.ID)
	tsk := app.createTask(t, prof, crs, "Homework 1", "What is a heap?")

	studentToken := getToken(t, student)

	tests := []httpTest{
		{
			name: "student role required", path: "/v1/student/tasks", token: getToken(t, prof),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{name: "query enrolled", path: "/v1/student/tasks", token: studentToken, wantData: marchallList(t, tsk)},
		{name: "query not enrolled", path: "/v1/student/tasks", token: getToken(t, outsider), wantData: marchallList(t)},
		{name: "retrieve enrolled", path: "/v1/student/tasks/" + tsk.ID, token: studentToken, wantData: marchallObj(t, tsk)},
		{
			name: "task outside enrolled courses is hidden", path: "/v1/student/tasks/" + tsk.ID,
			token: getToken(t, outsider), wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: "task not found"}),
		},
	}
	app.runTable(t, tests)
}
