package echoapi

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/trezcool/elimu/core/result"
	"github.com/trezcool/elimu/core/user"
)

func Test_resultApi_answers(t *testing.T) {
	app := initApp(t)
	prof := app.createUser(t, "Ada", "Meta", "ada@test.cd", "doc001", user.RoleProfessor, true)
	student := app.createUser(t, "Sia", "Kim", "sia@test.cd", "doc002", user.RoleStudent, true)
	outsider := app.createUser(t, "Out", "Sider", "out@test.cd", "doc003", user.RoleStudent, true)
	crs := app.createCourse(t, prof, "Algorithms", student.ID)
	tsk := app.createTask(t, prof, crs, "Homework 1", "What is a heap?")
	q := tsk.Questions[0]

	studentToken := getToken(t, student)

	var ans result.Answer

	t.Run("create", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/student/answers", studentToken,
			marchallObj(t, result.NewAnswer{QuestionID: q.ID, Text: "A tree"}))
		app.server.ServeHTTP(rec, req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("status = %d; body = %s", rec.Code, rec.Body.String())
		}
		decode(t, rec, &ans)
		if ans.StudentID != student.ID || ans.QuestionID != q.ID || ans.Text != "A tree" {
			t.Fatalf("create = %+v", ans)
		}
	})
	if t.Failed() {
		t.FailNow()
	}

	tests := []httpTest{
		{
			name: "student role required", path: "/v1/student/answers", token: getToken(t, prof),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "question outside enrolled courses", method: http.MethodPost, path: "/v1/student/answers",
			token: getToken(t, outsider), body: marchallObj(t, result.NewAnswer{QuestionID: q.ID, Text: "42"}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"question": "the question doesn't belong to user's courses"}),
		},
		{
			name: "content required", method: http.MethodPost, path: "/v1/student/answers", token: studentToken,
			body:     marchallObj(t, result.NewAnswer{QuestionID: q.ID}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"text": "text or attachment is required"}),
		},
		{name: "query own", path: "/v1/student/answers", token: studentToken, wantData: marchallList(t, ans)},
		{name: "query own, none", path: "/v1/student/answers", token: getToken(t, outsider), wantData: marchallList(t)},
		{name: "query by task", path: "/v1/student/answers?task_id=" + tsk.ID, token: studentToken, wantData: marchallList(t, ans)},
		{name: "retrieve own", path: "/v1/student/answers/" + ans.ID, token: studentToken, wantData: marchallObj(t, ans)},
		{
			name: "someone else's answer is hidden", path: "/v1/student/answers/" + ans.ID, token: getToken(t, outsider),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "answer not found"}),
		},
	}
	app.runTable(t, tests)

	t.Run("update", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, "/v1/student/answers/"+ans.ID, studentToken,
			marchallObj(t, result.UpdateAnswer{Text: "A heap-ordered tree"}))
		app.server.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d; body = %s", rec.Code, rec.Body.String())
		}
		decode(t, rec, &ans)
		if ans.Text != "A heap-ordered tree" {
			t.Errorf("Text = %q", ans.Text)
		}
	})

	t.Run("attach file", func(t *testing.T) {
		req, rec := newFileUploadRequest(t, "/v1/student/answers/"+ans.ID+"/attachment", studentToken, "essay.txt", "my essay")
		app.server.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d; body = %s", rec.Code, rec.Body.String())
		}
		decode(t, rec, &ans)
		want := "answers/student_" + student.ID + "/essay.txt"
		if ans.Attachment != want {
			t.Errorf("Attachment = %q, want %q", ans.Attachment, want)
		}
		data, err := os.ReadFile(filepath.Join(app.conf.MediaRoot, filepath.FromSlash(ans.Attachment)))
		if err != nil {
			t.Fatalf("reading attachment: %v", err)
		}
		if string(data) != "my essay" {
			t.Errorf("attachment content = %q", data)
		}
	})

	t.Run("attach file, no file", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, "/v1/student/answers/"+ans.ID+"/attachment", studentToken)
		app.server.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			name: "no file", wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "attachment file is required"}),
		}, rec)
	})
}

func Test_resultApi_submitLocksAnswers(t *testing.T) {
	app := initApp(t)
	prof := app.createUser(t, "Ada", "Meta", "ada@test.cd", "doc001", user.RoleProfessor, true)
	student := app.createUser(t, "Sia", "Kim", "sia@test.cd", "doc002", user.RoleStudent, true)
	outsider := app.createUser(t, "Out", "Sider", "out@test.cd", "doc003", user.RoleStudent, true)
	crs := app.createCourse(t, prof, "Algorithms", student.ID)
	tsk := app.createTask(t, prof, crs, "Homework 1", "What is a heap?")
	q := tsk.Questions[0]

	studentToken := getToken(t, student)

	var ans result.Answer
	t.Run("answer then submit", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/student/answers", studentToken,
			marchallObj(t, result.NewAnswer{QuestionID: q.ID, Text: "A tree"}))
		app.server.ServeHTTP(rec, req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("status = %d; body = %s", rec.Code, rec.Body.String())
		}
		decode(t, rec, &ans)

		req, rec = newAuthRequest(http.MethodPost, "/v1/student/results", studentToken,
			marchallObj(t, result.NewResult{TaskID: tsk.ID}))
		app.server.ServeHTTP(rec, req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("submit status = %d; body = %s", rec.Code, rec.Body.String())
		}
		var res result.Result
		decode(t, rec, &res)
		if res.TaskID != tsk.ID || res.StudentID != student.ID || res.Grade != nil {
			t.Errorf("submit = %+v", res)
		}
	})
	if t.Failed() {
		t.FailNow()
	}

	lockedErr := marchallObj(t, map[string]string{"text": "you cannot change an answer after submission for review"})
	tests := []httpTest{
		{
			name: "submit twice", method: http.MethodPost, path: "/v1/student/results", token: studentToken,
			body:     marchallObj(t, result.NewResult{TaskID: tsk.ID}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"task": "you cannot submit a task for review a second time"}),
		},
		{
			name: "submit task outside enrolled courses", method: http.MethodPost, path: "/v1/student/results",
			token: getToken(t, outsider), body: marchallObj(t, result.NewResult{TaskID: tsk.ID}),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "task not found"}),
		},
		{
			name: "new answers are locked", method: http.MethodPost, path: "/v1/student/answers", token: studentToken,
			body:     marchallObj(t, result.NewAnswer{QuestionID: q.ID, Text: "too late"}),
			wantCode: http.StatusBadRequest, wantData: lockedErr,
		},
		{
			name: "edits are locked", method: http.MethodPut, path: "/v1/student/answers/" + ans.ID, token: studentToken,
			body:     marchallObj(t, result.UpdateAnswer{Text: "too late"}),
			wantCode: http.StatusBadRequest, wantData: lockedErr,
		},
	}
	app.runTable(t, tests)

	t.Run("attachments are locked", func(t *testing.T) {
		req, rec := newFileUploadRequest(t, "/v1/student/answers/"+ans.ID+"/attachment", studentToken, "late.txt", "late")
		app.server.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{name: "attachments are locked", wantCode: http.StatusBadRequest, wantData: lockedErr}, rec)
	})
}

func Test_resultApi_expiredTask(t *testing.T) {
	app := initApp(t)
	prof := app.createUser(t, "Ada", "Meta", "ada@test.cd", "doc001", user.RoleProfessor, true)
	student := app.createUser(t, "Sia", "Kim", "sia@test.cd", "doc002", user.RoleStudent, true)
	crs := app.createCourse(t, prof, "Algorithms", student.ID)
	tsk := app.createTask(t, prof, crs, "Homework 1", "What is a heap?")

	endAt := result.NowFunc().UTC().Add(-time.Hour)
	tsk.EndAt = &endAt
	if _, err := app.taskRepo.UpdateTask(context.Background(), tsk); err != nil {
		t.Fatalf("UpdateTask(): %v", err)
	}

	app.runTable(t, []httpTest{
		{
			name: "submit after the deadline", method: http.MethodPost, path: "/v1/student/results",
			token: getToken(t, student), body: marchallObj(t, result.NewResult{TaskID: tsk.ID}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"task": "the task fulfillment time has expired"}),
		},
	})
}

func Test_resultApi_professorPortal(t *testing.T) {
	app := initApp(t)
	prof := app.createUser(t, "Ada", "Meta", "ada@test.cd", "doc001", user.RoleProfessor, true)
	otherProf := app.createUser(t, "Bob", "Uncle", "bob@test.cd", "doc002", user.RoleProfessor, true)
	student := app.createUser(t, "Sia", "Kim", "sia@test.cd", "doc003", user.RoleStudent, true)
	crs := app.createCourse(t, prof, "Algorithms", student.ID)
	tsk := app.createTask(t, prof, crs, "Homework 1", "What is a heap?")

	ans, err := app.resultSvc.CreateAnswer(student, result.NewAnswer{QuestionID: tsk.Questions[0].ID, Text: "A tree"})
	if err != nil {
		t.Fatalf("CreateAnswer(): %v", err)
	}
	res, err := app.resultSvc.Submit(student, result.NewResult{TaskID: tsk.ID})
	if err != nil {
		t.Fatalf("Submit(): %v", err)
	}

	profToken := getToken(t, prof)
	otherToken := getToken(t, otherProf)
	grade := 85

	tests := []httpTest{
		{
			name: "professor role required", path: "/v1/professor/answers", token: getToken(t, student),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{name: "query course answers", path: "/v1/professor/answers", token: profToken, wantData: marchallList(t, ans)},
		{name: "query course answers, other professor", path: "/v1/professor/answers", token: otherToken, wantData: marchallList(t)},
		{
			name: "search answers by student email", path: "/v1/professor/answers?search=sia", token: profToken,
			wantData: marchallList(t, ans),
		},
		{name: "retrieve course answer", path: "/v1/professor/answers/" + ans.ID, token: profToken, wantData: marchallObj(t, ans)},
		{
			name: "answer outside own courses is hidden", path: "/v1/professor/answers/" + ans.ID, token: otherToken,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "answer not found"}),
		},
		{name: "query course results", path: "/v1/professor/results", token: profToken, wantData: marchallList(t, res)},
		{name: "query course results, other professor", path: "/v1/professor/results", token: otherToken, wantData: marchallList(t)},
		{name: "retrieve course result", path: "/v1/professor/results/" + res.ID, token: profToken, wantData: marchallObj(t, res)},
		{
			name: "result outside own courses is hidden", path: "/v1/professor/results/" + res.ID, token: otherToken,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "result not found"}),
		},
		{
			name: "grade answer, other professor", method: http.MethodPut, path: "/v1/professor/answers/" + ans.ID + "/grade",
			token: otherToken, body: marchallObj(t, result.GradeAnswer{Grade: &grade}),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "answer not found"}),
		},
		{
			name: "grade answer, missing grade", method: http.MethodPut, path: "/v1/professor/answers/" + ans.ID + "/grade",
			token: profToken, body: marchallObj(t, result.GradeAnswer{}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"grade": "this field is required"}),
		},
	}
	app.runTable(t, tests)

	t.Run("grade answer and result", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, "/v1/professor/answers/"+ans.ID+"/grade", profToken,
			marchallObj(t, result.GradeAnswer{Grade: &grade}))
		app.server.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d; body = %s", rec.Code, rec.Body.String())
		}
		var gotAns result.Answer
		decode(t, rec, &gotAns)
		if gotAns.Grade == nil || *gotAns.Grade != grade {
			t.Errorf("answer grade = %v, want %d", gotAns.Grade, grade)
		}

		req, rec = newAuthRequest(http.MethodPut, "/v1/professor/results/"+res.ID+"/grade", profToken,
			marchallObj(t, result.GradeResult{Grade: &grade}))
		app.server.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d; body = %s", rec.Code, rec.Body.String())
		}
		var gotRes result.Result
		decode(t, rec, &gotRes)
		if gotRes.Grade == nil || *gotRes.Grade != grade {
			t.Errorf("result grade = %v, want %d", gotRes.Grade, grade)
		}

		// the student sees the grades on their own portal
		req, rec = newAuthRequest(http.MethodGet, "/v1/student/results/"+res.ID, getToken(t, student))
		app.server.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d; body = %s", rec.Code, rec.Body.String())
		}
		decode(t, rec, &gotRes)
		if gotRes.Grade == nil || *gotRes.Grade != grade {
			t.Errorf("student-visible grade = %v, want %d", gotRes.Grade, grade)
		}
	})
}

// newFileUploadRequest builds a multipart PUT with a single "attachment" part.
func newFileUploadRequest(t *testing.T, path, token, filename, content string) (*http.Request, *httptest.ResponseRecorder) {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("attachment", filename)
	if err != nil {
		t.Fatalf("newFileUploadRequest(): %v", err)
	}
	if _, err = part.Write([]byte(content)); err != nil {
		t.Fatalf("newFileUploadRequest(): %v", err)
	}
	if err = w.Close(); err != nil {
		t.Fatalf("newFileUploadRequest(): %v", err)
	}

	req := httptest.NewRequest(http.MethodPut, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}
