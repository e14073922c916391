package echoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/course"
	"github.com/trezcool/elimu/core/result"
	"github.com/trezcool/elimu/core/task"
	"github.com/trezcool/elimu/core/user"
	emailsvc "github.com/trezcool/elimu/services/email"
	inmemdb "github.com/trezcool/elimu/storage/database/inmem"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

// testLogger drops everything; server errors still surface via response codes.
type testLogger struct{}

func (testLogger) Enable(bool)                  {}
func (testLogger) Debug(string, ...interface{}) {}
func (testLogger) Info(string, ...interface{})  {}
func (testLogger) Warn(string, ...interface{})  {}
func (testLogger) Error(string, ...interface{}) {}
func (testLogger) Fatal(string, ...interface{}) {}

type testApp struct {
	conf   *core.Config
	server Server

	db         *inmemdb.DB
	usrRepo    user.Repository
	courseRepo course.Repository
	taskRepo   task.Repository
	resultRepo result.Repository

	usrSvc    user.Service
	courseSvc course.Service
	taskSvc   task.Service
	resultSvc result.Service
}

func initApp(t *testing.T) *testApp {
	t.Helper()

	conf := &core.Config{
		TestMode:                      true,
		Env:                           "TEST",
		AppName:                       "Elimu",
		SecretKey:                     []byte("secret"),
		FrontendBaseURL:               "http://localhost:8080",
		MediaRoot:                     t.TempDir(),
		EmailConfirmationTimeoutDelta: 3 * 24 * time.Hour,
		PasswordResetTimeoutDelta:     3 * 24 * time.Hour,
		Server: core.ServerConfig{
			JWTExpirationDelta:        1 * time.Hour,
			JWTRefreshExpirationDelta: 4 * time.Hour,
		},
	}

	db := inmemdb.NewDB()
	usrRepo := inmemdb.NewUserRepository(db)
	courseRepo := inmemdb.NewCourseRepository(db)
	taskRepo := inmemdb.NewTaskRepository(db)
	resultRepo := inmemdb.NewResultRepository(db)

	logger := testLogger{}
	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	emailsvc.ClearSentMessages()

	usrSvc := user.NewServiceMock(usrRepo, mailSvc, logger, conf)
	courseSvc := course.NewService(courseRepo)
	taskSvc := task.NewService(db, taskRepo, courseRepo)
	resultSvc := result.NewService(resultRepo, taskRepo, conf)

	validate := validator.New()
	_en := en.New()
	translator, _ := ut.New(_en, _en).GetTranslator("en")
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	server := NewServer(ServerDeps{
		Conf:       conf,
		Logger:     logger,
		UserSvc:    usrSvc,
		CourseSvc:  courseSvc,
		TaskSvc:    taskSvc,
		ResultSvc:  resultSvc,
		Validate:   validate,
		Translator: translator,
	})

	return &testApp{
		conf:       conf,
		server:     server,
		db:         db,
		usrRepo:    usrRepo,
		courseRepo: courseRepo,
		taskRepo:   taskRepo,
		resultRepo: resultRepo,
		usrSvc:     usrSvc,
		courseSvc:  courseSvc,
		taskSvc:    taskSvc,
		resultSvc:  resultSvc,
	}
}

// Fixture helpers; all write through the repositories directly.

func (app *testApp) createUser(t *testing.T, first, last, email, docNumber string, role user.Role, isActive bool) user.User {
	t.Helper()
	now := time.Now().UTC()
	usr := user.User{
		Role:           role,
		FirstName:      first,
		LastName:       last,
		Email:          email,
		DocumentNumber: docNumber,
		IsActive:       isActive,
		EmailConfirmed: true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := usr.SetPassword("s3cr3t-Pwd!"); err != nil {
		t.Fatalf("createUser(): %v", err)
	}
	usr, err := app.usrRepo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("createUser(): %v", err)
	}
	return usr
}

func (app *testApp) createCourse(t *testing.T, prof user.User, title string, studentIDs ...string) course.Course {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	crs, err := app.courseRepo.CreateCourse(ctx, course.Course{
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
		if err = app.courseRepo.AddStudent(ctx, crs.ID, id); err != nil {
			t.Fatalf("createCourse(): %v", err)
		}
	}
	// re-fetch so the roster is loaded
	if crs, err = app.courseRepo.GetCourse(ctx, course.GetFilter{ID: crs.ID}); err != nil {
		t.Fatalf("createCourse(): %v", err)
	}
	return crs
}

func (app *testApp) createTask(t *testing.T, prof user.User, crs course.Course, title string, questions ...string) task.Task {
	t.Helper()
	inputs := make([]task.QuestionInput, 0, len(questions))
	for _, text := range questions {
		inputs = append(inputs, task.QuestionInput{Text: text})
	}
	tsk, err := app.taskSvc.Create(prof, task.NewTask{Title: title, CourseID: crs.ID, Questions: inputs})
	if err != nil {
		t.Fatalf("createTask(): %v", err)
	}
	// re-fetch so the questions come back in repository order
	if tsk, err = app.taskSvc.GetOwn(prof, tsk.ID); err != nil {
		t.Fatalf("createTask(): %v", err)
	}
	return tsk
}

func getToken(t *testing.T, usr user.User) string {
	t.Helper()
	token, err := GenerateToken(GetUserClaims(usr))
	if err != nil {
		t.Fatalf("getToken(): %v", err)
	}
	return token
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj(): %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	if objs == nil {
		objs = make([]interface{}, 0)
	}
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList(): %v", err)
	}
	return data
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if tt.wantCode == 0 {
		tt.wantCode = http.StatusOK
	}
	if rec.Code != tt.wantCode {
		t.Fatalf("%s: status = %d, want %d; body = %s", tt.name, rec.Code, tt.wantCode, rec.Body.String())
	}
	if tt.wantData == nil {
		return
	}
	assert.JSONEq(t, string(tt.wantData), rec.Body.String(), tt.name)
}

func (app *testApp) runTable(t *testing.T, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.server.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

// decode unmarshals the response body into dst.
func decode(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode(): %v; body = %s", err, rec.Body.String())
	}
}
