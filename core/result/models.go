package result

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/elimu/core"
)

// Answer is a student's answer to a single question. It stays editable by its
// author until a Result exists for the question's task, then locks; only its
// grade remains mutable, by the owning professor.
type Answer struct {
	ID         string    `json:"id" db:"id"`
	QuestionID string    `json:"question" db:"question_id"`
	StudentID  string    `json:"student" db:"student_id"`
	Text       string    `json:"text" db:"text"`
	Attachment string    `json:"attachment" db:"attachment"`
	Grade      *int      `json:"grade" db:"grade"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"` // UTC
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"` // UTC
}

func (a *Answer) HasContent() bool { return a.Text != "" || a.Attachment != "" }

// Result marks a student's task as turned in for grading. At most one exists
// per (student, task); a real DB uniqueness constraint backs this up.
type Result struct {
	ID        string    `json:"id" db:"id"`
	TaskID    string    `json:"task" db:"task_id"`
	StudentID string    `json:"student" db:"student_id"`
	Grade     *int      `json:"grade" db:"grade"`
	CreatedAt time.Time `json:"created_at" db:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"` // UTC
}

// NewAnswer contains information needed to create a new Answer; the student
// is always the authenticated caller. An attachment may be added afterwards
// via the upload endpoint.
type NewAnswer struct {
	QuestionID string `json:"question" validate:"required"`
	Text       string `json:"text"`
}

func (na *NewAnswer) Validate(validate *validator.Validate) error {
	na.Text = core.CleanString(na.Text)
	return validate.Struct(na)
}

// UpdateAnswer defines what a student may modify on their own Answer;
// the question is immutable.
type UpdateAnswer struct {
	Text string `json:"text"`
}

func (ua *UpdateAnswer) Validate(validate *validator.Validate) error {
	ua.Text = core.CleanString(ua.Text)
	return validate.Struct(ua)
}

// GradeAnswer defines what a professor may modify on an Answer: the grade only.
type GradeAnswer struct {
	Grade *int `json:"grade" validate:"required,min=0,max=100"`
}

func (ga GradeAnswer) Validate(validate *validator.Validate) error {
	return validate.Struct(ga)
}

// NewResult contains information needed to submit a task for review.
type NewResult struct {
	TaskID string `json:"task" validate:"required"`
}

func (nr NewResult) Validate(validate *validator.Validate) error {
	return validate.Struct(nr)
}

// GradeResult defines what a professor may modify on a Result: the grade only.
type GradeResult struct {
	Grade *int `json:"grade" validate:"required,min=0,max=100"`
}

func (gr GradeResult) Validate(validate *validator.Validate) error {
	return validate.Struct(gr)
}

type AnswerQueryFilter struct {
	TaskID string `query:"task_id"`
	// Search does a case-insensitive match on the student's email.
	Search string `query:"search"`

	// scoping; set by services, not bindable
	StudentID   string `query:"-"`
	ProfessorID string `query:"-"`
}

func (qf *AnswerQueryFilter) IsEmpty() bool {
	return qf.TaskID == "" && qf.Search == "" && qf.StudentID == "" && qf.ProfessorID == ""
}

func (qf *AnswerQueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}

type ResultQueryFilter struct {
	TaskID string `query:"task_id"`

	// scoping; set by services, not bindable
	StudentID   string `query:"-"`
	ProfessorID string `query:"-"`
}

func (qf *ResultQueryFilter) IsEmpty() bool {
	return qf.TaskID == "" && qf.StudentID == "" && qf.ProfessorID == ""
}

// AnswerGetFilter selects an answer by ID, optionally narrowed to its author
// or to the professor owning the question's course.
type AnswerGetFilter struct {
	ID          string
	StudentID   string
	ProfessorID string
}

// ResultGetFilter selects a result by ID with the same scoping rules.
type ResultGetFilter struct {
	ID          string
	StudentID   string
	ProfessorID string
}
