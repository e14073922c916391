package task

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/elimu/core"
)

type Question struct {
	ID     string `json:"id" db:"id"`
	Text   string `json:"text" db:"text"`
	TaskID string `json:"-" db:"task_id"`
}

type Task struct {
	ID        string     `json:"id" db:"id"`
	Title     string     `json:"title" db:"title"`
	CourseID  string     `json:"course" db:"course_id"`
	StartAt   *time.Time `json:"start_at" db:"start_at"`
	EndAt     *time.Time `json:"end_at" db:"end_at"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"` // UTC
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"` // UTC

	// loaded by repositories, not a column
	Questions []Question `json:"questions" db:"-"`
}

// QuestionIDs returns the set of ids of the task's questions.
func (t *Task) QuestionIDs() map[string]bool {
	ids := make(map[string]bool, len(t.Questions))
	for _, q := range t.Questions {
		ids[q.ID] = true
	}
	return ids
}

// QuestionInput is one entry of a questions payload. How it is interpreted
// depends on which fields are set:
//   - no id, non-empty text: create a new question;
//   - id + non-empty text: update that question's text;
//   - id + empty text: delete that question.
// Entries referencing questions that do not belong to the task are ignored.
type QuestionInput struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// NewTask contains information needed to create a new Task under a course
// owned by the caller.
type NewTask struct {
	Title     string          `json:"title" validate:"required"`
	CourseID  string          `json:"course" validate:"required"`
	StartAt   *time.Time      `json:"start_at"`
	EndAt     *time.Time      `json:"end_at"`
	Questions []QuestionInput `json:"questions"`
}

func (nt *NewTask) Validate(validate *validator.Validate, svc Service) error {
	nt.Title = core.CleanString(nt.Title)
	for i, q := range nt.Questions {
		nt.Questions[i].Text = core.CleanString(q.Text)
	}

	if err := validate.Struct(nt); err != nil {
		return err
	}
	if err := validateWindow(nt.StartAt, nt.EndAt); err != nil {
		return err
	}
	return svc.CheckTitleUniqueness(nt.Title, nt.CourseID)
}

// UpdateTask defines what information may be provided to modify an existing
// Task; fields left empty keep their current value.
type UpdateTask struct {
	Title     string          `json:"title"`
	StartAt   *time.Time      `json:"start_at"`
	EndAt     *time.Time      `json:"end_at"`
	Questions []QuestionInput `json:"questions"`
}

func (ut *UpdateTask) Validate(origTask Task, validate *validator.Validate, svc Service) error {
	title := core.CleanString(ut.Title)
	if title != "" {
		ut.Title = title
	} else {
		ut.Title = origTask.Title
	}
	if ut.StartAt == nil {
		ut.StartAt = origTask.StartAt
	}
	if ut.EndAt == nil {
		ut.EndAt = origTask.EndAt
	}
	for i, q := range ut.Questions {
		ut.Questions[i].Text = core.CleanString(q.Text)
	}

	if err := validate.Struct(ut); err != nil {
		return err
	}
	if err := validateWindow(ut.StartAt, ut.EndAt); err != nil {
		return err
	}
	return svc.CheckTitleUniqueness(ut.Title, origTask.CourseID, origTask)
}

// validateWindow rejects a grading window that ends before it starts;
// either bound may be absent.
func validateWindow(startAt, endAt *time.Time) error {
	if startAt != nil && endAt != nil && !endAt.After(*startAt) {
		return core.NewValidationError(nil, core.FieldError{
			Field: "end_at",
			Error: "end_at must be greater than start_at",
		})
	}
	return nil
}

type QueryFilter struct {
	CourseID string `query:"course_id"`

	// scoping; set by services, not bindable
	ProfessorID string `query:"-"`
	StudentID   string `query:"-"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.CourseID == "" && qf.ProfessorID == "" && qf.StudentID == ""
}

// GetFilter selects a task by ID, optionally narrowed to the scope of the
// owning professor or an enrolled student.
type GetFilter struct {
	ID          string
	ProfessorID string
	StudentID   string
}

// QuestionGetFilter selects a question by ID with the same scoping rules.
type QuestionGetFilter struct {
	ID          string
	ProfessorID string
	StudentID   string
}
