package course

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/elimu/core"
)

const DefaultMaxStudents = 150

type Course struct {
	ID          string    `json:"id" db:"id"`
	Title       string    `json:"title" db:"title"`
	ProfessorID string    `json:"professor" db:"professor_id"`
	MaxStudents int       `json:"max_students" db:"max_students"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"` // UTC
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"` // UTC

	// roster; loaded by repositories, not a column
	StudentIDs []string `json:"students" db:"-"`
}

// HasStudent reports whether the student is on the roster.
func (c *Course) HasStudent(studentID string) bool {
	for _, id := range c.StudentIDs {
		if id == studentID {
			return true
		}
	}
	return false
}

// NewCourse contains information needed to create a new Course.
// The professor is always the authenticated caller, never client-supplied.
type NewCourse struct {
	Title       string `json:"title" validate:"required"`
	MaxStudents int    `json:"max_students" validate:"omitempty,min=1"`
}

func (nc *NewCourse) Validate(validate *validator.Validate, svc Service) error {
	nc.Title = core.CleanString(nc.Title)
	if err := validate.Struct(nc); err != nil {
		return err
	}
	return svc.CheckTitleUniqueness(nc.Title)
}

// UpdateCourse defines what information may be provided to modify an existing
// Course; the professor field is immutable after creation.
type UpdateCourse struct {
	Title       string `json:"title"`
	MaxStudents int    `json:"max_students" validate:"omitempty,min=1"`
}

func (uc *UpdateCourse) Validate(origCourse Course, validate *validator.Validate, svc Service) error {
	title := core.CleanString(uc.Title)
	if title != "" {
		uc.Title = title
	} else {
		uc.Title = origCourse.Title
	}
	if uc.MaxStudents == 0 {
		uc.MaxStudents = origCourse.MaxStudents
	}

	if err := validate.Struct(uc); err != nil {
		return err
	}
	return svc.CheckTitleUniqueness(uc.Title, origCourse)
}

type QueryFilter struct {
	// Search does a case-insensitive match on the course title or the
	// professor's first or last name.
	Search string `query:"search"`

	// scoping; set by services, not bindable
	ProfessorID string `query:"-"`
	StudentID   string `query:"-"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.ProfessorID == "" && qf.StudentID == ""
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}

// GetFilter selects a course by ID, optionally narrowed to the scope of an
// owning professor or an enrolled student. A course outside the scope is
// indistinguishable from a missing one.
type GetFilter struct {
	ID          string
	ProfessorID string
	StudentID   string
}
