package user

import (
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/elimu/core"
)

// Role is the closed set of roles a User can hold. A user gets RoleGuest at
// provisioning and is promoted by an admin.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleProfessor Role = "professor"
	RoleStudent   Role = "student"
	RoleGuest     Role = "guest"
)

var Roles = []Role{RoleAdmin, RoleProfessor, RoleStudent, RoleGuest}

func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleProfessor, RoleStudent, RoleGuest:
		return true
	}
	return false
}

type User struct {
	ID             string     `json:"id" db:"id"`
	Role           Role       `json:"role" db:"role"`
	FirstName      string     `json:"first_name" db:"first_name"`
	LastName       string     `json:"last_name" db:"last_name"`
	Email          string     `json:"email" db:"email"`
	DocumentNumber string     `json:"document_number" db:"document_number"`
	IsActive       bool       `json:"is_active" db:"is_active"`
	EmailConfirmed bool       `json:"email_confirmed" db:"email_confirmed"`
	PasswordHash   []byte     `json:"-" db:"password_hash"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"` // UTC
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"` // UTC
	LastLogin      *time.Time `json:"last_login,omitempty" db:"last_login"`
}

func (u *User) Name() string {
	if u.FirstName == "" {
		return u.LastName
	}
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) IsAdmin() bool     { return u.Role == RoleAdmin }
func (u *User) IsProfessor() bool { return u.Role == RoleProfessor }
func (u *User) IsStudent() bool   { return u.Role == RoleStudent }

// NewUser contains information needed to provision a new User.
// Provisioned users activate their account via Register.
type NewUser struct {
	FirstName      string `json:"first_name" validate:"required"`
	LastName       string `json:"last_name" validate:"required"`
	Email          string `json:"email" validate:"required,email"`
	DocumentNumber string `json:"document_number" validate:"required,alphanum_"`
	Role           Role   `json:"role" validate:"omitempty,role"`
}

func (nu *NewUser) Validate(validate *validator.Validate, svc Service) error {
	nu.FirstName = core.CleanString(nu.FirstName)
	nu.LastName = core.CleanString(nu.LastName)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.DocumentNumber = core.CleanString(nu.DocumentNumber, true /* lower */)

	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.CheckUniqueness(nu.Email, nu.DocumentNumber)
}

// UpdateUser defines what information may be provided to modify an existing User.
// Role and IsActive may only be set by an admin; this is enforced at the API layer.
type UpdateUser struct {
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Role            Role   `json:"role" validate:"omitempty,role"`
	IsActive        *bool  `json:"is_active"`
	Password        string `json:"password" validate:"omitempty"`
	PasswordConfirm string `json:"password_confirm" validate:"required_with=Password,eqfield=Password"`
}

func (uu *UpdateUser) Validate(origUsr User, validate *validator.Validate) error {
	name := core.CleanString(uu.FirstName)
	if name != "" {
		uu.FirstName = name
	} else {
		uu.FirstName = origUsr.FirstName
	}

	name = core.CleanString(uu.LastName)
	if name != "" {
		uu.LastName = name
	} else {
		uu.LastName = origUsr.LastName
	}

	if uu.Role == "" {
		uu.Role = origUsr.Role
	}
	return validate.Struct(uu)
}

// RegisterUser activates a provisioned account: the (email, document number)
// pair must match an existing User. Temporary credentials are then emailed.
type RegisterUser struct {
	Email          string `json:"email" validate:"required,email"`
	DocumentNumber string `json:"document_number" validate:"required"`
}

func (ru *RegisterUser) Validate(validate *validator.Validate) error {
	ru.Email = core.CleanString(ru.Email, true /* lower */)
	ru.DocumentNumber = core.CleanString(ru.DocumentNumber, true /* lower */)
	return validate.Struct(ru)
}

type ConfirmUserEmail struct {
	UID   string `json:"uid" validate:"required"`
	Token string `json:"token" validate:"required"`
}

func (ce ConfirmUserEmail) Validate(validate *validator.Validate) error {
	return validate.Struct(ce)
}

type ResetUserPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	UID             string `json:"uid,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required"`
	PasswordConfirm string `json:"password_confirm,omitempty" validate:"required,eqfield=Password"`
}

func (rp ResetUserPassword) Validate(validate *validator.Validate) error {
	return validate.Struct(rp)
}

type ChangeUserPassword struct {
	OldPassword     string `json:"old_password" validate:"required"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}

func (cp ChangeUserPassword) Validate(usr User, validate *validator.Validate) error {
	if err := validate.Struct(cp); err != nil {
		return err
	}
	if err := usr.CheckPassword(cp.OldPassword); err != nil {
		return core.NewValidationError(nil, core.FieldError{Field: "old_password", Error: "wrong password"})
	}
	return nil
}

type QueryFilter struct {
	Search      string    `query:"search"`
	Roles       []Role    `query:"role"`
	IsActive    *bool     `query:"is_active"`
	CreatedFrom time.Time `query:"created_from"`
	CreatedTo   time.Time `query:"created_to"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Roles == nil && qf.IsActive == nil && qf.CreatedFrom.IsZero() && qf.CreatedTo.IsZero()
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}

// GetFilter fields are mutually exclusive; the first non-empty one is used.
type GetFilter struct {
	ID             string
	Email          string
	DocumentNumber string
}
