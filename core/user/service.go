package user

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/elimu/core"
)

var (
	// errors
	ErrNotFound        = errors.New("user not found")
	ErrEmailExists     = errors.New("a user with this email already exists")
	ErrDocNumberExists = errors.New("a user with this document number already exists")
	ErrInvalidRole     = errors.New("invalid role")

	errWrongCredentials = "wrong email or document number"
)

type (
	Repository interface {
		// CheckUniqueness fails with ErrEmailExists or ErrDocNumberExists if
		// another user (not in excludedUsers) holds the email or document number.
		CheckUniqueness(ctx context.Context, email, documentNumber string, excludedUsers []User, exec ...core.DBExecutor) error
		CreateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		// QueryUsers applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of
		// User.FirstName, User.LastName or User.Email.
		QueryUsers(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]User, error)
		GetUser(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (User, error)
		UpdateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		DeleteUsersByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error)
	}

	Service interface {
		CheckUniqueness(email, documentNumber string, excludedUsers ...User) error
		Create(nu NewUser) (User, error)
		Query(filter *QueryFilter, ordering []core.DBOrdering) ([]User, error)
		GetByID(id string) (User, error)
		GetByEmail(email string) (User, error)
		Update(id string, uu UpdateUser) (User, error)
		Delete(ids ...string) error
		SetLastLogin(usr User) (User, error)

		Register(ru RegisterUser) error
		ConfirmEmail(ce ConfirmUserEmail) (User, error)
		RequestPasswordReset(email string) error
		ResetPassword(rp ResetUserPassword) error
		ChangePassword(usr User, cp ChangeUserPassword) (User, error)
	}

	service struct {
		repo    Repository
		mailSvc core.EmailService
		logger  core.Logger
		conf    *core.Config
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, mailSvc core.EmailService, logger core.Logger, conf *core.Config) Service {
	ConfigureTokenGen(conf)
	return &service{
		repo:    repo,
		mailSvc: mailSvc,
		logger:  logger,
		conf:    conf,
	}
}

func (svc *service) CheckUniqueness(email, documentNumber string, excludedUsers ...User) error {
	if err := svc.repo.CheckUniqueness(context.Background(), email, documentNumber, excludedUsers); err != nil {
		var field string
		switch errors.Cause(err) {
		case ErrEmailExists:
			field = "email"
		case ErrDocNumberExists:
			field = "document_number"
		default:
			return err
		}
		return core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
	}
	return nil
}

func (svc *service) Create(nu NewUser) (User, error) {
	now := time.Now().UTC()
	role := nu.Role
	if role == "" {
		role = RoleGuest
	}
	usr := User{
		Role:           role,
		FirstName:      nu.FirstName,
		LastName:       nu.LastName,
		Email:          nu.Email,
		DocumentNumber: nu.DocumentNumber,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	return svc.repo.CreateUser(context.Background(), usr)
}

func (svc *service) Query(filter *QueryFilter, ordering []core.DBOrdering) ([]User, error) {
	return svc.repo.QueryUsers(context.Background(), filter, ordering)
}

func (svc *service) GetByID(id string) (User, error) {
	return svc.repo.GetUser(context.Background(), GetFilter{ID: id})
}

func (svc *service) GetByEmail(email string) (User, error) {
	return svc.repo.GetUser(context.Background(), GetFilter{Email: core.CleanString(email, true /* lower */)})
}

func (svc *service) Update(id string, uu UpdateUser) (User, error) {
	ctx := context.Background()
	usr, err := svc.repo.GetUser(ctx, GetFilter{ID: id})
	if err != nil {
		return User{}, err
	}

	usr.FirstName = uu.FirstName
	usr.LastName = uu.LastName
	usr.Role = uu.Role
	if uu.IsActive != nil {
		usr.IsActive = *uu.IsActive
	}
	if uu.Password != "" {
		if err = usr.SetPassword(uu.Password); err != nil {
			return User{}, err
		}
	}
	usr.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *service) Delete(ids ...string) error {
	_, err := svc.repo.DeleteUsersByID(context.Background(), ids)
	return err
}

func (svc *service) SetLastLogin(usr User) (User, error) {
	now := time.Now().UTC()
	usr.LastLogin = &now
	return svc.repo.UpdateUser(context.Background(), usr)
}

// Register activates a provisioned account: a user matching the
// (email, document number) pair receives a temporary password and an email
// confirmation link. A mismatching pair is rejected without revealing which
// half was wrong.
func (svc *service) Register(ru RegisterUser) error {
	ctx := context.Background()
	usr, err := svc.repo.GetUser(ctx, GetFilter{Email: ru.Email})
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return core.NewValidationError(errors.New(errWrongCredentials))
		}
		return errors.Wrap(err, "finding user by email")
	}
	if usr.DocumentNumber != ru.DocumentNumber {
		return core.NewValidationError(errors.New(errWrongCredentials))
	}

	pwd, err := randomPassword(14)
	if err != nil {
		return errors.Wrap(err, "generating temporary password")
	}
	if err = usr.SetPassword(pwd); err != nil {
		return errors.Wrap(err, "setting temporary password")
	}
	usr.UpdatedAt = time.Now().UTC()
	if usr, err = svc.repo.UpdateUser(ctx, usr); err != nil {
		return errors.Wrap(err, "updating user")
	}

	token, err := MakeConfirmationToken(usr)
	if err != nil {
		return errors.Wrap(err, "making confirmation token")
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:      []mail.Address{{Name: usr.Name(), Address: usr.Email}},
		Subject: "Credentials for registration",
		Body: fmt.Sprintf(
			"Here is your temporary password: %s\n\n"+
				"Confirm your email address to unlock your account:\n%s/confirm-email?uid=%s&token=%s",
			pwd, svc.conf.FrontendBaseURL, EncodeUID(usr), token,
		),
	})
	return nil
}

func (svc *service) ConfirmEmail(ce ConfirmUserEmail) (User, error) {
	ctx := context.Background()
	id, err := DecodeUID(ce.UID)
	if err != nil {
		return User{}, core.NewValidationError(nil, core.FieldError{Field: "uid", Error: "unknown user"})
	}
	usr, err := svc.repo.GetUser(ctx, GetFilter{ID: id})
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return User{}, core.NewValidationError(nil, core.FieldError{Field: "uid", Error: "unknown user"})
		}
		return User{}, errors.Wrap(err, "finding user by ID")
	}
	if err = VerifyConfirmationToken(usr, ce.Token); err != nil {
		return User{}, core.NewValidationError(nil, core.FieldError{Field: "token", Error: err.Error()})
	}

	usr.EmailConfirmed = true
	usr.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *service) RequestPasswordReset(email string) error {
	usr, err := svc.GetByEmail(email)
	if err != nil {
		return err
	}
	token, err := MakeResetToken(usr)
	if err != nil {
		return errors.Wrap(err, "making reset token")
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:      []mail.Address{{Name: usr.Name(), Address: usr.Email}},
		Subject: "Password reset",
		Body: fmt.Sprintf(
			"You requested a password reset. Follow the link below to set a new password:\n"+
				"%s/password-reset/confirm?uid=%s&token=%s",
			svc.conf.FrontendBaseURL, EncodeUID(usr), token,
		),
	})
	return nil
}

func (svc *service) ResetPassword(rp ResetUserPassword) error {
	ctx := context.Background()
	id, err := DecodeUID(rp.UID)
	if err != nil {
		return core.NewValidationError(nil, core.FieldError{Field: "uid", Error: "unknown user"})
	}
	usr, err := svc.repo.GetUser(ctx, GetFilter{ID: id})
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return core.NewValidationError(nil, core.FieldError{Field: "uid", Error: "unknown user"})
		}
		return errors.Wrap(err, "finding user by ID")
	}
	if err = VerifyResetToken(usr, rp.Token); err != nil {
		return core.NewValidationError(nil, core.FieldError{Field: "token", Error: err.Error()})
	}

	if err = usr.SetPassword(rp.Password); err != nil {
		return errors.Wrap(err, "setting password")
	}
	usr.UpdatedAt = time.Now().UTC()
	_, err = svc.repo.UpdateUser(ctx, usr)
	return err
}

func (svc *service) ChangePassword(usr User, cp ChangeUserPassword) (User, error) {
	if err := usr.SetPassword(cp.Password); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}
	usr.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateUser(context.Background(), usr)
}

const pwdAlphabet = "abcdefghijkmnpqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789!#$%&*+-=?@_"

// randomPassword generates a crypto-random temporary password of length n.
func randomPassword(n int) (string, error) {
	max := big.NewInt(int64(len(pwdAlphabet)))
	pwd := make([]byte, n)
	for i := range pwd {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		pwd[i] = pwdAlphabet[idx.Int64()]
	}
	return string(pwd), nil
}
