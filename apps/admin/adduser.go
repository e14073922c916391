package main

import (
	"context"
	"time"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/user"
)

// addUser updates or creates a user.User; the account comes out active with a
// confirmed email so it can log in right away.
func (cli *commandLine) addUser(email, documentNumber, role, pwd string) error {
	ctx := context.Background()
	email = core.CleanString(email, true /* lower */)
	documentNumber = core.CleanString(documentNumber, true /* lower */)

	r := user.Role(role)
	if !r.IsValid() {
		return user.ErrInvalidRole
	}

	now := time.Now().UTC()
	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Email: email})
	if err != nil {
		if err != user.ErrNotFound {
			return err
		}
		usr = user.User{
			Email:     email,
			CreatedAt: now,
		}
	}
	usr.DocumentNumber = documentNumber
	usr.Role = r
	usr.IsActive = true
	usr.EmailConfirmed = true
	usr.UpdatedAt = now
	if err := usr.SetPassword(pwd); err != nil {
		return err
	}

	if usr.ID == "" {
		_, err = cli.usrRepo.CreateUser(ctx, usr)
	} else {
		_, err = cli.usrRepo.UpdateUser(ctx, usr)
	}
	return err
}
