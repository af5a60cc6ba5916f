package accounts

import (
	"context"
	"fmt"
	"net/mail"
	"regexp"
	"strings"

	"github.com/jmoiron/sqlx"

	"taja/auth"
	"taja/database"
	"taja/render"
)

const (
	minPasswordLen = 8
	maxUsernameLen = 150
)

var usernamePattern = regexp.MustCompile(`^[\w.@+-]+$`)

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email && strings.Contains(email, "@")
}

// NewUser is the login part of a create request.
type NewUser struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func (f *NewUser) Normalize() {
	f.Username = strings.TrimSpace(f.Username)
	f.Email = database.NormalizeEmail(f.Email)
	f.FirstName = strings.TrimSpace(f.FirstName)
	f.LastName = strings.TrimSpace(f.LastName)
}

// Validate checks shape and uniqueness of a new login.
func (f NewUser) Validate(ctx context.Context, q sqlx.ExtContext, errs render.ValidationErrors) error {
	switch {
	case f.Username == "":
		errs.Add("username", "This field is required.")
	case len(f.Username) > maxUsernameLen:
		errs.Add("username", "Ensure this field has no more than 150 characters.")
	case !usernamePattern.MatchString(f.Username):
		errs.Add("username", "Enter a valid username. This value may contain only letters, numbers, and @/./+/-/_ characters.")
	default:
		taken, err := database.UsernameTaken(ctx, q, f.Username)
		if err != nil {
			return err
		}
		if taken {
			errs.Add("username", "A user with that username already exists.")
		}
	}

	if err := validateEmailField(ctx, q, f.Email, 0, errs); err != nil {
		return err
	}

	switch {
	case f.Password == "":
		errs.Add("password", "This field is required.")
	case len([]rune(f.Password)) < minPasswordLen:
		errs.Add("password", "This password is too short. It must contain at least 8 characters.")
	case len(f.Password) > auth.MaxPasswordBytes:
		errs.Add("password", fmt.Sprintf("This password is too long. It must be at most %d bytes.", auth.MaxPasswordBytes))
	}
	return nil
}

// validateEmailField checks an email that must be unique among users other
// than exceptID.
func validateEmailField(ctx context.Context, q sqlx.ExtContext, email string, exceptID int64, errs render.ValidationErrors) error {
	if email == "" {
		errs.Add("email", "This field is required.")
		return nil
	}
	if !validEmail(email) {
		errs.Add("email", "Enter a valid email address.")
		return nil
	}
	taken, err := database.EmailTaken(ctx, q, email, exceptID)
	if err != nil {
		return err
	}
	if taken {
		errs.Add("email", "A user with that email already exists.")
	}
	return nil
}
