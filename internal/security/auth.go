package security

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/swarahealth/coughwatch-go/internal/datastore"
	"github.com/swarahealth/coughwatch-go/internal/errors"
	"github.com/swarahealth/coughwatch-go/internal/logging"
)

const minPasswordLength = 6

// RegisterParams describes a new account.
type RegisterParams struct {
	Email    string
	Username string
	Name     string
	Password string
}

// Authenticator handles registration and password login.
type Authenticator struct {
	ds     datastore.Interface
	logger *slog.Logger
}

// NewAuthenticator creates an authenticator backed by the given store.
func NewAuthenticator(ds datastore.Interface) *Authenticator {
	return &Authenticator{
		ds:     ds,
		logger: logging.ForService("security"),
	}
}

// Register creates a new user account. Email and username must be unique;
// the password is stored as a bcrypt hash.
func (a *Authenticator) Register(ctx context.Context, params RegisterParams) (*datastore.User, error) {
	email := strings.ToLower(strings.TrimSpace(params.Email))
	username := strings.TrimSpace(params.Username)
	name := strings.TrimSpace(params.Name)

	if email == "" || username == "" || name == "" || params.Password == "" {
		return nil, errors.Newf("email, username, name and password are required").
			Component("security").
			Category(errors.CategoryValidation).
			Build()
	}
	if len(params.Password) < minPasswordLength {
		return nil, errors.Newf("password must be at least %d characters", minPasswordLength).
			Component("security").
			Category(errors.CategoryValidation).
			Build()
	}

	if _, err := a.ds.GetUserByEmail(email); err == nil {
		return nil, errors.Newf("email is already registered").
			Component("security").
			Category(errors.CategoryConflict).
			Build()
	} else if !errors.Is(err, datastore.ErrUserNotFound) {
		return nil, err
	}
	if _, err := a.ds.GetUserByUsername(username); err == nil {
		return nil, errors.Newf("username is already taken").
			Component("security").
			Category(errors.CategoryConflict).
			Build()
	} else if !errors.Is(err, datastore.ErrUserNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(params.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, errors.New(err).
			Component("security").
			Category(errors.CategoryGeneric).
			Build()
	}

	user := &datastore.User{
		Email:        email,
		Username:     username,
		Name:         name,
		PasswordHash: string(hash),
		Role:         datastore.RoleUser,
	}
	if err := a.ds.SaveUser(user); err != nil {
		return nil, err
	}

	a.logger.Info("user registered", "user_id", user.ID, "username", username)
	return user, nil
}

// BootstrapAdmin creates the configured initial admin account. It is a
// no-op when the account already exists or when the parameters are
// incomplete.
func (a *Authenticator) BootstrapAdmin(ctx context.Context, email, username, password string) error {
	if email == "" || username == "" || password == "" {
		return nil
	}

	if _, err := a.ds.GetUserByEmail(strings.ToLower(strings.TrimSpace(email))); err == nil {
		return nil
	} else if !errors.Is(err, datastore.ErrUserNotFound) {
		return err
	}

	user, err := a.Register(ctx, RegisterParams{
		Email:    email,
		Username: username,
		Name:     username,
		Password: password,
	})
	if err != nil {
		return err
	}

	user.Role = datastore.RoleAdmin
	if err := a.ds.UpdateUser(user); err != nil {
		return err
	}

	a.logger.Info("admin account bootstrapped", "user_id", user.ID, "username", username)
	return nil
}

// errInvalidCredentials is the single error returned for every login
// failure, so responses do not reveal whether the account exists.
var errInvalidCredentials = errors.Newf("invalid email or password").
	Component("security").
	Category(errors.CategoryUnauthorized).
	Build()

// Login verifies the email and password pair and returns the account.
func (a *Authenticator) Login(ctx context.Context, email, password string) (*datastore.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, errInvalidCredentials
	}

	user, err := a.ds.GetUserByEmail(email)
	if err != nil {
		if errors.Is(err, datastore.ErrUserNotFound) {
			return nil, errInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		a.logger.Warn("failed login attempt", "email", email)
		return nil, errInvalidCredentials
	}

	return user, nil
}

// VerifyDeviceKey checks a device pre-shared key in constant time. An
// unset configured key denies all device requests.
func VerifyDeviceKey(configured, presented string) bool {
	if configured == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(configured), []byte(presented)) == 1
}
