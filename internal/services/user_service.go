package services

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/isdelr/ender-calendar-be/internal/errdef"
	"github.com/isdelr/ender-calendar-be/internal/models"
	"github.com/isdelr/ender-calendar-be/internal/policy"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

// UserServiceProvider defines the interface for user services.
type UserServiceProvider interface {
	GetUserByID(ctx context.Context, id string) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
	CreateUser(ctx context.Context, username, email, password string) (models.User, error)
	AuthenticateUser(ctx context.Context, email, password string) (models.User, error)
	AuthenticateAdmin(ctx context.Context, username, password string) (models.User, error)
	EnsureAdmin(ctx context.Context, username, email, password string) (models.User, error)
	IsAdmin(user models.User) bool
}

// UserService provides business logic for user management.
type UserService struct {
	db     *sql.DB
	engine *policy.Engine
	cost   int
}

// NewUserService creates a new UserService.
func NewUserService(db *sql.DB, engine *policy.Engine) *UserService {
	return &UserService{db: db, engine: engine, cost: bcrypt.DefaultCost}
}

// GetUserByID retrieves a single user by their ID.
func (s *UserService) GetUserByID(ctx context.Context, id string) (models.User, error) {
	user, err := s.getUser(ctx, "id", id)
	if err != nil {
		return models.User{}, err
	}
	user.PasswordHash = ""
	return user, nil
}

// GetUserByEmail retrieves a single user by their email.
func (s *UserService) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	user, err := s.getUser(ctx, "email", email)
	if err != nil {
		return models.User{}, err
	}
	user.PasswordHash = ""
	return user, nil
}

// CreateUser creates a new user, hashing their password. The admin address is
// reserved: only EnsureAdmin may create that account.
func (s *UserService) CreateUser(ctx context.Context, username, email, password string) (models.User, error) {
	if s.engine.IsDistinguishedAdmin(email) {
		log.Warn().Str("email", email).Msg("Refused registration with the reserved admin address")
		return models.User{}, errdef.NewForbidden("this email address is reserved")
	}
	return s.createUser(ctx, username, email, password)
}

func (s *UserService) createUser(ctx context.Context, username, email, password string) (models.User, error) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return models.User{}, errdef.NewBadRequest("failed to hash password: %w", err)
	}

	user := models.User{
		ID:           uuid.New().String(),
		Username:     username,
		Email:        email,
		PasswordHash: string(hashedPassword),
		CreatedAt:    time.Now().UTC(),
	}

	stmt, err := s.db.PrepareContext(ctx, "INSERT INTO users(id, username, email, password_hash, created_at) VALUES(?, ?, ?, ?, ?)")
	if err != nil {
		return models.User{}, errdef.NewUnavailable("prepare user insert: %w", err)
	}
	defer stmt.Close()

	_, err = stmt.ExecContext(ctx, user.ID, user.Username, user.Email, user.PasswordHash, user.CreatedAt.UnixNano())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return models.User{}, errdef.NewConflict("username or email already in use")
		}
		return models.User{}, errdef.NewUnavailable("insert user: %w", err)
	}

	// Return user without password hash
	user.PasswordHash = ""
	return user, nil
}

// AuthenticateUser verifies a user's credentials.
func (s *UserService) AuthenticateUser(ctx context.Context, email, password string) (models.User, error) {
	user, err := s.getUser(ctx, "email", email)
	if err != nil {
		if errdef.IsNotFound(err) {
			return models.User{}, errdef.NewUnauthorized("authentication failed: user not found")
		}
		return models.User{}, err
	}
	return checkPassword(user, password)
}

// AuthenticateAdmin verifies the credentials of the administrator account. A
// valid login for any account other than the distinguished admin is refused.
func (s *UserService) AuthenticateAdmin(ctx context.Context, username, password string) (models.User, error) {
	user, err := s.getUser(ctx, "username", username)
	if err != nil {
		if errdef.IsNotFound(err) {
			return models.User{}, errdef.NewUnauthorized("authentication failed: user not found")
		}
		return models.User{}, err
	}
	user, err = checkPassword(user, password)
	if err != nil {
		return models.User{}, err
	}
	if !s.IsAdmin(user) {
		return models.User{}, errdef.NewUnauthorized("authentication failed: not an administrator")
	}
	return user, nil
}

// EnsureAdmin creates the administrator account, or refreshes its username and
// password when an account with the admin email already exists.
func (s *UserService) EnsureAdmin(ctx context.Context, username, email, password string) (models.User, error) {
	if email == "" || username == "" || password == "" {
		return models.User{}, errdef.NewBadRequest("admin username, email and password are all required")
	}

	existing, err := s.getUser(ctx, "email", email)
	if err != nil {
		if !errdef.IsNotFound(err) {
			return models.User{}, err
		}
		user, err := s.createUser(ctx, username, email, password)
		if err != nil {
			return models.User{}, err
		}
		log.Info().Str("user_id", user.ID).Str("username", username).Msg("Default admin created")
		return user, nil
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return models.User{}, errdef.NewBadRequest("failed to hash password: %w", err)
	}
	_, err = s.db.ExecContext(ctx, "UPDATE users SET username = ?, password_hash = ? WHERE id = ?", username, string(hashedPassword), existing.ID)
	if err != nil {
		return models.User{}, errdef.NewUnavailable("update admin: %w", err)
	}
	log.Info().Str("user_id", existing.ID).Msg("Default admin already exists, credentials refreshed")

	existing.Username = username
	existing.PasswordHash = ""
	return existing, nil
}

// IsAdmin reports whether user is the distinguished admin, judged by email alone.
func (s *UserService) IsAdmin(user models.User) bool {
	return s.engine.IsDistinguishedAdmin(user.Email)
}

func (s *UserService) getUser(ctx context.Context, column, value string) (models.User, error) {
	var user models.User
	var createdAt int64
	row := s.db.QueryRowContext(ctx, "SELECT id, username, email, password_hash, created_at FROM users WHERE "+column+" = ?", value)
	err := row.Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, errdef.NewNotFound("user with %s %s not found", column, value)
		}
		return models.User{}, errdef.NewUnavailable("get user: %w", err)
	}
	user.CreatedAt = time.Unix(0, createdAt).UTC()
	return user, nil
}

func checkPassword(user models.User, password string) (models.User, error) {
	err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password))
	if err != nil {
		return models.User{}, errdef.NewUnauthorized("authentication failed: invalid password")
	}

	// Don't send the password hash to the client
	user.PasswordHash = ""
	return user, nil
}
