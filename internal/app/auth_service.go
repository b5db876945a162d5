package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"mycareerbox/internal/model"
	"mycareerbox/internal/repository"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrAccountExists     = errors.New("account already exists")
	ErrInvalidCredential = errors.New("invalid email or password")
)

const minPasswordLength = 6

// emailRule matches the binding tag on the sign-up form. Only a bare address
// passes, so the stored email is always usable as a storage key.
const emailRule = "required,email,max=128"

type UserStore interface {
	Create(ctx context.Context, user *model.User) error
	GetByEmail(ctx context.Context, email string) (*model.User, error)
}

// UserHandle identifies a signed-in user. Email doubles as the partition key
// for records and attachments.
type UserHandle struct {
	ID    uint
	Email string
}

// AuthService is the identity gateway: email and password in, success or
// failure out.
type AuthService struct {
	users    UserStore
	validate *validator.Validate
	cost     int
}

func NewAuthService(users UserStore) *AuthService {
	return &AuthService{
		users:    users,
		validate: validator.New(),
		cost:     bcrypt.DefaultCost,
	}
}

// NormalizeEmail trims and lowercases an address so the same mailbox always
// maps to the same partition.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *AuthService) SignIn(ctx context.Context, email, password string) (*UserHandle, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredential
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidCredential
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredential
	}
	return &UserHandle{ID: user.ID, Email: user.Email}, nil
}

func (s *AuthService) SignUp(ctx context.Context, email, password string) error {
	email = NormalizeEmail(email)
	if err := s.validate.Var(email, emailRule); err != nil || len(password) < minPasswordLength {
		return ErrInvalidInput
	}

	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrAccountExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return fmt.Errorf("hash password failed: %w", err)
	}

	user := &model.User{
		Email:        email,
		PasswordHash: string(hash),
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			return ErrAccountExists
		}
		return err
	}
	return nil
}
