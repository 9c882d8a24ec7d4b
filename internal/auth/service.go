package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/VRMX2/USTHB-APP/internal/core"
	"github.com/VRMX2/USTHB-APP/internal/store"
)

var (
	// ErrInvalidCredentials is returned when username/password don't match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserExists is returned when trying to register with existing username.
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidUsername is returned when username doesn't meet constraints.
	ErrInvalidUsername = errors.New("invalid username")
	// ErrInvalidPassword is returned when password doesn't meet constraints.
	ErrInvalidPassword = errors.New("invalid password")
	// ErrInvalidRole is returned when the role is not one of the portal roles.
	ErrInvalidRole = errors.New("invalid role")
	// ErrInvalidDepartment is returned when the department is empty.
	ErrInvalidDepartment = errors.New("invalid department")
	// ErrInvalidToken is returned when a token fails validation or names a
	// user that no longer exists.
	ErrInvalidToken = errors.New("invalid token")
	// ErrAccountSuspended is returned when the account has been deactivated.
	ErrAccountSuspended = errors.New("account suspended")
)

// Service provides authentication operations.
type Service struct {
	store     store.UserStore
	jwtConfig *JWTConfig
}

// NewService creates a new authentication service.
func NewService(userStore store.UserStore, jwtConfig *JWTConfig) *Service {
	return &Service{
		store:     userStore,
		jwtConfig: jwtConfig,
	}
}

// Register creates a new user with hashed password and returns a JWT token.
func (s *Service) Register(ctx context.Context, username, password, role, department string) (string, error) {
	username = strings.TrimSpace(username)
	if len(username) < 3 || len(username) > 32 {
		return "", ErrInvalidUsername
	}
	if !ValidPassword(password) {
		return "", ErrInvalidPassword
	}
	switch core.Role(role) {
	case core.RoleStudent, core.RoleTeacher, core.RoleAdmin:
	default:
		return "", ErrInvalidRole
	}
	department = strings.TrimSpace(department)
	if department == "" {
		return "", ErrInvalidDepartment
	}

	// Check if user already exists
	existing, err := s.store.GetUserByUsername(ctx, username)
	if err == nil && existing != nil {
		return "", ErrUserExists
	}

	// Hash password
	hashedPassword, err := HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	// Create user
	user, err := s.store.CreateUser(ctx, username, hashedPassword, role, department)
	if err != nil {
		return "", fmt.Errorf("create user: %w", err)
	}

	// Generate JWT token
	token, err := GenerateToken(s.jwtConfig, user.ID, user.Username, user.Role, user.Department)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}

	return token, nil
}

// Login validates credentials and returns a JWT token.
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	// Get user by username
	user, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		return "", ErrInvalidCredentials
	}

	// Compare password
	if errPwd := ComparePassword(user.PasswordHash, password); errPwd != nil {
		return "", ErrInvalidCredentials
	}

	if !user.Active {
		return "", ErrAccountSuspended
	}

	// Generate JWT token
	token, err := GenerateToken(s.jwtConfig, user.ID, user.Username, user.Role, user.Department)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}

	return token, nil
}

// Verify authenticates a token and returns the principal it names.
//
// The user row is re-checked so that suspended or deleted accounts are
// rejected even while their tokens are still inside the TTL. If the store
// is unreachable the signed claims alone identify the principal; they carry
// role and department for exactly this case.
func (s *Service) Verify(ctx context.Context, tokenString string) (*core.Principal, error) {
	claims, err := ValidateToken(s.jwtConfig, tokenString)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	principal := &core.Principal{
		ID:         claims.UserID,
		Username:   claims.Username,
		Role:       core.Role(claims.Role),
		Department: claims.Department,
		Active:     true,
		Courses:    map[int64]core.CourseRole{},
	}

	user, err := s.store.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		// Store outage. Degrade to the claims-only principal.
		return principal, nil
	}
	if !user.Active {
		return nil, ErrAccountSuspended
	}

	// The row wins over the claims when they drifted after issuance.
	principal.Username = user.Username
	principal.Role = core.Role(user.Role)
	principal.Department = user.Department
	return principal, nil
}

// ValidateToken validates a JWT token and returns the claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	return ValidateToken(s.jwtConfig, tokenString)
}
