package store

import "context"

// Role is the type of a user role.
type Role string

const (
	// RoleAdmin is the ADMIN role.
	RoleAdmin Role = "ADMIN"
	// RoleUser is the USER role.
	RoleUser Role = "USER"
)

// User is an authenticated principal scoped to one organization.
type User struct {
	ID             int32
	OrganizationID int32
	Username       string
	PasswordHash   string
	Role           Role
	CreatedTs      int64
}

// FindUser is the find condition for users.
type FindUser struct {
	ID             *int32
	Username       *string
	OrganizationID *int32
	Limit          *int
}

// UserAccessToken is a bearer token issued at signin. Only the SHA-256 hash of
// the token is stored.
type UserAccessToken struct {
	TokenHash string
	UserID    int32
	CreatedTs int64
}

func (s *Store) CreateUser(ctx context.Context, create *User) (*User, error) {
	return s.driver.CreateUser(ctx, create)
}

func (s *Store) GetUser(ctx context.Context, find *FindUser) (*User, error) {
	list, err := s.driver.ListUsers(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func (s *Store) ListUsers(ctx context.Context, find *FindUser) ([]*User, error) {
	return s.driver.ListUsers(ctx, find)
}

func (s *Store) CreateUserAccessToken(ctx context.Context, create *UserAccessToken) (*UserAccessToken, error) {
	return s.driver.CreateUserAccessToken(ctx, create)
}

// GetUserByAccessToken resolves the user owning the token hash. Returns nil
// without error when the token is unknown.
func (s *Store) GetUserByAccessToken(ctx context.Context, tokenHash string) (*User, error) {
	token, err := s.driver.GetUserAccessToken(ctx, tokenHash)
	if err != nil {
		return nil, err
	}
	if token == nil {
		return nil, nil
	}
	return s.GetUser(ctx, &FindUser{ID: &token.UserID})
}
