package models

import "time"

const (
	RoleAdmin    = "admin"
	RoleVendor   = "vendor"
	RoleCustomer = "customer"
)

type User struct {
	ID        int64
	Username  string
	Email     string
	PassHash  []byte
	FirstName string
	LastName  string
	RoleID    int32
	Role      string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Role struct {
	ID   int32
	Name string
}

// RefreshToken is one issuance of an opaque refresh credential. Rows are never
// rewritten with a new token value; rotation revokes the old row and inserts a
// new one.
type RefreshToken struct {
	ID        int64
	UserID    int64
	TokenHash string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Revoked   bool
	RevokedAt *time.Time
	Used      bool
}

// * IsExpired проверяет, истек ли срок действия токена
func (t *RefreshToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// * IsActive проверяет, активен ли токен (не отозван, не использован и не истек)
func (t *RefreshToken) IsActive(now time.Time) bool {
	return !t.Revoked && !t.Used && !t.IsExpired(now)
}

// Lifetime is the validity window the token was issued with.
func (t *RefreshToken) Lifetime() time.Duration {
	return t.ExpiresAt.Sub(t.IssuedAt)
}

const (
	PurposePasswordReset   = "password_reset"
	PurposeWelcome         = "welcome"
	PurposePasswordChanged = "password_changed"
)

// Message is what the auth service puts on the email queue.
type Message struct {
	Email     string `json:"to"`
	FirstName string `json:"first_name,omitempty"`
	Link      string `json:"link,omitempty"`
	Purpose   string `json:"purpose"`
}
