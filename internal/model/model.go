package model

import "time"

// Role describes the permission level of a user account. It decides which
// contact operations the HTTP layer allows; the search and store code never
// inspects it.
type Role string

const (
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// User is an account that owns contacts. PasswordHash and RefreshToken are
// never serialized into HTTP responses.
type User struct {
	Id           int64     `json:"id"         db:"id"`
	Username     string    `json:"username"   db:"username"`
	Email        string    `json:"email"      db:"email"`
	PasswordHash string    `json:"-"          db:"password_hash"`
	Role         Role      `json:"role"       db:"role"`
	Confirmed    bool      `json:"confirmed"  db:"confirmed"`
	RefreshToken *string   `json:"-"          db:"refresh_token"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Contact is the data structure for a person that a user knows. Every contact
// belongs to exactly one user; OwnerId is set on creation and never changes.
// Only the month and day of Birthday matter for birthday lookups, the year is
// kept for display.
type Contact struct {
	Id             int64     `json:"id"                        db:"id"`
	OwnerId        int64     `json:"-"                         db:"owner_id"`
	FirstName      string    `json:"firstname"                 db:"firstname"`
	LastName       string    `json:"lastname"                  db:"lastname"`
	Email          string    `json:"email"                     db:"email"`
	Phone          string    `json:"phone"                     db:"phone"`
	Birthday       time.Time `json:"birthday"                  db:"birthday"`
	AdditionalInfo *string   `json:"additional_info,omitempty" db:"additional_info"`
	IsFavorite     bool      `json:"is_favorite"               db:"is_favorite"`
	CreatedAt      time.Time `json:"created_at"                db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"                db:"updated_at"`
}

// ContactPatch carries a partial update for a contact. All fields are
// optional; only the ones present in the request JSON are applied.
type ContactPatch struct {
	FirstName      *string    `json:"firstname,omitempty"`
	LastName       *string    `json:"lastname,omitempty"`
	Email          *string    `json:"email,omitempty"`
	Phone          *string    `json:"phone,omitempty"`
	Birthday       *time.Time `json:"birthday,omitempty"`
	AdditionalInfo *string    `json:"additional_info,omitempty"`
	IsFavorite     *bool      `json:"is_favorite,omitempty"`
}
