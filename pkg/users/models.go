package users

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/memtensor/userdesk/pkg/types"
)

// UserID is a user identifier. The backend may send it as a JSON number or
// string; it is always held in string form.
type UserID string

// UnmarshalJSON accepts both numbers and strings
func (id *UserID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = UserID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("user id must be a string or number: %w", err)
	}
	*id = UserID(n.String())
	return nil
}

// User is the public view of a backend user. Fields the backend sends
// beyond these, such as credentials or internal flags, are dropped on decode.
type User struct {
	ID          UserID   `json:"id"`
	Name        string   `json:"name"`
	Email       string   `json:"email"`
	Bio         string   `json:"bio,omitempty"`
	Phone       string   `json:"phone,omitempty"`
	Website     string   `json:"website,omitempty"`
	Interests   []string `json:"interests,omitempty"`
	Role        string   `json:"role,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	LastLogin   string   `json:"last_login,omitempty"`
	IsActive    bool     `json:"is_active"`
}

// wireUser covers the field spellings used by different backend versions
type wireUser struct {
	ID            UserID   `json:"id"`
	Name          string   `json:"name"`
	Email         string   `json:"email"`
	Bio           string   `json:"bio"`
	Phone         string   `json:"phone"`
	Website       string   `json:"website"`
	Interests     []string `json:"interests"`
	Role          string   `json:"role"`
	Permissions   []string `json:"permissions"`
	LastLogin     *string  `json:"last_login"`
	LastLoginDate *string  `json:"last_login_date"`
	LastLoginAlt  *string  `json:"lastLogin"`
	IsActive      *bool    `json:"is_active"`
	IsActiveAlt   *bool    `json:"isActive"`
}

// UnmarshalJSON normalizes last_login_date/lastLogin and is_active/isActive
func (u *User) UnmarshalJSON(data []byte) error {
	var w wireUser
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	*u = User{
		ID:          w.ID,
		Name:        w.Name,
		Email:       w.Email,
		Bio:         w.Bio,
		Phone:       w.Phone,
		Website:     w.Website,
		Interests:   w.Interests,
		Role:        w.Role,
		Permissions: w.Permissions,
	}
	for _, v := range []*string{w.LastLogin, w.LastLoginDate, w.LastLoginAlt} {
		if v != nil && *v != "" {
			u.LastLogin = *v
			break
		}
	}
	switch {
	case w.IsActive != nil:
		u.IsActive = *w.IsActive
	case w.IsActiveAlt != nil:
		u.IsActive = *w.IsActiveAlt
	}
	return nil
}

// IsAdmin reports whether the user has the admin role
func (u *User) IsAdmin() bool {
	return strings.EqualFold(u.Role, "admin")
}

// ToRecord converts the user into a table record. Text fields are
// sanitized here, before they reach the view engine.
func (u *User) ToRecord() types.Record {
	rec := types.Record{
		types.IDField: string(u.ID),
		"name":        SanitizeText(u.Name),
		"email":       SanitizeText(u.Email),
		"role":        SanitizeText(u.Role),
		"is_active":   u.IsActive,
		"last_login":  nil,
	}
	if u.LastLogin != "" {
		rec["last_login"] = u.LastLogin
	}
	if u.Bio != "" {
		rec["bio"] = SanitizeText(u.Bio)
	}
	return rec
}

// UserPage is one page of the user list
type UserPage struct {
	Users []User `json:"users"`
	Total int    `json:"total"`
	Page  int    `json:"page"`
	Limit int    `json:"limit"`
}

// Records converts every user on the page to a table record
func (p *UserPage) Records() []types.Record {
	out := make([]types.Record, 0, len(p.Users))
	for i := range p.Users {
		out = append(out, p.Users[i].ToRecord())
	}
	return out
}

// Credentials are sent to the login endpoint in the request body
type Credentials struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginResult is the backend's answer to a successful login
type LoginResult struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// PasswordChange is the body of a password change request
type PasswordChange struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}
