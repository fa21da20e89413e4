package domain

// Role is the closed set of storefront roles.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// IsValid reports whether r is a known role.
func (r Role) IsValid() bool {
	return r == RoleUser || r == RoleAdmin
}

// GuestName is shown when nobody is signed in.
const GuestName = "Guest"

// User is the signed-in identity as the backend reports it.
type User struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Email           string `json:"email"`
	Role            Role   `json:"role"`
	IsEmailVerified bool   `json:"isEmailVerified,omitempty"`
	Avatar          string `json:"avatar,omitempty"`
	CreatedAt       string `json:"createdAt,omitempty"`
	UpdatedAt       string `json:"updatedAt,omitempty"`
}

// IsAdmin reports whether u has the admin role. A nil user is not an admin.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// DisplayName returns the user's name, or GuestName.
func (u *User) DisplayName() string {
	if u == nil || u.Name == "" {
		return GuestName
	}
	return u.Name
}
