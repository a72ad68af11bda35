package models

// SystemRole is the platform-wide role of a user.
type SystemRole string

const (
	SystemRoleAdmin      SystemRole = "admin"
	SystemRoleResearcher SystemRole = "researcher"
	SystemRoleUser       SystemRole = "user"
)

// UserProfile is the read-only view of a user held by the user directory.
type UserProfile struct {
	UserID    string     `dynamodbav:"userId" json:"userId"`
	Email     string     `dynamodbav:"email" json:"email"`
	FullName  string     `dynamodbav:"name,omitempty" json:"name,omitempty"`
	AvatarURL *string    `dynamodbav:"avatarUrl,omitempty" json:"avatarUrl,omitempty"`
	Role      SystemRole `dynamodbav:"role" json:"role"`
	Active    bool       `dynamodbav:"active" json:"active"`
}

// DisplayName falls back to the email when the profile has no name.
func (p UserProfile) DisplayName() string {
	if p.FullName != "" {
		return p.FullName
	}
	return p.Email
}

// Identity is the authenticated caller, as resolved by the identity provider.
type Identity struct {
	UserID      string
	Email       string
	DisplayName string
	AvatarURL   *string
	SystemRole  SystemRole
}

func (i Identity) IsSystemAdmin() bool {
	return i.SystemRole == SystemRoleAdmin
}

// IdentityFromProfile builds the caller identity from a directory profile.
func IdentityFromProfile(p UserProfile) Identity {
	return Identity{
		UserID:      p.UserID,
		Email:       p.Email,
		DisplayName: p.DisplayName(),
		AvatarURL:   p.AvatarURL,
		SystemRole:  p.Role,
	}
}
