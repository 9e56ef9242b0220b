// Package domain contains the core data structures and domain logic for the application.
package domain

import "strings"

// NameSource records where a contributor's display name came from.
type NameSource string

const (
	NameUnknown  NameSource = "unknown"
	NameDerived  NameSource = "derived"
	NameVerified NameSource = "verified"
)

// Contributor is a repository contributor keyed by login.
type Contributor struct {
	Login      string     `json:"login"`
	Name       string     `json:"name,omitempty"`
	NameSource NameSource `json:"name_source"`
	AvatarURL  string     `json:"avatar_url,omitempty"`
	ProfileURL string     `json:"profile_url,omitempty"`
	Email      string     `json:"email,omitempty"`
}

// Profile is what a profile lookup returns for a login.
type Profile struct {
	Name  string
	Email string
}

// ApplyProfile fills the name fields from a looked-up profile. A real name wins,
// then a name derived from the email address. Existing better data is kept.
func (c *Contributor) ApplyProfile(p Profile) {
	if c.Email == "" {
		c.Email = p.Email
	}
	switch {
	case strings.TrimSpace(p.Name) != "":
		c.Name = strings.TrimSpace(p.Name)
		c.NameSource = NameVerified
	case c.NameSource == NameVerified:
	case c.Email != "":
		if name := nameFromEmail(c.Email); name != "" {
			c.Name = name
			c.NameSource = NameDerived
		}
	}
	if c.NameSource == "" {
		c.NameSource = NameUnknown
	}
}

// DisplayName resolves the name shown in reports.
func (c Contributor) DisplayName() string {
	if c.NameSource != NameUnknown && c.NameSource != "" && c.Name != "" {
		return c.Name
	}
	return c.Login
}

// Merge combines two observations of the same contributor, keeping the better name.
func (c Contributor) Merge(other Contributor) Contributor {
	out := c
	if out.Login == "" {
		out.Login = other.Login
	}
	if other.AvatarURL != "" {
		out.AvatarURL = other.AvatarURL
	}
	if other.ProfileURL != "" {
		out.ProfileURL = other.ProfileURL
	}
	if out.Email == "" {
		out.Email = other.Email
	}
	if other.NameSource.rank() > out.NameSource.rank() {
		out.Name = other.Name
		out.NameSource = other.NameSource
	}
	if out.NameSource == "" {
		out.NameSource = NameUnknown
	}
	return out
}

func (s NameSource) rank() int {
	switch s {
	case NameVerified:
		return 2
	case NameDerived:
		return 1
	default:
		return 0
	}
}

// nameFromEmail turns "jane.doe@example.com" into "Jane Doe".
func nameFromEmail(email string) string {
	local, _, ok := strings.Cut(email, "@")
	if !ok || local == "" || strings.HasSuffix(email, "users.noreply.github.com") {
		return ""
	}
	parts := strings.FieldsFunc(local, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+'
	})
	for i, p := range parts {
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}
