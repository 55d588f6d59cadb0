package domain

import "time"

// User is a hiring-staff account. Applicants never get accounts; they only
// submit through the public apply form.
type User struct {
	ID           string          `json:"id"`
	Email        string          `json:"email"`
	PasswordHash string          `json:"-"`
	OrgID        string          `json:"orgId"`
	Profile      Profile         `json:"profile"`
	Tokens       []ProviderToken `json:"-"`

	ResetPasswordToken   string    `json:"-"`
	ResetPasswordExpires time.Time `json:"-"`

	CreatedAt time.Time `json:"createdAt"`
}

// Profile holds the mutable display fields of an account.
type Profile struct {
	Name     string `json:"name"`
	Location string `json:"location"`
	Website  string `json:"website"`
}

// ProviderToken is a linked OAuth identity. Kind is the provider name
// ("github", "google"); a user may hold tokens for several providers.
type ProviderToken struct {
	Kind        string `json:"kind"`
	AccessToken string `json:"-"`
}

// HasProvider reports whether a token for the given provider is linked.
func (u User) HasProvider(kind string) bool {
	for _, t := range u.Tokens {
		if t.Kind == kind {
			return true
		}
	}
	return false
}

// Position is an open role created by hiring staff. Applications reference it
// by ID through the apply form.
type Position struct {
	ID           string    `json:"id"`
	OrgID        string    `json:"orgId"`
	Title        string    `json:"title"`
	StartingDate time.Time `json:"startingDate"`
	CreatedAt    time.Time `json:"createdAt"`
}
