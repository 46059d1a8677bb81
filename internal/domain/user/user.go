package user

import "time"

// User is the identity record as stored and as served on /me. Field
// names follow the wire contract consumed by the client schema.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      *string   `json:"name"`
	AvatarURL *string   `json:"avatar_url"`
	Provider  *string   `json:"provider"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"-"`
}

// Identity is what the OAuth provider asserts about a person. It is
// the input to the upsert that keeps the local row current.
type Identity struct {
	ExternalID string
	Email      string
	Name       string
	AvatarURL  string
	Provider   string
}

const DefaultRole = "user"
