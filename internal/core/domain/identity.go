package domain

// Identity is the authenticated user's public profile, held client-side.
// A non-nil Identity implies a valid credential is stored.
type Identity struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}
