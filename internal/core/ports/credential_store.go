package ports

// CredentialStore persists one opaque bearer credential across process
// restarts. Absence of a stored credential is the normal logged-out state,
// not an error.
type CredentialStore interface {
	// Load returns the stored credential, or "" when none is stored.
	Load() (string, error)
	Save(token string) error
	// Clear removes the credential. Clearing an empty store is a no-op.
	Clear() error
}
