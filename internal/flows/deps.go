package flows

// Account is the slice of a user record the flows act on.
type Account struct {
	ID       string
	Username string
	Role     string
	Active   bool

	// Record is the caller's full user value, passed through untouched.
	Record any
}

// AccessClaims are the verified claims of an access token.
type AccessClaims struct {
	UserID    string
	Username  string
	Role      string
	SessionID string
}

// RefreshClaims are the verified claims of a refresh token.
type RefreshClaims struct {
	UserID    string
	SessionID string
}

// Deps groups flow dependency sets. The engine builds this once and
// delegates request methods to the matching flow.
type Deps struct {
	Login    LoginDeps
	Refresh  RefreshDeps
	Validate ValidateDeps
	Logout   LogoutDeps
}
