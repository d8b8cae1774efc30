package domain

// Role names carried in the access token.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)
