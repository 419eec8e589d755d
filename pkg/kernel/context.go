package kernel

// AuthContext is the authenticated caller attached to each API request.
type AuthContext struct {
	UserID UserID `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

// IsValid reports whether the context identifies a user.
func (ac *AuthContext) IsValid() bool {
	return ac != nil && !ac.UserID.IsEmpty()
}

// IsAdmin reports whether the caller may act on other users' generations.
func (ac *AuthContext) IsAdmin() bool {
	return ac != nil && ac.Role == "service_role"
}

// CanAccess reports whether the caller may read or cancel a resource owned
// by owner.
func (ac *AuthContext) CanAccess(owner UserID) bool {
	return ac.IsAdmin() || (ac.IsValid() && ac.UserID == owner)
}

type ContextKey string

const (
	// AuthContextKey is the fiber Locals key holding *AuthContext
	AuthContextKey ContextKey = "auth_context"

	RequestIDKey ContextKey = "request_id"
)
