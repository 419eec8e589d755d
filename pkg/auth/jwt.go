package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/culturalsoundlab/soundlab/pkg/kernel"
)

// Claims are the access token claims issued by the identity provider. The
// subject is the user id.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// Verifier validates HS256 access tokens.
type Verifier struct {
	secret   []byte
	issuer   string
	audience string
}

// NewVerifier creates a verifier. Empty issuer or audience disables that
// check.
func NewVerifier(secret, issuer, audience string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer, audience: audience}
}

// Verify parses tokenString and returns the caller it identifies.
func (v *Verifier) Verify(tokenString string) (*kernel.AuthContext, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, authErrors.NewWithCause(ErrInvalidToken, err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, authErrors.New(ErrInvalidToken).WithDetail("reason", "missing subject")
	}

	return &kernel.AuthContext{
		UserID: kernel.UserID(claims.Subject),
		Email:  claims.Email,
		Role:   claims.Role,
	}, nil
}

// Issue signs a token for userID. Used by local tooling and tests; production
// tokens come from the identity provider.
func (v *Verifier) Issue(userID kernel.UserID, email, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Email: email,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if v.audience != "" {
		claims.Audience = jwt.ClaimStrings{v.audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", authErrors.NewWithCause(ErrSigning, err)
	}
	return signed, nil
}
