package jwt

import "github.com/golang-jwt/jwt"

// RoleAdmin is the role required for the presence debug surface.
const RoleAdmin = "admin"

// Payload defines the JWT claims issued to operators.
type Payload struct {
	// StandardClaims carries Exp, Iat and Iss.
	jwt.StandardClaims `json:"standard_claims"`

	// Subject names the operator the token was issued to.
	Subject string `json:"sub_name"`

	// Role gates access; only RoleAdmin may use the debug endpoints.
	Role string `json:"role"`
}
