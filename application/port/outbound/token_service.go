package outbound

// TokenClaims is the verified identity carried by a bearer token
type TokenClaims struct {
	Subject  string `json:"sub"`
	Identity string `json:"identity"`
	Email    string `json:"email"`
}

type TokenService interface {
	ValidateAccessToken(token string) (*TokenClaims, error)
}
