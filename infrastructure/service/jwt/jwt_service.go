package jwt

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/fixora/secret-review/application/port/outbound"
	"github.com/fixora/secret-review/infrastructure/config"
)

var (
	ErrInvalidToken    = errors.New("invalid token")
	ErrTokenExpired    = errors.New("token expired")
	ErrMissingIdentity = errors.New("token carries no identity claim")
)

// JWTService verifies bearer tokens issued by the external identity provider.
// It never issues tokens.
type JWTService struct {
	algorithm     string
	hmacSecret    []byte
	publicKey     *rsa.PublicKey
	issuer        string
	identityClaim string
	leeway        time.Duration
}

var _ outbound.TokenService = (*JWTService)(nil)

func NewJWTService(cfg *config.Config) (*JWTService, error) {
	service := &JWTService{
		algorithm:     strings.ToUpper(cfg.JWTAlgorithm),
		issuer:        cfg.JWTIssuer,
		identityClaim: cfg.JWTIdentityClaim,
		leeway:        30 * time.Second,
	}
	if service.identityClaim == "" {
		service.identityClaim = "email"
	}

	switch service.algorithm {
	case "HS256":
		if cfg.JWTSecret == "" {
			return nil, config.ErrMissingJWTSecret
		}
		service.hmacSecret = []byte(cfg.JWTSecret)
	case "RS256":
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(cfg.JWTPublicKey))
		if err != nil {
			return nil, fmt.Errorf("failed to parse JWT public key: %w", err)
		}
		service.publicKey = key
	default:
		return nil, fmt.Errorf("unsupported JWT algorithm: %s", cfg.JWTAlgorithm)
	}

	return service, nil
}

func (s *JWTService) ValidateAccessToken(tokenString string) (*outbound.TokenClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{s.algorithm}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(s.leeway),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	token, err := jwt.Parse(tokenString, s.keyFunc, opts...)
	if err != nil {
		return nil, s.handleValidationError(err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	result := &outbound.TokenClaims{
		Subject: stringClaim(claims, "sub"),
		Email:   stringClaim(claims, "email"),
	}

	// only the configured claim identifies the caller
	result.Identity = stringClaim(claims, s.identityClaim)
	if result.Identity == "" {
		return nil, ErrMissingIdentity
	}

	return result, nil
}

func (s *JWTService) keyFunc(token *jwt.Token) (interface{}, error) {
	switch token.Method.(type) {
	case *jwt.SigningMethodHMAC:
		if s.hmacSecret == nil {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.hmacSecret, nil
	case *jwt.SigningMethodRSA:
		if s.publicKey == nil {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.publicKey, nil
	}
	return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
}

func (s *JWTService) handleValidationError(err error) error {
	if errors.Is(err, jwt.ErrTokenExpired) {
		return ErrTokenExpired
	}
	return fmt.Errorf("%w: %v", ErrInvalidToken, err)
}

func stringClaim(claims jwt.MapClaims, name string) string {
	v, _ := claims[name].(string)
	return strings.TrimSpace(v)
}
