package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mbeoliero/sellerchat/pkg/errcode"
)

const issuer = "sellerchat"

// Claims represents JWT claims
type Claims struct {
	UserId     string   `json:"user_id"`
	PlatformId int      `json:"platform_id"`
	Roles      []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// HasAnyRole reports whether the claims carry one of roles
func (c *Claims) HasAnyRole(roles ...string) bool {
	for _, have := range c.Roles {
		for _, want := range roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

// GenerateToken generates a new JWT token
func GenerateToken(userId string, platformId int, roles []string, secret string, expireHours int) (string, error) {
	now := time.Now()
	claims := Claims{
		UserId:     userId,
		PlatformId: platformId,
		Roles:      roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(expireHours) * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseToken parses and validates a JWT token
func ParseToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, errcode.ErrTokenExpired
		}
		return nil, errcode.ErrTokenInvalid.Wrap(err)
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid && claims.UserId != "" {
		return claims, nil
	}

	return nil, errcode.ErrTokenInvalid
}

// ValidateToken validates token and checks if userId and platformId match
func ValidateToken(tokenString, secret, expectedUserId string, expectedPlatformId int) (*Claims, error) {
	claims, err := ParseToken(tokenString, secret)
	if err != nil {
		return nil, err
	}

	if claims.UserId != expectedUserId {
		return nil, errcode.ErrTokenMismatch
	}

	if claims.PlatformId != expectedPlatformId {
		return nil, errcode.ErrTokenMismatch
	}

	return claims, nil
}
