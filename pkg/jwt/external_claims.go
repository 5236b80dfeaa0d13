package jwt

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/mbeoliero/sellerchat/common"
	"github.com/mbeoliero/sellerchat/pkg/errcode"
)

// ExternalClaims represents claims minted by the dashboard's identity
// provider. The int user_id is mapped to a messaging user id via
// common.Actor.
type ExternalClaims struct {
	UserId int64  `json:"user_id"`
	Role   string `json:"role,omitempty"` // "seller", "buyer", "admin". Falls back to configured default.
	jwt.RegisteredClaims
}

// ParseExternalToken parses a dashboard token and converts it to Claims.
// The resolved role becomes the single entry of Claims.Roles.
func ParseExternalToken(tokenString, secret, defaultRole string, defaultPlatformId int) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ExternalClaims{}, func(token *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, errcode.ErrTokenInvalid.Wrap(err)
	}

	extClaims, ok := token.Claims.(*ExternalClaims)
	if !ok || !token.Valid {
		return nil, errcode.ErrTokenInvalid
	}

	role := extClaims.Role
	if role == "" {
		role = defaultRole
	}

	actor := common.Actor{Id: extClaims.UserId, Role: common.RoleType(role)}
	userId, err := actor.ToUserId()
	if err != nil {
		return nil, errcode.ErrTokenInvalid.Wrap(err)
	}

	return &Claims{
		UserId:           userId,
		PlatformId:       defaultPlatformId,
		Roles:            []string{role},
		RegisteredClaims: extClaims.RegisteredClaims,
	}, nil
}
