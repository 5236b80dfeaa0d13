package common

import (
	"fmt"
	"strconv"
)

const (
	PrefixLength = 4
)

// RoleType defines the actor role on the marketplace
type RoleType string

const (
	RoleSeller RoleType = "seller"
	RoleBuyer  RoleType = "buyer"
	RoleAdmin  RoleType = "admin"
)

var rolePrefixes = map[RoleType]string{
	RoleSeller: "sl__",
	RoleBuyer:  "by__",
	RoleAdmin:  "ad__",
}

// Actor represents a dashboard identity that maps to a messaging user id.
type Actor struct {
	Id   int64
	Role RoleType
}

// ToUserId converts an Actor to the messaging user id.
//
//	Actor{Id: 42, Role: RoleSeller}.ToUserId() => "sl__42"
//	Actor{Id: 7, Role: RoleBuyer}.ToUserId()   => "by__7"
func (a *Actor) ToUserId() (string, error) {
	prefix, ok := rolePrefixes[a.Role]
	if !ok {
		return "", fmt.Errorf("failed to transfer actor to user id, role: %s", a.Role)
	}
	return prefix + strconv.FormatInt(a.Id, 10), nil
}

// FromUserId parses a messaging user id back into an Actor.
func (a *Actor) FromUserId(userId string) error {
	if a == nil {
		return fmt.Errorf("actor is nil")
	}
	if len(userId) < PrefixLength+1 {
		return fmt.Errorf("invalid userId: %q", userId)
	}
	prefix, idStr := userId[:PrefixLength], userId[PrefixLength:]

	var role RoleType
	for r, p := range rolePrefixes {
		if p == prefix {
			role = r
			break
		}
	}
	if role == "" {
		return fmt.Errorf("unknown prefix: %q", prefix)
	}

	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid id: %q", idStr)
	}
	a.Id = id
	a.Role = role
	return nil
}
