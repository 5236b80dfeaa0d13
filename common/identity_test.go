package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActorRoundTrip(t *testing.T) {
	for _, a := range []Actor{{Id: 42, Role: RoleSeller}, {Id: 7, Role: RoleBuyer}, {Id: 1, Role: RoleAdmin}} {
		userId, err := a.ToUserId()
		require.NoError(t, err)

		var back Actor
		require.NoError(t, back.FromUserId(userId))
		assert.Equal(t, a, back)
	}

	seller := Actor{Id: 42, Role: RoleSeller}
	userId, _ := seller.ToUserId()
	assert.Equal(t, "sl__42", userId)
}

func TestActorRejectsUnknown(t *testing.T) {
	_, err := (&Actor{Id: 1, Role: "guest"}).ToUserId()
	assert.Error(t, err)

	var a Actor
	assert.Error(t, a.FromUserId("xx__1"))
	assert.Error(t, a.FromUserId("sl__"))
	assert.Error(t, a.FromUserId("sl__abc"))
}
