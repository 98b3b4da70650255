package password

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashAndVerify(t *testing.T) {
	defer SetCost(SetCost(bcrypt.MinCost))

	hash, err := Hash("correct horse")
	require.NoError(t, err)

	assert.True(t, Verify("correct horse", hash))
	assert.False(t, Verify("wrong horse", hash))
}

func TestHashToken(t *testing.T) {
	a := HashToken("abc")
	assert.Len(t, a, 64)
	assert.Equal(t, a, HashToken("abc"))
	assert.NotEqual(t, a, HashToken("abd"))
}

func TestValidatePassword(t *testing.T) {
	assert.False(t, ValidatePassword("short"))
	assert.True(t, ValidatePassword("eightchr"))
}

func TestRandom(t *testing.T) {
	a, b := Random(), Random()
	assert.Len(t, a, 16)
	assert.NotEqual(t, a, b)
	assert.True(t, ValidatePassword(a))
}
