package auth_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/example/blogapi/internal/auth"
)

func TestBcryptHasher(t *testing.T) {
	h := auth.NewBcryptHasher(bcrypt.MinCost)

	t.Run("round trip", func(t *testing.T) {
		hash, err := h.Hash("s3cret!")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(hash, "$2a$"))
		assert.True(t, h.Verify("s3cret!", hash))
		assert.False(t, h.Verify("s3cret?", hash))
	})

	t.Run("same password gets a fresh salt", func(t *testing.T) {
		h1, err := h.Hash("samepassword")
		require.NoError(t, err)
		h2, err := h.Hash("samepassword")
		require.NoError(t, err)
		assert.NotEqual(t, h1, h2)
		assert.True(t, h.Verify("samepassword", h1))
		assert.True(t, h.Verify("samepassword", h2))
	})

	t.Run("malformed hash never matches", func(t *testing.T) {
		for _, bad := range []string{"", "not-a-hash", "$2a$04$short", "$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA"} {
			assert.False(t, h.Verify("password", bad), bad)
		}
	})
}

func TestNewBcryptHasherCost(t *testing.T) {
	assert.Equal(t, bcrypt.DefaultCost, auth.NewBcryptHasher(0).Cost())
	assert.Equal(t, bcrypt.MinCost, auth.NewBcryptHasher(1).Cost())
	assert.Equal(t, bcrypt.MaxCost, auth.NewBcryptHasher(99).Cost())
	assert.Equal(t, 12, auth.NewBcryptHasher(12).Cost())
}
