package application

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestSHA1Hasher_Deterministic(t *testing.T) {
	h := SHA1Hasher{}
	a, err := h.Hash("secret")
	require.NoError(t, err)
	b, err := h.Hash("secret")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, "e5e9fa1ba31ecd1ae84f75caaa474f3a663f05f4", a)
	assert.Len(t, a, 40)

	other, _ := h.Hash("secreT")
	assert.NotEqual(t, a, other)

	assert.True(t, h.Verify(a, "secret"))
	assert.False(t, h.Verify(a, "wrong"))
}

func TestBcryptHasher_SaltedAndVerifiable(t *testing.T) {
	h := BcryptHasher{Cost: bcrypt.MinCost}
	a, err := h.Hash("secret")
	require.NoError(t, err)
	b, err := h.Hash("secret")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "$2"))
	assert.True(t, h.Verify(a, "secret"))
	assert.True(t, h.Verify(b, "secret"))
	assert.False(t, h.Verify(a, "wrong"))
}

func TestNewHasher(t *testing.T) {
	h, err := NewHasher("")
	require.NoError(t, err)
	assert.Equal(t, HasherBcrypt, h.Name())

	h, err = NewHasher(" SHA1 ")
	require.NoError(t, err)
	assert.Equal(t, HasherSHA1, h.Name())

	_, err = NewHasher("md5")
	assert.Error(t, err)
}

func TestBcryptHasher_LongPasswords(t *testing.T) {
	h := BcryptHasher{Cost: bcrypt.MinCost}
	long := strings.Repeat("p", 100)

	digest, err := h.Hash(long)
	require.NoError(t, err)
	assert.True(t, h.Verify(digest, long))
	// bytes past 72 still count
	assert.False(t, h.Verify(digest, strings.Repeat("p", 99)+"q"))
}
