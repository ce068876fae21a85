package security

import (
	"strings"
	"testing"

	"github.com/keenchase/auth-center/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPasswordConfig() config.PasswordConfig {
	return config.PasswordConfig{
		ArgonMemoryKB:    8,
		ArgonTime:        1,
		ArgonParallelism: 1,
		ArgonSaltLen:     16,
		ArgonKeyLen:      32,
	}
}

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("correct horse 1", testPasswordConfig())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$"))

	ok, err := VerifyPassword("correct horse 1", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyPassword("wrong horse 1", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashPasswordUniqueSalts(t *testing.T) {
	cfg := testPasswordConfig()
	first, err := HashPassword("samepassword1", cfg)
	require.NoError(t, err)
	second, err := HashPassword("samepassword1", cfg)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestHashPasswordEmpty(t *testing.T) {
	_, err := HashPassword("", testPasswordConfig())
	assert.Error(t, err)
}

func TestVerifyPasswordMalformedHash(t *testing.T) {
	for _, encoded := range []string{
		"",
		"plaintext",
		"$argon2i$v=19$m=8,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=8,t=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=8,t=1,p=0$c2FsdA$aGFzaA",
		"$argon2id$v=19$t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=8,t=1,p=1$!!!$aGFzaA",
	} {
		_, err := VerifyPassword("whatever1", encoded)
		assert.ErrorIs(t, err, ErrInvalidHash, "encoded=%q", encoded)
	}
}

func TestCheckPasswordStrength(t *testing.T) {
	cases := []struct {
		password string
		ok       bool
	}{
		{"abc12345", true},
		{"A1bcdefg", true},
		{"1234abcd", true},
		{"short1a", false},
		{"12345678", false},
		{"abcdefgh", false},
		{"", false},
	}
	for _, tc := range cases {
		err := CheckPasswordStrength(tc.password)
		if tc.ok {
			assert.NoError(t, err, "password=%q", tc.password)
		} else {
			assert.ErrorIs(t, err, ErrWeakPassword, "password=%q", tc.password)
		}
	}
}

func TestValidPhoneNumber(t *testing.T) {
	assert.True(t, ValidPhoneNumber("13800138000"))
	assert.True(t, ValidPhoneNumber("19912345678"))

	assert.False(t, ValidPhoneNumber("12800138000"))
	assert.False(t, ValidPhoneNumber("1380013800"))
	assert.False(t, ValidPhoneNumber("138001380001"))
	assert.False(t, ValidPhoneNumber("23800138000"))
	assert.False(t, ValidPhoneNumber("1380013800a"))
	assert.False(t, ValidPhoneNumber(""))
}
