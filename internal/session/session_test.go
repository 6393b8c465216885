package session

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_IssueParse(t *testing.T) {
	m, err := NewManager("secret", time.Hour)
	require.NoError(t, err)

	for _, mode := range []Mode{ModeFull, ModeViewOnly} {
		t.Run(string(mode), func(t *testing.T) {
			token, err := m.Issue(mode)
			require.NoError(t, err)

			claims, err := m.Parse(token)
			require.NoError(t, err)
			assert.Equal(t, mode, claims.Mode)
			assert.NotEmpty(t, claims.ID)
		})
	}
}

func TestManager_Rejects(t *testing.T) {
	m, err := NewManager("secret", time.Hour)
	require.NoError(t, err)

	t.Run("unknown mode on issue", func(t *testing.T) {
		_, err := m.Issue("admin")
		assert.Error(t, err)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := m.Parse("not-a-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("other secret", func(t *testing.T) {
		other, _ := NewManager("another", time.Hour)
		token, err := other.Issue(ModeFull)
		require.NoError(t, err)

		_, err = m.Parse(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		token, err := m.Issue(ModeFull)
		require.NoError(t, err)

		later := *m
		later.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		_, err = later.Parse(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("none algorithm", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
			Mode: ModeFull,
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    issuer,
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		})
		raw, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = m.Parse(raw)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("empty secret", func(t *testing.T) {
		_, err := NewManager("", time.Hour)
		assert.ErrorIs(t, err, ErrEmptySecret)
	})
}
