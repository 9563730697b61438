package crypto_test

import (
	"encoding/base64"
	"fmt"
	"quizlive/crypto"
	"quizlive/domain"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "a signing key long enough for hs256 tests"

func TestGenerate(t *testing.T) {
	manager := crypto.NewJWTManager(testKey, time.Hour)
	now := time.Now()

	token, err := manager.Generate("user-1", now)
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)

	head, _ := base64.RawURLEncoding.DecodeString(parts[0])
	body, _ := base64.RawURLEncoding.DecodeString(parts[1])
	signature, _ := base64.RawURLEncoding.DecodeString(parts[2])

	assert.JSONEq(t, `{"alg": "HS256","typ": "JWT"}`, string(head))
	assert.JSONEq(t, fmt.Sprintf(`{"id": "user-1","iat": %d,"exp": %d}`, now.Unix(), now.Add(time.Hour).Unix()), string(body))
	assert.Len(t, signature, 256/8)
}

func TestVerify(t *testing.T) {
	manager := crypto.NewJWTManager(testKey, 2*time.Hour)
	now := time.Now()

	testCases := []struct {
		name        string
		token       func() string
		expectedId  string
		expectedErr error
	}{
		{
			name: "valid token",
			token: func() string {
				tok, _ := manager.Generate("user-1", now.Add(-time.Hour))
				return tok
			},
			expectedId: "user-1",
		},
		{
			name: "expired token",
			token: func() string {
				tok, _ := manager.Generate("user-1", now.Add(-3*time.Hour))
				return tok
			},
			expectedErr: domain.ErrExpiredToken,
		},
		{
			name: "tampered signature",
			token: func() string {
				tok, _ := manager.Generate("user-1", now)
				return tok + "x"
			},
			expectedErr: domain.ErrInvalidTokenSignature,
		},
		{
			name: "foreign key",
			token: func() string {
				tok, _ := crypto.NewJWTManager("another key entirely", time.Hour).Generate("user-1", now)
				return tok
			},
			expectedErr: domain.ErrInvalidTokenSignature,
		},
		{
			name: "none algorithm",
			token: func() string {
				tok, _ := manager.Generate("user-1", now)
				parts := strings.Split(tok, ".")
				return "eyJhbGciOiJub25lIiwidHlwIjoiSldUIn0." + parts[1] + "."
			},
			expectedErr: domain.ErrInvalidSigningAlg,
		},
		{
			name:        "garbage",
			token:       func() string { return "not-a-token" },
			expectedErr: domain.ErrCorruptedToken,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			id, err := manager.Verify(tc.token())
			if tc.expectedErr != nil {
				assert.ErrorIs(t, err, tc.expectedErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expectedId, id)
		})
	}
}
