package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestNewTokenHasher(t *testing.T) {
	tests := []struct {
		name    string
		cost    string
		want    int
		wantErr bool
	}{
		{name: "default", cost: "", want: 12},
		{name: "minimum", cost: "4", want: 4},
		{name: "too low", cost: "3", wantErr: true},
		{name: "too high", cost: "15", wantErr: true},
		{name: "not a number", cost: "twelve", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("BCRYPT_COST", tt.cost)
			h, err := NewTokenHasher()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, h.BcryptCost)
		})
	}
}

func TestTokenHasher_HashAndVerify(t *testing.T) {
	h := &TokenHasher{BcryptCost: bcrypt.MinCost}

	hash, err := h.Hash("invoker-secret")
	require.NoError(t, err)
	assert.NotEqual(t, "invoker-secret", hash)

	assert.True(t, VerifyToken("invoker-secret", hash))
	assert.False(t, VerifyToken("invoker-secret2", hash))
	assert.False(t, VerifyToken("", hash))
	assert.False(t, VerifyToken("invoker-secret", ""))

	_, err = h.Hash("")
	assert.Error(t, err)
}

func TestTokenHasher_HashesAreSalted(t *testing.T) {
	h := &TokenHasher{BcryptCost: bcrypt.MinCost}
	a, err := h.Hash("same")
	require.NoError(t, err)
	b, err := h.Hash("same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
