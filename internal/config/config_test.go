package config

import (
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	secret := strings.Repeat("k", MinSessionSecretLen)

	tests := []struct {
		name    string
		session SessionConfig
		wantErr bool
	}{
		{"valid", SessionConfig{Secret: secret, MaxAge: 86400}, false},
		{"empty secret", SessionConfig{MaxAge: 86400}, true},
		{"short secret", SessionConfig{Secret: "short", MaxAge: 86400}, true},
		{"zero max age", SessionConfig{Secret: secret}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := (&Config{Session: tt.session}).Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDefaults_RequireSecret(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	require.NoError(t, v.Unmarshal(&cfg))
	assert.Equal(t, 86400, cfg.Session.MaxAge)
	assert.Error(t, cfg.Validate(), "no default secret is shipped")
}
