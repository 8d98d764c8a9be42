package config

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecretRedaction(t *testing.T) {
	tests := []struct {
		name   string
		secret Secret
		want   string
	}{
		{name: "non-empty secret", secret: Secret("super-secret-password"), want: "***"},
		{name: "empty secret", secret: Secret(""), want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.secret.String())
			assert.Equal(t, "value: "+tt.want, fmt.Sprintf("value: %s", tt.secret))
			if tt.secret != "" {
				assert.NotContains(t, fmt.Sprintf("password: %v", tt.secret), string(tt.secret))
			}
		})
	}
}

func TestSecretJSONMarshal(t *testing.T) {
	cfg := SessionConfig{SecretKey: Secret("0123456789abcdef0123456789abcdef")}

	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "0123456789abcdef")
	assert.Contains(t, string(data), `"SecretKey":"***"`)
}

func TestSecretInStruct(t *testing.T) {
	az := AzureConfig{
		ClientID:     Secret("client-123"),
		ClientSecret: Secret("s3cr3t-value"),
		TenantID:     "tenant-1",
	}

	str := fmt.Sprintf("%+v", az)
	assert.NotContains(t, str, "client-123")
	assert.NotContains(t, str, "s3cr3t-value")
	assert.Contains(t, str, "tenant-1")
}
