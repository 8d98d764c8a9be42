package envutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsDevelopment(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"development", true},
		{"DEV", true},
		{" dev ", true},
		{"production", false},
		{"staging", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			assert.Equal(t, tt.want, IsDevelopment(tt.value))
		})
	}
}
