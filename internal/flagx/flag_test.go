package flagx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		allowed []string
		want    []string
	}{
		{
			name:    "separate value",
			args:    []string{"-d", "/srv/data", "-x", "ignored"},
			allowed: []string{"-d"},
			want:    []string{"-d", "/srv/data"},
		},
		{
			name:    "inline value",
			args:    []string{"--mode=required", "-other"},
			allowed: []string{"--mode"},
			want:    []string{"--mode=required"},
		},
		{
			name:    "flag followed by another flag keeps no value",
			args:    []string{"-d", "-m", "off"},
			allowed: []string{"-d", "-m"},
			want:    []string{"-d", "-m", "off"},
		},
		{
			name:    "nothing allowed",
			args:    []string{"-a", "b"},
			allowed: nil,
			want:    []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FilterArgs(tt.args, tt.allowed))
		})
	}
}
