package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{in: "Google Workspace", want: "google-workspace"},
		{in: "  google-workspace ", want: "google-workspace"},
		{in: "SLACK", want: "slack"},
		{in: "", want: ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, NormalizeName(tc.in), tc.in)
	}
}
