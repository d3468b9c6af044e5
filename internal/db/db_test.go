package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeDSN(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			"bare url gets sslmode",
			"postgres://user@localhost:5432/app",
			"postgres://user@localhost:5432/app?sslmode=disable",
		},
		{
			"existing query string joined with ampersand",
			"postgres://user@localhost:5432/app?application_name=x",
			"postgres://user@localhost:5432/app?application_name=x&sslmode=disable",
		},
		{
			"explicit sslmode untouched",
			"postgres://user@localhost:5432/app?sslmode=require",
			"postgres://user@localhost:5432/app?sslmode=require",
		},
		{
			"sslmode alongside other params untouched",
			"postgres://user@localhost:5432/app?application_name=x&sslmode=verify-full",
			"postgres://user@localhost:5432/app?application_name=x&sslmode=verify-full",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, normalizeDSN(tc.in))
		})
	}
}
