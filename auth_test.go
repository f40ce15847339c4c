package main

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBearerToken(t *testing.T) {
	cases := map[string]struct {
		header string
		token  string
		ok     bool
	}{
		"missing":      {"", "", false},
		"bearer":       {"Bearer abc.def.ghi", "abc.def.ghi", true},
		"case":         {"BEARER abc", "abc", true},
		"extra spaces": {"  Bearer   abc  ", "abc", true},
		"basic":        {"Basic dXNlcjpwdw==", "", false},
		"no token":     {"Bearer ", "", false},
		"no separator": {"Bearerabc", "", false},
		"token only":   {"abc.def.ghi", "", false},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			if tc.header != "" {
				r.Header.Set("Authorization", tc.header)
			}
			token, ok := bearerToken(r)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.token, token)
		})
	}
}
