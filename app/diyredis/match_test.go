package diyredis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGlobMatch(t *testing.T) {
	cases := []struct {
		pattern, name string
		want          bool
	}{
		{"*", "anything", true},
		{"*", "", true},
		{"foo*", "foobar", true},
		{"foo*", "fo", false},
		{"f?o", "foo", true},
		{"f?o", "fooo", false},
		{"h[ae]llo", "hello", true},
		{"h[ae]llo", "hallo", true},
		{"h[ae]llo", "hillo", false},
		{"h[^ae]llo", "hillo", true},
		{"h[^ae]llo", "hello", false},
		{"h[a-c]t", "hbt", true},
		{"h[a-c]t", "hzt", false},
		{"exact", "exact", true},
		{"exact", "exactish", false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, globMatch(c.pattern, c.name), "pattern=%q name=%q", c.pattern, c.name)
	}
}
