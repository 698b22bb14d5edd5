package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprint_Stability(t *testing.T) {
	base := Fingerprint("SELECT id FROM users WHERE name = 'Ada'")

	equivalent := []string{
		"select id from users where name = 'Ada'",
		"SELECT   id\nFROM users\n\tWHERE name = 'Ada'",
		"SELECT id FROM users -- lookup\nWHERE name = 'Ada'",
		"SELECT id /* by name */ FROM users WHERE name = 'Ada'",
		"  SELECT id FROM users WHERE name = 'Ada'  ",
	}
	for _, sql := range equivalent {
		assert.Equal(t, base, Fingerprint(sql), "query: %q", sql)
	}
}

func TestFingerprint_LiteralsAreSignificant(t *testing.T) {
	a := Fingerprint("SELECT id FROM users WHERE name = 'Ada'")
	b := Fingerprint("SELECT id FROM users WHERE name = 'ada'")
	c := Fingerprint("SELECT id FROM users WHERE name = 'Bob'")

	assert.NotEqual(t, a, b, "literal casing distinguishes queries")
	assert.NotEqual(t, a, c)
}

func TestFingerprint_DistinctQueries(t *testing.T) {
	a := Fingerprint("SELECT id FROM users")
	b := Fingerprint("SELECT id FROM accounts")
	c := Fingerprint("SELECT name FROM users")

	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		expected string
	}{
		{
			name:     "whitespace collapsed",
			in:       "SELECT  \n\t id   FROM t",
			expected: "select id from t",
		},
		{
			name:     "line comment dropped",
			in:       "SELECT id -- trailing\nFROM t",
			expected: "select id from t",
		},
		{
			name:     "block comment dropped",
			in:       "SELECT /* hint */ id FROM t",
			expected: "select id from t",
		},
		{
			name:     "string literal preserved",
			in:       "SELECT 'MiXeD  CaSe' FROM t",
			expected: "select 'MiXeD  CaSe' from t",
		},
		{
			name:     "escaped quote in literal",
			in:       "SELECT 'it''s' FROM t",
			expected: "select 'it''s' from t",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Normalize(tt.in))
		})
	}
}
