package dbpool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClamp(t *testing.T) {
	cases := []struct {
		in, want Limits
	}{
		{Limits{MinConns: 1, MaxConns: 4}, Limits{MinConns: 1, MaxConns: 4}},
		{Limits{MinConns: -1, MaxConns: 4}, Limits{MinConns: defaultMinConns, MaxConns: 4}},
		{Limits{MinConns: 2, MaxConns: 0}, Limits{MinConns: 2, MaxConns: defaultMaxConns}},
		{Limits{MinConns: 9, MaxConns: 3}, Limits{MinConns: 3, MaxConns: 3}},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, clamp(tc.in))
	}
}

func TestLimitsFromEnv(t *testing.T) {
	t.Setenv("DB_MIN_CONNS", "6")
	t.Setenv("DB_MAX_CONNS", "2")
	assert.Equal(t, Limits{MinConns: 2, MaxConns: 2}, LimitsFromEnv())
}

func TestNew_RejectsBadURL(t *testing.T) {
	_, err := New(context.Background(), "::not a url::", Limits{})
	assert.Error(t, err)
}
