package service_test

import (
	"testing"

	"github.com/ComplyOps/Gatherer/internal/service"

	"github.com/stretchr/testify/require"
)

func TestParseCron(t *testing.T) {
	t.Parallel()

	cases := []struct {
		scenario string
		expr     string
		ok       bool
	}{
		{"every five minutes", "*/5 * * * *", true},
		{"nightly", "0 2 * * *", true},
		{"weekday mornings", "30 8 * * 1-5", true},
		{"hourly macro", "@hourly", true},
		{"every interval macro", "@every 1h30m", true},
		{"empty", "", false},
		{"whitespace only", "   ", false},
		{"six fields", "0 0 2 * * *", false},
		{"unknown macro", "@fortnightly", false},
		{"garbage", "whenever", false},
	}

	for _, tc := range cases {
		t.Run(tc.scenario, func(t *testing.T) {
			err := service.ParseCron(tc.expr)
			if tc.ok {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
			}
		})
	}
}
