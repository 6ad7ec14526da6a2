package app

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInTestModeFollowsEnvironment(t *testing.T) {
	cases := []struct {
		value string
		want  bool
	}{
		{value: "1", want: true},
		{value: "true", want: true},
		{value: "0", want: false},
		{value: "", want: false},
		{value: "sometimes", want: false},
	}
	for _, tc := range cases {
		t.Run(tc.value, func(t *testing.T) {
			t.Setenv("ACCESSD_TEST_MODE", tc.value)
			require.Equal(t, tc.want, RefreshTestMode())
			require.Equal(t, tc.want, InTestMode())
		})
	}
}
