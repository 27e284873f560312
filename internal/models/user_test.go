package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	cases := []struct {
		in   string
		want Status
	}{
		{"online", StatusOnline},
		{"AWAY", StatusAway},
		{" Busy ", StatusBusy},
		{"offline", StatusOffline},
	}
	for _, tc := range cases {
		got, err := ParseStatus(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got)
	}
}

func TestParseStatusRejectsUnknownValues(t *testing.T) {
	for _, in := range []string{"", "sleeping", "on line"} {
		_, err := ParseStatus(in)
		assert.Error(t, err, in)
	}
}
