package payee

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeVariantsShareKey(t *testing.T) {
	t.Parallel()

	variants := []string{
		"Starbucks Inc.",
		"THE STARBUCKS",
		"starbucks",
		"Starbucks, LLC",
		"  Starbucks  ",
	}
	for _, v := range variants {
		require.Equal(t, "starbucks", Normalize(v), "input %q", v)
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"DAN MURPHY'S/580 MELBOURN", "dan murphy s 580 melbourn"},
		{"The Home Depot Corp", "home depot"},
		{"A1 Towing Co", "a1 towing"},
		{"An Apple A Day Ltd.", "apple a day"},
		{"AMZN Mktp US*1234", "amzn mktp us 1234"},
		{"Co", "co"},
		{"", ""},
		{"!!!", ""},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, Normalize(tc.in), "input %q", tc.in)
	}
}
