package textutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClean(t *testing.T) {
	require.Equal(t, "芝 2400m", Clean("  芝　２４００ｍ \n"))
	require.Equal(t, "a b", Clean("a\t\t b"))
	require.Equal(t, "", Clean(" 　 "))
}

func TestNormalizeName(t *testing.T) {
	require.Equal(t, "tokyoracecourse", NormalizeName(" Tokyo  Racecourse "))
	require.Equal(t, "東京", NormalizeName("東 京"))
	require.True(t, MatchName("Tokyo Racecourse", []string{"tokyo"}))
	require.False(t, MatchName("Kyoto", []string{"tokyo"}))
}

func TestFirstNumbers(t *testing.T) {
	v, ok := FirstInt("馬体重 ４８０(+2)")
	require.True(t, ok)
	require.Equal(t, 480, v)

	_, ok = FirstInt("--")
	require.False(t, ok)

	f, ok := FirstFloat("単勝 12.5倍")
	require.True(t, ok)
	require.InDelta(t, 12.5, f, 1e-9)
}

func TestParseSeconds(t *testing.T) {
	cases := []struct {
		input  string
		expect float64
		ok     bool
	}{
		{input: "52.3", expect: 52.3, ok: true},
		{input: "1:05.3", expect: 65.3, ok: true},
		{input: "2.24.1", expect: 144.1, ok: true},
		{input: "１２．２", expect: 12.2, ok: true},
		{input: "", ok: false},
		{input: "-", ok: false},
		{input: "abc", ok: false},
	}
	for _, test := range cases {
		v, ok := ParseSeconds(test.input)
		require.Equal(t, test.ok, ok, test.input)
		if test.ok {
			require.InDelta(t, test.expect, v, 1e-9, test.input)
		}
	}
}
