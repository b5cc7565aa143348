package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfirm(t *testing.T) {
	cases := map[string]bool{"y\n": true, "YES\n": true, "n\n": false, "\n": false, "": false, "maybe\n": false}
	for in, want := range cases {
		var out bytes.Buffer
		ok, err := newPrompter(strings.NewReader(in), &out).Confirm("Deploy?")
		require.NoError(t, err)
		assert.Equal(t, want, ok, "input %q", in)
		assert.Contains(t, out.String(), "Deploy? [y/N]")
	}
}

func TestReadValueDefaults(t *testing.T) {
	var out bytes.Buffer
	p := newPrompter(strings.NewReader("\nblog.example.org\nabc\n7\n"), &out)
	assert.Equal(t, "root", p.readValue("SSH user", "root"))
	assert.Equal(t, "blog.example.org", p.readValue("Host", ""))
	assert.Equal(t, 7, p.readInt("Port", 22))
	assert.Contains(t, out.String(), `not a number: "abc"`)
	assert.Equal(t, 22, p.readInt("Port", 22), "exhausted input keeps the default")
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"*.log", ".git"}, splitList(" *.log, ,.git "))
	assert.Nil(t, splitList(""))
}
