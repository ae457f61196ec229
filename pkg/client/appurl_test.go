package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAppURL(t *testing.T) {
	cases := []struct {
		raw  string
		want Target
	}{
		{"eppc://host.local/Applications/Mail.app", Target{BaseURL: "http://host.local:8760/api", AppPath: "/Applications/Mail.app"}},
		{"eppc://ops:pw@host.local:9000/Applications/Mail.app", Target{BaseURL: "http://host.local:9000/api", AppPath: "/Applications/Mail.app", Username: "ops", Password: "pw"}},
		{"https://host:8443/api/?app=/Applications/Mail.app", Target{BaseURL: "https://host:8443/api", AppPath: "/Applications/Mail.app"}},
	}
	for _, tc := range cases {
		got, err := ParseAppURL(tc.raw)
		require.NoError(t, err, tc.raw)
		assert.Equal(t, tc.want, got, tc.raw)
	}
}

func TestParseAppURL_Errors(t *testing.T) {
	for _, raw := range []string{
		"eppc:///Applications/Mail.app",
		"ftp://host/Applications/Mail.app",
		"http://host:1/api",
		"http://host:1/api?app=relative/Mail.app",
		"://bad",
	} {
		_, err := ParseAppURL(raw)
		assert.Error(t, err, raw)
	}
}

func TestParseAppURL_RedactsPassword(t *testing.T) {
	_, err := ParseAppURL("ftp://ops:hunter2@/x")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "hunter2")
}
