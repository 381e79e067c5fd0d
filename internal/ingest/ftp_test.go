package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFTPURL(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		wantHost string
		wantPath string
		wantErr  bool
	}{
		{"default port", "ftp://exports.example.org/daily/export.csv", "exports.example.org:21", "/daily/export.csv", false},
		{"explicit port", "ftp://exports.example.org:2121/export.csv", "exports.example.org:2121", "/export.csv", false},
		{"wrong scheme", "https://example.org/export.csv", "", "", true},
		{"no path", "ftp://example.org", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, path, err := parseFTPURL(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantHost, host)
			assert.Equal(t, tt.wantPath, path)
		})
	}
}

func TestNewFTPFetcherDefaults(t *testing.T) {
	f := NewFTPFetcher(FTPOptions{})
	assert.Equal(t, "anonymous", f.opts.User)
	assert.Equal(t, "anonymous@", f.opts.Password)
	assert.NotZero(t, f.opts.Timeout)

	named := NewFTPFetcher(FTPOptions{User: "exports", Password: "secret"})
	assert.Equal(t, "exports", named.opts.User)
	assert.Equal(t, "secret", named.opts.Password)
}
