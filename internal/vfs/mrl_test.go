package vfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMrlRoundTrip(t *testing.T) {
	m, err := ParseMrl("file:///home/user/My%20Movies/film.mkv")
	require.NoError(t, err)
	assert.Equal(t, "file", m.Scheme)
	assert.Equal(t, "/home/user/My Movies/film.mkv", m.Path)
	assert.Equal(t, "file:///home/user/My%20Movies/film.mkv", m.String())
}

func TestParseMrlSmbAuthority(t *testing.T) {
	m, err := ParseMrl("smb://fileserver/share/Movies/film.mkv")
	require.NoError(t, err)
	assert.Equal(t, "smb", m.Scheme)
	assert.Equal(t, "fileserver", m.Authority)
	assert.Equal(t, "/share/Movies/film.mkv", m.Path)
}

func TestParseMrlInvalid(t *testing.T) {
	_, err := ParseMrl("not-a-valid-mrl")
	require.Error(t, err)
}
