package data

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePath(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"/", "/", true},
		{"/a", "/a", true},
		{"/a/b", "/a/b", true},
		{"/a/", "", false},
		{"", "", false},
		{"a", "", false},
		{"relative/path", "", false},
		{"/a//b", "", false},
		{"/a/./b", "", false},
		{"/a/../b", "", false},
		{"/a\\b", "", false},
	}
	for _, tc := range cases {
		got, err := NormalizePath(tc.in)
		if tc.ok {
			require.NoError(t, err, "input %q", tc.in)
			assert.Equal(t, tc.want, got, "input %q", tc.in)
		} else {
			assert.ErrorIs(t, err, ErrInvalidPath, "input %q", tc.in)
		}
	}
}

func TestParentPath(t *testing.T) {
	assert.Equal(t, "", ParentPath("/"))
	assert.Equal(t, "/", ParentPath("/a"))
	assert.Equal(t, "/a", ParentPath("/a/b"))
	assert.Equal(t, "/a/b", ParentPath("/a/b/c"))
}
