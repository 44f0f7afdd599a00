package fsutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOwner(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    *OwnerConfig
		wantErr bool
	}{
		{name: "empty", in: "", want: nil},
		{name: "valid", in: "1000:1001", want: &OwnerConfig{UID: 1000, GID: 1001}},
		{name: "missing gid", in: "1000", wantErr: true},
		{name: "too many parts", in: "1:2:3", wantErr: true},
		{name: "non numeric", in: "abc:1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseOwner(tt.in)
			if tt.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWriteAndReadJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "out.json")

	require.NoError(t, WriteJSON(path, map[string]int{"a": 1}, nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"a\": 1\n}\n", string(data))

	var got map[string]int
	require.NoError(t, ReadJSON(path, &got))
	assert.Equal(t, 1, got["a"])
}

func TestReadJSON_Missing(t *testing.T) {
	var v map[string]any

	err := ReadJSON(filepath.Join(t.TempDir(), "missing.json"), &v)
	require.Error(t, err)
	assert.True(t, os.IsNotExist(err))
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "checkout > cart > adds item", want: "checkout-cart-adds-item"},
		{in: "Login: shows error (invalid pw)", want: "login-shows-error-invalid-pw"},
		{in: "...", want: "unnamed"},
		{in: "", want: "unnamed"},
		{in: "a/b\\c", want: "a-b-c"},
		{in: "v1.2_test", want: "v1.2_test"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeName(tt.in))
		})
	}
}

func TestSanitizeName_Truncates(t *testing.T) {
	got := SanitizeName(strings.Repeat("a", 250))
	assert.Len(t, got, maxNameLength)
}
