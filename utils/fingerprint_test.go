package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAlgorithm(t *testing.T) {
	testCases := []struct {
		name         string
		fingerprint  string
		expectedName string
		expectedOK   bool
	}{
		{
			name:         "md5",
			fingerprint:  "d41d8cd98f00b204e9800998ecf8427e",
			expectedName: "md5",
			expectedOK:   true,
		},
		{
			name:         "sha1",
			fingerprint:  "da39a3ee5e6b4b0d3255bfef95601890afd80709",
			expectedName: "sha1",
			expectedOK:   true,
		},
		{
			name:         "sha256",
			fingerprint:  "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
			expectedName: "sha256",
			expectedOK:   true,
		},
		{
			name:         "sha512",
			fingerprint:  "cf83e1357eefb8bdf1542850d66d8007d620e4050b5715dc83f4a921d36ce9ce47d0d13c5d85f2b0ff8318d2877eec2f63b931bd47417a81a538327af927da3e",
			expectedName: "sha512",
			expectedOK:   true,
		},
		{
			name:        "odd length",
			fingerprint: "abc",
			expectedOK:  false,
		},
		{
			name:        "unsupported length",
			fingerprint: "abcd",
			expectedOK:  false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			name, newHash, ok := HashAlgorithm(tc.fingerprint)
			assert.Equal(t, tc.expectedOK, ok)
			if tc.expectedOK {
				assert.Equal(t, tc.expectedName, name)
				assert.NotNil(t, newHash)
			}
		})
	}
}

func TestFileFingerprint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "content.xml")
	require.NoError(t, os.WriteFile(path, []byte("hello\n"), 0644))

	_, newHash, ok := HashAlgorithm("5891b5b522d5df086d0ff0b110fbd9d21bb4fc7163af34d08286a2e846f6be03")
	require.True(t, ok)

	digest, err := FileFingerprint(path, newHash)
	require.NoError(t, err)
	assert.Equal(t, "5891b5b522d5df086d0ff0b110fbd9d21bb4fc7163af34d08286a2e846f6be03", digest)
}

func TestFileFingerprintMissingFile(t *testing.T) {
	_, newHash, ok := HashAlgorithm("d41d8cd98f00b204e9800998ecf8427e")
	require.True(t, ok)

	_, err := FileFingerprint(filepath.Join(t.TempDir(), "no-such-file"), newHash)
	assert.Error(t, err)
}
