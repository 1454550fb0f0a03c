package utils

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"hash"
	"io"
	"os"

	"golang.org/x/xerrors"
)

// digest algorithms recognized by their hex fingerprint length
var hashAlgorithms = []struct {
	name string
	new  func() hash.Hash
}{
	{"md5", md5.New},
	{"sha1", sha1.New},
	{"sha224", sha256.New224},
	{"sha256", sha256.New},
	{"sha384", sha512.New384},
	{"sha512", sha512.New},
}

// HashAlgorithm returns the name and constructor of the hashing algorithm
// matching the length of the given hex fingerprint. The second return value
// is false for fingerprints of unsupported length.
func HashAlgorithm(fingerprint string) (string, func() hash.Hash, bool) {
	if len(fingerprint)%2 == 1 {
		return "", nil, false
	}
	numBytes := len(fingerprint) / 2
	for _, algo := range hashAlgorithms {
		if algo.new().Size() == numBytes {
			return algo.name, algo.new, true
		}
	}
	return "", nil, false
}

// FileFingerprint computes the hex digest of the file at fpath with the given
// hashing algorithm.
func FileFingerprint(fpath string, newHash func() hash.Hash) (string, error) {
	f, err := os.Open(fpath)
	if err != nil {
		return "", xerrors.Errorf("unable to open %s: %w", fpath, err)
	}
	defer f.Close()

	h := newHash()
	if _, err := io.Copy(h, f); err != nil {
		return "", xerrors.Errorf("failed to hash %s: %w", fpath, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
