// SPDX-License-Identifier: MPL-2.0

package dist

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

var (
	// ErrChecksumMismatch indicates a downloaded archive's SHA256 digest
	// does not match the mirror's manifest.
	ErrChecksumMismatch = errors.New("checksum mismatch")

	// ErrChecksumMissing indicates the manifest has no entry for the
	// expected archive name.
	ErrChecksumMissing = errors.New("archive missing from checksum manifest")

	// errNoChecksumEntries indicates the manifest parsed to nothing usable.
	errNoChecksumEntries = errors.New("no valid checksum entries found")
)

// ChecksumError reports a verification failure with both digests so the
// user can tell a truncated download from a poisoned mirror.
type ChecksumError struct {
	Filename string
	Expected string
	Got      string
}

// Error implements the error interface.
func (e *ChecksumError) Error() string {
	return fmt.Sprintf("checksum verification failed for %s\nexpected: %s\ngot:      %s",
		e.Filename, e.Expected, e.Got)
}

// Unwrap returns ErrChecksumMismatch for errors.Is classification.
func (e *ChecksumError) Unwrap() error { return ErrChecksumMismatch }

// ParseChecksums parses a manifest in sha256sum output format: one
// "{sha256_hex}  {filename}" entry per line. Malformed lines are skipped;
// a manifest with no valid entries at all is an error.
func ParseChecksums(r io.Reader) (map[string]string, error) {
	sums := make(map[string]string)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		hash, filename, ok := strings.Cut(line, "  ")
		if !ok {
			continue
		}
		filename = strings.TrimSpace(filename)
		if filename == "" || !isHexHash(hash) {
			continue
		}
		sums[filename] = strings.ToLower(hash)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading checksum manifest: %w", err)
	}

	if len(sums) == 0 {
		return nil, errNoChecksumEntries
	}
	return sums, nil
}

// VerifyFile streams the file at path through SHA256 and compares the
// digest with expected (case-insensitive). A mismatch is a *ChecksumError.
func VerifyFile(path, expected string) error {
	got, err := hashFile(path)
	if err != nil {
		return err
	}
	if !strings.EqualFold(got, expected) {
		return &ChecksumError{
			Filename: path,
			Expected: strings.ToLower(expected),
			Got:      got,
		}
	}
	return nil
}

// hashFile returns the lowercase hex SHA256 digest of the file at path.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// isHexHash reports whether s is a 64-character hex SHA256 digest.
func isHexHash(s string) bool {
	if len(s) != 64 {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}
