// Package digest provides the content-hashing and identifier primitives
// shared by every subsystem: SHA-256 content digests, canonical path
// normalization, and deterministic node/edge identifiers for the
// knowledge graph.
package digest

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// DefaultStreamThreshold is the file size above which Content streams the
// file in bounded chunks instead of buffering it whole.
const DefaultStreamThreshold = 8 << 20 // 8 MiB

// chunkSize is the read buffer size used once a file exceeds the streaming
// threshold.
const chunkSize = 1 << 20 // 1 MiB

// Bytes returns the 64-character hex-encoded SHA-256 digest of b.
func Bytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// File computes the SHA-256 digest of the file at path. Files at or below
// threshold bytes are read whole; larger files are streamed in bounded
// chunks so memory use stays flat regardless of file size. A threshold of
// zero selects DefaultStreamThreshold.
func File(path string, threshold int64) (string, error) {
	if threshold <= 0 {
		threshold = DefaultStreamThreshold
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if info.Size() <= threshold {
		if _, err := io.Copy(h, f); err != nil {
			return "", err
		}
		return hex.EncodeToString(h.Sum(nil)), nil
	}

	r := bufio.NewReaderSize(f, chunkSize)
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Canonicalize produces the canonical path for a file relative to root:
// forward-slash separated, Unicode NFC normalized, relative to root. Drive
// letters (Windows) are lowercased; the rest of the path is left as-is.
func Canonicalize(path, root string) (string, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", err
	}

	rel = filepath.ToSlash(rel)
	rel = normalizeNFC(rel)

	if len(rel) >= 2 && rel[1] == ':' {
		rel = strings.ToLower(rel[:1]) + rel[1:]
	}

	return rel, nil
}

// normalizeNFC applies Unicode NFC normalization, returning the input
// unchanged if it is not valid UTF-8.
func normalizeNFC(s string) string {
	if !utf8.ValidString(s) {
		return s
	}
	return norm.NFC.String(s)
}

// separator is the field separator used when hashing the components of a
// node or edge identifier. 0x1F (unit separator) cannot appear in any of
// the inputs we hash, so concatenation is unambiguous.
const separator = "\x1f"

// NodeID derives a stable 16-hex-character node identifier from a kind and
// scope path. The same (kind, scopePath) pair always yields the same ID,
// across runs and across machines.
func NodeID(kind, scopePath string) string {
	sum := sha256.Sum256([]byte(kind + separator + scopePath))
	return hex.EncodeToString(sum[:])[:16]
}

// EdgeID derives a stable 16-hex-character edge identifier from its
// endpoints and kind.
func EdgeID(sourceID, kind, targetID string) string {
	sum := sha256.Sum256([]byte(sourceID + separator + kind + separator + targetID))
	return hex.EncodeToString(sum[:])[:16]
}
