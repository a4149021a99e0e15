package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"iter"
	"strings"
)

// DefaultChunkWords is the word-window size used when none is configured.
const DefaultChunkWords = 500

// Chunk splits text on whitespace into windows of at most size words. The
// windows cover every word exactly once, in order; only the last may be
// shorter. Words inside a window are joined by a single space. The
// sequence can be ranged over any number of times.
func Chunk(text string, size int) iter.Seq[string] {
	if size <= 0 {
		size = DefaultChunkWords
	}
	return func(yield func(string) bool) {
		words := strings.Fields(text)
		for start := 0; start < len(words); start += size {
			end := min(start+size, len(words))
			if !yield(strings.Join(words[start:end], " ")) {
				return
			}
		}
	}
}

// FragmentID returns the content address of a fragment: the hex SHA-256 of
// source, a NUL separator, and text with runs of whitespace collapsed.
// Identical (source, text) pairs map to the same ID across processes.
func FragmentID(source, text string) string {
	h := sha256.New()
	h.Write([]byte(source))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(strings.Fields(text), " ")))
	return hex.EncodeToString(h.Sum(nil))
}
