// Package cleaner normalizes raw post text before ingestion: whitespace
// collapsing, ASCII cleaning, feature extraction (hashtags, mentions, links)
// and content fingerprinting for exact-duplicate grouping.
package cleaner

import (
	"crypto/md5" //nolint:gosec // fingerprint for duplicate grouping, not security
	"encoding/hex"
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/araddon/dateparse"
)

var (
	hashtagRe = regexp.MustCompile(`#\w+`)
	mentionRe = regexp.MustCompile(`@\w+`)
	urlRe     = regexp.MustCompile(`https?://\S+`)
)

// ErrNoTimestamp indicates a message without a usable timestamp. Such
// messages are skipped by the merger; siblings in the batch proceed.
var ErrNoTimestamp = errors.New("missing or unparsable timestamp")

// Cleaned is the output of one normalization pass.
type Cleaned struct {
	TextRaw     string
	TextClean   string
	Fingerprint string
	Hashtags    []string
	Mentions    []string
	Links       []string
}

// Clean normalizes raw text and extracts its features.
func Clean(raw string) Cleaned {
	text := strings.Join(strings.Fields(raw), " ")

	mentions := mentionRe.FindAllString(text, -1)
	for i, m := range mentions {
		mentions[i] = strings.TrimPrefix(m, "@")
	}

	return Cleaned{
		TextRaw:     text,
		TextClean:   stripNonASCII(text),
		Fingerprint: Fingerprint(text),
		Hashtags:    hashtagRe.FindAllString(text, -1),
		Mentions:    mentions,
		Links:       urlRe.FindAllString(text, -1),
	}
}

// Fingerprint hashes the lowercased alphanumeric content of text. Posts that
// differ only in casing, punctuation, or spacing share a fingerprint.
func Fingerprint(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}

	sum := md5.Sum([]byte(b.String())) //nolint:gosec

	return hex.EncodeToString(sum[:])
}

// ParseTimestamp parses a post timestamp in any common layout. An empty or
// unparsable value returns ErrNoTimestamp.
func ParseTimestamp(value string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return time.Time{}, ErrNoTimestamp
	}

	ts, err := dateparse.ParseAny(value)
	if err != nil {
		return time.Time{}, ErrNoTimestamp
	}

	return ts, nil
}

func stripNonASCII(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	for _, r := range text {
		if r < unicode.MaxASCII {
			b.WriteRune(r)
		}
	}

	return strings.TrimSpace(b.String())
}
