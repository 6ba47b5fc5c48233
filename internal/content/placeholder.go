// ABOUTME: Inline media placeholders: src="{{INLINE_n}}" bound to attachment storage paths
// ABOUTME: Strict resolution at write time, lenient re-resolution at read time

package content

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"

	"github.com/2389/chorale/internal/store"
)

// ErrUnresolvedPlaceholder is returned when content references an attachment
// index that the submission did not provide.
var ErrUnresolvedPlaceholder = errors.New("unresolved inline placeholder")

var placeholderRe = regexp.MustCompile(`src="\{\{INLINE_(\d+)\}\}"`)

// Placeholder returns the src value an editor writes for the i-th attachment.
func Placeholder(i int) string {
	return "{{INLINE_" + strconv.Itoa(i) + "}}"
}

// MaxPlaceholderIndex returns the largest placeholder index in html, or -1
// when there are none.
func MaxPlaceholderIndex(html string) int {
	maxIdx := -1
	for _, m := range placeholderRe.FindAllStringSubmatch(html, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			// too large to be an index into any submission
			return math.MaxInt
		}
		if n > maxIdx {
			maxIdx = n
		}
	}
	return maxIdx
}

// HasPlaceholders reports whether html contains any inline placeholder.
func HasPlaceholders(html string) bool {
	return placeholderRe.MatchString(html)
}

// CanonicalOrder returns the attachments sorted by ID. Placeholder indices
// refer to positions in this order.
func CanonicalOrder(atts []store.Attachment) []store.Attachment {
	sorted := make([]store.Attachment, len(atts))
	copy(sorted, atts)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	return sorted
}

// Resolve replaces every src="{{INLINE_i}}" with the storage path of the i-th
// attachment in canonical order. Any index without an attachment fails the
// whole resolution with ErrUnresolvedPlaceholder and html is not modified.
func Resolve(html string, atts []store.Attachment) (string, error) {
	if maxIdx := MaxPlaceholderIndex(html); maxIdx >= len(atts) {
		return "", fmt.Errorf("%w: index %d with %d attachments", ErrUnresolvedPlaceholder, maxIdx, len(atts))
	}
	return substitute(html, CanonicalOrder(atts)), nil
}

// ResolveLenient is Resolve for stored content. Placeholders with no matching
// attachment are left as they are.
func ResolveLenient(html string, atts []store.Attachment) string {
	if !HasPlaceholders(html) {
		return html
	}
	return substitute(html, CanonicalOrder(atts))
}

func substitute(html string, ordered []store.Attachment) string {
	return placeholderRe.ReplaceAllStringFunc(html, func(m string) string {
		sub := placeholderRe.FindStringSubmatch(m)
		i, err := strconv.Atoi(sub[1])
		if err != nil || i >= len(ordered) {
			return m
		}
		return `src="` + ordered[i].Filepath + `"`
	})
}
