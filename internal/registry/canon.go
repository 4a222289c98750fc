// Package registry implements the series-name registry (spec.md §4.4):
// canonicalization of "metric tag=value …" names, a bidirectional
// name<->id table, and per-session local caches. Grounded on
// storage/tables_catalog.go's RWMutex-guarded global map idiom.
package registry

import (
	"fmt"
	"sort"

	"github.com/launix-de/chronostore/internal/errs"
)

const (
	maxNameLen = 4096
	maxTags    = 32
)

// Canonical is the result of to_normal_form: the full canonical string plus
// pointers to the metric and tag-block pieces, so the registry can persist
// {series_id, metric, tag_block} tuples without re-parsing (spec.md §4.4
// step 4: "record pointers to the start and end of the key block").
type Canonical struct {
	Name     string // full canonical form
	Metric   string
	TagBlock string // joined, sorted "k=v" tokens, single-space separated; "" if no tags
}

// Canonicalize implements to_normal_form (spec.md §4.4): extract the
// metric, parse up to 32 "key=value" tag tokens, sort them lexicographically
// by the full "key=value" byte string (with '=' sorting before any other
// byte so "k=v" < "kk=v"), and re-join with single spaces, no trailing
// whitespace.
func Canonicalize(name string) (Canonical, error) {
	i := 0
	n := len(name)
	for i < n && isSpace(name[i]) {
		i++
	}
	start := i
	for i < n && !isSpace(name[i]) {
		i++
	}
	if start == i {
		return Canonical{}, fmt.Errorf("series name has no metric: %w", errs.BadData)
	}
	metric := name[start:i]

	var tags []string
	for {
		for i < n && isSpace(name[i]) {
			i++
		}
		if i >= n {
			break
		}
		tokStart := i
		for i < n && !isSpace(name[i]) {
			i++
		}
		tok := name[tokStart:i]
		eq := indexByte(tok, '=')
		if eq <= 0 || eq == len(tok)-1 {
			return Canonical{}, fmt.Errorf("malformed tag token %q: %w", tok, errs.BadData)
		}
		tags = append(tags, tok)
		if len(tags) > maxTags {
			return Canonical{}, fmt.Errorf("too many tags (max %d): %w", maxTags, errs.BadData)
		}
	}

	sort.Slice(tags, func(a, b int) bool { return lessTag(tags[a], tags[b]) })

	total := len(metric)
	for _, t := range tags {
		total += 1 + len(t)
	}
	if total > maxNameLen {
		return Canonical{}, fmt.Errorf("canonical name exceeds %d bytes: %w", maxNameLen, errs.BadData)
	}

	tagBlock := make([]byte, 0, total-len(metric))
	for i, t := range tags {
		if i > 0 {
			tagBlock = append(tagBlock, ' ')
		}
		tagBlock = append(tagBlock, t...)
	}

	buf := make([]byte, 0, total)
	buf = append(buf, metric...)
	for _, t := range tags {
		buf = append(buf, ' ')
		buf = append(buf, t...)
	}
	return Canonical{Name: string(buf), Metric: metric, TagBlock: string(tagBlock)}, nil
}

// lessTag compares two "key=value" tokens byte-by-byte, treating '=' as
// less than every other byte so that e.g. "k=v" sorts before "kk=v".
func lessTag(a, b string) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		ca, cb := tagByteRank(a[i]), tagByteRank(b[i])
		if ca != cb {
			return ca < cb
		}
	}
	return len(a) < len(b)
}

// tagByteRank maps '=' below every other byte value, otherwise preserves
// natural byte ordering.
func tagByteRank(c byte) int {
	if c == '=' {
		return -1
	}
	return int(c)
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func indexByte(s string, c byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == c {
			return i
		}
	}
	return -1
}
