// Package analysis turns URIs into the canonical strings and sub-tokens the
// search index matches on.
//
// The chain has three stages, applied in order:
//
//	strip_scheme (char filter) -> path_url, rstrip_slash (filters) -> uri_part (tokenizer)
//
// Every stage is a pure function over strings and never fails. The patterns
// below are also published through Settings, so changing any of them changes
// how already indexed documents match.
package analysis

import (
	"net/url"
	"regexp"
	"strings"
)

const (
	// StripSchemePattern matches a leading "<scheme>:" or "<scheme>://".
	//
	// A host with a port and no scheme ("localhost:5000") also matches and
	// loses its host. The input is ambiguous and is left that way on purpose:
	// tightening the pattern would re-tokenize unrelated indexed URIs.
	StripSchemePattern     = `^[A-Za-z0-9+.\-]+:(?://)?`
	StripSchemeReplacement = ""

	// PathURLPattern captures the authority and path, dropping query and fragment.
	PathURLPattern = `^([^?#]*)`

	// RstripSlashPattern lets "." cross newlines so embedded line breaks
	// still lose their trailing slash.
	RstripSlashPattern     = `(?s)^(.+)/$`
	RstripSlashReplacement = "$1"

	// URIPartPattern is the uri_part tokenizer's delimiter set.
	URIPartPattern = `[:/?#\[\]@!$&'()*+,;=.\t\n\r\f\v ]`
)

// DefaultDecodeDepth bounds how many levels of percent-encoded URIs nested in
// tokens are unpacked.
const DefaultDecodeDepth = 5

var (
	stripSchemeRe = regexp.MustCompile(StripSchemePattern)
	pathURLRes    = []*regexp.Regexp{regexp.MustCompile(PathURLPattern)}
	rstripSlashRe = regexp.MustCompile(RstripSlashPattern)
	uriPartRe     = regexp.MustCompile(URIPartPattern)
)

// StripScheme removes a leading URI scheme and its delimiter.
func StripScheme(uri string) string {
	return stripSchemeRe.ReplaceAllString(uri, StripSchemeReplacement)
}

// PathURL returns the capture groups of every path_url pattern that matches.
func PathURL(uri string) []string {
	var captures []string
	for _, re := range pathURLRes {
		m := re.FindStringSubmatch(uri)
		if m == nil {
			continue
		}
		captures = append(captures, m[1:]...)
	}
	return captures
}

// RstripSlash removes one trailing slash if something precedes it.
func RstripSlash(s string) string {
	return rstripSlashRe.ReplaceAllString(s, RstripSlashReplacement)
}

// Tokenize splits uri with the default decode depth.
func Tokenize(uri string) []string {
	return tokenize(uri, 0, DefaultDecodeDepth)
}

func tokenize(uri string, depth, maxDepth int) []string {
	parts := uriPartRe.Split(uri, -1)
	tokens := make([]string, 0, len(parts))
	for _, part := range parts {
		if nested, levels := decodeNested(part, depth, maxDepth); levels > 0 {
			tokens = append(tokens, tokenize(nested, depth+levels, maxDepth)...)
			continue
		}
		tokens = append(tokens, part)
	}
	return tokens
}

// decodeNested percent-decodes token until it shows URI structure, spending
// one level of depth per decode. It returns the number of levels used, or 0
// when the token should be kept as is.
func decodeNested(token string, depth, maxDepth int) (string, int) {
	current := token
	for levels := 1; depth+levels <= maxDepth; levels++ {
		if !strings.Contains(current, "%") {
			return "", 0
		}
		decoded, err := url.PathUnescape(current)
		if err != nil || decoded == current {
			return "", 0
		}
		if uriPartRe.MatchString(decoded) {
			return decoded, levels
		}
		current = decoded
	}
	return "", 0
}

// Analyzer runs the full chain with a configurable decode depth.
type Analyzer struct {
	decodeDepth int
}

// Fields is what the write path stores for a URI.
type Fields struct {
	URI        string
	Normalized string
	Parts      []string
}

// New returns an Analyzer. A depth below 1 falls back to DefaultDecodeDepth.
func New(decodeDepth int) *Analyzer {
	if decodeDepth < 1 {
		decodeDepth = DefaultDecodeDepth
	}
	return &Analyzer{decodeDepth: decodeDepth}
}

// Tokenize is the uri_part analyzer: tokenizer plus lowercase.
func (a *Analyzer) Tokenize(uri string) []string {
	tokens := tokenize(uri, 0, a.decodeDepth)
	for i, token := range tokens {
		tokens[i] = strings.ToLower(token)
	}
	return tokens
}

// Normalize is the uri analyzer: strip_scheme, path_url, rstrip_slash, lowercase.
func (a *Analyzer) Normalize(uri string) string {
	stripped := StripScheme(strings.TrimSpace(uri))
	path := stripped
	if captures := PathURL(stripped); len(captures) > 0 {
		path = captures[0]
	}
	return strings.ToLower(RstripSlash(path))
}

// Analyze runs both analyzers. An empty URI yields empty fields.
func (a *Analyzer) Analyze(uri string) Fields {
	if strings.TrimSpace(uri) == "" {
		return Fields{URI: uri, Parts: []string{}}
	}
	return Fields{
		URI:        uri,
		Normalized: a.Normalize(uri),
		Parts:      a.Tokenize(uri),
	}
}
