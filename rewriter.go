package cleanweb

import (
	"net/url"
	"strings"
	"unicode"

	"github.com/getlantern/golog"
)

var (
	log = golog.LoggerFor("cleanweb")
)

// Rewriter cleans a piece of text, returning the outcome.
type Rewriter func(text string) Outcome

// Outcome is the result of trying to rewrite a piece of text. When Changed
// is false Text is exactly the input.
type Outcome struct {
	Text    string
	Changed bool
	// Host is the URL's host, empty if the text wasn't a URL with a host.
	Host string
	// Stripped holds the decoded keys of the removed query parameters in
	// their original order.
	Stripped []string
}

func unchanged(text, host string) Outcome {
	return Outcome{Text: text, Host: host}
}

// Rewriter returns a Rewriter bound to this rule set.
func (rs *RuleSet) Rewriter() Rewriter {
	return func(text string) Outcome {
		return Rewrite(rs, text)
	}
}

// queryPair is a decoded key/value from a raw query string. Segments that
// fail to decode keep their raw form.
type queryPair struct {
	key   string
	value string
}

// Rewrite removes every query parameter of the URL in text that a rule for
// the URL's host says to strip. Text that isn't a URL, URLs without a host
// and URLs where nothing is stripped come back unchanged, byte for byte.
// Only the query component of a changed URL is re-encoded; everything around
// it is kept as it was.
//
// Rewrite is idempotent: rewriting a changed result again never changes it.
func Rewrite(rs *RuleSet, text string) Outcome {
	if !looksLikeURL(text) {
		return unchanged(text, "")
	}
	u, err := url.Parse(text)
	if err != nil || u.Scheme == "" {
		return unchanged(text, "")
	}
	host := u.Hostname()
	if host == "" {
		return unchanged(text, "")
	}
	if u.RawQuery == "" {
		return unchanged(text, host)
	}

	pairs := parseQuery(u.RawQuery)
	retained := make([]queryPair, 0, len(pairs))
	var stripped []string
	for _, p := range pairs {
		if rs.Strip(host, p.key) {
			stripped = append(stripped, p.key)
			continue
		}
		retained = append(retained, p)
	}
	if len(stripped) == 0 {
		return unchanged(text, host)
	}

	log.Debugf("Stripping %v from %v", stripped, host)
	return Outcome{
		Text:     spliceQuery(text, encodeQuery(retained)),
		Changed:  true,
		Host:     host,
		Stripped: stripped,
	}
}

// looksLikeURL rejects text that can't be a single URL, such as a sentence
// that happens to contain one.
func looksLikeURL(text string) bool {
	if text == "" {
		return false
	}
	return strings.IndexFunc(text, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsControl(r)
	}) < 0
}

func parseQuery(raw string) []queryPair {
	segments := strings.Split(raw, "&")
	pairs := make([]queryPair, 0, len(segments))
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		key, value, _ := strings.Cut(seg, "=")
		if k, err := url.QueryUnescape(key); err == nil {
			key = k
		}
		if v, err := url.QueryUnescape(value); err == nil {
			value = v
		}
		pairs = append(pairs, queryPair{key: key, value: value})
	}
	return pairs
}

func encodeQuery(pairs []queryPair) string {
	var b strings.Builder
	for i, p := range pairs {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p.key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.value))
	}
	return b.String()
}

// spliceQuery replaces the query of text with query, dropping the '?'
// entirely when query is empty. The query starts at the first '?' before the
// fragment, the same split net/url uses.
func spliceQuery(text, query string) string {
	beforeFragment, fragment, hasFragment := strings.Cut(text, "#")
	base, _, _ := strings.Cut(beforeFragment, "?")

	var b strings.Builder
	b.Grow(len(text))
	b.WriteString(base)
	if query != "" {
		b.WriteByte('?')
		b.WriteString(query)
	}
	if hasFragment {
		b.WriteByte('#')
		b.WriteString(fragment)
	}
	return b.String()
}
