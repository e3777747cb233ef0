package cleanweb

import (
	"strings"
	"sync/atomic"

	iradix "github.com/hashicorp/go-immutable-radix"
)

// maxCachedHosts bounds the host match cache. Past this size lookups are
// evaluated directly against the rules.
const maxCachedHosts = 1024

// RuleSet is an ordered, read-only collection of rules. It's safe for
// concurrent use since nothing mutates the rules after construction.
type RuleSet struct {
	rules    []*Rule
	foldCase bool

	// Reversed host -> []*Rule whose host pattern matched.
	hostMatches atomic.Value // *iradix.Tree
}

// Option configures a RuleSet.
type Option func(*RuleSet)

// WithHostCaseFolding controls whether hosts are lowercased before they are
// matched against host patterns. It's on by default.
func WithHostCaseFolding(fold bool) Option {
	return func(rs *RuleSet) {
		rs.foldCase = fold
	}
}

// NewRuleSet creates a RuleSet from the given rules, preserving their order.
// An empty rule list is replaced by DefaultRules.
func NewRuleSet(rules []*Rule, opts ...Option) *RuleSet {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	rs := &RuleSet{
		rules:    append([]*Rule(nil), rules...),
		foldCase: true,
	}
	for _, opt := range opts {
		opt(rs)
	}
	rs.hostMatches.Store(iradix.New())
	return rs
}

// Rules returns a copy of the rules in order.
func (rs *RuleSet) Rules() []*Rule {
	return append([]*Rule(nil), rs.rules...)
}

// Len returns the number of rules.
func (rs *RuleSet) Len() int {
	return len(rs.rules)
}

// Strip reports whether the query parameter key should be removed from a
// URL with the given host. Rules are unioned: any rule whose host pattern
// matches and whose parameter pattern matches the key is enough.
func (rs *RuleSet) Strip(host, key string) bool {
	for _, r := range rs.forHost(host) {
		if r.MatchesParam(key) {
			return true
		}
	}
	return false
}

// forHost returns the rules whose host pattern matches host, in rule order.
func (rs *RuleSet) forHost(host string) []*Rule {
	if rs.foldCase {
		host = strings.ToLower(host)
	}
	key := []byte(reverse(host))
	tree := rs.hostMatches.Load().(*iradix.Tree)
	if val, ok := tree.Get(key); ok {
		return val.([]*Rule)
	}

	matched := make([]*Rule, 0, len(rs.rules))
	for _, r := range rs.rules {
		if r.MatchesHost(host) {
			matched = append(matched, r)
		}
	}
	if tree.Len() < maxCachedHosts {
		updated, _, _ := tree.Insert(key, matched)
		// Losing a race here only costs a cache entry.
		rs.hostMatches.CompareAndSwap(tree, updated)
	}
	return matched
}

// reverse reverses the host so that hosts sharing a domain share a prefix in
// the cache.
func reverse(input string) string {
	runes := []rune(input)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return string(runes)
}
