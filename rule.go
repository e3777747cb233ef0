package cleanweb

import (
	"regexp"
)

// A Rule pairs a pattern matched against a URL's host with a pattern matched
// against query parameter keys. It stores the compiled regular expressions
// for efficiency.
type Rule struct {
	Host  string
	Param string

	host  *regexp.Regexp
	param *regexp.Regexp
}

// NewRule compiles the host and parameter patterns into a Rule. The two
// patterns are compiled independently and a failure in either one is
// reported as an InvalidPattern ConfigError.
func NewRule(host, param string) (*Rule, error) {
	h, err := regexp.Compile(host)
	if err != nil {
		return nil, &ConfigError{Kind: InvalidPattern, Pattern: host, Err: err}
	}
	p, err := regexp.Compile(param)
	if err != nil {
		return nil, &ConfigError{Kind: InvalidPattern, Pattern: param, Err: err}
	}
	return &Rule{Host: host, Param: param, host: h, param: p}, nil
}

func mustRule(host, param string) *Rule {
	r, err := NewRule(host, param)
	if err != nil {
		panic(err)
	}
	return r
}

// MatchesHost reports whether the rule applies to the given host.
func (r *Rule) MatchesHost(host string) bool {
	return r.host.MatchString(host)
}

// MatchesParam reports whether the rule strips the given query key.
func (r *Rule) MatchesParam(key string) bool {
	return r.param.MatchString(key)
}

func (r *Rule) String() string {
	return r.Host + " -> " + r.Param
}

// DefaultRules returns the built-in rules used whenever no rule file exists
// or the rule file holds no rows: twitter's share tracking parameters and
// utm_ campaign parameters on any host.
func DefaultRules() []*Rule {
	return []*Rule{
		mustRule(`(^|\.)twitter\.com$`, `^(t|s)$`),
		mustRule(`.*`, `^utm_`),
	}
}
