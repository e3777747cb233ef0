package cleanweb

import (
	"net"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"
)

// Stats accumulates how buffer notifications were handled and how long they
// took.
type Stats struct {
	Runs            int64
	Passthrough     int64 // buffer didn't hold text
	Unchanged       int64
	Changed         int64
	AcquireFailures int64
	ReadFailures    int64
	WriteFailures   int64

	TotalTime time.Duration
	Max       time.Duration
	MaxHost   string

	// Stripped counts removed parameters per registrable domain.
	Stripped map[string]int
}

// Average returns the mean handling time.
func (s Stats) Average() time.Duration {
	if s.Runs == 0 {
		return 0
	}
	return s.TotalTime / time.Duration(s.Runs)
}

type stats struct {
	mx sync.Mutex
	s  Stats
}

func newStats() *stats {
	return &stats{s: Stats{Stripped: make(map[string]int)}}
}

type outcomeKind int

const (
	kindPassthrough outcomeKind = iota
	kindUnchanged
	kindChanged
	kindAcquireFailed
	kindReadFailed
	kindWriteFailed
)

func (st *stats) add(kind outcomeKind, out Outcome, dur time.Duration) {
	st.mx.Lock()
	defer st.mx.Unlock()

	s := &st.s
	s.Runs++
	s.TotalTime += dur
	if dur > s.Max {
		s.Max = dur
		s.MaxHost = out.Host
	}
	switch kind {
	case kindPassthrough:
		s.Passthrough++
	case kindUnchanged:
		s.Unchanged++
	case kindChanged:
		s.Changed++
		s.Stripped[registrableDomain(out.Host)] += len(out.Stripped)
	case kindAcquireFailed:
		s.AcquireFailures++
	case kindReadFailed:
		s.ReadFailures++
	case kindWriteFailed:
		s.WriteFailures++
	}
}

func (st *stats) snapshot() Stats {
	st.mx.Lock()
	defer st.mx.Unlock()
	s := st.s
	s.Stripped = make(map[string]int, len(st.s.Stripped))
	for k, v := range st.s.Stripped {
		s.Stripped[k] = v
	}
	return s
}

// registrableDomain collapses subdomains, so that www.example.com and
// example.com count together. Hosts without a public suffix (IPs, localhost)
// are used as is.
func registrableDomain(host string) string {
	if net.ParseIP(host) != nil {
		return host
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return domain
}
