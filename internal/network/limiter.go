package network

import (
	"net"
	"sync"
)

// IPLimiter caps concurrent connections per remote host. A cap <= 0 means
// unlimited.
type IPLimiter struct {
	mu         sync.Mutex
	maxConns   int
	connCounts map[string]int
}

func NewIPLimiter(maxConns int) *IPLimiter {
	return &IPLimiter{
		maxConns:   maxConns,
		connCounts: make(map[string]int),
	}
}

// Acquire reserves a slot for addr's host. The returned release must be
// called exactly once when ok is true.
func (l *IPLimiter) Acquire(addr net.Addr) (release func(), ok bool) {
	ip := RemoteHost(addr)
	if !l.acquireConn(ip) {
		return nil, false
	}
	var once sync.Once
	return func() { once.Do(func() { l.releaseConn(ip) }) }, true
}

func (l *IPLimiter) acquireConn(ip string) bool {
	if l == nil || l.maxConns <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.connCounts[ip] >= l.maxConns {
		return false
	}
	l.connCounts[ip]++
	return true
}

func (l *IPLimiter) releaseConn(ip string) {
	if l == nil || l.maxConns <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.connCounts[ip] <= 1 {
		delete(l.connCounts, ip)
		return
	}
	l.connCounts[ip]--
}

func (l *IPLimiter) Count(ip string) int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connCounts[ip]
}
