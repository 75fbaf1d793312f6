// Package proxy rotates outbound fetch traffic across a set of proxy
// endpoints, temporarily benching endpoints that keep failing.
package proxy

import (
	"bufio"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"
)

// Proxy is a single endpoint with its health counters.
type Proxy struct {
	URL           *url.URL
	Failures      int
	Successes     int
	LastUsed      time.Time
	Disabled      bool
	DisabledUntil time.Time
}

// Pool hands out proxies round-robin, skipping ones in cooldown.
type Pool struct {
	mu          sync.Mutex
	proxies     []*Proxy
	next        int
	maxFailures int
	cooldown    time.Duration
}

// Config tunes health tracking.
type Config struct {
	// MaxFailures before a proxy is benched.
	MaxFailures int
	// Cooldown is how long a benched proxy stays out of rotation.
	Cooldown time.Duration
}

// NewPool creates an empty pool. Zero config values get defaults.
func NewPool(cfg Config) *Pool {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Minute
	}
	return &Pool{
		maxFailures: cfg.MaxFailures,
		cooldown:    cfg.Cooldown,
	}
}

// LoadFile reads one proxy URL per line. Blank lines and '#' comments are
// skipped.
func (p *Pool) LoadFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("proxy: open list: %w", err)
	}
	defer file.Close()

	var urls []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("proxy: read list: %w", err)
	}

	return p.Add(urls...)
}

// Add parses raw URL strings into the pool. A missing scheme defaults to
// http.
func (p *Pool) Add(rawURLs ...string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, raw := range rawURLs {
		if !strings.Contains(raw, "://") {
			raw = "http://" + raw
		}
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("proxy: parse %q: %w", raw, err)
		}
		p.proxies = append(p.proxies, &Proxy{URL: u})
	}
	return nil
}

// Next returns the next healthy proxy URL, or nil when the pool is empty or
// every proxy is cooling down. Benched proxies whose cooldown has elapsed are
// revived with their failure count reset.
func (p *Pool) Next() *url.URL {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.proxies) == 0 {
		return nil
	}

	now := time.Now()
	start := p.next

	for {
		prx := p.proxies[p.next]
		p.next = (p.next + 1) % len(p.proxies)

		if prx.Disabled && now.After(prx.DisabledUntil) {
			prx.Disabled = false
			prx.Failures = 0
		}
		if !prx.Disabled {
			prx.LastUsed = now
			return prx.URL
		}
		if p.next == start {
			return nil
		}
	}
}

// MarkSuccess records a successful request through the proxy.
func (p *Pool) MarkSuccess(proxyURL *url.URL) error {
	if proxyURL == nil {
		return errors.New("proxy: nil proxy URL")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	prx := p.find(proxyURL)
	if prx == nil {
		return errors.New("proxy: not in pool")
	}

	prx.Successes++
	if prx.Failures > 0 {
		prx.Failures--
	}
	return nil
}

// MarkFailure records a failed request. Hitting MaxFailures benches the proxy
// for the cooldown period.
func (p *Pool) MarkFailure(proxyURL *url.URL) error {
	if proxyURL == nil {
		return errors.New("proxy: nil proxy URL")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	prx := p.find(proxyURL)
	if prx == nil {
		return errors.New("proxy: not in pool")
	}

	prx.Failures++
	if prx.Failures >= p.maxFailures {
		prx.Disabled = true
		prx.DisabledUntil = time.Now().Add(p.cooldown)
	}
	return nil
}

// find must be called with the lock held.
func (p *Pool) find(u *url.URL) *Proxy {
	target := u.String()
	for _, prx := range p.proxies {
		if prx.URL.String() == target {
			return prx
		}
	}
	return nil
}
