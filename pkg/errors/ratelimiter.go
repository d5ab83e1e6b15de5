package errors

import (
	"sync"
	"time"
)

// rateLimiter suppresses repeated reports raised from the same call site.
type rateLimiter struct {
	mu     sync.Mutex
	silent time.Duration
	now    func() time.Time
	sites  map[string]*reportStats
}

func newRateLimiter(silent time.Duration) *rateLimiter {
	return &rateLimiter{
		silent: silent,
		now:    time.Now,
		sites:  make(map[string]*reportStats),
	}
}

type reportStats struct {
	total          int
	suppressed     int
	lastReportTime *time.Time
}

// allow reports whether the site is currently limited, along with the stats
// as they were before this occurrence was counted.
func (l *rateLimiter) allow(site string) (limited bool, before reportStats) {
	l.mu.Lock()
	defer l.mu.Unlock()
	stats, ok := l.sites[site]
	if !ok {
		stats = &reportStats{}
		l.sites[site] = stats
	}
	before = *stats
	stats.total++

	now := l.now()
	if stats.lastReportTime != nil && now.Sub(*stats.lastReportTime) < l.silent {
		stats.suppressed++
		return true, before
	}
	stats.suppressed = 0
	stats.lastReportTime = &now
	return false, before
}
