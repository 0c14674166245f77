package application

import (
	"hash/fnv"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/example/appointment-scheduler/internal/appointment"
	"github.com/example/appointment-scheduler/internal/civiltime"
	"github.com/example/appointment-scheduler/internal/persistence"
)

// warningCache memoizes overlap warnings per tenant. A write to one tenant's
// appointments drops only that tenant's entries.
type warningCache struct {
	mu         sync.Mutex
	now        func() time.Time
	ttl        time.Duration
	maxEntries int
	size       int
	tenants    map[string]map[string]cachedWarnings
}

type cachedWarnings struct {
	warnings  []ConflictWarning
	expiresAt time.Time
}

func newWarningCache(ttl time.Duration, maxEntries int, now func() time.Time) *warningCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if maxEntries <= 0 {
		maxEntries = 128
	}
	if now == nil {
		now = time.Now
	}
	return &warningCache{
		now:        now,
		ttl:        ttl,
		maxEntries: maxEntries,
		tenants:    make(map[string]map[string]cachedWarnings),
	}
}

func (c *warningCache) Get(tenantID, key string) ([]ConflictWarning, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.tenants[tenantID][key]
	if !ok {
		return nil, false
	}
	if c.now().After(entry.expiresAt) {
		c.removeLocked(tenantID, key)
		return nil, false
	}
	return cloneWarnings(entry.warnings), true
}

func (c *warningCache) Store(tenantID, key string, warnings []ConflictWarning) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := c.tenants[tenantID]
	if entries == nil {
		entries = make(map[string]cachedWarnings)
		c.tenants[tenantID] = entries
	}
	if _, exists := entries[key]; !exists {
		if c.size >= c.maxEntries {
			c.evictLocked()
		}
		c.size++
	}
	entries[key] = cachedWarnings{warnings: cloneWarnings(warnings), expiresAt: c.now().Add(c.ttl)}
}

// Invalidate forgets every entry of tenantID.
func (c *warningCache) Invalidate(tenantID string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.size -= len(c.tenants[tenantID])
	delete(c.tenants, tenantID)
	c.mu.Unlock()
}

func (c *warningCache) removeLocked(tenantID, key string) {
	entries := c.tenants[tenantID]
	if _, ok := entries[key]; !ok {
		return
	}
	delete(entries, key)
	c.size--
	if len(entries) == 0 {
		delete(c.tenants, tenantID)
	}
}

// evictLocked drops expired entries, or the one closest to expiry when none
// has expired.
func (c *warningCache) evictLocked() {
	now := c.now()
	var (
		victimTenant, victimKey string
		victimExpiry            time.Time
		expired                 [][2]string
	)
	for tenantID, entries := range c.tenants {
		for key, entry := range entries {
			if now.After(entry.expiresAt) {
				expired = append(expired, [2]string{tenantID, key})
				continue
			}
			if victimKey == "" || entry.expiresAt.Before(victimExpiry) {
				victimTenant, victimKey, victimExpiry = tenantID, key, entry.expiresAt
			}
		}
	}
	if len(expired) > 0 {
		for _, e := range expired {
			c.removeLocked(e[0], e[1])
		}
		return
	}
	c.removeLocked(victimTenant, victimKey)
}

func cloneWarnings(warnings []ConflictWarning) []ConflictWarning {
	if len(warnings) == 0 {
		return nil
	}
	return append([]ConflictWarning(nil), warnings...)
}

// buildWarningCacheKey combines the filter with a fingerprint of the listed
// appointments so a changed result never reuses stale warnings.
func buildWarningCacheKey(filter persistence.AppointmentFilter, list []appointment.Appointment) string {
	h := fnv.New64a()
	for _, a := range list {
		for _, part := range []string{a.ID, a.Employee.ID, civiltime.ToWire(a.Start), civiltime.ToWire(a.End), string(a.Status)} {
			h.Write([]byte(part))
			h.Write([]byte{0})
		}
	}

	var b strings.Builder
	b.WriteString(filter.EmployeeID)
	b.WriteByte('|')
	if !filter.RangeStart.IsZero() {
		b.WriteString(civiltime.ToWire(filter.RangeStart))
	}
	b.WriteByte('|')
	if !filter.RangeEnd.IsZero() {
		b.WriteString(civiltime.ToWire(filter.RangeEnd))
	}
	b.WriteByte('|')
	b.WriteString(strconv.FormatUint(h.Sum64(), 16))
	return b.String()
}
