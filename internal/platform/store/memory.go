package store

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"
)

// memoryEntry carries an optional expiry alongside a stored value.
type memoryEntry struct {
	value    string
	expireAt time.Time
	hasTTL   bool
}

// memoryClient is an in-process Client used by unit tests that would
// otherwise need a live Redis instance. It supports the same TTL and
// blocking-pop semantics as the real client, modulo blocking: since there is
// no separate writer goroutine in tests, ListBlockingLeftPop degrades to a
// single non-blocking attempt regardless of the requested timeout.
type memoryClient struct {
	mu   sync.Mutex
	kv   map[string]memoryEntry
	sets map[string]map[string]struct{}
}

// NewMemory constructs an empty in-memory store.Client fake.
func NewMemory() Client {
	return &memoryClient{
		kv:   map[string]memoryEntry{},
		sets: map[string]map[string]struct{}{},
	}
}

func (m *memoryClient) expired(e memoryEntry) bool {
	return e.hasTTL && time.Now().After(e.expireAt)
}

func (m *memoryClient) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.kv[key]
	if !ok || m.expired(e) {
		delete(m.kv, key)
		return "", false, nil
	}
	return e.value, true, nil
}

func (m *memoryClient) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := memoryEntry{value: value}
	if ttl > 0 {
		e.hasTTL = true
		e.expireAt = time.Now().Add(ttl)
	}
	m.kv[key] = e
	return nil
}

func (m *memoryClient) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.kv, key)
	delete(m.sets, key)
	return nil
}

func (m *memoryClient) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.kv[key]
	if !ok || m.expired(e) {
		return false, nil
	}
	return true, nil
}

func (m *memoryClient) TTL(_ context.Context, key string) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.kv[key]
	if !ok || m.expired(e) {
		return -2 * time.Second, nil
	}
	if !e.hasTTL {
		return -1 * time.Second, nil
	}
	return time.Until(e.expireAt), nil
}

func (m *memoryClient) SetIfAbsent(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.kv[key]; ok && !m.expired(e) {
		return false, nil
	}
	e := memoryEntry{value: value}
	if ttl > 0 {
		e.hasTTL = true
		e.expireAt = time.Now().Add(ttl)
	}
	m.kv[key] = e
	return true, nil
}

func (m *memoryClient) IncrBy(_ context.Context, key string, n int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.kv[key]
	var cur int64
	if ok && !m.expired(e) {
		cur = parseInt64(e.value)
	}
	cur += n
	m.kv[key] = memoryEntry{value: formatInt64(cur), hasTTL: e.hasTTL, expireAt: e.expireAt}
	return cur, nil
}

func (m *memoryClient) ListRightPush(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.kv[key]
	sep := ""
	if ok && !m.expired(e) && e.value != "" {
		sep = "\x1f"
	} else {
		e = memoryEntry{}
	}
	e.value = e.value + sep + value
	m.kv[key] = e
	return nil
}

func (m *memoryClient) ListBlockingLeftPop(_ context.Context, key string, _ time.Duration) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.kv[key]
	if !ok || m.expired(e) || e.value == "" {
		return "", false, nil
	}
	items := splitList(e.value)
	head := items[0]
	rest := items[1:]
	if len(rest) == 0 {
		delete(m.kv, key)
	} else {
		e.value = joinList(rest)
		m.kv[key] = e
	}
	return head, true, nil
}

func (m *memoryClient) ListLen(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.kv[key]
	if !ok || m.expired(e) || e.value == "" {
		return 0, nil
	}
	return int64(len(splitList(e.value))), nil
}

func (m *memoryClient) SetAdd(_ context.Context, key, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.sets[key]
	if !ok {
		set = map[string]struct{}{}
		m.sets[key] = set
	}
	set[member] = struct{}{}
	return nil
}

func (m *memoryClient) SetRemove(_ context.Context, key, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if set, ok := m.sets[key]; ok {
		delete(set, member)
	}
	return nil
}

func (m *memoryClient) SetMembers(_ context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.sets[key]
	if !ok {
		return nil, nil
	}
	out := make([]string, 0, len(set))
	for member := range set {
		out = append(out, member)
	}
	return out, nil
}

func (m *memoryClient) Expire(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.kv[key]
	if !ok || m.expired(e) {
		return nil
	}
	e.hasTTL = true
	e.expireAt = time.Now().Add(ttl)
	m.kv[key] = e
	return nil
}

func (m *memoryClient) Close() error { return nil }

const listSep = "\x1f"

func splitList(s string) []string {
	return strings.Split(s, listSep)
}

func joinList(items []string) string {
	return strings.Join(items, listSep)
}

func parseInt64(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

func formatInt64(n int64) string {
	return strconv.FormatInt(n, 10)
}
