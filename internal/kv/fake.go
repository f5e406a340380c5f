package kv

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ranggakrisnaa/activity-tracker-api/internal/apperr"
)

// Fake is an in-process Gateway implementation used by unit tests that
// exercise components built against the Gateway interface without a real
// Redis instance.
type Fake struct {
	mu         sync.Mutex
	values     map[string]string
	expires    map[string]time.Time
	sortedSets map[string]map[string]float64
	subs       map[string][]func([]byte)
	scripts    map[string]func(keys []string, args []interface{}) (interface{}, error)

	// Unavailable, when set, makes every operation fail with
	// apperr.ErrKVUnavailable-shaped errors, for exercising fallback paths.
	Unavailable bool
}

// NewFake constructs an empty fake gateway.
func NewFake() *Fake {
	return &Fake{
		values:     make(map[string]string),
		expires:    make(map[string]time.Time),
		sortedSets: make(map[string]map[string]float64),
		subs:       make(map[string][]func([]byte)),
		scripts:    make(map[string]func(keys []string, args []interface{}) (interface{}, error)),
	}
}

// RegisterScript lets a test bind a Go closure that emulates the given
// Lua script's behavior, keyed by the script's content hash. The fake
// gateway has no Lua interpreter, so components whose atomic check is
// expressed as a redis.Script (the rate limiter) register an equivalent
// closure here for unit testing.
func (f *Fake) RegisterScript(script *redis.Script, handler func(keys []string, args []interface{}) (interface{}, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[script.Hash()] = handler
}

func (f *Fake) expired(key string) bool {
	t, ok := f.expires[key]
	return ok && time.Now().After(t)
}

func (f *Fake) Get(_ context.Context, key string) (string, bool, error) {
	if f.Unavailable {
		return "", false, errUnavailable
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.expired(key) {
		delete(f.values, key)
		return "", false, nil
	}
	v, ok := f.values[key]
	return v, ok, nil
}

func (f *Fake) Set(_ context.Context, key, value string, ttl time.Duration) error {
	if f.Unavailable {
		return errUnavailable
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = value
	if ttl > 0 {
		f.expires[key] = time.Now().Add(ttl)
	} else {
		delete(f.expires, key)
	}
	return nil
}

func (f *Fake) Del(_ context.Context, key string) error {
	if f.Unavailable {
		return errUnavailable
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.values, key)
	delete(f.expires, key)
	delete(f.sortedSets, key)
	return nil
}

func (f *Fake) IncrBy(_ context.Context, key string, delta int64) (int64, error) {
	if f.Unavailable {
		return 0, errUnavailable
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.expired(key) {
		delete(f.values, key)
	}
	cur, _ := strconv.ParseInt(f.values[key], 10, 64)
	cur += delta
	f.values[key] = strconv.FormatInt(cur, 10)
	return cur, nil
}

func (f *Fake) Expire(_ context.Context, key string, ttl time.Duration) error {
	if f.Unavailable {
		return errUnavailable
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expires[key] = time.Now().Add(ttl)
	return nil
}

func (f *Fake) Keys(_ context.Context, pattern string) ([]string, error) {
	if f.Unavailable {
		return nil, errUnavailable
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for k := range f.values {
		if f.expired(k) {
			continue
		}
		if globMatch(pattern, k) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

// EvalAtomic dispatches to a handler registered via RegisterScript, if
// any; otherwise it is a no-op returning nil.
func (f *Fake) EvalAtomic(_ context.Context, script *redis.Script, keys []string, args ...interface{}) (interface{}, error) {
	if f.Unavailable {
		return nil, errUnavailable
	}
	f.mu.Lock()
	handler := f.scripts[script.Hash()]
	f.mu.Unlock()
	if handler == nil {
		return nil, nil
	}
	return handler(keys, args)
}

func (f *Fake) Publish(_ context.Context, channel string, message []byte) error {
	if f.Unavailable {
		return errUnavailable
	}
	f.mu.Lock()
	handlers := append([]func([]byte){}, f.subs[channel]...)
	f.mu.Unlock()
	for _, h := range handlers {
		if h != nil {
			h(message)
		}
	}
	return nil
}

func (f *Fake) Subscribe(_ context.Context, channel string, handler func([]byte)) (func(), error) {
	if f.Unavailable {
		return nil, errUnavailable
	}
	f.mu.Lock()
	f.subs[channel] = append(f.subs[channel], handler)
	idx := len(f.subs[channel]) - 1
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if idx < len(f.subs[channel]) {
			f.subs[channel][idx] = nil
		}
	}, nil
}

// The methods below give a script handler registered via RegisterScript
// somewhere to keep its working set; they are not part of the Gateway
// interface.

func (f *Fake) ZAdd(key, member string, score float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sortedSets[key] == nil {
		f.sortedSets[key] = make(map[string]float64)
	}
	f.sortedSets[key][member] = score
}

func (f *Fake) ZRemRangeByScore(key string, max float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	set := f.sortedSets[key]
	for member, score := range set {
		if score < max {
			delete(set, member)
		}
	}
}

func (f *Fake) ZCard(key string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.sortedSets[key]))
}

// ZOldestScore returns the smallest score in the set, or ok=false if
// empty.
func (f *Fake) ZOldestScore(key string) (float64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	set := f.sortedSets[key]
	if len(set) == 0 {
		return 0, false
	}
	first := true
	var min float64
	for _, score := range set {
		if first || score < min {
			min = score
			first = false
		}
	}
	return min, true
}

func globMatch(pattern, s string) bool {
	if pattern == "*" || pattern == "" {
		return true
	}
	// Only the trailing-wildcard form used by this codebase (e.g.
	// "cache:hits:*") needs to be supported here.
	if len(pattern) > 0 && pattern[len(pattern)-1] == '*' {
		prefix := pattern[:len(pattern)-1]
		return len(s) >= len(prefix) && s[:len(prefix)] == prefix
	}
	return pattern == s
}

var errUnavailable = apperr.ErrKVUnavailable
