package reroute

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"lukechampine.com/blake3"
)

// CacheDuration is how long a fetched rule set counts as fresh.
const CacheDuration = 60 * time.Second

const DefaultStoreTimeout = 5 * time.Second

// Cache mirrors the stored redirect rules. Reads never block; the rule set
// and its fetch time are replaced together by a successful Refresh.
type Cache struct {
	src     RuleSource
	log     *zap.Logger
	failLog *rateLimitedLogger
	timeout time.Duration
	now     func() time.Time

	state atomic.Pointer[RuleSet]

	bgSem  chan struct{}
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup

	refreshed atomic.Uint64
	failed    atomic.Uint64
	abandoned atomic.Int64
}

type CacheOption func(*Cache)

// WithClock replaces time.Now as the source of fetch timestamps.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) { c.now = now }
}

// WithStoreTimeout bounds every store query. Expiry counts as a failed fetch.
func WithStoreTimeout(d time.Duration) CacheOption {
	return func(c *Cache) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func NewCache(src RuleSource, logger *zap.Logger, opts ...CacheOption) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Cache{
		src:     src,
		log:     logger,
		failLog: newRateLimitedLogger(logger, time.Minute),
		timeout: DefaultStoreTimeout,
		now:     time.Now,
		bgSem:   make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(c)
	}
	c.state.Store(&RuleSet{})
	return c
}

// Start kicks off the initial fetch without waiting for it.
func (c *Cache) Start() {
	c.RefreshAsync()
}

// Close stops new background refreshes and waits for the running one.
func (c *Cache) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.wg.Wait()
}

// IsStale reports whether the resident set was never fetched or is at
// least CacheDuration old at now.
func (c *Cache) IsStale(now time.Time) bool {
	rs := c.state.Load()
	if rs.FetchedAt.IsZero() {
		return true
	}
	return now.Sub(rs.FetchedAt) >= CacheDuration
}

// Current returns the resident rule set.
func (c *Cache) Current() RuleSet {
	return *c.state.Load()
}

// LastFetchedAt is zero until a fetch has succeeded.
func (c *Cache) LastFetchedAt() time.Time {
	return c.state.Load().FetchedAt
}

// RefreshCounts returns the number of successful and failed fetches.
func (c *Cache) RefreshCounts() (ok, failed uint64) {
	return c.refreshed.Load(), c.failed.Load()
}

// AbandonedQueries is the number of ListRules calls that outlived their
// timeout and have not returned yet.
func (c *Cache) AbandonedQueries() int64 {
	return c.abandoned.Load()
}

const (
	queryRunning int32 = iota
	queryDone
	queryAbandoned
)

type listResult struct {
	rules []Rule
	err   error
}

// Refresh reads the full rule set and swaps it in. On failure the resident
// set is kept and a *FetchError is returned. Concurrent calls are allowed;
// the last one to finish wins.
func (c *Cache) Refresh(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ch := make(chan listResult, 1)
	var state atomic.Int32
	go func() {
		var res listResult
		defer func() {
			if p := recover(); p != nil {
				res = listResult{err: fmt.Errorf("rule source panicked: %v", p)}
			}
			ch <- res
			if !state.CompareAndSwap(queryRunning, queryDone) {
				c.abandoned.Add(-1)
			}
		}()
		res.rules, res.err = c.src.ListRules(ctx)
	}()

	var res listResult
	select {
	case res = <-ch:
	case <-ctx.Done():
		c.abandoned.Add(1)
		if state.CompareAndSwap(queryRunning, queryAbandoned) {
			res.err = ctx.Err()
		} else {
			c.abandoned.Add(-1)
			res = <-ch
		}
	}
	if res.err != nil {
		fe := toFetchError(res.err)
		c.failed.Add(1)
		c.failLog.Warn("redirect refresh failed, keeping resident rules",
			zap.Error(fe),
			zap.Int("resident", c.state.Load().Len()),
		)
		return fe
	}

	next := &RuleSet{
		Rules:       res.rules,
		FetchedAt:   c.now(),
		Fingerprint: fingerprint(res.rules),
	}
	prev := c.state.Swap(next)
	c.refreshed.Add(1)

	if prev.FetchedAt.IsZero() || prev.Fingerprint != next.Fingerprint {
		c.log.Info("redirect rules loaded", zap.Int("rules", next.Len()))
	} else {
		c.log.Debug("redirect rules unchanged", zap.Int("rules", next.Len()))
	}
	return nil
}

// RefreshAsync starts a background Refresh detached from any request. It
// returns false when one is already running or the cache is closed.
func (c *Cache) RefreshAsync() bool {
	select {
	case c.bgSem <- struct{}{}:
	default:
		return false
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		<-c.bgSem
		return false
	}
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		defer func() { <-c.bgSem }()
		_ = c.Refresh(context.Background())
	}()
	return true
}

func toFetchError(err error) *FetchError {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &FetchError{Cause: ErrCauseTimeout, Err: err}
	}
	return &FetchError{Cause: ErrCauseStoreQuery, Err: err}
}

func fingerprint(rules []Rule) [32]byte {
	h := blake3.New(32, nil)
	var n [8]byte
	writeField := func(s string) {
		binary.BigEndian.PutUint64(n[:], uint64(len(s)))
		h.Write(n[:])
		h.Write([]byte(s))
	}
	for _, r := range rules {
		writeField(r.ID)
		writeField(r.Source)
		writeField(r.Destination)
		writeField(r.StatusCode)
		if r.OpenInNewTab {
			h.Write([]byte{1})
		} else {
			h.Write([]byte{0})
		}
	}
	var out [32]byte
	h.Sum(out[:0])
	return out
}
