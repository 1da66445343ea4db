package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"autopress/internal/pkg/logger"
	"autopress/internal/pkg/metrics"
)

// Explicit per-client states; a banned client flips back to normal
// lazily once its ban expires.
type ClientState int

const (
	StateNormal ClientState = iota
	StateBanned
)

func (s ClientState) String() string {
	if s == StateBanned {
		return "banned"
	}
	return "normal"
}

// Answer to "may this client proceed right now". WaitTime is advisory;
// callers decide whether to sleep, poll, or drop the item.
type Decision struct {
	Allowed  bool
	WaitTime time.Duration
	Reason   string
}

// Token bucket shared by all clients. Tokens refill proportionally to
// elapsed time and never exceed the capacity.
type burstBucket struct {
	tokens       int
	capacity     int
	refillPerSec float64
	lastRefillAt time.Time
}

type banRecord struct {
	reason    string
	bannedAt  time.Time
	expiresAt time.Time
}

type failureRecord struct {
	consecutive   int
	total         int
	lastFailureAt time.Time
}

type clientRecord struct {
	state    ClientState
	failures failureRecord
	ban      *banRecord
	windows  map[Category]*windowSet // nil unless per-client limits are enabled
}

type Settings struct {
	Publish                Limits
	Read                   Limits
	BurstCapacity          int
	PerSecondAllowance     int // burst refill rate is allowance/10 tokens per second
	MaxConsecutiveFailures int
	BanDuration            time.Duration
	PerClientLimits        bool
	Clock                  func() time.Time
}

func DefaultSettings() Settings {
	return Settings{
		Publish:                Limits{PerSecond: 1, PerMinute: 5, PerHour: 25, PerDay: 50, PerMonth: 1500},
		Read:                   Limits{PerSecond: 1, PerMinute: 15, PerQuarter: 180, PerHour: 300},
		BurstCapacity:          10,
		PerSecondAllowance:     10,
		MaxConsecutiveFailures: 5,
		BanDuration:            5 * time.Minute,
	}
}

// Defines the interface for admission control and outcome recording.
type Limiter interface {
	CheckLimit(clientKey string, category Category) Decision
	RecordRequest(clientKey string, success bool, category Category)
	Stats() Snapshot
	Reset(clientKey string)
	ResetAll()
}

// Multi-window rate limiter with a burst-token bucket and a per-client
// failure/ban ledger. Windows are shared across clients unless
// per-client limits are enabled, in which case each client carries its
// own window set on top of the shared one.
type limiter struct {
	mu       sync.Mutex
	settings Settings
	clock    func() time.Time

	global  map[Category]*windowSet
	clients map[string]*clientRecord
	burst   burstBucket

	burstExhausted int64
	allowed        int64
	denied         int64
}

// Creates a limiter from the given settings. Zero values fall back to
// the defaults.
func NewLimiter(settings Settings) Limiter {
	defaults := DefaultSettings()
	if settings.BurstCapacity <= 0 {
		settings.BurstCapacity = defaults.BurstCapacity
	}
	if settings.PerSecondAllowance < 0 {
		settings.PerSecondAllowance = defaults.PerSecondAllowance
	}
	if settings.MaxConsecutiveFailures <= 0 {
		settings.MaxConsecutiveFailures = defaults.MaxConsecutiveFailures
	}
	if settings.BanDuration <= 0 {
		settings.BanDuration = defaults.BanDuration
	}
	if settings.Publish == (Limits{}) {
		settings.Publish = defaults.Publish
	}
	if settings.Read == (Limits{}) {
		settings.Read = defaults.Read
	}
	clock := settings.Clock
	if clock == nil {
		clock = time.Now
	}

	now := clock()
	return &limiter{
		settings: settings,
		clock:    clock,
		global: map[Category]*windowSet{
			CategoryPublish: newWindowSet(CategoryPublish, settings.Publish, now),
			CategoryRead:    newWindowSet(CategoryRead, settings.Read, now),
		},
		clients: make(map[string]*clientRecord),
		burst: burstBucket{
			tokens:       settings.BurstCapacity,
			capacity:     settings.BurstCapacity,
			refillPerSec: float64(settings.PerSecondAllowance) / 10,
			lastRefillAt: now,
		},
	}
}

// Checks whether the client may proceed. Short-circuit order: ban,
// burst tokens, then each active window from shortest to longest.
// Nothing is consumed here; RecordRequest settles the books after the
// caller's attempt completes.
func (l *limiter) CheckLimit(clientKey string, category Category) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	client := l.getClient(clientKey)

	if client.state == StateBanned {
		if now.Before(client.ban.expiresAt) {
			l.denied++
			return Decision{
				Allowed:  false,
				WaitTime: client.ban.expiresAt.Sub(now),
				Reason:   fmt.Sprintf("client banned: %s", client.ban.reason),
			}
		}
		l.liftBan(clientKey, client)
	}

	l.rollover(client, category, now)
	l.refillBurst(now)

	if l.burst.tokens <= 0 {
		l.denied++
		return Decision{Allowed: false, WaitTime: time.Second, Reason: "burst limit exceeded"}
	}

	if w := l.global[category].exhausted(); w != nil {
		l.denied++
		return Decision{
			Allowed:  false,
			WaitTime: w.resetAt.Sub(now),
			Reason:   fmt.Sprintf("%s window limit reached (%d/%d)", w.window, w.count, w.limit),
		}
	}

	if client.windows != nil {
		if w := client.windows[category].exhausted(); w != nil {
			l.denied++
			return Decision{
				Allowed:  false,
				WaitTime: w.resetAt.Sub(now),
				Reason:   fmt.Sprintf("client %s window limit reached (%d/%d)", w.window, w.count, w.limit),
			}
		}
	}

	l.allowed++
	return Decision{Allowed: true}
}

// Settles one completed attempt: every active window is incremented and
// one burst token is consumed regardless of outcome; failures feed the
// ban ledger, successes reset the consecutive counter without lifting
// an active ban.
func (l *limiter) RecordRequest(clientKey string, success bool, category Category) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	client := l.getClient(clientKey)

	l.rollover(client, category, now)
	l.refillBurst(now)

	l.global[category].increment()
	if client.windows != nil {
		client.windows[category].increment()
	}

	if l.burst.tokens > 0 {
		l.burst.tokens--
	} else {
		l.burstExhausted++
		metrics.BurstExhausted.Inc()
	}

	if success {
		client.failures.consecutive = 0
		return
	}

	client.failures.consecutive++
	client.failures.total++
	client.failures.lastFailureAt = now

	if client.failures.consecutive >= l.settings.MaxConsecutiveFailures {
		client.state = StateBanned
		client.ban = &banRecord{
			reason:    fmt.Sprintf("%d consecutive failures", client.failures.consecutive),
			bannedAt:  now,
			expiresAt: now.Add(l.settings.BanDuration),
		}
		metrics.ClientState.WithLabelValues(clientKey).Set(1)
		logger.Log.Warn("Client banned after consecutive failures",
			zap.String("client", clientKey),
			zap.Int("consecutive", client.failures.consecutive),
			zap.Time("until", client.ban.expiresAt))
	}
}

// Caller must hold the mutex.
func (l *limiter) getClient(clientKey string) *clientRecord {
	client, ok := l.clients[clientKey]
	if ok {
		return client
	}

	client = &clientRecord{state: StateNormal}
	if l.settings.PerClientLimits {
		now := l.clock()
		client.windows = map[Category]*windowSet{
			CategoryPublish: newWindowSet(CategoryPublish, l.settings.Publish, now),
			CategoryRead:    newWindowSet(CategoryRead, l.settings.Read, now),
		}
	}
	l.clients[clientKey] = client
	metrics.ClientState.WithLabelValues(clientKey).Set(0)
	return client
}

// Caller must hold the mutex. Ban expiry also resets the consecutive
// failure counter, so one old streak cannot re-ban a recovered client.
func (l *limiter) liftBan(clientKey string, client *clientRecord) {
	client.state = StateNormal
	client.ban = nil
	client.failures.consecutive = 0
	metrics.ClientState.WithLabelValues(clientKey).Set(0)
	logger.Log.Info("Client ban expired", zap.String("client", clientKey))
}

// Caller must hold the mutex.
func (l *limiter) rollover(client *clientRecord, category Category, now time.Time) {
	l.global[category].rollover(now)
	if client.windows != nil {
		client.windows[category].rollover(now)
	}
}

// Caller must hold the mutex. lastRefillAt only advances when at least
// one whole token accrued, so fractional progress is never discarded.
func (l *limiter) refillBurst(now time.Time) {
	if l.burst.refillPerSec <= 0 {
		return
	}
	elapsed := now.Sub(l.burst.lastRefillAt).Seconds()
	accrued := int(elapsed * l.burst.refillPerSec)
	if accrued <= 0 {
		return
	}

	l.burst.tokens += accrued
	if l.burst.tokens > l.burst.capacity {
		l.burst.tokens = l.burst.capacity
	}
	l.burst.lastRefillAt = now
}

// Point-in-time view of one window's usage.
type WindowCount struct {
	Window string `json:"window"`
	Count  int    `json:"count"`
	Limit  int    `json:"limit"`
}

// Operational snapshot of the limiter.
type Snapshot struct {
	Publish        []WindowCount `json:"publish"`
	Read           []WindowCount `json:"read"`
	BurstTokens    int           `json:"burst_tokens"`
	BurstExhausted int64         `json:"burst_exhausted"`
	Allowed        int64         `json:"allowed"`
	Denied         int64         `json:"denied"`
	ActiveClients  int           `json:"active_clients"`
	BannedClients  int           `json:"banned_clients"`
}

func (l *limiter) Stats() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	snapshot := Snapshot{
		BurstTokens:    l.burst.tokens,
		BurstExhausted: l.burstExhausted,
		Allowed:        l.allowed,
		Denied:         l.denied,
		ActiveClients:  len(l.clients),
	}
	for _, w := range l.global[CategoryPublish].windows {
		snapshot.Publish = append(snapshot.Publish, WindowCount{Window: w.window.String(), Count: w.count, Limit: w.limit})
	}
	for _, w := range l.global[CategoryRead].windows {
		snapshot.Read = append(snapshot.Read, WindowCount{Window: w.window.String(), Count: w.count, Limit: w.limit})
	}
	for _, client := range l.clients {
		if client.state == StateBanned {
			snapshot.BannedClients++
		}
	}
	return snapshot
}

// Forgets one client's failures, ban, and per-client windows.
func (l *limiter) Reset(clientKey string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.clients, clientKey)
	metrics.ClientState.WithLabelValues(clientKey).Set(0)
}

// Restores the limiter to its just-constructed state: counters zeroed,
// burst bucket refilled, every client forgotten.
func (l *limiter) ResetAll() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	l.global = map[Category]*windowSet{
		CategoryPublish: newWindowSet(CategoryPublish, l.settings.Publish, now),
		CategoryRead:    newWindowSet(CategoryRead, l.settings.Read, now),
	}
	l.clients = make(map[string]*clientRecord)
	l.burst.tokens = l.burst.capacity
	l.burst.lastRefillAt = now
	l.burstExhausted = 0
	l.allowed = 0
	l.denied = 0
	metrics.ClientState.Reset()
}
