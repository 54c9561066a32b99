// Package alerts implements the process-wide pub/sub alert bus of spec
// §4.H: a structured monitoring/scaling event stream indexed by
// (Level, Kind), with optional per-pool filtering.
package alerts

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Level is the alert severity, as enumerated in spec §3.
type Level int

const (
	Info Level = iota
	Warning
	Error
	Critical
)

func (l Level) String() string {
	switch l {
	case Info:
		return "INFO"
	case Warning:
		return "WARNING"
	case Error:
		return "ERROR"
	case Critical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// Kind distinguishes scaling events from general monitoring events.
type Kind int

const (
	Scaling Kind = iota
	Monitoring
)

func (k Kind) String() string {
	if k == Scaling {
		return "SCALING"
	}
	return "MONITORING"
}

// Metadata is the small string-keyed value map carried on an Event. Spec
// §9 enumerates the recognized keys so callers avoid an open-world `any`
// schema: poolName, activeThreads, poolSize, queueSize, oldCoreSize,
// newCoreSize, oldMaxSize, newMaxSize, oldKeepAlive, newKeepAlive, reason,
// error. Any string key is accepted. The rest of this module populates
// poolName, the old/new size and keep-alive keys, reason and error;
// activeThreads, poolSize and queueSize are not set by any publisher here.
type Metadata map[string]any

func (m Metadata) copy() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Event is an immutable published alert.
type Event struct {
	Message     string
	Level       Level
	Kind        Kind
	TimestampMS int64
	Metadata    Metadata
}

// Listener receives published events.
type Listener func(Event)

// listenerEntry pairs a listener with an identity token so Unsubscribe can
// remove the exact entry a prior Subscribe added, matching the equality
// rule from spec §9 ("listeners are reference-identified or carry a stable
// identity token").
type listenerEntry struct {
	id       string
	listener Listener
	poolName string // empty means "no pool filter"
}

// Bus is the (level, kind)-indexed registry. The zero value is not usable;
// construct with NewBus. A process-wide instance is available via
// Default() for callers that want the spec's "process-wide singleton"
// behavior; tests should construct their own Bus to avoid cross-test
// leakage.
type Bus struct {
	mu        sync.RWMutex
	listeners map[Level]map[Kind][]listenerEntry
}

// NewBus constructs an empty, fully pre-populated registry: every
// (level, kind) pair has a (possibly empty) slice ready, so Subscribe
// never needs to mutate the outer maps on the publish path.
func NewBus() *Bus {
	b := &Bus{listeners: make(map[Level]map[Kind][]listenerEntry)}
	for _, lvl := range []Level{Info, Warning, Error, Critical} {
		b.listeners[lvl] = make(map[Kind][]listenerEntry)
		for _, k := range []Kind{Scaling, Monitoring} {
			b.listeners[lvl][k] = nil
		}
	}
	return b
}

var (
	defaultOnce sync.Once
	defaultBus  *Bus
)

// Default returns the lazily constructed process-wide Bus.
func Default() *Bus {
	defaultOnce.Do(func() { defaultBus = NewBus() })
	return defaultBus
}

// ResetDefault tears down the process-wide singleton. Only intended for
// test isolation.
func ResetDefault() {
	defaultOnce = sync.Once{}
	defaultBus = nil
}

// Token identifies a subscription so it can be precisely unsubscribed.
type Token string

// Subscribe registers listener for exactly (level, kind) and returns a
// Token for later Unsubscribe.
func (b *Bus) Subscribe(level Level, kind Kind, listener Listener) Token {
	return b.subscribe(level, kind, listener, "")
}

// SubscribeFiltered wraps listener in a pool-filter decorator: only events
// whose Metadata["poolName"] equals poolName are delivered.
func (b *Bus) SubscribeFiltered(level Level, kind Kind, listener Listener, poolName string) Token {
	return b.subscribe(level, kind, listener, poolName)
}

func (b *Bus) subscribe(level Level, kind Kind, listener Listener, poolName string) Token {
	entry := listenerEntry{id: uuid.NewString(), listener: listener, poolName: poolName}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners[level][kind] = append(b.listeners[level][kind], entry)
	return Token(entry.id)
}

// SubscribeAllTypes fans a single listener out across both Kinds at the
// given level.
func (b *Bus) SubscribeAllTypes(level Level, listener Listener) []Token {
	return []Token{
		b.Subscribe(level, Scaling, listener),
		b.Subscribe(level, Monitoring, listener),
	}
}

// SubscribeAll fans a listener out across every (level, kind) pair.
func (b *Bus) SubscribeAll(listener Listener) []Token {
	var tokens []Token
	for _, lvl := range []Level{Info, Warning, Error, Critical} {
		tokens = append(tokens, b.SubscribeAllTypes(lvl, listener)...)
	}
	return tokens
}

// Unsubscribe removes the entry identified by token from (level, kind).
func (b *Bus) Unsubscribe(level Level, kind Kind, token Token) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entries := b.listeners[level][kind]
	for i, e := range entries {
		if e.id == string(token) {
			b.listeners[level][kind] = append(entries[:i], entries[i+1:]...)
			return
		}
	}
}

// UnsubscribeAll removes every entry identified by the given tokens,
// searching all (level, kind) pairs. Used to undo SubscribeAllTypes /
// SubscribeAll in one call.
func (b *Bus) UnsubscribeAll(tokens []Token) {
	want := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		want[string(t)] = struct{}{}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for lvl, byKind := range b.listeners {
		for kind, entries := range byKind {
			filtered := entries[:0:0]
			for _, e := range entries {
				if _, drop := want[e.id]; !drop {
					filtered = append(filtered, e)
				}
			}
			b.listeners[lvl][kind] = filtered
		}
	}
}

// Publish constructs an Event (copying metadata defensively) and invokes
// every listener registered for exactly (level, kind). A listener that
// panics or whose delivery we choose to guard against is recovered and
// noted on stderr; dispatch continues to the remaining listeners (spec
// §4.H / §7 "Listener failure").
func (b *Bus) Publish(message string, level Level, kind Kind, metadata Metadata) Event {
	event := Event{
		Message:     message,
		Level:       level,
		Kind:        kind,
		TimestampMS: time.Now().UnixMilli(),
		Metadata:    metadata.copy(),
	}

	b.mu.RLock()
	entries := append([]listenerEntry(nil), b.listeners[level][kind]...)
	b.mu.RUnlock()

	for _, e := range entries {
		if e.poolName != "" {
			if name, _ := event.Metadata["poolName"].(string); name != e.poolName {
				continue
			}
		}
		dispatch(e.listener, event)
	}
	return event
}

func dispatch(listener Listener, event Event) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "alerts: listener panic: %v\n", r)
		}
	}()
	listener(event)
}
