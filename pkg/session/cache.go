// Package session keeps short-lived per-conversation chat history.
package session

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultCapacity is the maximum number of concurrent conversations kept.
	DefaultCapacity = 10

	// DefaultTTL is how long a conversation survives after its last write.
	DefaultTTL = 4 * time.Hour
)

// Speaker identifies who produced a turn.
type Speaker string

const (
	SpeakerHuman Speaker = "Human"
	SpeakerAgent Speaker = "AI"
)

// Turn is a single utterance in a conversation. Immutable once created.
type Turn struct {
	Speaker Speaker `json:"speaker"`
	Text    string  `json:"text"`
}

type entry struct {
	turns     []Turn
	lastWrite time.Time
}

// Cache is a TTL- and capacity-bounded map from conversation id to its
// transcript. An expired conversation is discarded wholesale, never
// partially evicted; within the TTL window its length is unbounded.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]*entry
	capacity int
	ttl      time.Duration
	now      func() time.Time
	logger   zerolog.Logger
}

// Config holds cache configuration.
type Config struct {
	Capacity int
	TTL      time.Duration
	Now      func() time.Time // injected clock, optional
	Logger   zerolog.Logger
}

// New creates a session cache. Zero-valued config fields fall back to
// defaults.
func New(cfg Config) *Cache {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Cache{
		entries:  make(map[string]*entry),
		capacity: cfg.Capacity,
		ttl:      cfg.TTL,
		now:      cfg.Now,
		logger:   cfg.Logger.With().Str("component", "session").Logger(),
	}
}

// History returns a copy of the transcript for a conversation. A missing or
// expired conversation yields nil, never an error; expired entries are
// removed on read.
func (c *Cache) History(conversationID string) []Turn {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[conversationID]
	if !ok {
		return nil
	}
	if c.expired(e) {
		delete(c.entries, conversationID)
		c.logger.Debug().Str("conversation_id", conversationID).Msg("Session expired")
		return nil
	}

	turns := make([]Turn, len(e.turns))
	copy(turns, e.turns)
	return turns
}

// Append records one (Human, Agent) turn pair and refreshes the TTL. A new
// conversation beyond capacity evicts the least-recently-written entry.
func (c *Cache) Append(conversationID string, human, agent Turn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()

	e, ok := c.entries[conversationID]
	if ok && c.expired(e) {
		delete(c.entries, conversationID)
		ok = false
	}

	if !ok {
		if len(c.entries) >= c.capacity {
			c.evictOldestLocked()
		}
		e = &entry{}
		c.entries[conversationID] = e
	}

	e.turns = append(e.turns, human, agent)
	e.lastWrite = now
}

// Len reports the number of live conversations, counting unexpired only.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, e := range c.entries {
		if !c.expired(e) {
			n++
		}
	}
	return n
}

// Sweep removes all expired conversations and returns how many were
// dropped. Wired to the periodic maintenance scheduler.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for id, e := range c.entries {
		if c.expired(e) {
			delete(c.entries, id)
			removed++
		}
	}
	if removed > 0 {
		c.logger.Info().Int("removed", removed).Msg("Swept expired sessions")
	}
	return removed
}

func (c *Cache) expired(e *entry) bool {
	return c.now().Sub(e.lastWrite) >= c.ttl
}

// evictOldestLocked drops the entry with the oldest last write. Expired
// entries count as oldest by construction.
func (c *Cache) evictOldestLocked() {
	var oldestID string
	var oldest time.Time
	first := true

	for id, e := range c.entries {
		if first || e.lastWrite.Before(oldest) {
			oldestID = id
			oldest = e.lastWrite
			first = false
		}
	}

	if oldestID != "" {
		delete(c.entries, oldestID)
		c.logger.Debug().Str("conversation_id", oldestID).Msg("Evicted session at capacity")
	}
}
