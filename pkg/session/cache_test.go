package session

import (
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	t time.Time
}

func (f *fakeClock) Now() time.Time          { return f.t }
func (f *fakeClock) Advance(d time.Duration) { f.t = f.t.Add(d) }

func createTestCache(t *testing.T) (*Cache, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	c := New(Config{
		Now:    clock.Now,
		Logger: zerolog.New(nil).Level(zerolog.Disabled),
	})
	return c, clock
}

func TestCache_AppendAndHistory(t *testing.T) {
	c, _ := createTestCache(t)

	c.Append("chat-1",
		Turn{Speaker: SpeakerHuman, Text: "hello"},
		Turn{Speaker: SpeakerAgent, Text: "hi there"},
	)

	turns := c.History("chat-1")
	require.Len(t, turns, 2)
	assert.Equal(t, SpeakerHuman, turns[0].Speaker)
	assert.Equal(t, "hello", turns[0].Text)
	assert.Equal(t, SpeakerAgent, turns[1].Speaker)
}

func TestCache_MissingConversationIsEmpty(t *testing.T) {
	c, _ := createTestCache(t)
	assert.Nil(t, c.History("nope"))
}

func TestCache_ExpiresAfterTTL(t *testing.T) {
	c, clock := createTestCache(t)

	c.Append("chat-1", Turn{Speaker: SpeakerHuman, Text: "a"}, Turn{Speaker: SpeakerAgent, Text: "b"})

	// Still readable just before the TTL boundary
	clock.Advance(DefaultTTL - time.Second)
	assert.Len(t, c.History("chat-1"), 2)

	clock.Advance(2 * time.Second)
	assert.Nil(t, c.History("chat-1"))
}

func TestCache_WriteRefreshesTTL(t *testing.T) {
	c, clock := createTestCache(t)

	c.Append("chat-1", Turn{Speaker: SpeakerHuman, Text: "a"}, Turn{Speaker: SpeakerAgent, Text: "b"})

	clock.Advance(3 * time.Hour)
	c.Append("chat-1", Turn{Speaker: SpeakerHuman, Text: "c"}, Turn{Speaker: SpeakerAgent, Text: "d"})

	// 3h after the second write: first write is 6h old but the session lives
	clock.Advance(3 * time.Hour)
	assert.Len(t, c.History("chat-1"), 4)
}

func TestCache_CapacityEvictsExactlyOne(t *testing.T) {
	c, clock := createTestCache(t)

	for i := 0; i < DefaultCapacity; i++ {
		c.Append(fmt.Sprintf("chat-%d", i),
			Turn{Speaker: SpeakerHuman, Text: "q"},
			Turn{Speaker: SpeakerAgent, Text: "a"},
		)
		clock.Advance(time.Minute)
	}
	require.Equal(t, DefaultCapacity, c.Len())

	c.Append("chat-new", Turn{Speaker: SpeakerHuman, Text: "q"}, Turn{Speaker: SpeakerAgent, Text: "a"})

	assert.Equal(t, DefaultCapacity, c.Len())
	// Least recently written entry was chat-0
	assert.Nil(t, c.History("chat-0"))
	assert.NotNil(t, c.History("chat-1"))
	assert.NotNil(t, c.History("chat-new"))
}

func TestCache_AppendToExistingDoesNotEvict(t *testing.T) {
	c, clock := createTestCache(t)

	for i := 0; i < DefaultCapacity; i++ {
		c.Append(fmt.Sprintf("chat-%d", i),
			Turn{Speaker: SpeakerHuman, Text: "q"},
			Turn{Speaker: SpeakerAgent, Text: "a"},
		)
		clock.Advance(time.Minute)
	}

	c.Append("chat-0", Turn{Speaker: SpeakerHuman, Text: "q2"}, Turn{Speaker: SpeakerAgent, Text: "a2"})

	assert.Equal(t, DefaultCapacity, c.Len())
	assert.Len(t, c.History("chat-0"), 4)
}

func TestCache_Sweep(t *testing.T) {
	c, clock := createTestCache(t)

	c.Append("old", Turn{Speaker: SpeakerHuman, Text: "q"}, Turn{Speaker: SpeakerAgent, Text: "a"})
	clock.Advance(DefaultTTL + time.Minute)
	c.Append("fresh", Turn{Speaker: SpeakerHuman, Text: "q"}, Turn{Speaker: SpeakerAgent, Text: "a"})

	removed := c.Sweep()
	assert.Equal(t, 1, removed)
	assert.Nil(t, c.History("old"))
	assert.NotNil(t, c.History("fresh"))
}

func TestCache_HistoryReturnsCopy(t *testing.T) {
	c, _ := createTestCache(t)

	c.Append("chat-1", Turn{Speaker: SpeakerHuman, Text: "a"}, Turn{Speaker: SpeakerAgent, Text: "b"})

	turns := c.History("chat-1")
	turns[0].Text = "mutated"

	fresh := c.History("chat-1")
	assert.Equal(t, "a", fresh[0].Text)
}
