package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"glass-voice/internal/builder"
	"glass-voice/internal/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type memSnapshots struct {
	mu      sync.Mutex
	data    map[string]Snapshot
	loadErr error
	deleted []string
}

func newMemSnapshots() *memSnapshots {
	return &memSnapshots{data: map[string]Snapshot{}}
}

func (m *memSnapshots) Load(_ context.Context, key string) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	snap, ok := m.data[key]
	if !ok {
		return nil, nil
	}
	return &snap, nil
}

func (m *memSnapshots) Save(_ context.Context, snap Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[snap.Key] = snap
	return nil
}

func (m *memSnapshots) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	m.deleted = append(m.deleted, key)
	return nil
}

func TestGetOrCreate(t *testing.T) {
	st := NewStore()
	ctx := context.Background()

	_, ok := st.Get("a")
	require.False(t, ok)

	a := st.GetOrCreate(ctx, "a")
	require.Equal(t, "a", a.Key)
	require.False(t, a.StartedAt.IsZero())
	require.Same(t, a, st.GetOrCreate(ctx, "a"))

	got, ok := st.Get("a")
	require.True(t, ok)
	require.Same(t, a, got)
	require.Equal(t, []string{"a"}, st.Keys())
}

func TestDelete(t *testing.T) {
	snaps := newMemSnapshots()
	st := NewStore(WithSnapshotter(snaps))
	ctx := context.Background()

	st.GetOrCreate(ctx, "a")
	require.True(t, st.Delete(ctx, "a"))
	require.False(t, st.Delete(ctx, "a"))
	require.Equal(t, 0, st.Len())
	require.Equal(t, []string{"a", "a"}, snaps.deleted)
}

func TestSave_SkipsDeletedSession(t *testing.T) {
	snaps := newMemSnapshots()
	st := NewStore(WithSnapshotter(snaps))
	ctx := context.Background()

	sess := st.GetOrCreate(ctx, "a")
	sess.Lock()
	sess.AppendTurn(domain.SpeakerUser, "hello", st.Now())
	require.True(t, st.Delete(ctx, "a"))
	require.True(t, sess.Closed())
	st.Save(ctx, sess)
	sess.Unlock()

	snap, err := snaps.Load(ctx, "a")
	require.NoError(t, err)
	require.Nil(t, snap)

	fresh := st.GetOrCreate(ctx, "a")
	require.NotSame(t, sess, fresh)
	require.False(t, fresh.Closed())
	require.Empty(t, fresh.Turns)
}

func TestAppendTurn_Bounded(t *testing.T) {
	st := NewStore(WithLimits(20, 10))
	sess := st.GetOrCreate(context.Background(), "a")

	now := time.Now()
	for i := 0; i < 55; i++ {
		sess.AppendTurn(domain.SpeakerUser, fmt.Sprintf("turn %d", i), now)
		require.LessOrEqual(t, len(sess.Turns), 20)
	}
	require.Equal(t, 55, sess.TotalTurns)
	require.Equal(t, "turn 54", sess.Turns[len(sess.Turns)-1].Text)
}

func TestAppendTurn_TrimKeepsRecent(t *testing.T) {
	st := NewStore(WithLimits(4, 2))
	sess := st.GetOrCreate(context.Background(), "a")

	for i := 0; i < 5; i++ {
		sess.AppendTurn(domain.SpeakerUser, fmt.Sprint(i), time.Now())
	}
	require.Len(t, sess.Turns, 2)
	require.Equal(t, "3", sess.Turns[0].Text)
	require.Equal(t, "4", sess.Turns[1].Text)
}

func TestNewStore_RetainBelowMax(t *testing.T) {
	st := NewStore(WithLimits(6, 6))
	require.Equal(t, 3, st.retainTurns)
}

func TestInterrupt(t *testing.T) {
	sess := NewStore().GetOrCreate(context.Background(), "a")
	sess.AssistantSpeaking = true
	sess.PendingOutput = "half a sentence"

	sess.Interrupt(time.Now())
	require.False(t, sess.AssistantSpeaking)
	require.Empty(t, sess.PendingOutput)
	require.Equal(t, 1, sess.Interruptions)
	require.True(t, sess.AwaitingInput)
}

func TestClearHistory(t *testing.T) {
	sess := NewStore().GetOrCreate(context.Background(), "a")
	sess.AppendTurn(domain.SpeakerUser, "hello", time.Now())
	sess.Builder = builder.New(50)
	sess.Topic = "orders"

	sess.ClearHistory()
	require.Empty(t, sess.Turns)
	require.Nil(t, sess.Builder)
	require.Empty(t, sess.Topic)
}

func TestEvictIdle(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)}
	st := NewStore(WithClock(clock.Now))
	ctx := context.Background()

	st.GetOrCreate(ctx, "old")
	clock.Advance(20 * time.Minute)
	fresh := st.GetOrCreate(ctx, "fresh")
	busy := st.GetOrCreate(ctx, "busy")
	busy.LastActivity = clock.Now().Add(-time.Hour)
	clock.Advance(15 * time.Minute)

	busy.Lock()
	evicted := st.EvictIdle(30 * time.Minute)
	busy.Unlock()

	require.Equal(t, []string{"old"}, evicted)
	require.ElementsMatch(t, []string{"busy", "fresh"}, st.Keys())
	_, ok := st.Get(fresh.Key)
	require.True(t, ok)

	require.Nil(t, st.EvictIdle(0))
}

func TestGetOrCreate_RestoresSnapshot(t *testing.T) {
	snaps := newMemSnapshots()
	b := builder.New(50)
	b.Apply("tempered")
	snaps.data["a"] = Snapshot{
		Key:        "a",
		Turns:      []domain.Turn{{Speaker: domain.SpeakerUser, Text: "tempered"}},
		Topic:      "orders",
		Builder:    b,
		TotalTurns: 7,
	}
	st := NewStore(WithSnapshotter(snaps))

	sess := st.GetOrCreate(context.Background(), "a")
	require.Len(t, sess.Turns, 1)
	require.Equal(t, "orders", sess.Topic)
	require.Equal(t, 7, sess.TotalTurns)
	require.NotNil(t, sess.Builder)
	require.Equal(t, builder.StepDimensions, sess.Builder.Step)
}

func TestGetOrCreate_SnapshotErrorStartsFresh(t *testing.T) {
	snaps := newMemSnapshots()
	snaps.loadErr = errors.New("redis down")
	st := NewStore(WithSnapshotter(snaps))

	sess := st.GetOrCreate(context.Background(), "a")
	require.Empty(t, sess.Turns)
	require.Equal(t, 1, st.Len())
}

func TestSave_CopiesBuilder(t *testing.T) {
	snaps := newMemSnapshots()
	st := NewStore(WithSnapshotter(snaps))
	sess := st.GetOrCreate(context.Background(), "a")
	sess.Builder = builder.New(50)

	st.Save(context.Background(), sess)
	sess.Builder.GlassType = builder.GlassFloat

	require.Empty(t, snaps.data["a"].Builder.GlassType)
}

func TestSessionIsolation(t *testing.T) {
	st := NewStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, key := range []string{"s1", "s2"} {
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(key string, i int) {
				defer wg.Done()
				sess := st.GetOrCreate(ctx, key)
				sess.Lock()
				defer sess.Unlock()
				if sess.Builder == nil {
					sess.Builder = builder.New(50)
				}
				if key == "s1" {
					sess.Builder.Apply("tempered")
				} else {
					sess.Builder.Quantity++
				}
				sess.AppendTurn(domain.SpeakerUser, key, time.Now())
			}(key, i)
		}
	}
	wg.Wait()

	s1, _ := st.Get("s1")
	s2, _ := st.Get("s2")
	require.Equal(t, builder.GlassTempered, s1.Builder.GlassType)
	require.Zero(t, s1.Builder.Quantity)
	require.Empty(t, s2.Builder.GlassType)
	require.Equal(t, 50, s2.Builder.Quantity)
	require.Equal(t, 50, s1.TotalTurns)
	require.Equal(t, 50, s2.TotalTurns)
	for _, turn := range s2.Turns {
		require.Equal(t, "s2", turn.Text)
	}
}

func TestTruncate(t *testing.T) {
	sess := NewStore().GetOrCreate(context.Background(), "a")
	for i := 0; i < 6; i++ {
		sess.AppendTurn(domain.SpeakerUser, fmt.Sprint(i), time.Now())
	}
	sess.Truncate(2)
	require.Len(t, sess.Turns, 2)
	require.Equal(t, "5", sess.Turns[1].Text)
	require.Equal(t, 6, sess.SummarizedAt)
}
