package sse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmit_DeliversToConcertSubscribersOnly(t *testing.T) {
	e := NewAvailabilityEmitter()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := e.Subscribe(ctx, "c1")
	b := e.Subscribe(ctx, "c2")

	e.Emit("c1", 0, 1)

	select {
	case u := <-a:
		assert.Equal(t, "c1", u.ConcertID)
		assert.Equal(t, 0, u.NumAvail)
		assert.True(t, u.SoldOut)
	case <-time.After(time.Second):
		t.Fatal("no update delivered")
	}

	select {
	case u := <-b:
		t.Fatalf("unexpected update %+v", u)
	default:
	}
}

func TestEmit_SkipsFullClients(t *testing.T) {
	e := NewAvailabilityEmitter()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := e.Subscribe(ctx, "c1")
	for i := 0; i < 25; i++ {
		e.Emit("c1", i, int64(i+1))
	}
	assert.Len(t, ch, cap(ch))
}

func TestSubscribe_RemovedOnCancel(t *testing.T) {
	e := NewAvailabilityEmitter()
	ctx, cancel := context.WithCancel(context.Background())

	ch := e.Subscribe(ctx, "c1")
	require.Equal(t, 1, e.ClientCount("c1"))

	cancel()
	require.Eventually(t, func() bool { return e.ClientCount("c1") == 0 }, time.Second, 5*time.Millisecond)

	_, open := <-ch
	assert.False(t, open)

	e.Emit("c1", 3, 1)
}

func TestEmit_DropsStaleVersions(t *testing.T) {
	e := NewAvailabilityEmitter()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := e.Subscribe(ctx, "c1")
	e.Emit("c1", 3, 5)
	e.Emit("c1", 5, 4)
	e.Emit("c1", 3, 5)
	e.Emit("c1", 1, 6)

	require.Len(t, ch, 2)
	first, second := <-ch, <-ch
	assert.Equal(t, int64(5), first.Version)
	assert.Equal(t, 3, first.NumAvail)
	assert.Equal(t, int64(6), second.Version)
	assert.Equal(t, 1, second.NumAvail)
}

func TestEmit_VersionsArePerConcert(t *testing.T) {
	e := NewAvailabilityEmitter()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := e.Subscribe(ctx, "c1")
	b := e.Subscribe(ctx, "c2")
	e.Emit("c1", 3, 10)
	e.Emit("c2", 7, 2)

	assert.Len(t, a, 1)
	assert.Len(t, b, 1)
}
