package broker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func receiveN[T any](t *testing.T, ch <-chan T, n int) []T {
	var ts []T
	for range n {
		select {
		case v, ok := <-ch:
			require.True(t, ok, "channel closed early")
			ts = append(ts, v)
		case <-time.After(5 * time.Second):
			t.Fatalf("timeout after %d messages", len(ts))
		}
	}
	return ts
}

func TestBrokerOrderPerSubscriber(t *testing.T) {
	b := NewBroker[int]()
	defer b.Close()

	a := b.Subscribe("a", 0)
	c := b.Subscribe("c", 1)

	expected := []int{}
	for i := range 200 {
		b.Publish(i)
		expected = append(expected, i)
	}

	require.Equal(t, expected, receiveN(t, a, 200))
	require.Equal(t, expected, receiveN(t, c, 200))
}

func TestBrokerPublishDoesNotBlock(t *testing.T) {
	b := NewBroker[int]()
	defer b.Close()

	_ = b.Subscribe("slow", 0)

	done := make(chan struct{})
	go func() {
		for i := range 10000 {
			b.Publish(i)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publish blocked on a subscriber that never reads")
	}
}

func TestBrokerUnsubscribeAndClose(t *testing.T) {
	b := NewBroker[string]()

	a := b.Subscribe("a", 10)
	c := b.Subscribe("c", 10)

	b.Unsubscribe("a")
	_, ok := <-a
	require.False(t, ok)

	b.Publish("ok")
	require.Equal(t, []string{"ok"}, receiveN(t, c, 1))

	b.Close()
	_, ok = <-c
	require.False(t, ok)

	b.Publish("ignored")
}
