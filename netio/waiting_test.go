package netio_test

import (
	"errors"
	"testing"
	"time"

	"github.com/momentics/hioload-net/api"
	"github.com/momentics/hioload-net/netio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWaitingObject(t *testing.T, svc *netio.Services) *netio.WaitingObject {
	t.Helper()
	wo, err := netio.NewWaitingObject(svc)
	require.NoError(t, err)
	t.Cleanup(func() { _ = wo.Close() })
	return wo
}

func TestWaitingObjectWakeUp(t *testing.T) {
	svc := newServices(t)
	wo := newWaitingObject(t, svc)
	assert.False(t, wo.HasItems())

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = wo.WakeUp(7)
	}()

	done := make(chan netio.Event, 1)
	go func() {
		ev, err := wo.Next()
		assert.NoError(t, err)
		done <- ev
	}()

	select {
	case ev := <-done:
		assert.True(t, ev.IsWakeUp())
		assert.Nil(t, ev.Resource)
		assert.Equal(t, 7, ev.Reason)
	case <-time.After(2 * time.Second):
		t.Fatal("WakeUp did not interrupt Next")
	}
	assert.Equal(t, uint64(1), wo.WakeCount())
}

func TestWaitingObjectOneWakeUpPerCall(t *testing.T) {
	wo := newWaitingObject(t, newServices(t))
	require.NoError(t, wo.WakeUp(1))
	require.NoError(t, wo.WakeUp(2))

	ev, err := wo.Next()
	require.NoError(t, err)
	assert.Equal(t, 1, ev.Reason)
	ev, err = wo.Next()
	require.NoError(t, err)
	assert.Equal(t, 2, ev.Reason)

	undisturbed, err := wo.Sleep(20 * time.Millisecond)
	require.NoError(t, err)
	assert.True(t, undisturbed)
}

func TestWaitingObjectOneShot(t *testing.T) {
	svc := newServices(t)
	wo := newWaitingObject(t, svc)
	client, server := pair(t, svc)

	_, err := client.Write([]byte("x"))
	require.NoError(t, err)

	require.NoError(t, wo.Add(server, api.EventReadable, api.Infinite))
	assert.True(t, wo.HasItems())

	ev, err := wo.Next()
	require.NoError(t, err)
	assert.Same(t, server, ev.Resource)
	assert.Equal(t, api.EventReadable, ev.Mask)
	assert.False(t, wo.HasItems())

	// still readable, yet not reported again
	undisturbed, err := wo.Sleep(30 * time.Millisecond)
	require.NoError(t, err)
	assert.True(t, undisturbed)

	require.NoError(t, wo.Add(server, api.EventNone, api.Infinite))
	ev, err = wo.Next()
	require.NoError(t, err)
	assert.Same(t, server, ev.Resource)
}

func TestWaitingObjectRegistrationTimeout(t *testing.T) {
	svc := newServices(t)
	wo := newWaitingObject(t, svc)
	_, server := pair(t, svc)

	require.NoError(t, wo.Add(server, api.EventReadable, 20*time.Millisecond))
	start := time.Now()
	ev, err := wo.Next()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
	assert.Same(t, server, ev.Resource)
	assert.Equal(t, api.EventNone, ev.Mask)
	assert.False(t, wo.HasItems())
}

func TestWaitingObjectPeek(t *testing.T) {
	svc := newServices(t)
	wo := newWaitingObject(t, svc)
	client, server := pair(t, svc)

	_, err := client.Write([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, wo.Add(server, api.EventReadable, api.Infinite))

	first, err := wo.Peek()
	require.NoError(t, err)
	second, err := wo.Peek()
	require.NoError(t, err)
	assert.Equal(t, first, second)

	undisturbed, err := wo.Sleep(time.Second)
	require.NoError(t, err)
	assert.False(t, undisturbed)

	taken, err := wo.Next()
	require.NoError(t, err)
	assert.Equal(t, first, taken)
}

func TestWaitingObjectAscendingOrder(t *testing.T) {
	svc := newServices(t)
	wo := newWaitingObject(t, svc)

	var servers []*netio.Stream
	for i := 0; i < 3; i++ {
		client, server := pair(t, svc)
		_, err := client.Write([]byte("x"))
		require.NoError(t, err)
		servers = append(servers, server)
	}
	time.Sleep(20 * time.Millisecond)
	for i := len(servers) - 1; i >= 0; i-- {
		require.NoError(t, wo.Add(servers[i], api.EventReadable, api.Infinite))
	}

	var last uintptr
	for i := 0; i < 3; i++ {
		ev, err := wo.Next()
		require.NoError(t, err)
		assert.Greater(t, ev.Resource.Fd(), last)
		last = ev.Resource.Fd()
	}
}

func TestWaitingObjectRemove(t *testing.T) {
	svc := newServices(t)
	wo := newWaitingObject(t, svc)
	client, server := pair(t, svc)

	require.NoError(t, wo.Remove(server))
	require.NoError(t, wo.Add(server, api.EventReadable, api.Infinite))
	require.NoError(t, wo.Remove(server))
	assert.False(t, wo.HasItems())

	_, err := client.Write([]byte("x"))
	require.NoError(t, err)
	undisturbed, err := wo.Sleep(30 * time.Millisecond)
	require.NoError(t, err)
	assert.True(t, undisturbed)
}

func TestWaitingObjectAsWaitHandler(t *testing.T) {
	svc := newServices(t)
	wo := newWaitingObject(t, svc)
	client, server := pair(t, svc)
	server.SetWaitHandler(wo)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_, _ = client.Write([]byte("hi"))
	}()
	buf := make([]byte, 2)
	n, err := server.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "hi"[:n], string(buf[:n]))
	assert.False(t, wo.HasItems())

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = wo.WakeUp(9)
	}()
	server.SetTimeout(5 * time.Second)
	_, err = server.Read(make([]byte, 8))
	require.ErrorIs(t, err, api.ErrInterrupted)
	var e *api.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, 9, e.ContextValue("reason"))

	// the stream survives the interruption
	server.SetTimeout(20 * time.Millisecond)
	_, err = server.Read(make([]byte, 8))
	assert.True(t, api.IsTimeout(err))
}

func TestWaitingObjectListenerRegistration(t *testing.T) {
	svc := newServices(t)
	wo := newWaitingObject(t, svc)
	src, local := listenLoopback(t, svc, 1)

	require.NoError(t, wo.Add(src, api.EventNone, api.UseResourceTimeout))
	dial(t, svc, local)

	ev, err := wo.Next()
	require.NoError(t, err)
	assert.Same(t, src, ev.Resource)
	assert.Equal(t, api.EventReadable, ev.Mask)

	st, err := src.Next()
	require.NoError(t, err)
	st.Close()
}

func TestWaitingObjectClosed(t *testing.T) {
	wo, err := netio.NewWaitingObject(nil)
	require.NoError(t, err)
	require.NoError(t, wo.Close())
	require.NoError(t, wo.Close())

	_, err = wo.Next()
	assert.ErrorIs(t, err, api.ErrClosed)
	assert.ErrorIs(t, wo.WakeUp(1), api.ErrClosed)
}
