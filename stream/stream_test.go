package stream

import (
	"bytes"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberinferno/go-netengine/service"
	"github.com/cyberinferno/go-netengine/socket"
)

type recorder struct {
	ctl *Control

	mu       sync.Mutex
	received bytes.Buffer
	sent     int64
	pending  []int64
	empties  int
	errs     []*socket.Error
	drops    atomic.Int32
	active   atomic.Int32
	overlap  atomic.Bool
	dropped  chan struct{}
	dropOnce sync.Once
}

func newRecorder() *recorder {
	return &recorder{dropped: make(chan struct{})}
}

func (r *recorder) enter() func() {
	if r.active.Add(1) > 1 {
		r.overlap.Store(true)
	}

	return func() { r.active.Add(-1) }
}

func (r *recorder) OnReceived(data []byte) {
	defer r.enter()()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.received.Write(data)
}

func (r *recorder) OnSent(sent, pending int64) {
	defer r.enter()()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent += sent
	r.pending = append(r.pending, pending)
}

func (r *recorder) OnEmpty() {
	defer r.enter()()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.empties++
}

func (r *recorder) OnError(err *socket.Error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recorder) OnDrop() {
	r.drops.Add(1)
	r.ctl.Detach()
	r.dropOnce.Do(func() { close(r.dropped) })
}

func (r *recorder) receivedBytes() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]byte(nil), r.received.Bytes()...)
}

func (r *recorder) sentBytes() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sent
}

func (r *recorder) emptyCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.empties
}

func (r *recorder) errorCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errs)
}

func tcpPair(t *testing.T) (*net.TCPConn, *net.TCPConn) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, _ := ln.Accept()
		accepted <- c
	}()

	local, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	peer := <-accepted
	require.NotNil(t, peer)

	t.Cleanup(func() {
		_ = local.Close()
		_ = peer.Close()
	})

	return local.(*net.TCPConn), peer.(*net.TCPConn)
}

func newConn(t *testing.T, opts socket.Options, parent *Counters) (*Conn, *recorder, *net.TCPConn) {
	t.Helper()

	svc := service.New(service.Config{Threads: 4})
	require.True(t, svc.Start())
	t.Cleanup(func() { svc.Stop() })

	rec := newRecorder()
	c, ctl := New(Config{
		ID:      uuid.New(),
		Strand:  svc.NewStrand(),
		Hooks:   rec,
		Options: opts,
		Parent:  parent,
	})
	rec.ctl = ctl

	local, peer := tcpPair(t)
	require.NoError(t, ctl.Attach(local))
	t.Cleanup(func() { ctl.Detach() })

	return c, rec, peer
}

func waitDropped(t *testing.T, rec *recorder) {
	t.Helper()

	select {
	case <-rec.dropped:
	case <-time.After(5 * time.Second):
		t.Fatal("connection was not dropped")
	}
}

func TestConn_Detached(t *testing.T) {
	svc := service.New(service.Config{Threads: 1})
	c, ctl := New(Config{ID: uuid.New(), Strand: svc.NewStrand(), Hooks: newRecorder()})

	assert.False(t, c.IsConnected())
	assert.False(t, c.SendAsync([]byte("x")))
	assert.Equal(t, 0, c.Send([]byte("x")))
	assert.Equal(t, 0, c.Receive(make([]byte, 4)))
	assert.False(t, c.ReceiveAsync())
	assert.False(t, ctl.Detach())
	assert.True(t, c.LocalEndpoint().IsZero())
	assert.True(t, c.RemoteEndpoint().IsZero())
}

func TestConn_SendAsyncPreservesOrder(t *testing.T) {
	parent := &Counters{}
	c, rec, peer := newConn(t, socket.Options{}, parent)

	var want bytes.Buffer
	for i := range 200 {
		chunk := bytes.Repeat([]byte{byte(i)}, 100+i)
		want.Write(chunk)
		require.True(t, c.SendAsync(chunk))
	}

	got := make([]byte, want.Len())
	require.NoError(t, peer.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, err := io.ReadFull(peer, got)
	require.NoError(t, err)
	assert.Equal(t, want.Bytes(), got)

	require.Eventually(t, func() bool {
		return rec.sentBytes() == int64(want.Len()) && rec.emptyCount() >= 1
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, int64(want.Len()), c.BytesSent())
	assert.Equal(t, int64(0), c.BytesPending())
	assert.Equal(t, int64(want.Len()), parent.BytesSent())
	assert.Equal(t, int64(0), parent.BytesPending())
	assert.False(t, rec.overlap.Load())
}

func TestConn_SendBufferLimitDrops(t *testing.T) {
	c, rec, _ := newConn(t, socket.Options{SendBufferLimit: 10}, nil)

	assert.False(t, c.SendAsync(make([]byte, 11)))
	waitDropped(t, rec)
	assert.False(t, c.IsConnected())
	assert.Equal(t, int32(1), rec.drops.Load())
	assert.Equal(t, 0, rec.errorCount())
}

func TestConn_ReceiveAsync(t *testing.T) {
	parent := &Counters{}
	c, rec, peer := newConn(t, socket.Options{ReceiveBufferSize: 4}, parent)
	require.True(t, c.ReceiveAsync())
	require.True(t, c.ReceiveAsync(), "re-arming is a no-op")

	payload := bytes.Repeat([]byte("abcdefgh"), 512)
	_, err := peer.Write(payload)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return bytes.Equal(payload, rec.receivedBytes())
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, int64(len(payload)), c.BytesReceived())
	assert.Equal(t, int64(len(payload)), parent.BytesReceived())
	assert.True(t, c.IsConnected())
}

func TestConn_ReceiveBufferLimitDrops(t *testing.T) {
	c, rec, peer := newConn(t, socket.Options{ReceiveBufferSize: 4, ReceiveBufferLimit: 6}, nil)

	_, err := peer.Write(make([]byte, 64))
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)

	require.True(t, c.ReceiveAsync())
	waitDropped(t, rec)
	assert.False(t, c.IsConnected())
	assert.Equal(t, 0, rec.errorCount())
}

func TestConn_ReceiveBufferLimitBoundary(t *testing.T) {
	c, rec, peer := newConn(t, socket.Options{ReceiveBufferLimit: 100}, nil)
	require.True(t, c.ReceiveAsync())

	t.Run("exactly the limit is delivered", func(t *testing.T) {
		payload := bytes.Repeat([]byte{'L'}, 100)
		_, err := peer.Write(payload)
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			return bytes.Equal(payload, rec.receivedBytes())
		}, 5*time.Second, 10*time.Millisecond)

		time.Sleep(20 * time.Millisecond)
		assert.True(t, c.IsConnected())
		assert.Zero(t, rec.drops.Load())
	})

	t.Run("more than the limit drops", func(t *testing.T) {
		_, err := peer.Write(make([]byte, 300))
		require.NoError(t, err)

		waitDropped(t, rec)
		assert.False(t, c.IsConnected())
		assert.Equal(t, 0, rec.errorCount())
	})
}

func TestConn_ReceiveResumesAfterServiceRestart(t *testing.T) {
	c, rec, peer := newConn(t, socket.Options{}, nil)
	require.True(t, c.ReceiveAsync())

	svc := c.strand.Service()
	require.True(t, svc.Stop())
	_, err := peer.Write([]byte("held"))
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, rec.receivedBytes())

	require.True(t, svc.Start())
	_, err = peer.Write([]byte("+more"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return bytes.Equal([]byte("held+more"), rec.receivedBytes())
	}, 5*time.Second, 10*time.Millisecond)
	assert.True(t, c.IsConnected())
}

func TestConn_DetachWhileServiceStopped(t *testing.T) {
	c, rec, peer := newConn(t, socket.Options{}, nil)
	require.True(t, c.ReceiveAsync())

	svc := c.strand.Service()
	require.True(t, svc.Stop())
	_, err := peer.Write([]byte("lost"))
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)

	require.True(t, rec.ctl.Detach())
	require.True(t, svc.Start())
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, rec.receivedBytes())
	assert.False(t, c.IsConnected())
}

func TestConn_PeerCloseDropsWithoutError(t *testing.T) {
	c, rec, peer := newConn(t, socket.Options{}, nil)
	require.True(t, c.ReceiveAsync())

	require.NoError(t, peer.Close())
	waitDropped(t, rec)
	assert.False(t, c.IsConnected())
	assert.Equal(t, 0, rec.errorCount())
}

func TestConn_SyncSendReceive(t *testing.T) {
	c, rec, peer := newConn(t, socket.Options{}, nil)

	t.Run("send", func(t *testing.T) {
		assert.Equal(t, 5, c.SendText("hello"))

		buf := make([]byte, 5)
		require.NoError(t, peer.SetReadDeadline(time.Now().Add(5*time.Second)))
		_, err := io.ReadFull(peer, buf)
		require.NoError(t, err)
		assert.Equal(t, "hello", string(buf))

		require.Eventually(t, func() bool { return rec.sentBytes() == 5 }, 5*time.Second, 10*time.Millisecond)
	})

	t.Run("receive", func(t *testing.T) {
		_, err := peer.Write([]byte("world"))
		require.NoError(t, err)

		assert.Equal(t, "world", c.ReceiveTextWithTimeout(5, 5*time.Second))
		assert.Equal(t, int64(5), c.BytesReceived())
		require.Eventually(t, func() bool { return string(rec.receivedBytes()) == "world" }, 5*time.Second, 10*time.Millisecond)
	})

	t.Run("receive timeout keeps connection", func(t *testing.T) {
		start := time.Now()
		assert.Equal(t, 0, c.ReceiveWithTimeout(make([]byte, 8), 50*time.Millisecond))
		assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
		assert.True(t, c.IsConnected())
		assert.Equal(t, int32(0), rec.drops.Load())
	})

	t.Run("endpoints", func(t *testing.T) {
		assert.Equal(t, peer.RemoteAddr().String(), c.LocalEndpoint().String())
		assert.Equal(t, peer.LocalAddr().String(), c.RemoteEndpoint().String())
	})
}

func TestConn_Options(t *testing.T) {
	c, _, _ := newConn(t, socket.Options{KeepAlive: true}, nil)

	assert.True(t, c.OptionKeepAlive())
	c.SetupKeepAlive(false)
	c.SetupNoDelay(true)
	c.SetupReceiveBufferLimit(1 << 20)
	c.SetupSendBufferLimit(1 << 19)
	c.SetupReceiveBufferSize(32 * 1024)
	c.SetupSendBufferSize(32 * 1024)

	assert.False(t, c.OptionKeepAlive())
	assert.True(t, c.OptionNoDelay())
	assert.Equal(t, 1<<20, c.OptionReceiveBufferLimit())
	assert.Equal(t, 1<<19, c.OptionSendBufferLimit())
	assert.Positive(t, c.OptionReceiveBufferSize())
	assert.Positive(t, c.OptionSendBufferSize())
}

func TestControl_AttachResetsCounters(t *testing.T) {
	c, rec, peer := newConn(t, socket.Options{}, nil)
	assert.Equal(t, 3, c.SendText("abc"))
	_, _ = io.ReadFull(peer, make([]byte, 3))
	assert.Equal(t, int64(3), c.BytesSent())

	local, _ := tcpPair(t)
	require.NoError(t, rec.ctl.Attach(local))
	assert.Equal(t, int64(0), c.BytesSent())
	assert.True(t, c.IsConnected())

	assert.True(t, rec.ctl.Detach())
	assert.False(t, rec.ctl.Detach())
}
