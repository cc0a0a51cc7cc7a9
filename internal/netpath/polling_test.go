package netpath

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	paths []Path
}

func (r *recorder) handle(p Path) {
	r.mu.Lock()
	r.paths = append(r.paths, p)
	r.mu.Unlock()
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.paths)
}

func TestPollingSourceDeliversInitialAndTicks(t *testing.T) {
	mock := clock.NewMock()
	var up atomic.Bool
	in := &Inspector{
		SysRoot: t.TempDir(),
		Links: func() ([]Link, error) {
			flags := net.FlagUp | net.FlagRunning
			if !up.Load() {
				flags = 0
			}
			return []Link{{Name: "eth0", Flags: flags, Addrs: []net.IP{net.ParseIP("198.51.100.7")}}}, nil
		},
	}
	src := NewPollingSource(in, time.Second, mock)

	rec := &recorder{}
	sub, err := src.Subscribe(rec.handle)
	require.NoError(t, err)
	defer sub.Cancel()

	require.Eventually(t, func() bool { return rec.len() == 1 }, time.Second, 5*time.Millisecond)

	up.Store(true)
	mock.Add(time.Second)
	require.Eventually(t, func() bool { return rec.len() == 2 }, time.Second, 5*time.Millisecond)

	rec.mu.Lock()
	assert.Equal(t, StatusUnsatisfied, rec.paths[0].Status)
	assert.Equal(t, StatusSatisfied, rec.paths[1].Status)
	rec.mu.Unlock()
}

func TestPollingSourceCancelStopsDelivery(t *testing.T) {
	mock := clock.NewMock()
	src := NewPollingSource(&Inspector{SysRoot: t.TempDir(), Links: staticLinks()}, time.Second, mock)

	rec := &recorder{}
	sub, err := src.Subscribe(rec.handle)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return rec.len() == 1 }, time.Second, 5*time.Millisecond)

	sub.Cancel()
	sub.Cancel()
	mock.Add(5 * time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, rec.len())
}

func TestPollingSourceSubscribeFailsOnBrokenLister(t *testing.T) {
	boom := errors.New("permission denied")
	src := NewPollingSource(&Inspector{Links: func() ([]Link, error) { return nil, boom }}, 0, clock.NewMock())
	assert.Equal(t, DefaultPollInterval, src.Interval())

	sub, err := src.Subscribe(func(Path) {})
	assert.Nil(t, sub)
	assert.ErrorIs(t, err, boom)
}

type failingSource struct{ err error }

func (f failingSource) Subscribe(Handler) (Subscription, error) { return nil, f.err }
func (f failingSource) Probe(context.Context) (Path, error)     { return Path{}, f.err }

func TestFallbackSourceSwitchesOnFailure(t *testing.T) {
	mock := clock.NewMock()
	poll := NewPollingSource(&Inspector{SysRoot: t.TempDir(), Links: staticLinks()}, time.Second, mock)
	fb := &FallbackSource{Primary: failingSource{err: errors.New("EPERM")}, Fallback: poll}

	rec := &recorder{}
	sub, err := fb.Subscribe(rec.handle)
	require.NoError(t, err)
	defer sub.Cancel()

	require.Eventually(t, func() bool { return rec.len() == 1 }, time.Second, 5*time.Millisecond)

	_, err = fb.Probe(context.Background())
	assert.NoError(t, err, "probe goes through the fallback once it is active")
}

func TestFallbackSourceJoinsErrors(t *testing.T) {
	first, second := errors.New("first"), errors.New("second")
	fb := &FallbackSource{Primary: failingSource{err: first}, Fallback: failingSource{err: second}}

	_, err := fb.Subscribe(func(Path) {})
	assert.ErrorIs(t, err, first)
	assert.ErrorIs(t, err, second)
}

func TestNewPollSource(t *testing.T) {
	src, err := New(SourcePoll, nil, 2*time.Second, clock.NewMock())
	require.NoError(t, err)
	poll, ok := src.(*PollingSource)
	require.True(t, ok)
	assert.Equal(t, 2*time.Second, poll.Interval())

	_, err = New(SourceKind("bogus"), nil, 0, nil)
	assert.Error(t, err)
}
