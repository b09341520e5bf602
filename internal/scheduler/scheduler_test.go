package scheduler

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clip-quickview/internal/display"
	"clip-quickview/internal/sources"
	"clip-quickview/internal/workpool"
)

type testClip struct {
	frames int
	closed atomic.Bool
}

func (c *testClip) NumFrames() int { return c.frames }

func (c *testClip) Close() error {
	c.closed.Store(true)
	return nil
}

type countingClip struct {
	frames int
	closes atomic.Int32
}

func (c *countingClip) NumFrames() int { return c.frames }

func (c *countingClip) Close() error {
	c.closes.Add(1)
	return nil
}

type gate struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

type decodeKey struct {
	clip  sources.Clip
	frame int
}

// fakeDecoder returns a frame-sized gray image. Frames can be held at a gate,
// made to fail or made to panic.
type fakeDecoder struct {
	mu     sync.Mutex
	gates  map[int]*gate
	fail   map[int]error
	panics map[int]bool
	calls  map[decodeKey]int
}

func newFakeDecoder() *fakeDecoder {
	return &fakeDecoder{
		gates:  make(map[int]*gate),
		fail:   make(map[int]error),
		panics: make(map[int]bool),
		calls:  make(map[decodeKey]int),
	}
}

func (d *fakeDecoder) hold(frame int) *gate {
	d.mu.Lock()
	defer d.mu.Unlock()

	g := &gate{entered: make(chan struct{}), release: make(chan struct{})}
	d.gates[frame] = g
	return g
}

func (d *fakeDecoder) failWith(frame int, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail[frame] = err
}

func (d *fakeDecoder) panicOn(frame int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.panics[frame] = true
}

func (d *fakeDecoder) callCount(src *sources.Source, frame int) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[decodeKey{clip: src.Clip(), frame: frame}]
}

func (d *fakeDecoder) Decode(src *sources.Source, frame int) (image.Image, error) {
	d.mu.Lock()
	d.calls[decodeKey{clip: src.Clip(), frame: frame}]++
	g := d.gates[frame]
	err := d.fail[frame]
	shouldPanic := d.panics[frame]
	d.mu.Unlock()

	if g != nil {
		g.once.Do(func() { close(g.entered) })
		<-g.release
	}
	if shouldPanic {
		panic("corrupt bitstream")
	}
	if err != nil {
		return nil, err
	}
	return image.NewGray(image.Rect(0, 0, frame+1, 1)), nil
}

type fixture struct {
	sched   *Scheduler
	decoder *fakeDecoder
	sink    *display.Sink
	table   *sources.Table
}

func newFixture(t *testing.T, mutate func(*Options)) *fixture {
	t.Helper()

	opts := DefaultOptions()
	opts.Placeholder = image.NewRGBA(image.Rect(0, 0, 2, 2))
	if mutate != nil {
		mutate(&opts)
	}

	f := &fixture{
		decoder: newFakeDecoder(),
		sink:    display.NewSink(nil),
		table:   sources.NewTable(),
	}
	f.sched = New(f.table, f.decoder, f.sink, opts)
	t.Cleanup(f.sched.Shutdown)
	return f
}

func (f *fixture) register(t *testing.T, index, frames int) (*sources.Source, *testClip) {
	t.Helper()

	clip := &testClip{frames: frames}
	src := sources.NewSource(clip, sources.DefaultColor())
	require.NoError(t, f.sched.Register(index, src, "clip"))
	return src, clip
}

func (f *fixture) waitSeq(t *testing.T, seq uint64) display.Frame {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	frame, err := f.sink.WaitFor(ctx, seq)
	require.NoError(t, err)
	return frame
}

func waitEntered(t *testing.T, g *gate) {
	t.Helper()

	select {
	case <-g.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("decode never started")
	}
}

func TestDisplayPublishesDecodedFrame(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.register(t, 0, 100)

	require.NoError(t, f.sched.RequestDisplay(0, 42))
	got := f.waitSeq(t, 1)

	assert.Equal(t, 0, got.Index)
	assert.Equal(t, 42, got.FrameNumber)
	assert.False(t, got.Placeholder)
	assert.Equal(t, image.Rect(0, 0, 43, 1), got.Image.Bounds())

	f.sched.Wait()
	if diff := cmp.Diff([]int{42}, f.sched.CachedFrames(0)); diff != "" {
		t.Fatalf("cached frames (-want +got):\n%s", diff)
	}
}

func TestLastRequestWinsWhenOlderDecodeFinishesLate(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.register(t, 0, 100)
	slow := f.decoder.hold(1)

	require.NoError(t, f.sched.RequestDisplay(0, 1))
	waitEntered(t, slow)
	require.NoError(t, f.sched.RequestDisplay(0, 2))

	got := f.waitSeq(t, 1)
	assert.Equal(t, 2, got.FrameNumber)

	close(slow.release)
	f.sched.Wait()

	final := f.sink.Snapshot()
	assert.EqualValues(t, 1, final.Seq, "the late decode must not publish")
	assert.Equal(t, 2, final.FrameNumber)

	stats := f.sched.Stats()
	assert.EqualValues(t, 1, stats.Superseded)
	assert.EqualValues(t, 1, stats.Satisfied)
}

func TestOlderClaimFinishesPublishingBeforeNewerClaims(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	olderGen, _ := f.sched.pending.Push(0, 1)
	generation, _ := f.sched.pending.Push(0, 2)

	newer := request{index: 0, frame: 2, generation: generation, display: true}
	newerDone := make(chan struct{})
	var once sync.Once
	unsubscribe := f.sink.Subscribe(func(fr display.Frame) {
		if fr.FrameNumber != 1 {
			return
		}
		once.Do(func() {
			go func() {
				defer close(newerDone)
				f.sched.present(newer, image.NewGray(image.Rect(0, 0, 3, 1)), false)
			}()
			select {
			case <-newerDone:
				t.Error("newer result published while the older publish was in progress")
			case <-time.After(50 * time.Millisecond):
			}
		})
	})
	defer unsubscribe()

	f.sched.present(request{index: 0, frame: 1, generation: olderGen, display: true},
		image.NewGray(image.Rect(0, 0, 2, 1)), false)
	<-newerDone

	got := f.sink.Snapshot()
	assert.Equal(t, 2, got.FrameNumber)
	assert.EqualValues(t, 2, got.Seq)
	assert.EqualValues(t, 2, f.sched.Stats().Satisfied)
}

func TestRapidRequestsEndOnNewest(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.register(t, 0, 500)

	for frame := 0; frame < 200; frame++ {
		require.NoError(t, f.sched.RequestDisplay(0, frame))
	}
	f.sched.Wait()

	final := f.sink.Snapshot()
	assert.Equal(t, 199, final.FrameNumber)
	assert.Zero(t, f.sched.Stats().Pending)
}

func TestFullPoolAlternatesPreemptAndEnqueue(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(o *Options) { o.DisplayWorkers = 1 })
	src, _ := f.register(t, 0, 100)
	busy := f.decoder.hold(0)

	require.NoError(t, f.sched.RequestDisplay(0, 0))
	waitEntered(t, busy)

	// One marker already pushed: odd, so this one waits in the queue.
	require.NoError(t, f.sched.RequestDisplay(0, 1))
	// Two markers pushed: even, so the queued request is dropped.
	require.NoError(t, f.sched.RequestDisplay(0, 2))

	close(busy.release)
	f.sched.Wait()

	stats := f.sched.Stats()
	assert.EqualValues(t, 1, stats.Enqueues)
	assert.EqualValues(t, 1, stats.Preemptions)
	assert.EqualValues(t, 1, stats.Dropped)
	assert.Zero(t, f.decoder.callCount(src, 1), "dropped request must never decode")

	final := f.sink.Snapshot()
	assert.Equal(t, 2, final.FrameNumber)
	assert.EqualValues(t, 2, final.Seq)
}

func TestEmptySlotAndOutOfRangeShowPlaceholder(t *testing.T) {
	t.Parallel()

	var opts Options
	f := newFixture(t, func(o *Options) { opts = *o })
	f.register(t, 0, 10)

	require.NoError(t, f.sched.RequestDisplay(5, 0))
	got := f.waitSeq(t, 1)
	assert.True(t, got.Placeholder)
	assert.Same(t, opts.Placeholder, got.Image)

	require.NoError(t, f.sched.RequestDisplay(0, 10))
	got = f.waitSeq(t, 2)
	assert.True(t, got.Placeholder)

	require.NoError(t, f.sched.RequestDisplay(0, -3))
	got = f.waitSeq(t, 3)
	assert.True(t, got.Placeholder)

	f.sched.Wait()
	assert.EqualValues(t, 3, f.sched.Stats().Placeholders)
	assert.Zero(t, f.sched.Stats().DecodeFailures)
}

func TestDecodeFailureShowsPlaceholderAndReports(t *testing.T) {
	t.Parallel()

	errBoom := errors.New("boom")
	reported := make(chan *DecodeError, 1)
	f := newFixture(t, func(o *Options) {
		o.OnDecodeError = func(err *DecodeError) { reported <- err }
	})
	f.register(t, 4, 10)
	f.decoder.failWith(3, errBoom)

	require.NoError(t, f.sched.RequestDisplay(4, 3))
	got := f.waitSeq(t, 1)
	assert.True(t, got.Placeholder)

	select {
	case err := <-reported:
		assert.Equal(t, 4, err.Index)
		assert.Equal(t, 3, err.Frame)
		assert.ErrorIs(t, err, errBoom)
	case <-time.After(5 * time.Second):
		t.Fatal("decode error not reported")
	}

	f.sched.Wait()
	assert.Empty(t, f.sched.CachedFrames(4))
	assert.EqualValues(t, 1, f.sched.Stats().DecodeFailures)

	// Other requests keep working.
	require.NoError(t, f.sched.RequestDisplay(4, 4))
	got = f.waitSeq(t, 2)
	assert.False(t, got.Placeholder)
}

func TestDecoderPanicIsADecodeFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.register(t, 0, 10)
	f.decoder.panicOn(2)

	require.NoError(t, f.sched.RequestDisplay(0, 2))
	got := f.waitSeq(t, 1)
	assert.True(t, got.Placeholder)

	f.sched.Wait()
	assert.EqualValues(t, 1, f.sched.Stats().DecodeFailures)
	assert.Zero(t, f.sched.Stats().DisplayPool.Panics)
}

func TestCacheHitSkipsDecode(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	src, _ := f.register(t, 0, 100)

	for _, frame := range []int{5, 6, 5} {
		require.NoError(t, f.sched.RequestDisplay(0, frame))
		f.sched.Wait()
	}

	assert.Equal(t, 1, f.decoder.callCount(src, 5))
	assert.EqualValues(t, 1, f.sched.Stats().CacheHits)
	assert.Equal(t, 5, f.sink.Snapshot().FrameNumber)
	assert.EqualValues(t, 3, f.sink.Snapshot().Seq)
}

func TestPrefetchWarmsNeighbors(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.register(t, 0, 100)
	f.register(t, 3, 100)
	f.register(t, 7, 100)

	require.NoError(t, f.sched.RequestDisplay(3, 10))
	f.sched.Wait()

	for _, index := range []int{0, 3, 7} {
		if diff := cmp.Diff([]int{10}, f.sched.CachedFrames(index)); diff != "" {
			t.Errorf("slot %d cache (-want +got):\n%s", index, diff)
		}
	}
	assert.EqualValues(t, 2, f.sched.Stats().Prefetches)
	assert.EqualValues(t, 1, f.sink.Snapshot().Seq, "prefetch never publishes")
}

func TestPrefetchSkipsNeighborWithoutFrame(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.register(t, 3, 100)
	f.register(t, 7, 5)

	require.NoError(t, f.sched.RequestDisplay(3, 10))
	f.sched.Wait()

	assert.Empty(t, f.sched.CachedFrames(7))
	assert.Zero(t, f.sched.Stats().DecodeFailures)
}

func TestStalePrefetchIsAbandoned(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.register(t, 0, 100)
	f.register(t, 3, 100)
	slow := f.decoder.hold(1)

	require.NoError(t, f.sched.RequestDisplay(3, 1))
	waitEntered(t, slow)
	require.NoError(t, f.sched.RequestDisplay(3, 2))

	close(slow.release)
	f.sched.Wait()

	if diff := cmp.Diff([]int{2}, f.sched.CachedFrames(0)); diff != "" {
		t.Fatalf("neighbor cache (-want +got):\n%s", diff)
	}
}

func TestRemoveAfterInFlightDecodeLeavesSlotEmpty(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	_, clip := f.register(t, 1, 50)
	slow := f.decoder.hold(4)

	require.NoError(t, f.sched.RequestDisplay(1, 4))
	waitEntered(t, slow)

	removed := make(chan error, 1)
	go func() { removed <- f.sched.Remove(1) }()

	select {
	case <-removed:
		t.Fatal("remove returned while a decode was running")
	case <-time.After(20 * time.Millisecond):
	}

	close(slow.release)
	select {
	case err := <-removed:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("remove never returned")
	}

	assert.False(t, f.table.Occupied(1))
	assert.Empty(t, f.sched.CachedFrames(1))
	assert.True(t, clip.closed.Load())
}

func TestReRegisterClearsCacheAndClosesOldClip(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	_, oldClip := f.register(t, 0, 100)
	require.NoError(t, f.sched.RequestDisplay(0, 3))
	f.sched.Wait()
	require.NotEmpty(t, f.sched.CachedFrames(0))

	newSrc, newClip := f.register(t, 0, 20)
	assert.True(t, oldClip.closed.Load())
	assert.False(t, newClip.closed.Load())
	assert.Empty(t, f.sched.CachedFrames(0))
	assert.True(t, f.table.Is(0, newSrc))
}

func TestReRegisterSameSourceKeepsClipOpen(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	src, clip := f.register(t, 0, 100)

	require.NoError(t, f.sched.Register(0, src, "renamed"))
	assert.True(t, f.table.Is(0, src))
	assert.False(t, clip.closed.Load())

	require.NoError(t, f.sched.RequestDisplay(0, 7))
	got := f.waitSeq(t, 1)
	assert.False(t, got.Placeholder)
}

func TestSharedSourceStaysOpenUntilLastSlotLetsGo(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	src, clip := f.register(t, 0, 100)
	require.NoError(t, f.sched.Register(1, src, "copy"))

	require.NoError(t, f.sched.Remove(0))
	assert.True(t, f.table.Occupied(1))
	assert.False(t, clip.closed.Load())

	replacement, _ := f.register(t, 1, 10)
	assert.True(t, f.table.Is(1, replacement))
	assert.True(t, clip.closed.Load())
}

func TestShutdownClosesSharedSourceOnce(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	clip := &countingClip{frames: 10}
	src := sources.NewSource(clip, sources.DefaultColor())
	require.NoError(t, f.sched.Register(3, src, ""))
	require.NoError(t, f.sched.Register(4, src, ""))

	f.sched.Shutdown()
	assert.EqualValues(t, 1, clip.closes.Load())
}

func TestInvalidArguments(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)

	assert.ErrorIs(t, f.sched.RequestDisplay(-1, 0), sources.ErrInvalidSlotIndex)
	assert.ErrorIs(t, f.sched.RequestDisplay(sources.SlotCount, 0), sources.ErrInvalidSlotIndex)
	assert.ErrorIs(t, f.sched.Remove(12), sources.ErrInvalidSlotIndex)
	assert.ErrorIs(t, f.sched.Register(0, nil, ""), sources.ErrNilSource)

	src := sources.NewSource(&testClip{frames: 1}, sources.DefaultColor())
	assert.ErrorIs(t, f.sched.Register(10, src, ""), sources.ErrInvalidSlotIndex)
	assert.Zero(t, f.sched.Stats().Requests)
}

func TestShutdownClosesSourcesAndRejectsRequests(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	_, clip := f.register(t, 2, 10)

	f.sched.Shutdown()
	assert.True(t, clip.closed.Load())
	assert.ErrorIs(t, f.sched.RequestDisplay(2, 0), workpool.ErrPoolClosed)
}

func TestPrefetchRunsOnOneWorker(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(o *Options) { o.DisplayWorkers = 4 })
	stats := f.sched.Stats()
	assert.Equal(t, 4, stats.DisplayPool.Workers)
	assert.Equal(t, 1, stats.PrefetchPool.Workers)
}

func TestStateString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "queued", Queued.String())
	assert.Equal(t, "superseded", Superseded.String())
	assert.Equal(t, "state(9)", State(9).String())
}
