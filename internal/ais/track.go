package ais

import "sync"

// DefaultTrackWindowSize is the number of recent points retained per vessel.
const DefaultTrackWindowSize = 5

// TrackWindow is a snapshot of one vessel's recent points, oldest first.
// It is a copy; mutating it has no effect on the store.
type TrackWindow struct {
	Points []Point
}

// Last2 returns the two newest points (p1 older, p2 newer). ok is false when
// the window holds fewer than two points.
func (w TrackWindow) Last2() (p1, p2 Point, ok bool) {
	n := len(w.Points)
	if n < 2 {
		return Point{}, Point{}, false
	}
	return w.Points[n-2], w.Points[n-1], true
}

// track is a fixed-capacity ring of points for one MMSI.
type track struct {
	buf   []Point
	start int
	count int
}

func (t *track) tail() Point {
	return t.buf[(t.start+t.count-1)%len(t.buf)]
}

func (t *track) append(p Point) {
	if t.count < len(t.buf) {
		t.buf[(t.start+t.count)%len(t.buf)] = p
		t.count++
		return
	}
	// Full: overwrite the head slot and advance.
	t.buf[t.start] = p
	t.start = (t.start + 1) % len(t.buf)
}

func (t *track) snapshot() TrackWindow {
	out := make([]Point, t.count)
	for i := 0; i < t.count; i++ {
		out[i] = t.buf[(t.start+i)%len(t.buf)]
	}
	return TrackWindow{Points: out}
}

// TrackStore keeps a bounded ring of recent points per MMSI. One store exists
// per replay session; the session task is its only writer, but reads may come
// from other goroutines (status endpoints), so access is serialized.
type TrackStore struct {
	mu         sync.Mutex
	windowSize int
	tracks     map[string]*track
}

// NewTrackStore returns a store keeping windowSize points per vessel.
// Sizes below 2 are raised to 2 so rules always have a pair to look at.
func NewTrackStore(windowSize int) *TrackStore {
	if windowSize < 2 {
		windowSize = 2
	}
	return &TrackStore{
		windowSize: windowSize,
		tracks:     make(map[string]*track),
	}
}

// Push appends p to its vessel's window and returns a snapshot of the window.
// A point whose timestamp is not after the current tail is ignored: the
// returned snapshot is the unchanged window and inserted is false. Rules only
// evaluate on inserted points, which keeps every window strictly ordered.
func (s *TrackStore) Push(p Point) (w TrackWindow, inserted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.tracks[p.MMSI]
	if t == nil {
		t = &track{buf: make([]Point, s.windowSize)}
		s.tracks[p.MMSI] = t
	}
	if t.count > 0 && !p.Timestamp.After(t.tail().Timestamp) {
		return t.snapshot(), false
	}
	t.append(p)
	return t.snapshot(), true
}

// Window returns a snapshot of the window for mmsi. ok is false for vessels
// never seen by this store.
func (s *TrackStore) Window(mmsi string) (TrackWindow, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tracks[mmsi]
	if t == nil {
		return TrackWindow{}, false
	}
	return t.snapshot(), true
}

// VesselCount returns how many distinct MMSIs the store has seen.
func (s *TrackStore) VesselCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tracks)
}
