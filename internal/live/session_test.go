package live

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/studia-app/engine/internal/events"
)

type fakeConn struct {
	mu     sync.Mutex
	sent   []Frame
	in     chan Frame
	closed chan struct{}
	once   sync.Once

	sendErr error
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan Frame, 16),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) Send(f Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, f)
	return nil
}

func (c *fakeConn) Receive() (Frame, error) {
	select {
	case f := <-c.in:
		return f, nil
	case <-c.closed:
		return Frame{}, errors.New("connection closed")
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) sentFrames() []Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Frame(nil), c.sent...)
}

type fakeTransport struct {
	mu        sync.Mutex
	conns     []*fakeConn
	openErr   error
	blockOpen bool
}

func (t *fakeTransport) Open(ctx context.Context, _ string) (Conn, error) {
	t.mu.Lock()
	blocked, err := t.blockOpen, t.openErr
	t.mu.Unlock()

	if blocked {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}

	c := newFakeConn()
	t.mu.Lock()
	t.conns = append(t.conns, c)
	t.mu.Unlock()
	return c, nil
}

func (t *fakeTransport) lastConn() *fakeConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.conns) == 0 {
		return nil
	}
	return t.conns[len(t.conns)-1]
}

// singleConnTransport hands out one preconstructed connection.
type singleConnTransport struct{ conn Conn }

func (t *singleConnTransport) Open(context.Context, string) (Conn, error) {
	return t.conn, nil
}

// overlapConn records whether two Sends ever ran at the same time, the
// way a real websocket connection would reject them.
type overlapConn struct {
	*fakeConn
	inFlight atomic.Int32
	overlap  atomic.Bool
}

func (c *overlapConn) Send(f Frame) error {
	if c.inFlight.Add(1) > 1 {
		c.overlap.Store(true)
	}
	time.Sleep(100 * time.Microsecond) // widen the window
	defer c.inFlight.Add(-1)
	return c.fakeConn.Send(f)
}

func newTestSession() (*Session, *fakeTransport, *events.Bus) {
	transport := &fakeTransport{}
	bus := events.NewBus()
	return NewSession(transport, bus, Config{ConnectTimeout: time.Second}), transport, bus
}

func waitEvent(t *testing.T, ch <-chan events.Event) events.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestSession_InitialStateDisconnected(t *testing.T) {
	s, _, _ := newTestSession()
	st := s.State()
	if st.Status != StatusDisconnected {
		t.Errorf("Status = %s, want disconnected", st.Status)
	}
}

func TestSession_ConnectReachesConnected(t *testing.T) {
	s, _, _ := newTestSession()
	if err := s.Connect(context.Background(), "learner-1"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	st := s.State()
	if st.Status != StatusConnected {
		t.Errorf("Status = %s, want connected", st.Status)
	}
	if st.LearnerID != "learner-1" {
		t.Errorf("LearnerID = %q, want learner-1", st.LearnerID)
	}
}

func TestSession_ConnectFailure(t *testing.T) {
	s, transport, bus := newTestSession()
	transport.openErr = errors.New("backend down")
	failedCh, cancel := bus.Subscribe(events.KindConnectionFailed)
	defer cancel()

	err := s.Connect(context.Background(), "learner-1")
	var ce *ConnectionError
	if !errors.As(err, &ce) {
		t.Fatalf("Connect error = %v, want *ConnectionError", err)
	}
	if s.State().Status != StatusDisconnected {
		t.Errorf("Status = %s, want disconnected after failure", s.State().Status)
	}

	ev := waitEvent(t, failedCh).(events.ConnectionFailed)
	if ev.LearnerID != "learner-1" {
		t.Errorf("event LearnerID = %q, want learner-1", ev.LearnerID)
	}
}

func TestSession_ConnectTimeout(t *testing.T) {
	transport := &fakeTransport{blockOpen: true}
	bus := events.NewBus()
	s := NewSession(transport, bus, Config{ConnectTimeout: 30 * time.Millisecond})
	failedCh, cancel := bus.Subscribe(events.KindConnectionFailed)
	defer cancel()

	start := time.Now()
	err := s.Connect(context.Background(), "learner-1")
	if err == nil {
		t.Fatal("Connect should time out")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Connect hung %v, want bounded by timeout", elapsed)
	}
	if s.State().Status != StatusDisconnected {
		t.Errorf("Status = %s, want disconnected after timeout", s.State().Status)
	}
	waitEvent(t, failedCh)
}

func TestSession_ReportProgressWhileDisconnected(t *testing.T) {
	s, _, _ := newTestSession()

	err := s.ReportProgress(50)
	var ise *InvalidStateError
	if !errors.As(err, &ise) {
		t.Fatalf("error = %v, want *InvalidStateError", err)
	}
	if got := s.State().LastProgress; got != 0 {
		t.Errorf("LastProgress = %d, want untouched 0", got)
	}
}

func TestSession_ReportProgressLastWins(t *testing.T) {
	s, transport, _ := newTestSession()
	if err := s.Connect(context.Background(), "l"); err != nil {
		t.Fatal(err)
	}

	for _, p := range []int{10, 40, 40, 25} {
		if err := s.ReportProgress(p); err != nil {
			t.Fatalf("ReportProgress(%d): %v", p, err)
		}
	}
	if got := s.State().LastProgress; got != 25 {
		t.Errorf("LastProgress = %d, want 25 (last value wins)", got)
	}

	frames := transport.lastConn().sentFrames()
	if len(frames) != 4 {
		t.Errorf("sent frames = %d, want 4", len(frames))
	}
}

func TestSession_LessonBufferedUntilConnected(t *testing.T) {
	s, transport, _ := newTestSession()

	if err := s.SetCurrentLesson("calc-101"); err != nil {
		t.Fatalf("SetCurrentLesson while disconnected: %v", err)
	}
	if err := s.Connect(context.Background(), "l"); err != nil {
		t.Fatal(err)
	}

	frames := transport.lastConn().sentFrames()
	if len(frames) == 0 {
		t.Fatal("buffered lesson never flushed")
	}
	if frames[0].Kind != FrameSetLesson || frames[0].LessonID != "calc-101" {
		t.Errorf("first frame = %+v, want setLesson calc-101", frames[0])
	}
}

func TestSession_InboundGapEventVerbatim(t *testing.T) {
	s, transport, bus := newTestSession()
	gapCh, cancel := bus.Subscribe(events.KindGapDetected)
	defer cancel()

	if err := s.Connect(context.Background(), "l"); err != nil {
		t.Fatal(err)
	}
	transport.lastConn().in <- Frame{Kind: FrameGap, Concept: "X", Severity: "critical"}

	ev := waitEvent(t, gapCh).(events.GapDetected)
	if ev.Concept != "X" || ev.Severity != "critical" {
		t.Errorf("event = %+v, want concept X severity critical unmodified", ev)
	}
}

func TestSession_InboundOrderPreserved(t *testing.T) {
	s, transport, bus := newTestSession()
	ch, cancel := bus.Subscribe(events.KindStruggleDetected)
	defer cancel()

	if err := s.Connect(context.Background(), "l"); err != nil {
		t.Fatal(err)
	}
	conn := transport.lastConn()
	for _, c := range []string{"a", "b", "c"} {
		conn.in <- Frame{Kind: FrameStruggle, Concept: c}
	}

	for _, want := range []string{"a", "b", "c"} {
		ev := waitEvent(t, ch).(events.StruggleDetected)
		if ev.Concept != want {
			t.Fatalf("concept = %q, want %q (order must match transport)", ev.Concept, want)
		}
	}
}

func TestSession_SuggestionsUpdateOutstandingActions(t *testing.T) {
	s, transport, bus := newTestSession()
	ch, cancel := bus.Subscribe(events.KindSuggestedActions)
	defer cancel()

	if err := s.Connect(context.Background(), "l"); err != nil {
		t.Fatal(err)
	}
	transport.lastConn().in <- Frame{Kind: FrameSuggestions, Suggestions: []string{"review fractions", "take a break"}}
	waitEvent(t, ch)

	st := s.State()
	if len(st.OutstandingActions) != 2 || st.OutstandingActions[0] != "review fractions" {
		t.Errorf("OutstandingActions = %v", st.OutstandingActions)
	}
}

func TestSession_ReconnectClearsOutstandingActions(t *testing.T) {
	s, transport, bus := newTestSession()
	ch, cancel := bus.Subscribe(events.KindSuggestedActions)
	defer cancel()

	if err := s.Connect(context.Background(), "l"); err != nil {
		t.Fatal(err)
	}
	transport.lastConn().in <- Frame{Kind: FrameSuggestions, Suggestions: []string{"stale suggestion"}}
	waitEvent(t, ch)

	s.Disconnect()
	if st := s.State(); st.Status != StatusDisconnected || len(st.OutstandingActions) != 0 {
		t.Fatalf("after Disconnect: %+v, want disconnected with no actions", st)
	}

	if err := s.Connect(context.Background(), "l"); err != nil {
		t.Fatal(err)
	}
	st := s.State()
	if st.Status != StatusConnected {
		t.Errorf("Status = %s, want connected after reconnect", st.Status)
	}
	if len(st.OutstandingActions) != 0 {
		t.Errorf("OutstandingActions = %v, want none carried across sessions", st.OutstandingActions)
	}
}

func TestSession_TransportDropPublishesConnectionLostOnce(t *testing.T) {
	s, transport, bus := newTestSession()
	lostCh, cancel := bus.Subscribe(events.KindConnectionLost)
	defer cancel()

	if err := s.Connect(context.Background(), "l"); err != nil {
		t.Fatal(err)
	}
	transport.lastConn().Close() // remote drop

	ev := waitEvent(t, lostCh).(events.ConnectionLost)
	if ev.LearnerID != "l" {
		t.Errorf("LearnerID = %q, want l", ev.LearnerID)
	}
	if s.State().Status != StatusDisconnected {
		t.Errorf("Status = %s, want disconnected after drop", s.State().Status)
	}

	select {
	case <-lostCh:
		t.Fatal("ConnectionLost published more than once")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSession_DeliberateDisconnectIsSilent(t *testing.T) {
	s, _, bus := newTestSession()
	lostCh, cancel := bus.Subscribe(events.KindConnectionLost)
	defer cancel()

	if err := s.Connect(context.Background(), "l"); err != nil {
		t.Fatal(err)
	}
	s.Disconnect()

	select {
	case <-lostCh:
		t.Fatal("Disconnect must not publish ConnectionLost")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSession_AskQuestionSingleInFlight(t *testing.T) {
	s, transport, bus := newTestSession()
	answerCh, cancel := bus.Subscribe(events.KindTutorAnswer)
	defer cancel()

	if err := s.Connect(context.Background(), "l"); err != nil {
		t.Fatal(err)
	}
	if err := s.AskQuestion("what is a derivative?"); err != nil {
		t.Fatalf("AskQuestion: %v", err)
	}

	err := s.AskQuestion("second question")
	var ise *InvalidStateError
	if !errors.As(err, &ise) {
		t.Fatalf("second ask error = %v, want *InvalidStateError", err)
	}

	// The inbound answer clears the slot.
	transport.lastConn().in <- Frame{Kind: FrameAnswer, Text: "a rate of change"}
	ev := waitEvent(t, answerCh).(events.TutorAnswer)
	if ev.Text != "a rate of change" {
		t.Errorf("answer = %q", ev.Text)
	}
	if err := s.AskQuestion("third question"); err != nil {
		t.Errorf("ask after answer: %v", err)
	}
}

func TestSession_AskQuestionWhileDisconnected(t *testing.T) {
	s, _, _ := newTestSession()
	err := s.AskQuestion("hello?")
	var ise *InvalidStateError
	if !errors.As(err, &ise) {
		t.Fatalf("error = %v, want *InvalidStateError", err)
	}
}

func TestSession_ConcurrentSendsSerialized(t *testing.T) {
	conn := &overlapConn{fakeConn: newFakeConn()}
	bus := events.NewBus()
	s := NewSession(&singleConnTransport{conn: conn}, bus, Config{ConnectTimeout: time.Second})
	if err := s.Connect(context.Background(), "l"); err != nil {
		t.Fatal(err)
	}

	const writers, perWriter = 8, 10
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				if i%2 == 0 {
					_ = s.ReportProgress(w*perWriter + i)
				} else {
					_ = s.SetCurrentLesson("calc-101")
				}
			}
		}(w)
	}
	wg.Wait()

	if conn.overlap.Load() {
		t.Fatal("two frames were written concurrently")
	}
	if got := len(conn.sentFrames()); got != writers*perWriter {
		t.Errorf("sent frames = %d, want %d", got, writers*perWriter)
	}
}

func TestSession_LessonFlushFailureIsConnectionFailed(t *testing.T) {
	conn := newFakeConn()
	conn.sendErr = errors.New("broken pipe")
	bus := events.NewBus()
	s := NewSession(&singleConnTransport{conn: conn}, bus, Config{ConnectTimeout: time.Second})
	failedCh, cancelFailed := bus.Subscribe(events.KindConnectionFailed)
	defer cancelFailed()
	lostCh, cancelLost := bus.Subscribe(events.KindConnectionLost)
	defer cancelLost()

	if err := s.SetCurrentLesson("calc-101"); err != nil {
		t.Fatal(err)
	}
	err := s.Connect(context.Background(), "l")
	var ce *ConnectionError
	if !errors.As(err, &ce) {
		t.Fatalf("Connect error = %v, want *ConnectionError", err)
	}
	if s.State().Status != StatusDisconnected {
		t.Errorf("Status = %s, want disconnected after failed flush", s.State().Status)
	}

	waitEvent(t, failedCh)
	select {
	case <-lostCh:
		t.Fatal("a connect that never completed must not report ConnectionLost")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSession_SendFailureDropsConnection(t *testing.T) {
	s, transport, bus := newTestSession()
	lostCh, cancel := bus.Subscribe(events.KindConnectionLost)
	defer cancel()

	if err := s.Connect(context.Background(), "l"); err != nil {
		t.Fatal(err)
	}
	conn := transport.lastConn()
	conn.mu.Lock()
	conn.sendErr = errors.New("broken pipe")
	conn.mu.Unlock()

	err := s.ReportProgress(10)
	if !IsRetryable(err) {
		t.Fatalf("error = %v, want retryable connection error", err)
	}
	waitEvent(t, lostCh)
	if s.State().Status != StatusDisconnected {
		t.Errorf("Status = %s, want disconnected", s.State().Status)
	}
	if got := s.State().LastProgress; got != 0 {
		t.Errorf("LastProgress = %d, want 0 after failed send", got)
	}
}
