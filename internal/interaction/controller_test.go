package interaction

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loqalabs/loqa-concierge/internal/calendar"
	"github.com/loqalabs/loqa-concierge/internal/capability"
	"github.com/loqalabs/loqa-concierge/internal/gateway"
	"github.com/loqalabs/loqa-concierge/internal/intent"
	"github.com/loqalabs/loqa-concierge/internal/locale"
	"github.com/loqalabs/loqa-concierge/internal/stt"
	"github.com/loqalabs/loqa-concierge/internal/tts"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type gatewayFunc func(ctx context.Context, message string) (gateway.Reply, error)

func (f gatewayFunc) Send(ctx context.Context, message string) (gateway.Reply, error) {
	return f(ctx, message)
}

func replyWith(r gateway.Reply) gatewayFunc {
	return func(context.Context, string) (gateway.Reply, error) { return r, nil }
}

type recordingSink struct {
	mu         sync.Mutex
	utterances []tts.Utterance
}

func (s *recordingSink) Speak(_ context.Context, u tts.Utterance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.utterances = append(s.utterances, u)
	return nil
}

func (s *recordingSink) spoken() []tts.Utterance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]tts.Utterance(nil), s.utterances...)
}

type navigation struct {
	to     intent.Intent
	source string
}

type recordingEffects struct {
	mu          sync.Mutex
	changes     int
	navigations []navigation
	records     []string
	mounted     []string
	unmounted   []string
}

func (e *recordingEffects) Mounted(s Snapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mounted = append(e.mounted, s.ID)
}

func (e *recordingEffects) Unmounted(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.unmounted = append(e.unmounted, id)
}

func (e *recordingEffects) SessionChanged(Snapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.changes++
}

func (e *recordingEffects) Navigated(_ string, to intent.Intent, source string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.navigations = append(e.navigations, navigation{to, source})
}

func (e *recordingEffects) Record(_ string, eventType string, _ any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.records = append(e.records, eventType)
}

func (e *recordingEffects) navs() []navigation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]navigation(nil), e.navigations...)
}

// manualCapture delivers its transcript when stopped, or when its context is
// cancelled, like a recognizer that finishes regardless.
type manualCapture struct {
	result chan stt.Result
	stop   chan struct{}
	once   sync.Once
}

func newManualCapture(ctx context.Context, text string) *manualCapture {
	c := &manualCapture{result: make(chan stt.Result, 1), stop: make(chan struct{})}
	go func() {
		defer close(c.result)
		select {
		case <-c.stop:
		case <-ctx.Done():
		}
		c.result <- stt.Result{Text: text, Confidence: 0.9}
	}()
	return c
}

func (c *manualCapture) Result() <-chan stt.Result { return c.result }

func (c *manualCapture) Stop() { c.once.Do(func() { close(c.stop) }) }

func (c *manualCapture) Close() error { return nil }

type manualSource struct {
	text     string
	mu       sync.Mutex
	requests []stt.Request
	opened   chan *manualCapture
}

func newManualSource(text string) *manualSource {
	return &manualSource{text: text, opened: make(chan *manualCapture, 8)}
}

func (s *manualSource) Open(ctx context.Context, req stt.Request) (stt.Capture, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()
	c := newManualCapture(ctx, s.text)
	s.opened <- c
	return c, nil
}

func (s *manualSource) awaitOpen(t *testing.T) *manualCapture {
	t.Helper()
	select {
	case c := <-s.opened:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("capture was not opened")
		return nil
	}
}

func wait(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("operation did not complete")
	}
}

func newController(t *testing.T, deps Deps, opts Options) *Controller {
	t.Helper()
	if deps.Logger == nil {
		deps.Logger = newLogger()
	}
	c, err := New(deps, opts)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestSubmitSuccessSpeaksReply(t *testing.T) {
	sink := &recordingSink{}
	c := newController(t, Deps{Gateway: replyWith(gateway.Reply{Kind: gateway.Success, Text: "Hello"}), Sink: sink}, Options{})

	wait(t, c.SubmitMessage())

	snap := c.Snapshot()
	require.NotNil(t, snap.LastResponse)
	assert.Equal(t, "Hello", *snap.LastResponse)
	assert.False(t, snap.Sending)
	assert.Equal(t, []tts.Utterance{{SessionID: c.ID(), Text: "Hello", Language: locale.Korean}}, sink.spoken())
}

func TestSubmitFailureIsNotSpoken(t *testing.T) {
	sink := &recordingSink{}
	effects := &recordingEffects{}
	c := newController(t, Deps{
		Gateway: replyWith(gateway.Reply{Kind: gateway.Failure, Message: "bad request"}),
		Sink:    sink,
		Effects: effects,
	}, Options{})

	wait(t, c.SubmitMessage())

	snap := c.Snapshot()
	require.NotNil(t, snap.LastResponse)
	assert.Equal(t, "Error: bad request", *snap.LastResponse)
	assert.Empty(t, sink.spoken())
	assert.Empty(t, effects.navs())
}

func TestSubmitSendsMessageAsIs(t *testing.T) {
	var got []string
	var mu sync.Mutex
	gw := gatewayFunc(func(_ context.Context, message string) (gateway.Reply, error) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, message)
		return gateway.Reply{Kind: gateway.Success, Text: "ok"}, nil
	})
	c := newController(t, Deps{Gateway: gw}, Options{})

	wait(t, c.SubmitMessage())
	require.NoError(t, c.SetMessage("  다음 버스  "))
	wait(t, c.SubmitMessage())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"", "  다음 버스  "}, got)
}

func TestSubmitTimeoutSurfacesTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	gw, err := gateway.New(srv.URL, &http.Client{Timeout: 50 * time.Millisecond}, newLogger())
	require.NoError(t, err)
	sink := &recordingSink{}
	c := newController(t, Deps{Gateway: gw, Sink: sink}, Options{})

	wait(t, c.SubmitMessage())

	snap := c.Snapshot()
	require.NotNil(t, snap.LastResponse)
	assert.True(t, strings.HasPrefix(*snap.LastResponse, "Error: "), *snap.LastResponse)
	assert.False(t, snap.IsRecording)
	assert.Empty(t, sink.spoken())
}

func TestSubmitAlwaysClearsRecording(t *testing.T) {
	replies := []gatewayFunc{
		replyWith(gateway.Reply{Kind: gateway.Success, Text: "hi"}),
		replyWith(gateway.Reply{Kind: gateway.Failure, Message: "nope"}),
		func(context.Context, string) (gateway.Reply, error) { return gateway.Reply{}, gateway.ErrMalformedReply },
	}
	for _, gw := range replies {
		src := newManualSource("transcript")
		c := newController(t, Deps{Gateway: gw, Source: src}, Options{})

		listening := c.StartListening()
		capture := src.awaitOpen(t)
		assert.True(t, c.Snapshot().IsRecording)

		wait(t, c.SubmitMessage())
		assert.False(t, c.Snapshot().IsRecording)

		capture.Stop()
		wait(t, listening)
		snap := c.Snapshot()
		assert.False(t, snap.IsRecording)
		assert.Equal(t, "transcript", snap.CurrentMessage)
	}
}

func TestReplyKeywordNavigates(t *testing.T) {
	effects := &recordingEffects{}
	c := newController(t, Deps{
		Gateway: replyWith(gateway.Reply{Kind: gateway.Success, Text: "오늘 날씨를 보여드릴게요"}),
		Effects: effects,
	}, Options{})

	wait(t, c.SubmitMessage())

	assert.Equal(t, intent.TodayWeather, c.Snapshot().Screen)
	assert.Equal(t, []navigation{{intent.TodayWeather, SourceReply}}, effects.navs())
}

func TestTranscriptNavigates(t *testing.T) {
	effects := &recordingEffects{}
	c := newController(t, Deps{
		Gateway: replyWith(gateway.Reply{Kind: gateway.Success, Text: "ok"}),
		Source:  stt.NewScriptedSource("버스", 0),
		Effects: effects,
	}, Options{})

	wait(t, c.StartListening())

	snap := c.Snapshot()
	assert.Equal(t, "버스", snap.CurrentMessage)
	assert.False(t, snap.IsRecording)
	assert.Equal(t, intent.Bus, snap.Screen)
	assert.Equal(t, []navigation{{intent.Bus, SourceTranscript}}, effects.navs())
}

func TestRecognitionUnsupported(t *testing.T) {
	c := newController(t, Deps{Gateway: replyWith(gateway.Reply{Kind: gateway.Success, Text: "ok"})}, Options{})
	require.NoError(t, c.SetMessage("typed"))

	wait(t, c.StartListening())

	snap := c.Snapshot()
	assert.False(t, snap.IsRecording)
	assert.Equal(t, "typed", snap.CurrentMessage)
	assert.Nil(t, snap.LastResponse)

	registry := capability.NewRegistry(newLogger())
	registry.Register(capability.Recognition, false, true)
	c = newController(t, Deps{
		Gateway:  replyWith(gateway.Reply{Kind: gateway.Success, Text: "ok"}),
		Source:   newManualSource("never"),
		Registry: registry,
	}, Options{})

	wait(t, c.StartListening())
	assert.False(t, c.Snapshot().IsRecording)
}

func TestRecognitionErrorOnlyClearsRecording(t *testing.T) {
	c := newController(t, Deps{
		Gateway: replyWith(gateway.Reply{Kind: gateway.Success, Text: "ok"}),
		Source:  stt.NewScriptedSource("", 0),
	}, Options{})
	require.NoError(t, c.SetMessage("keep me"))

	wait(t, c.StartListening())

	snap := c.Snapshot()
	assert.False(t, snap.IsRecording)
	assert.Equal(t, "keep me", snap.CurrentMessage)
	assert.Nil(t, snap.LastResponse)
	assert.Equal(t, intent.Home, snap.Screen)
}

func TestStopListeningFinalizes(t *testing.T) {
	src := newManualSource("이번주 날씨")
	c := newController(t, Deps{Gateway: replyWith(gateway.Reply{Kind: gateway.Success, Text: "ok"}), Source: src}, Options{})

	done := c.StartListening()
	c.StopListening()
	wait(t, done)

	snap := c.Snapshot()
	assert.Equal(t, "이번주 날씨", snap.CurrentMessage)
	assert.Equal(t, intent.WeekWeather, snap.Screen)
}

func TestSecondListenIsIgnored(t *testing.T) {
	src := newManualSource("hello")
	c := newController(t, Deps{Gateway: replyWith(gateway.Reply{Kind: gateway.Success, Text: "ok"}), Source: src}, Options{})

	first := c.StartListening()
	capture := src.awaitOpen(t)
	wait(t, c.StartListening())

	capture.Stop()
	wait(t, first)
	src.mu.Lock()
	defer src.mu.Unlock()
	assert.Len(t, src.requests, 1)
}

func TestRecognitionLeaseIsProcessWide(t *testing.T) {
	registry := capability.NewRegistry(newLogger())
	registry.Register(capability.Recognition, true, true)
	gw := replyWith(gateway.Reply{Kind: gateway.Success, Text: "ok"})
	src := newManualSource("hello")

	a := newController(t, Deps{Gateway: gw, Source: src, Registry: registry}, Options{})
	b := newController(t, Deps{Gateway: gw, Source: src, Registry: registry}, Options{})

	listeningA := a.StartListening()
	capture := src.awaitOpen(t)

	wait(t, b.StartListening())
	assert.False(t, b.Snapshot().IsRecording)

	capture.Stop()
	wait(t, listeningA)

	listeningB := b.StartListening()
	src.awaitOpen(t).Stop()
	wait(t, listeningB)
	assert.Equal(t, "hello", b.Snapshot().CurrentMessage)
	assert.Empty(t, registry.Query(capability.WithLeasedFilter()))
}

func TestExclusiveOperations(t *testing.T) {
	var calls atomic.Int32
	gw := gatewayFunc(func(context.Context, string) (gateway.Reply, error) {
		calls.Add(1)
		return gateway.Reply{Kind: gateway.Success, Text: "ok"}, nil
	})
	src := newManualSource("hello")
	c := newController(t, Deps{Gateway: gw, Source: src}, Options{Exclusive: true})

	listening := c.StartListening()
	capture := src.awaitOpen(t)
	wait(t, c.SubmitMessage())
	assert.Zero(t, calls.Load())
	assert.True(t, c.Snapshot().IsRecording)

	capture.Stop()
	wait(t, listening)
	wait(t, c.SubmitMessage())
	assert.EqualValues(t, 1, calls.Load())
}

func TestLanguageSnapshotPerOperation(t *testing.T) {
	src := newManualSource("bus please")
	sink := &recordingSink{}
	release := make(chan struct{})
	gw := gatewayFunc(func(ctx context.Context, _ string) (gateway.Reply, error) {
		<-release
		return gateway.Reply{Kind: gateway.Success, Text: "hi"}, nil
	})
	c := newController(t, Deps{Gateway: gw, Source: src, Sink: sink}, Options{Language: locale.English})

	sent := c.SubmitMessage()
	listening := c.StartListening()
	capture := src.awaitOpen(t)

	require.NoError(t, c.SetLanguage(locale.Korean))
	close(release)
	capture.Stop()
	wait(t, sent)
	wait(t, listening)

	src.mu.Lock()
	assert.Equal(t, locale.English, src.requests[0].Language)
	src.mu.Unlock()
	assert.Equal(t, locale.English, sink.spoken()[0].Language)
	assert.Equal(t, intent.Bus, c.Snapshot().Screen, "transcript interpreted with the language it was captured in")
}

func TestSetLanguageIdempotent(t *testing.T) {
	effects := &recordingEffects{}
	c := newController(t, Deps{Gateway: replyWith(gateway.Reply{Kind: gateway.Success, Text: "ok"}), Effects: effects}, Options{})

	require.NoError(t, c.SetLanguage(locale.Japanese))
	require.NoError(t, c.SetLanguage(locale.Japanese))
	assert.Equal(t, locale.Japanese, c.Snapshot().Language)
	effects.mu.Lock()
	assert.Equal(t, 1, effects.changes)
	effects.mu.Unlock()

	assert.Error(t, c.SetLanguage(locale.Tag("fr-FR")))
}

func TestLateReplyAfterCloseIsDropped(t *testing.T) {
	sink := &recordingSink{}
	started := make(chan struct{})
	gw := gatewayFunc(func(ctx context.Context, _ string) (gateway.Reply, error) {
		close(started)
		<-ctx.Done()
		return gateway.Reply{Kind: gateway.Success, Text: "버스 late"}, nil
	})
	c, err := New(Deps{Gateway: gw, Sink: sink, Logger: newLogger()}, Options{})
	require.NoError(t, err)

	done := c.SubmitMessage()
	<-started
	c.Close()
	wait(t, done)

	snap := c.Snapshot()
	assert.Nil(t, snap.LastResponse)
	assert.Equal(t, intent.Home, snap.Screen)
	assert.Empty(t, sink.spoken())
	assert.ErrorIs(t, c.SetMessage("x"), ErrClosed)
	wait(t, c.SubmitMessage())
}

func TestLateTranscriptAfterCloseIsDropped(t *testing.T) {
	registry := capability.NewRegistry(newLogger())
	registry.Register(capability.Recognition, true, true)
	src := newManualSource("버스")
	c, err := New(Deps{
		Gateway:  replyWith(gateway.Reply{Kind: gateway.Success, Text: "ok"}),
		Source:   src,
		Registry: registry,
		Logger:   newLogger(),
	}, Options{})
	require.NoError(t, err)

	done := c.StartListening()
	src.awaitOpen(t)
	c.Close()
	assert.False(t, c.Snapshot().IsRecording, "close ends the recording")
	wait(t, done)

	snap := c.Snapshot()
	assert.False(t, snap.IsRecording)
	assert.Empty(t, snap.CurrentMessage)
	assert.Equal(t, intent.Home, snap.Screen)
	assert.Empty(t, registry.Query(capability.WithLeasedFilter()), "lease released on close")
}

func TestExplicitNavigationAndCalendar(t *testing.T) {
	effects := &recordingEffects{}
	c := newController(t, Deps{Gateway: replyWith(gateway.Reply{Kind: gateway.Success, Text: "ok"}), Effects: effects}, Options{})

	_, _, err := c.ApplyCalendar("추가", "meeting")
	assert.ErrorIs(t, err, ErrNotOnCalendar)

	moved, err := c.NavigateTo(intent.Calendar)
	require.NoError(t, err)
	assert.True(t, moved)

	verb, changed, err := c.ApplyCalendar("추가", "meeting")
	require.NoError(t, err)
	assert.Equal(t, calendar.Add, verb)
	assert.True(t, changed)

	_, changed, err = c.ApplyCalendar("수정 lunch", "meeting")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, calendar.EventSet{"lunch"}, c.Calendar())

	back, err := c.Back()
	require.NoError(t, err)
	assert.Equal(t, intent.Home, back)
	assert.Equal(t, []navigation{{intent.Calendar, SourceUI}, {intent.Home, SourceUI}}, effects.navs())
}

func TestNewRequiresGateway(t *testing.T) {
	_, err := New(Deps{Logger: newLogger()}, Options{})
	assert.Error(t, err)
	_, err = New(Deps{Gateway: replyWith(gateway.Reply{}), Logger: newLogger()}, Options{Language: "xx"})
	assert.Error(t, err)
}
