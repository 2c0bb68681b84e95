// Package interaction is the voice-interaction core: one Controller per
// mounted session sequences speech capture, assistant messaging, speech
// output and keyword navigation.
package interaction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/loqalabs/loqa-concierge/internal/calendar"
	"github.com/loqalabs/loqa-concierge/internal/capability"
	"github.com/loqalabs/loqa-concierge/internal/eventstore"
	"github.com/loqalabs/loqa-concierge/internal/gateway"
	"github.com/loqalabs/loqa-concierge/internal/intent"
	"github.com/loqalabs/loqa-concierge/internal/locale"
	"github.com/loqalabs/loqa-concierge/internal/screen"
	"github.com/loqalabs/loqa-concierge/internal/stt"
	"github.com/loqalabs/loqa-concierge/internal/tts"
)

var (
	ErrClosed        = errors.New("session closed")
	ErrNotOnCalendar = errors.New("calendar commands need the calendar screen")
)

// Deps are the collaborators a Controller drives. Only Gateway is required.
type Deps struct {
	Gateway     gateway.Sender
	Source      stt.Source
	Sink        tts.Sink
	Interpreter intent.Interpreter
	// Registry, when set, holds the process-wide recognition lease so only
	// one capture is open across all sessions.
	Registry *capability.Registry
	Effects  Effects
	Logger   *slog.Logger
}

type Options struct {
	Language locale.Tag
	// Exclusive rejects a send while a capture is open and vice versa.
	// Otherwise both run concurrently and the last completion wins.
	Exclusive bool
}

// Controller owns one Session. Every operation returns immediately; the
// returned channel is closed once the operation has fully completed.
type Controller struct {
	id      string
	deps    Deps
	opts    Options
	logger  *slog.Logger
	metrics *metrics
	nav     *screen.Navigator
	board   *calendar.Board

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu           sync.Mutex
	closed       bool
	generation   uint64
	message      string
	lastResponse *string
	recording    bool
	language     locale.Tag
	sending      int
	listening    bool
	stopWanted   bool
	capture      stt.Capture
}

func New(deps Deps, opts Options) (*Controller, error) {
	if deps.Gateway == nil {
		return nil, errors.New("interaction: gateway is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Source == nil {
		deps.Source = stt.Unsupported()
	}
	if deps.Sink == nil {
		deps.Sink = tts.NewNoOp(deps.Logger)
	}
	if deps.Interpreter == nil {
		deps.Interpreter = intent.NewKeywordMatcher(intent.DefaultTable())
	}
	if deps.Effects == nil {
		deps.Effects = nopEffects{}
	}
	if opts.Language == "" {
		opts.Language = locale.Default
	}
	if !opts.Language.Valid() {
		return nil, fmt.Errorf("interaction: unsupported language %q", opts.Language)
	}

	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	logger := deps.Logger.With(slog.String("component", "interaction"), slog.String("session_id", id))
	return &Controller{
		id:       id,
		deps:     deps,
		opts:     opts,
		logger:   logger,
		metrics:  newMetrics(logger),
		nav:      screen.NewNavigator(),
		board:    calendar.NewBoard(),
		ctx:      ctx,
		cancel:   cancel,
		language: opts.Language,
	}, nil
}

func (c *Controller) ID() string { return c.id }

// Snapshot returns the current session state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	s := Snapshot{
		ID:             c.id,
		CurrentMessage: c.message,
		IsRecording:    c.recording,
		Sending:        c.sending > 0,
		Language:       c.language,
		Screen:         c.nav.Current(),
	}
	if c.lastResponse != nil {
		resp := *c.lastResponse
		s.LastResponse = &resp
	}
	return s
}

// current reports whether a completion started under gen may still write.
func (c *Controller) current(gen uint64) bool {
	return !c.closed && c.generation == gen
}

// SetMessage replaces the message being composed.
func (c *Controller) SetMessage(text string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.message = text
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.deps.Effects.SessionChanged(snap)
	return nil
}

// SetLanguage selects the locale for the next send or capture. Operations
// already in flight keep the language they started with.
func (c *Controller) SetLanguage(tag locale.Tag) error {
	if !tag.Valid() {
		return fmt.Errorf("unsupported language %q", tag)
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.language == tag {
		c.mu.Unlock()
		return nil
	}
	c.language = tag
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.deps.Effects.SessionChanged(snap)
	c.deps.Effects.Record(c.id, eventstore.TypeLanguageChanged, map[string]string{"language": tag.String()})
	return nil
}

// SubmitMessage sends the current message to the assistant as-is, empty
// included. Whatever the outcome, the recording flag ends up false.
func (c *Controller) SubmitMessage() <-chan struct{} {
	done := make(chan struct{})

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		close(done)
		return done
	}
	if c.opts.Exclusive && (c.listening || c.sending > 0) {
		c.mu.Unlock()
		c.logger.Info("send rejected, another operation is in flight")
		close(done)
		return done
	}
	message, lang, gen := c.message, c.language, c.generation
	c.sending++
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer close(done)
		defer c.wg.Done()
		c.send(gen, message, lang)
	}()
	return done
}

func (c *Controller) send(gen uint64, message string, lang locale.Tag) {
	c.deps.Effects.Record(c.id, eventstore.TypeMessageSent, map[string]string{
		"message":  message,
		"language": lang.String(),
	})

	reply, err := c.deps.Gateway.Send(c.ctx, message)

	var display string
	dest := intent.NoOp
	switch {
	case err != nil:
		display = "Error: " + err.Error()
	case reply.Kind == gateway.Success:
		display = reply.Text
		dest = c.deps.Interpreter.Interpret(reply.Text, lang)
	default:
		display = reply.Display()
	}

	c.mu.Lock()
	c.sending--
	if !c.current(gen) {
		c.mu.Unlock()
		c.logger.Debug("dropping reply for closed session")
		return
	}
	c.lastResponse = &display
	c.recording = false
	navigated := c.nav.Navigate(dest)
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.deps.Effects.SessionChanged(snap)

	switch {
	case err != nil:
		c.logger.Error("assistant request failed", slogError(err))
		c.metrics.messageSent("transport_error")
		c.deps.Effects.Record(c.id, eventstore.TypeReplyFailed, map[string]string{"error": err.Error()})
		return
	case reply.Kind != gateway.Success:
		c.logger.Warn("assistant returned an error", slog.String("message", reply.Message))
		c.metrics.messageSent("failure")
		c.deps.Effects.Record(c.id, eventstore.TypeReplyFailed, map[string]string{"error": reply.Message})
		return
	}

	c.metrics.messageSent("success")
	c.deps.Effects.Record(c.id, eventstore.TypeReplyReceived, map[string]string{"response": reply.Text})
	if err := c.deps.Sink.Speak(c.ctx, tts.Utterance{SessionID: c.id, Text: reply.Text, Language: lang}); err != nil {
		c.logger.Warn("speech output failed", slogError(err))
	}
	if navigated {
		c.navigated(dest, SourceReply)
	}
}

// StartListening opens one recognition session in the current language. The
// transcript replaces the current message and may navigate. A failure only
// clears the recording flag. A capture already open anywhere in the process
// makes this a logged no-op.
func (c *Controller) StartListening() <-chan struct{} {
	done := make(chan struct{})

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		close(done)
		return done
	}
	if c.listening {
		c.mu.Unlock()
		c.logger.Info("listen ignored, already recording")
		close(done)
		return done
	}
	if c.opts.Exclusive && c.sending > 0 {
		c.mu.Unlock()
		c.logger.Info("listen rejected, a send is in flight")
		close(done)
		return done
	}

	release := func() {}
	if c.deps.Registry != nil {
		r, err := c.deps.Registry.Acquire(capability.Recognition, c.id)
		if err != nil {
			c.mu.Unlock()
			if errors.Is(err, capability.ErrBusy) {
				c.logger.Info("listen ignored, recognition in use", slogError(err))
				c.metrics.recognition("busy")
			} else {
				c.logger.Info("speech recognition unsupported", slogError(err))
				c.metrics.recognition("unsupported")
			}
			close(done)
			return done
		}
		release = r
	}

	lang, gen := c.language, c.generation
	c.listening = true
	c.stopWanted = false
	c.recording = true
	c.wg.Add(1)
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.deps.Effects.SessionChanged(snap)

	go func() {
		defer close(done)
		defer c.wg.Done()
		defer release()
		c.listen(gen, lang)
	}()
	return done
}

func (c *Controller) listen(gen uint64, lang locale.Tag) {
	capture, err := c.deps.Source.Open(c.ctx, stt.Request{SessionID: c.id, Language: lang})
	if err != nil {
		c.finishListening(gen, lang, stt.Result{Err: err})
		return
	}
	defer capture.Close()

	c.mu.Lock()
	c.capture = capture
	stop := c.stopWanted
	c.mu.Unlock()
	if stop {
		capture.Stop()
	}

	res, ok := <-capture.Result()
	if !ok {
		res = stt.Result{Err: errors.New("capture ended without a result")}
	}
	c.finishListening(gen, lang, res)
}

func (c *Controller) finishListening(gen uint64, lang locale.Tag, res stt.Result) {
	dest := intent.NoOp
	if res.Err == nil {
		dest = c.deps.Interpreter.Interpret(res.Text, lang)
	}

	c.mu.Lock()
	c.listening = false
	c.capture = nil
	if !c.current(gen) {
		c.mu.Unlock()
		c.logger.Debug("dropping capture result for closed session")
		return
	}
	c.recording = false
	navigated := false
	if res.Err == nil {
		c.message = res.Text
		navigated = c.nav.Navigate(dest)
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.deps.Effects.SessionChanged(snap)

	if res.Err != nil {
		if errors.Is(res.Err, stt.ErrUnsupported) {
			c.logger.Info("speech recognition unsupported")
			c.metrics.recognition("unsupported")
		} else {
			c.logger.Warn("speech recognition failed", slogError(res.Err))
			c.metrics.recognition("error")
		}
		c.deps.Effects.Record(c.id, eventstore.TypeRecognitionError, map[string]string{"error": res.Err.Error()})
		return
	}

	c.metrics.recognition("transcript")
	c.deps.Effects.Record(c.id, eventstore.TypeTranscript, map[string]any{
		"text":       res.Text,
		"confidence": res.Confidence,
		"language":   lang.String(),
	})
	if navigated {
		c.navigated(dest, SourceTranscript)
	}
}

// StopListening asks the open capture to finalize with what it has heard.
// Its result is handled like any other terminal event.
func (c *Controller) StopListening() {
	c.mu.Lock()
	capture := c.capture
	if c.listening && capture == nil {
		c.stopWanted = true
	}
	c.mu.Unlock()

	if capture != nil {
		capture.Stop()
	}
}

// NavigateTo is the explicit UI navigation. It reports whether the screen changed.
func (c *Controller) NavigateTo(dest intent.Intent) (bool, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false, ErrClosed
	}
	navigated := c.nav.Navigate(dest)
	snap := c.snapshotLocked()
	c.mu.Unlock()

	if navigated {
		c.deps.Effects.SessionChanged(snap)
		c.navigated(dest, SourceUI)
	}
	return navigated, nil
}

// Back returns to the previous screen.
func (c *Controller) Back() (intent.Intent, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return intent.NoOp, ErrClosed
	}
	before := c.nav.Current()
	dest := c.nav.Back()
	snap := c.snapshotLocked()
	c.mu.Unlock()

	if dest != before {
		c.deps.Effects.SessionChanged(snap)
		c.navigated(dest, SourceUI)
	}
	return dest, nil
}

// Calendar returns the calendar screen's event list.
func (c *Controller) Calendar() calendar.EventSet {
	return c.board.Events()
}

// ApplyCalendar runs a calendar voice command against pending, the event
// text being edited. It only works while the calendar screen is showing.
func (c *Controller) ApplyCalendar(command, pending string) (calendar.Verb, bool, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return calendar.None, false, ErrClosed
	}
	if c.nav.Current() != intent.Calendar {
		c.mu.Unlock()
		return calendar.None, false, ErrNotOnCalendar
	}
	lang := c.language
	c.mu.Unlock()

	verb, changed := c.board.Apply(command, pending, lang)
	if changed {
		c.deps.Effects.Record(c.id, eventstore.TypeCalendarChanged, map[string]any{
			"verb":   string(verb),
			"events": c.board.Events(),
		})
	}
	return verb, changed, nil
}

func (c *Controller) navigated(dest intent.Intent, source string) {
	c.logger.Info("navigated", slog.String("destination", dest.String()), slog.String("source", source))
	c.metrics.navigation(dest.String(), source)
	c.deps.Effects.Navigated(c.id, dest, source)
}

// Close unmounts the session. In-flight work is cancelled and any result
// that still arrives is dropped. Close waits for every operation to finish.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.generation++
	c.recording = false
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
}
