package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/studymate/internal/observe"
	"github.com/MrWong99/studymate/pkg/audio"
	"github.com/MrWong99/studymate/pkg/provider/live"
)

// User-facing messages surfaced through [Observer.Error].
const (
	StartFailedMessage = "Could not start voice chat. Please ensure you have a microphone and have granted permission."
	errorMessagePrefix = "Voice chat error: "
)

// ErrSuperseded is returned by [Manager.Start] when Stop or another Start
// took over while the session was still being set up.
var ErrSuperseded = errors.New("voice: start superseded")

// Config holds the parameters of a voice session.
type Config struct {
	// InputSampleRate is the capture rate in Hz. Default 16000.
	InputSampleRate int

	// OutputSampleRate is the playback rate in Hz. Default 24000.
	OutputSampleRate int

	// FrameSize is the number of samples per capture frame. Default 4096.
	FrameSize int

	// SendQueue bounds the outgoing chunk queue. Default 32.
	SendQueue int

	// Instructions and Voice are passed to the live provider.
	Instructions string
	Voice        string

	Logger  *slog.Logger
	Metrics *observe.Metrics
}

func (c *Config) applyDefaults() {
	if c.InputSampleRate <= 0 {
		c.InputSampleRate = 16000
	}
	if c.OutputSampleRate <= 0 {
		c.OutputSampleRate = 24000
	}
	if c.FrameSize <= 0 {
		c.FrameSize = 4096
	}
	if c.SendQueue <= 0 {
		c.SendQueue = 32
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Metrics == nil {
		c.Metrics = observe.DefaultMetrics()
	}
}

// Observer receives UI-relevant events from a [Manager]. Calls are made
// without holding the manager's lock and must not block for long.
// StateChanged calls are serialized and must not call back into Start or
// Stop.
type Observer interface {
	StateChanged(s State)
	PartialChanged(user, model string)
	TurnCommitted(t Turn)
	Error(msg string)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) StateChanged(State)            {}
func (NopObserver) PartialChanged(string, string) {}
func (NopObserver) TurnCommitted(Turn)            {}
func (NopObserver) Error(string)                  {}

// resources holds everything acquired for one session. It is released as a
// unit.
type resources struct {
	stream    audio.MediaStream
	capCtx    audio.CaptureContext
	playCtx   audio.PlaybackContext
	source    audio.Node
	processor audio.Node
	capture   *Capture
	sched     *Scheduler
	sess      live.Session
	startedAt time.Time
}

// release tears down every acquired resource. Each step runs even if an
// earlier one failed; errors are logged.
func (r *resources) release(log *slog.Logger) {
	if r.capture != nil {
		r.capture.Detach()
	}
	if r.stream != nil {
		if err := r.stream.StopTracks(); err != nil {
			log.Warn("voice: stop microphone tracks", "err", err)
		}
	}
	if r.processor != nil {
		if err := r.processor.Disconnect(); err != nil {
			log.Warn("voice: disconnect processor", "err", err)
		}
	}
	if r.source != nil {
		if err := r.source.Disconnect(); err != nil {
			log.Warn("voice: disconnect source", "err", err)
		}
	}
	if r.capture != nil {
		_ = r.capture.Close()
	}
	if r.capCtx != nil && !r.capCtx.Closed() {
		if err := r.capCtx.Close(); err != nil {
			log.Warn("voice: close capture context", "err", err)
		}
	}
	if r.playCtx != nil && !r.playCtx.Closed() {
		if err := r.playCtx.Close(); err != nil {
			log.Warn("voice: close playback context", "err", err)
		}
	}
	if r.sched != nil {
		r.sched.Stop()
	}
	if r.sess != nil {
		if err := r.sess.Close(); err != nil {
			log.Warn("voice: close live session", "err", err)
		}
	}
}

// Manager is the single authority over the voice session. At most one
// session exists at a time.
//
// Every Start and every Stop bumps a generation counter. Callbacks from the
// live provider carry the generation they were created for and are ignored
// once it is superseded.
type Manager struct {
	platform audio.Platform
	provider live.Provider
	cfg      Config
	obs      Observer
	log      *slog.Logger
	metrics  *observe.Metrics

	// notifyMu orders StateChanged calls. Held without mu.
	notifyMu sync.Mutex

	mu          sync.Mutex
	state       State
	gen         uint64
	res         *resources
	startCancel context.CancelFunc
	active      bool
	rec         *Reconciler
}

// NewManager creates an idle Manager. obs may be nil.
func NewManager(platform audio.Platform, provider live.Provider, cfg Config, obs Observer) *Manager {
	cfg.applyDefaults()
	if obs == nil {
		obs = NopObserver{}
	}
	return &Manager{
		platform: platform,
		provider: provider,
		cfg:      cfg,
		obs:      obs,
		log:      cfg.Logger,
		metrics:  cfg.Metrics,
		state:    StateIdle,
		rec:      NewReconciler(),
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Active reports whether a session is starting or running.
func (m *Manager) Active() bool {
	s := m.State()
	return s == StateStarting || s == StateActive
}

// Partial returns the in-progress user and model transcripts.
func (m *Manager) Partial() (user, model string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rec.Partial()
}

// Start opens a voice session. It is a no-op while a session is starting or
// active. Any failure surfaces [StartFailedMessage] to the observer and
// releases everything acquired so far.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateStarting || m.state == StateActive {
		m.mu.Unlock()
		return nil
	}
	next, err := Transition(m.state, EventStart)
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("voice: start: %w", err)
	}
	m.state = next
	m.gen++
	gen := m.gen
	startCtx, cancel := context.WithCancel(ctx)
	m.startCancel = cancel
	m.rec.Reset()
	m.mu.Unlock()
	defer cancel()

	m.notifyState(gen, StateStarting)

	startCtx, span := observe.StartSpan(startCtx, "voice.start")
	defer span.End()

	res := &resources{startedAt: time.Now()}
	if err := m.acquire(startCtx, gen, res); err != nil {
		observe.Fail(span, err)
		res.release(m.log)
		if idleGen, ok := m.failStart(gen); ok {
			m.log.Error("voice: start failed", "err", err)
			m.obs.Error(StartFailedMessage)
			m.notifyState(idleGen, StateIdle)
			return fmt.Errorf("voice: start: %w", err)
		}
		return ErrSuperseded
	}

	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		res.release(m.log)
		return ErrSuperseded
	}
	m.res = res
	m.startCancel = nil
	m.mu.Unlock()

	res.capture.Attach(res.sess)
	observe.WithSpan(startCtx, m.log).Info("voice: session connecting", "generation", gen)
	return nil
}

// acquire builds the audio graph and connects the live session into res.
func (m *Manager) acquire(ctx context.Context, gen uint64, res *resources) error {
	var err error
	if res.stream, err = m.platform.OpenMicrophone(ctx); err != nil {
		return fmt.Errorf("open microphone: %w", err)
	}
	if res.capCtx, err = m.platform.NewCaptureContext(m.cfg.InputSampleRate); err != nil {
		return fmt.Errorf("capture context: %w", err)
	}
	if res.playCtx, err = m.platform.NewPlaybackContext(m.cfg.OutputSampleRate); err != nil {
		return fmt.Errorf("playback context: %w", err)
	}
	res.sched = NewScheduler(res.playCtx, m.log, m.metrics)
	res.capture = NewCapture(CaptureConfig{
		SampleRate: res.capCtx.SampleRate(),
		TargetRate: m.cfg.InputSampleRate,
		QueueSize:  m.cfg.SendQueue,
		Logger:     m.log,
		Metrics:    m.metrics,
	})
	if res.source, err = res.capCtx.NewSource(res.stream); err != nil {
		return fmt.Errorf("source node: %w", err)
	}
	if res.processor, err = res.capCtx.NewProcessor(res.source, m.cfg.FrameSize, res.capture.OnFrame); err != nil {
		return fmt.Errorf("processor node: %w", err)
	}

	cfg := live.SessionConfig{
		Instructions:        m.cfg.Instructions,
		Voice:               m.cfg.Voice,
		InputTranscription:  true,
		OutputTranscription: true,
	}
	if res.sess, err = m.provider.Connect(ctx, cfg, m.handler(gen, res)); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	return nil
}

// failStart moves a failed start back to Idle and returns the new
// generation. It reports false when the start was already superseded.
func (m *Manager) failStart(gen uint64) (uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen {
		return 0, false
	}
	m.gen++
	m.startCancel = nil
	m.state, _ = Transition(m.state, EventFail)
	m.state, _ = Transition(m.state, EventClosed)
	return m.gen, true
}

// notifyState reports s to the observer unless generation gen has been
// superseded in the meantime.
func (m *Manager) notifyState(gen uint64, s State) {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()
	m.mu.Lock()
	current := m.gen == gen
	m.mu.Unlock()
	if current {
		m.obs.StateChanged(s)
	}
}

// Stop tears the session down. It is safe to call from any state and more
// than once.
func (m *Manager) Stop() {
	m.mu.Lock()
	gen := m.gen
	m.mu.Unlock()
	m.stop(gen)
}

// stop tears down the session of generation gen. It does nothing if gen is
// no longer current.
func (m *Manager) stop(gen uint64) {
	m.mu.Lock()
	if m.gen != gen || m.state == StateIdle || m.state == StateClosing {
		m.mu.Unlock()
		return
	}
	m.state, _ = Transition(m.state, EventStop)
	m.gen++
	gen = m.gen
	res, cancel := m.res, m.startCancel
	m.res, m.startCancel = nil, nil
	wasActive := m.active
	m.active = false
	user, model := m.rec.Partial()
	m.rec.Reset()
	m.mu.Unlock()

	m.notifyState(gen, StateClosing)
	if cancel != nil {
		cancel()
	}
	if res != nil {
		res.release(m.log)
	}
	if wasActive {
		m.metrics.ActiveSessions.Add(context.Background(), -1)
	}
	if user != "" || model != "" {
		m.obs.PartialChanged("", "")
	}

	m.mu.Lock()
	idle := m.gen == gen
	if idle {
		m.state, _ = Transition(m.state, EventClosed)
	}
	m.mu.Unlock()
	if idle {
		m.notifyState(gen, StateIdle)
		m.log.Info("voice: session stopped")
	}
}

// handler binds live callbacks to generation gen.
func (m *Manager) handler(gen uint64, res *resources) live.Handler {
	return live.HandlerFuncs{
		Open:    func() { m.onOpen(gen, res) },
		Message: func(msg live.Message) { m.onMessage(gen, res, msg) },
		Error:   func(err error) { m.onError(gen, err) },
		Close:   func(reason string) { m.onClose(gen, reason) },
	}
}

func (m *Manager) onOpen(gen uint64, res *resources) {
	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return
	}
	next, err := Transition(m.state, EventOpen)
	if err != nil {
		m.mu.Unlock()
		m.log.Debug("voice: ignoring open", "err", err)
		return
	}
	m.state = next
	m.active = true
	m.mu.Unlock()

	m.metrics.ActiveSessions.Add(context.Background(), 1)
	m.metrics.VoiceStartDuration.Record(context.Background(), time.Since(res.startedAt).Seconds())
	m.log.Info("voice: session open")
	m.notifyState(gen, StateActive)
}

func (m *Manager) onMessage(gen uint64, res *resources, msg live.Message) {
	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return
	}
	for _, payload := range msg.Audio {
		if err := res.sched.Enqueue(payload); err != nil {
			m.log.Warn("voice: dropping audio payload", "err", err)
		}
	}
	u := m.rec.Apply(msg)
	m.mu.Unlock()

	if u.PartialsChanged {
		m.obs.PartialChanged(u.UserPartial, u.ModelPartial)
	}
	for _, t := range u.Committed {
		m.metrics.RecordTurn(context.Background(), string(t.Speaker))
		m.obs.TurnCommitted(t)
	}
}

func (m *Manager) onError(gen uint64, err error) {
	m.mu.Lock()
	current := m.gen == gen
	m.mu.Unlock()
	if !current {
		return
	}
	m.log.Error("voice: live session error", "err", err)
	m.obs.Error(errorMessagePrefix + err.Error())
	m.stop(gen)
}

func (m *Manager) onClose(gen uint64, reason string) {
	m.log.Info("voice: live session closed by remote", "reason", reason)
	m.stop(gen)
}
