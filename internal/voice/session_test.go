package voice_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MrWong99/studymate/internal/voice"
	"github.com/MrWong99/studymate/pkg/audio/mock"
	"github.com/MrWong99/studymate/pkg/provider/live"
	livemock "github.com/MrWong99/studymate/pkg/provider/live/mock"
)

// ─── helpers ─────────────────────────────────────────────────────────────────

type recorder struct {
	mu       sync.Mutex
	states   []voice.State
	partials [][2]string
	turns    []voice.Turn
	errs     []string
}

func (r *recorder) StateChanged(s voice.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *recorder) PartialChanged(user, model string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.partials = append(r.partials, [2]string{user, model})
}

func (r *recorder) TurnCommitted(t voice.Turn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.turns = append(r.turns, t)
}

func (r *recorder) Error(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, msg)
}

func (r *recorder) States() []voice.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]voice.State(nil), r.states...)
}

func (r *recorder) Errors() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.errs...)
}

func (r *recorder) Turns() []voice.Turn {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]voice.Turn(nil), r.turns...)
}

func (r *recorder) LastPartial() [2]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.partials) == 0 {
		return [2]string{}
	}
	return r.partials[len(r.partials)-1]
}

type fixture struct {
	platform *mock.Platform
	provider *livemock.Provider
	obs      *recorder
	mgr      *voice.Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		platform: &mock.Platform{},
		provider: &livemock.Provider{},
		obs:      &recorder{},
	}
	f.mgr = voice.NewManager(f.platform, f.provider, voice.Config{Instructions: "be brief"}, f.obs)
	t.Cleanup(f.mgr.Stop)
	return f
}

// startOpen starts a session and delivers the open callback.
func (f *fixture) startOpen(t *testing.T) (live.Handler, *livemock.Session) {
	t.Helper()
	require.NoError(t, f.mgr.Start(context.Background()))
	h := f.provider.LastHandler()
	require.NotNil(t, h)
	h.OnOpen()
	require.Equal(t, voice.StateActive, f.mgr.State())
	return h, f.provider.LastSession()
}

// requireReleased asserts every resource of the most recent start was freed.
func (f *fixture) requireReleased(t *testing.T) {
	t.Helper()
	require.True(t, f.platform.LastStream().Stopped(), "microphone still open")
	capCtx := f.platform.LastCapture()
	require.True(t, capCtx.Closed(), "capture context open")
	require.True(t, f.platform.LastPlayback().Closed(), "playback context open")
	if n := capCtx.Processor(); n != nil {
		require.True(t, n.Disconnected(), "processor connected")
	}
	if n := capCtx.Source(); n != nil {
		require.True(t, n.Disconnected(), "source connected")
	}
}

// ─── start ───────────────────────────────────────────────────────────────────

func TestManager_StartWiresPipeline(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	require.NoError(t, f.mgr.Start(context.Background()))
	require.Equal(t, voice.StateStarting, f.mgr.State())
	require.True(t, f.mgr.Active())

	calls := f.provider.Calls()
	require.Len(t, calls, 1)
	require.Equal(t, "be brief", calls[0].Cfg.Instructions)
	require.True(t, calls[0].Cfg.InputTranscription)
	require.True(t, calls[0].Cfg.OutputTranscription)

	require.Equal(t, 16000, f.platform.LastCapture().SampleRate())
	require.Equal(t, 24000, f.platform.LastPlayback().SampleRate())
	proc := f.platform.LastCapture().Processor()
	require.Equal(t, 4096, proc.FrameSize)

	f.provider.LastHandler().OnOpen()
	require.Equal(t, voice.StateActive, f.mgr.State())

	sess := f.provider.LastSession()
	sent := sess.Sent()
	require.True(t, proc.Emit(make([]float32, 4096)))
	select {
	case <-sent:
	case <-time.After(2 * time.Second):
		t.Fatal("captured frame was not sent")
	}
	require.Equal(t, "audio/pcm;rate=16000", sess.SentChunks()[0].MIMEType)
}

func TestManager_StartWhileActiveIsNoop(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.startOpen(t)
	require.NoError(t, f.mgr.Start(context.Background()))
	require.Len(t, f.provider.Calls(), 1)
	require.Len(t, f.platform.Streams, 1)
}

func TestManager_StartFailures(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	tests := []struct {
		name   string
		inject func(f *fixture)
	}{
		{"microphone denied", func(f *fixture) { f.platform.OpenMicrophoneError = boom }},
		{"capture context", func(f *fixture) { f.platform.CaptureContextError = boom }},
		{"playback context", func(f *fixture) { f.platform.PlaybackContextError = boom }},
		{"connect", func(f *fixture) { f.provider.ConnectErr = boom }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			tc.inject(f)

			err := f.mgr.Start(context.Background())
			require.ErrorIs(t, err, boom)
			require.Equal(t, voice.StateIdle, f.mgr.State())
			require.Equal(t, []string{voice.StartFailedMessage}, f.obs.Errors())

			if s := f.platform.LastStream(); s != nil {
				require.True(t, s.Stopped())
			}
			if c := f.platform.LastCapture(); c != nil {
				require.True(t, c.Closed())
			}
			if p := f.platform.LastPlayback(); p != nil {
				require.True(t, p.Closed())
			}
		})
	}
}

func TestManager_RestartAfterFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.platform.OpenMicrophoneError = errors.New("denied")
	require.Error(t, f.mgr.Start(context.Background()))

	f.platform.OpenMicrophoneError = nil
	f.startOpen(t)
}

// ─── stop ────────────────────────────────────────────────────────────────────

func TestManager_StopWithoutStart(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.mgr.Stop()
	f.mgr.Stop()
	require.Equal(t, voice.StateIdle, f.mgr.State())
	require.Empty(t, f.obs.Errors())
}

func TestManager_StopReleasesEverything(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	h, sess := f.startOpen(t)

	audioPayload := payload(2400)
	h.OnMessage(live.Message{Audio: []string{audioPayload, audioPayload, audioPayload}})
	h.OnMessage(live.Message{InputTranscription: "half a sent"})
	pb := f.platform.LastPlayback()
	units := pb.Scheduled()
	require.Len(t, units, 3)

	f.mgr.Stop()
	require.Equal(t, voice.StateIdle, f.mgr.State())
	f.requireReleased(t)
	require.True(t, sess.Closed())
	for i, u := range units {
		require.True(t, u.Source.Stopped(), "unit %d", i)
	}
	user, model := f.mgr.Partial()
	require.Empty(t, user)
	require.Empty(t, model)
	require.Equal(t, [2]string{"", ""}, f.obs.LastPartial())

	// Completion callbacks after stop are harmless.
	for i := range units {
		pb.FireEnded(i)
	}

	f.mgr.Stop()
	require.Equal(t, 1, sess.CallCountClose)
	require.Equal(t, 1, pb.CloseCalls())
}

func TestManager_StopContinuesPastFailures(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.provider.CloseErr = errors.New("close failed")
	_, sess := f.startOpen(t)

	f.platform.LastStream().StopError = errors.New("track busy")
	f.platform.LastCapture().Processor().DisconnectError = errors.New("gone")
	// A context closed elsewhere must not be closed again.
	require.NoError(t, f.platform.LastPlayback().Close())

	f.mgr.Stop()
	f.requireReleased(t)
	require.True(t, sess.Closed())
	require.Equal(t, 1, f.platform.LastPlayback().CloseCalls())
	require.Equal(t, voice.StateIdle, f.mgr.State())
	require.Empty(t, f.obs.Errors())
}

func TestManager_StopDuringConnect(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	entered := make(chan struct{})
	f.provider.ConnectHook = func(ctx context.Context, _ live.Handler) error {
		close(entered)
		<-ctx.Done()
		return ctx.Err()
	}

	errc := make(chan error, 1)
	go func() { errc <- f.mgr.Start(context.Background()) }()
	<-entered
	require.Equal(t, voice.StateStarting, f.mgr.State())

	f.mgr.Stop()
	select {
	case err := <-errc:
		require.ErrorIs(t, err, voice.ErrSuperseded)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after Stop")
	}
	require.Equal(t, voice.StateIdle, f.mgr.State())
	require.Empty(t, f.obs.Errors())
	f.requireReleased(t)
}

func TestManager_StartWhileClosing(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, oldSess := f.startOpen(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	f.platform.LastStream().StopHook = func() {
		close(entered)
		<-release
	}

	stopped := make(chan struct{})
	go func() {
		f.mgr.Stop()
		close(stopped)
	}()
	<-entered
	require.Equal(t, voice.StateClosing, f.mgr.State())

	f.startOpen(t)
	close(release)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}

	// The old teardown finished after the new session opened and must leave
	// it alone.
	require.Equal(t, voice.StateActive, f.mgr.State())
	require.True(t, oldSess.Closed())
	require.False(t, f.provider.LastSession().Closed())
	require.False(t, f.platform.LastStream().Stopped())
	require.True(t, f.platform.Streams[0].Stopped())
	require.Equal(t, []voice.State{
		voice.StateStarting, voice.StateActive,
		voice.StateClosing,
		voice.StateStarting, voice.StateActive,
	}, f.obs.States())
}

func TestManager_ObservedStateMatchesAfterRace(t *testing.T) {
	t.Parallel()

	for i := range 50 {
		f := newFixture(t)
		f.startOpen(t)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			f.mgr.Stop()
		}()
		go func() {
			defer wg.Done()
			_ = f.mgr.Start(context.Background())
		}()
		wg.Wait()

		states := f.obs.States()
		require.Equal(t, f.mgr.State(), states[len(states)-1], "iteration %d: observed %v", i, states)
	}
}

// ─── callbacks ───────────────────────────────────────────────────────────────

func TestManager_RemoteErrorStopsWithMessage(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	h, sess := f.startOpen(t)

	h.OnError(errors.New("quota exceeded"))
	require.Equal(t, voice.StateIdle, f.mgr.State())
	require.Equal(t, []string{"Voice chat error: quota exceeded"}, f.obs.Errors())
	require.True(t, sess.Closed())
	f.requireReleased(t)
}

func TestManager_RemoteCloseStopsSilently(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	h, sess := f.startOpen(t)

	h.OnClose("bye")
	require.Equal(t, voice.StateIdle, f.mgr.State())
	require.Empty(t, f.obs.Errors())
	require.True(t, sess.Closed())
}

func TestManager_TranscriptsAndPlayback(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	h, _ := f.startOpen(t)

	h.OnMessage(live.Message{InputTranscription: "What is "})
	h.OnMessage(live.Message{InputTranscription: "entropy?"})
	user, _ := f.mgr.Partial()
	require.Equal(t, "What is entropy?", user)
	require.Equal(t, [2]string{"What is entropy?", ""}, f.obs.LastPartial())

	h.OnMessage(live.Message{OutputTranscription: "A measure", Audio: []string{payload(240)}})
	h.OnMessage(live.Message{OutputTranscription: " of disorder.", TurnComplete: true})

	require.Equal(t, []voice.Turn{
		{Speaker: voice.SpeakerUser, Text: "What is entropy?"},
		{Speaker: voice.SpeakerModel, Text: "A measure of disorder."},
	}, f.obs.Turns())
	require.Equal(t, [2]string{"", ""}, f.obs.LastPartial())
	require.Len(t, f.platform.LastPlayback().Scheduled(), 1)
}

func TestManager_BadAudioKeepsSession(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	h, sess := f.startOpen(t)

	h.OnMessage(live.Message{Audio: []string{"not base64!", payload(240)}})
	require.Equal(t, voice.StateActive, f.mgr.State())
	require.False(t, sess.Closed())
	require.Len(t, f.platform.LastPlayback().Scheduled(), 1)
	require.Empty(t, f.obs.Errors())
}

func TestManager_StaleCallbacksIgnored(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	old, _ := f.startOpen(t)
	f.mgr.Stop()

	_, sess := f.startOpen(t)
	oldPlayback := f.platform.Playbacks[0]

	old.OnMessage(live.Message{InputTranscription: "ghost", Audio: []string{payload(240)}})
	old.OnError(errors.New("late"))
	old.OnClose("late")

	require.Equal(t, voice.StateActive, f.mgr.State())
	require.False(t, sess.Closed())
	require.Empty(t, f.obs.Errors())
	require.Empty(t, oldPlayback.Scheduled())
	user, _ := f.mgr.Partial()
	require.Empty(t, user)
}
