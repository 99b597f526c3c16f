package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/MrWong99/studymate/internal/app"
	"github.com/MrWong99/studymate/internal/chat"
	"github.com/MrWong99/studymate/internal/prefs"
	"github.com/MrWong99/studymate/internal/study"
	"github.com/MrWong99/studymate/internal/voice"
)

var _ voice.Observer = (*terminal)(nil)

// ANSI styles per theme.
var headingStyle = map[prefs.Theme]string{
	prefs.ThemeLight: "\033[1;34m",
	prefs.ThemeDark:  "\033[1;93m",
}

const reset = "\033[0m"

// terminal renders the guide, chat replies and voice events. Writes are
// serialised because voice events arrive from other goroutines.
type terminal struct {
	mu    sync.Mutex
	w     io.Writer
	theme prefs.Theme
}

func newTerminal(w io.Writer) *terminal {
	return &terminal{w: w, theme: prefs.ThemeLight}
}

func (t *terminal) setTheme(theme prefs.Theme) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.theme = theme
}

func (t *terminal) printf(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.w, format, args...)
}

func (t *terminal) heading(s string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.w, "\n%s%s%s\n", headingStyle[t.theme], s, reset)
}

func (t *terminal) status(msg string) { t.printf("… %s\n", msg) }

// printGuide writes the study guide as plain text.
func (t *terminal) printGuide(out *study.Output, p study.Preferences) {
	t.heading(out.Summary.Title)
	t.printf("TL;DR: %s\n\n%s\n", out.Summary.TLDR, out.Summary.ByLength(p.SummaryLength))

	if len(out.Summary.Glossary) > 0 {
		t.heading("Glossary")
		for _, g := range out.Summary.Glossary {
			t.printf("  %s: %s\n", g.Term, g.Definition)
		}
	}
	if len(out.Flashcards) > 0 {
		t.heading(fmt.Sprintf("Flashcards (%d)", len(out.Flashcards)))
		for i, c := range out.Flashcards {
			t.printf("  %d. Q: %s\n     A: %s\n", i+1, c.Question, c.Answer)
		}
	}
	if len(out.Quiz) > 0 {
		t.heading(fmt.Sprintf("Quiz (%d)", len(out.Quiz)))
		for i, q := range out.Quiz {
			t.printf("  %d. %s\n", i+1, q.Question)
			for j, o := range q.Options {
				t.printf("     %c) %s\n", 'a'+j, o)
			}
			t.printf("     Answer: %s. %s\n", q.Correct(), q.Explanation)
		}
	}
	if len(out.StudyPlan.Schedule) > 0 {
		t.heading(fmt.Sprintf("Study plan (%d weeks)", out.StudyPlan.TotalWeeks))
		for _, task := range out.StudyPlan.Schedule {
			t.printf("  Day %d: %s\n", task.Day, task.Task)
		}
	}
	t.printf("\nAsk a follow-up question, or use /voice, /theme, /quit.\n")
}

// ── voice.Observer ────────────────────────────────────────────────────────────

func (t *terminal) StateChanged(s voice.State) { t.printf("[voice %s]\n", s) }

func (t *terminal) PartialChanged(user, model string) {
	if user == "" && model == "" {
		return
	}
	t.printf("\r… you: %q  tutor: %q", user, model)
}

func (t *terminal) TurnCommitted(turn voice.Turn) {
	who := "You"
	if turn.Speaker == voice.SpeakerModel {
		who = "Tutor"
	}
	t.printf("\n%s (voice): %s\n", who, turn.Text)
}

func (t *terminal) Error(msg string) { t.printf("! %s\n", msg) }

// ── REPL ──────────────────────────────────────────────────────────────────────

// repl reads commands and questions from in until /quit, EOF or ctx ends.
func repl(ctx context.Context, in io.Reader, t *terminal, a *app.App) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		var line string
		select {
		case <-ctx.Done():
			return nil
		case l, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(l)
		}

		switch line {
		case "":
			continue
		case "/quit":
			return nil
		case "/theme":
			theme, err := a.ToggleTheme()
			t.setTheme(theme)
			if err != nil {
				t.Error(err.Error())
			}
			t.printf("Theme: %s\n", theme)
		case "/voice":
			if _, err := a.ToggleVoice(ctx); err != nil && !errors.Is(err, voice.ErrSuperseded) {
				t.Error(err.Error())
			}
		default:
			ask(ctx, t, a, line)
		}
	}
}

func ask(ctx context.Context, t *terminal, a *app.App, question string) {
	session := a.Chat()
	if session == nil {
		t.Error("Follow-up chat is not configured.")
		return
	}
	t.printf("Tutor: ")
	_, err := session.Send(ctx, question, func(delta string) { t.printf("%s", delta) })
	switch {
	case errors.Is(err, chat.ErrVoiceActive):
		t.printf("\n")
		t.Error("Stop the voice conversation (/voice) before typing.")
	case err != nil:
		tr := session.Transcript()
		t.printf("\n%s\n", tr[len(tr)-1].Text)
	default:
		t.printf("\n")
	}
}
