package study_test

import (
	"strings"
	"testing"

	"github.com/MrWong99/studymate/internal/study"
)

func TestBuildPrompt_Sections(t *testing.T) {
	t.Parallel()

	profile := study.StudentProfile{
		Level:         study.LevelGrad,
		LearningStyle: study.StyleApplied,
		Goals:         []study.Goal{study.GoalExam, study.GoalDeepUnderstanding},
	}
	prefs := study.DefaultPreferences()
	prefs.StudyPlan = study.StudyPlanPreferences{Enabled: true, Weeks: 3}

	got := study.BuildPrompt("Entropy always increases.", profile, prefs, "de")

	for _, want := range []string{
		"--- ACADEMIC CONTENT START ---\nEntropy always increases.\n--- ACADEMIC CONTENT END ---",
		"- Level: grad",
		"- Learning Style: applied",
		"- Goals: exam, deep_understanding",
		"- 10 Flashcards (Density: key concepts)",
		"- A 5-question Quiz (Depth: quick check)",
		"- A 3-week study plan",
		"in this language: de.",
		"CRITICAL: OUTPUT FORMATTING RULES",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestBuildPrompt_OmitsDisabledFeatures(t *testing.T) {
	t.Parallel()

	prefs := study.DefaultPreferences()
	prefs.Flashcards.Enabled = false
	prefs.Quiz.Enabled = false

	got := study.BuildPrompt("x", study.DefaultProfile(), prefs, "")
	for _, unwanted := range []string{"Flashcards (", "Quiz (", "study plan\n", "in this language"} {
		if strings.Contains(got, unwanted) {
			t.Errorf("prompt unexpectedly contains %q", unwanted)
		}
	}
	if study.BuildPrompt("x", study.DefaultProfile(), prefs, "") != got {
		t.Error("BuildPrompt is not deterministic")
	}
}

func TestFeatures(t *testing.T) {
	t.Parallel()

	p := study.Preferences{
		Flashcards: study.FlashcardPreferences{Enabled: true, Density: "detailed", Count: 20},
		Quiz:       study.QuizPreferences{Enabled: true, Depth: "challenging", Count: 8},
	}
	got := study.Features(p)
	want := []string{"20 Flashcards (Density: detailed)", "A 8-question Quiz (Depth: challenging)"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("Features() = %q, want %q", got, want)
	}
}

func TestSchema_RequiresAllSections(t *testing.T) {
	t.Parallel()

	s := study.Schema()
	want := []string{"summary", "flashcards", "quiz", "study_plan"}
	if strings.Join(s.Required, ",") != strings.Join(want, ",") {
		t.Errorf("Required = %v, want %v", s.Required, want)
	}
	quiz := s.Properties["quiz"].Items
	if quiz == nil || quiz.Properties["answer_index"] == nil {
		t.Fatal("quiz item schema missing answer_index")
	}
	if got := s.Properties["summary"].Properties["glossary"].Items.Required; len(got) != 2 {
		t.Errorf("glossary required = %v", got)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	if err := study.DefaultProfile().Validate(); err != nil {
		t.Errorf("default profile invalid: %v", err)
	}
	if err := study.DefaultPreferences().Validate(); err != nil {
		t.Errorf("default preferences invalid: %v", err)
	}

	bad := study.StudentProfile{Level: "phd", LearningStyle: "osmosis", Goals: []study.Goal{"fun"}}
	err := bad.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{`level "phd"`, `learning style "osmosis"`, `goal "fun"`} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}

	prefs := study.DefaultPreferences()
	prefs.Quiz.Count = 0
	prefs.StudyPlan = study.StudyPlanPreferences{Enabled: true}
	if err := prefs.Validate(); err == nil || !strings.Contains(err.Error(), "quiz count") || !strings.Contains(err.Error(), "weeks") {
		t.Errorf("Validate() = %v", err)
	}
}

func TestUserMessage(t *testing.T) {
	t.Parallel()

	wrapped := &study.UserError{Message: "shown", Err: errTestCause}
	if got := study.UserMessage(wrapped); got != "shown" {
		t.Errorf("UserMessage(UserError) = %q", got)
	}
	if got := study.UserMessage(nil); got != "" {
		t.Errorf("UserMessage(nil) = %q", got)
	}
	if got := study.UserMessage(statusErr(502)); got != study.MsgUnavailable {
		t.Errorf("UserMessage(502) = %q", got)
	}
	if !study.Retryable(statusErr(500)) || study.Retryable(statusErr(404)) {
		t.Error("Retryable misclassifies StatusCoder errors")
	}
}

type statusErr int

func (e statusErr) Error() string   { return "status" }
func (e statusErr) HTTPStatus() int { return int(e) }

var errTestCause = statusErr(418)
