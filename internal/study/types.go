// Package study generates study guides (summary, glossary, flashcards, quiz
// and study plan) from academic text using a structured-output model call.
package study

import (
	"errors"
	"fmt"
	"slices"
)

// Level is the student's academic level.
type Level string

const (
	LevelSchool    Level = "school"
	LevelUndergrad Level = "undergrad"
	LevelGrad      Level = "grad"
	LevelExpert    Level = "expert"
)

// LearningStyle is the student's preferred way of learning.
type LearningStyle string

const (
	StyleVisual  LearningStyle = "visual"
	StyleTextual LearningStyle = "textual"
	StyleApplied LearningStyle = "applied"
	StyleMixed   LearningStyle = "mixed"
)

// Goal is a study objective.
type Goal string

const (
	GoalExam              Goal = "exam"
	GoalRevision          Goal = "revision"
	GoalDeepUnderstanding Goal = "deep_understanding"
)

// StudentProfile tailors the generated material to the student.
type StudentProfile struct {
	Level         Level         `yaml:"level" json:"level"`
	LearningStyle LearningStyle `yaml:"learning_style" json:"learning_style"`
	Goals         []Goal        `yaml:"goals" json:"goals"`
}

// Preferences selects which outputs are generated and how.
type Preferences struct {
	SummaryLength string               `yaml:"summary_length" json:"summary_length"`
	Flashcards    FlashcardPreferences `yaml:"flashcards" json:"flashcards"`
	Quiz          QuizPreferences      `yaml:"quiz" json:"quiz"`
	StudyPlan     StudyPlanPreferences `yaml:"study_plan" json:"study_plan"`
}

// FlashcardPreferences configures flashcard generation.
type FlashcardPreferences struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Density string `yaml:"density" json:"density"` // key_concepts | detailed
	Count   int    `yaml:"count" json:"count"`
}

// QuizPreferences configures quiz generation.
type QuizPreferences struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Depth   string `yaml:"depth" json:"depth"` // quick_check | challenging
	Count   int    `yaml:"count" json:"count"`
}

// StudyPlanPreferences configures the study plan.
type StudyPlanPreferences struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	Weeks   int  `yaml:"weeks" json:"weeks"`
}

// DefaultProfile returns the profile used when none is configured.
func DefaultProfile() StudentProfile {
	return StudentProfile{
		Level:         LevelUndergrad,
		LearningStyle: StyleMixed,
		Goals:         []Goal{GoalExam},
	}
}

// DefaultPreferences returns the preferences used when none are configured.
func DefaultPreferences() Preferences {
	return Preferences{
		SummaryLength: "medium",
		Flashcards:    FlashcardPreferences{Enabled: true, Density: "key_concepts", Count: 10},
		Quiz:          QuizPreferences{Enabled: true, Depth: "quick_check", Count: 5},
		StudyPlan:     StudyPlanPreferences{Enabled: false, Weeks: 2},
	}
}

// Validate reports every invalid field of p.
func (p StudentProfile) Validate() error {
	var errs []error
	if !slices.Contains([]Level{LevelSchool, LevelUndergrad, LevelGrad, LevelExpert}, p.Level) {
		errs = append(errs, fmt.Errorf("study: profile: unknown level %q", p.Level))
	}
	if !slices.Contains([]LearningStyle{StyleVisual, StyleTextual, StyleApplied, StyleMixed}, p.LearningStyle) {
		errs = append(errs, fmt.Errorf("study: profile: unknown learning style %q", p.LearningStyle))
	}
	for _, g := range p.Goals {
		if !slices.Contains([]Goal{GoalExam, GoalRevision, GoalDeepUnderstanding}, g) {
			errs = append(errs, fmt.Errorf("study: profile: unknown goal %q", g))
		}
	}
	return errors.Join(errs...)
}

// Validate reports every invalid field of p.
func (p Preferences) Validate() error {
	var errs []error
	if !slices.Contains([]string{"short", "medium", "long"}, p.SummaryLength) {
		errs = append(errs, fmt.Errorf("study: preferences: unknown summary length %q", p.SummaryLength))
	}
	if p.Flashcards.Enabled {
		if !slices.Contains([]string{"key_concepts", "detailed"}, p.Flashcards.Density) {
			errs = append(errs, fmt.Errorf("study: preferences: unknown flashcard density %q", p.Flashcards.Density))
		}
		if p.Flashcards.Count <= 0 {
			errs = append(errs, errors.New("study: preferences: flashcard count must be positive"))
		}
	}
	if p.Quiz.Enabled {
		if !slices.Contains([]string{"quick_check", "challenging"}, p.Quiz.Depth) {
			errs = append(errs, fmt.Errorf("study: preferences: unknown quiz depth %q", p.Quiz.Depth))
		}
		if p.Quiz.Count <= 0 {
			errs = append(errs, errors.New("study: preferences: quiz count must be positive"))
		}
	}
	if p.StudyPlan.Enabled && p.StudyPlan.Weeks <= 0 {
		errs = append(errs, errors.New("study: preferences: study plan weeks must be positive"))
	}
	return errors.Join(errs...)
}

// GlossaryTerm is a key term defined in the summary.
type GlossaryTerm struct {
	Term       string `json:"term"`
	Definition string `json:"definition"`
}

// Summary holds the summary at several lengths plus its glossary.
type Summary struct {
	Title    string         `json:"title"`
	TLDR     string         `json:"tl_dr"`
	Short    string         `json:"short"`
	Medium   string         `json:"medium"`
	Long     string         `json:"long"`
	Glossary []GlossaryTerm `json:"glossary"`
}

// ByLength returns the summary text for "short", "medium" or "long",
// falling back to Medium.
func (s Summary) ByLength(length string) string {
	switch length {
	case "short":
		return s.Short
	case "long":
		return s.Long
	default:
		return s.Medium
	}
}

// Flashcard is a question and answer pair.
type Flashcard struct {
	ID         string   `json:"id"`
	Question   string   `json:"q"`
	Answer     string   `json:"a"`
	Tags       []string `json:"tags"`
	Confidence float64  `json:"confidence"`
}

// QuizQuestion is a multiple choice question.
type QuizQuestion struct {
	ID          string   `json:"id"`
	Question    string   `json:"q"`
	Options     []string `json:"options"`
	AnswerIndex int      `json:"answer_index"`
	Difficulty  string   `json:"difficulty"`
	Explanation string   `json:"explanation"`
	Confidence  float64  `json:"confidence"`
}

// Correct returns the text of the correct option, or "" if the index is out
// of range.
func (q QuizQuestion) Correct() string {
	if q.AnswerIndex < 0 || q.AnswerIndex >= len(q.Options) {
		return ""
	}
	return q.Options[q.AnswerIndex]
}

// StudyPlanTask is one scheduled study session.
type StudyPlanTask struct {
	Day      int    `json:"day"`
	Task     string `json:"task"`
	TimeMins int    `json:"time_mins"`
}

// StudyPlan is a multi-week schedule.
type StudyPlan struct {
	TotalWeeks int             `json:"total_weeks"`
	Schedule   []StudyPlanTask `json:"schedule"`
}

// Output is a complete generated study guide.
type Output struct {
	Summary    Summary        `json:"summary"`
	Flashcards []Flashcard    `json:"flashcards"`
	Quiz       []QuizQuestion `json:"quiz"`
	StudyPlan  StudyPlan      `json:"study_plan"`
}
