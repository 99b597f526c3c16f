package study

import (
	"fmt"
	"strings"
)

const promptPreamble = "You are StudyMate AI, an expert academic writer and educator. Your primary goal is to " +
	"produce clear, accurate, engaging, and professional-grade educational content. Your writing style is " +
	"academic but accessible. Your entire output MUST be valid JSON that strictly follows the provided schema."

const formattingRules = `--- CRITICAL: OUTPUT FORMATTING RULES ---
The quality and validity of your Markdown and JSON output are paramount. Adhere to these rules without exception.

1.  **ABSOLUTE PROHIBITION OF CUSTOM SYNTAX:** Your output MUST NOT contain any non-standard characters, tags, or syntax. Characters like '@' or custom tags like '>>>' are strictly forbidden. Generate clean, universally-accepted Markdown.
2.  **NO EXTERNAL LINKS:** Do not add any URLs or links to the text, unless they were explicitly part of the original source content provided by the user.
3.  **Summary Structure:**
    - The entire summary content begins with a single H1 title (e.g., ` + "`# Main Title`" + `). This is for the ` + "`summary.title`" + ` field.
    - Use H3 titles for sections (e.g., ` + "`### Section Title`" + `).
    - Use hyphens (` + "`-`" + `) for unordered lists.
4.  **Text Styling and Glossary:**
    - **Bold text is reserved exclusively for terms defined in the ` + "`glossary`" + ` array.** Do not bold any other text for emphasis.
    - Use italics for general emphasis. Use bold-and-italic for strong emphasis.
    - Use inline code backticks to highlight other important, non-glossary terms or concepts.
5.  **Mathematical Notation:** Use LaTeX for all math. Use ` + "`$$...$$`" + ` for block equations and ` + "`$...$`" + ` for inline math.
6.  **Code Blocks:** Use standard fenced code blocks with language identifiers.
7.  **Callout Blocks:** Use standard Markdown blockquotes, starting the first line with a keyword followed by a colon. Valid keywords are: ` + "`Key Concept`, `Pro-Tip`, `Example`, `Warning`" + `.

Please generate the entire output as a single, valid JSON object that strictly adheres to the provided schema. Do not include any text or markdown formatting outside of the JSON object itself.`

// Features lists the optional outputs requested by p, one line each.
func Features(p Preferences) []string {
	var out []string
	if p.Flashcards.Enabled {
		out = append(out, fmt.Sprintf("%d Flashcards (Density: %s)", p.Flashcards.Count, humanize(p.Flashcards.Density)))
	}
	if p.Quiz.Enabled {
		out = append(out, fmt.Sprintf("A %d-question Quiz (Depth: %s)", p.Quiz.Count, humanize(p.Quiz.Depth)))
	}
	if p.StudyPlan.Enabled {
		out = append(out, fmt.Sprintf("A %d-week study plan", p.StudyPlan.Weeks))
	}
	return out
}

func humanize(s string) string {
	return strings.ReplaceAll(s, "_", " ")
}

// BuildPrompt renders the generation prompt. An empty language leaves the
// output language to the model. BuildPrompt is pure.
func BuildPrompt(content string, profile StudentProfile, prefs Preferences, language string) string {
	var sb strings.Builder

	sb.WriteString(promptPreamble)
	sb.WriteString("\n\nBased on the following academic text, generate a comprehensive study guide.\n\n")

	// ── Source ────────────────────────────────────────────────────────────────
	sb.WriteString("--- ACADEMIC CONTENT START ---\n")
	sb.WriteString(content)
	sb.WriteString("\n--- ACADEMIC CONTENT END ---\n\n")

	// ── Profile ───────────────────────────────────────────────────────────────
	goals := make([]string, len(profile.Goals))
	for i, g := range profile.Goals {
		goals[i] = string(g)
	}
	sb.WriteString("The user's profile is:\n")
	fmt.Fprintf(&sb, "- Level: %s\n", profile.Level)
	fmt.Fprintf(&sb, "- Learning Style: %s\n", profile.LearningStyle)
	fmt.Fprintf(&sb, "- Goals: %s\n\n", strings.Join(goals, ", "))

	// ── Requested outputs ─────────────────────────────────────────────────────
	sb.WriteString("The user has requested the following outputs:\n")
	sb.WriteString("- A summary (title, tl_dr, short, medium, and long versions) with an accompanying glossary.\n")
	for _, f := range Features(prefs) {
		fmt.Fprintf(&sb, "- %s\n", f)
	}
	if language != "" {
		fmt.Fprintf(&sb, "\nWrite every text field in this language: %s.\n", language)
	}

	sb.WriteString("\n")
	sb.WriteString(formattingRules)
	return sb.String()
}
