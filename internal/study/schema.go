package study

import "google.golang.org/genai"

func str(desc string) *genai.Schema {
	return &genai.Schema{Type: genai.TypeString, Description: desc}
}

func integer(desc string) *genai.Schema {
	return &genai.Schema{Type: genai.TypeInteger, Description: desc}
}

func number(desc string) *genai.Schema {
	return &genai.Schema{Type: genai.TypeNumber, Description: desc}
}

func array(desc string, items *genai.Schema) *genai.Schema {
	return &genai.Schema{Type: genai.TypeArray, Description: desc, Items: items}
}

// object builds an object schema whose properties are all required and
// ordered as given.
func object(desc string, props ...any) *genai.Schema {
	s := &genai.Schema{Type: genai.TypeObject, Description: desc, Properties: map[string]*genai.Schema{}}
	for i := 0; i+1 < len(props); i += 2 {
		name := props[i].(string)
		s.Properties[name] = props[i+1].(*genai.Schema)
		s.Required = append(s.Required, name)
		s.PropertyOrdering = append(s.PropertyOrdering, name)
	}
	return s
}

// Schema returns the response schema matching [Output].
func Schema() *genai.Schema {
	return object("",
		"summary", object("",
			"title", str("The main title of the summary, formatted as a Markdown H1 (e.g., '# Title')."),
			"tl_dr", str("A one-sentence summary, formatted using Markdown."),
			"short", str("A short summary of around 150 words. Use rich Markdown, LaTeX, and code blocks."),
			"medium", str("A medium summary of around 400 words. Use rich Markdown, LaTeX, and code blocks."),
			"long", str("A long, detailed summary over 1000 words. Use rich Markdown, LaTeX, and code blocks."),
			"glossary", array("A list of key terms and their definitions found in the summary.", object("",
				"term", str("The key term or phrase."),
				"definition", str("A concise definition of the term."),
			)),
		),
		"flashcards", array("A list of flashcards.", object("",
			"id", str("Unique identifier, e.g., 'f1'."),
			"q", str("The question on the flashcard."),
			"a", str("The answer to the flashcard question."),
			"tags", array("Relevant tags or topics for the flashcard.", str("")),
			"confidence", number("Confidence score from 0.0 to 1.0."),
		)),
		"quiz", array("A list of quiz questions.", object("",
			"id", str("Unique identifier, e.g., 'q1'."),
			"q", str("The quiz question."),
			"options", array("", str("")),
			"answer_index", integer("The 0-based index of the correct option."),
			"difficulty", str("Difficulty level: 'easy', 'medium', or 'hard'."),
			"explanation", str("An explanation for the correct answer."),
			"confidence", number("Confidence score from 0.0 to 1.0."),
		)),
		"study_plan", object("",
			"total_weeks", integer(""),
			"schedule", array("", object("",
				"day", integer(""),
				"task", str(""),
				"time_mins", integer(""),
			)),
		),
	)
}
