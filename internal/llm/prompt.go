package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/joseph-ayodele/exam-importer/constants"
)

// BuildSystemPrompt composes the instructions shared by both modes: the reply
// shape, the closed topic and content-type sets, and formatting hygiene.
func BuildSystemPrompt(mode constants.Mode) string {
	parts := []string{
		"You extract practice questions and teaching material from mathematics exam papers and study notes.",
		"Return ONLY one JSON object with two arrays: \"questions\" and \"lessons\". Either array may be empty.",
		"A question is anything the reader is asked to solve. Copy its wording faithfully into 'content', using LaTeX for mathematics.",
		"Include 'solution' and 'answer' only when they are printed in the source. Put short hints in 'hints' as a list of strings.",
		"'topic' must be exactly one of: " + strings.Join(constants.TopicsAsStringSlice(), ", ") + ".",
		"'difficulty' is an integer from 1 (routine) to 5 (olympiad level).",
		"'confidence' is a number from 0 to 1 describing how sure you are the record was read correctly.",
		"Copy the printed question label, such as \"5\" or \"Q3(b)\", into 'questionNum'. Include 'marks' when a mark allocation is printed.",
		"A lesson is explanatory prose. 'contentType' must be one of: " + strings.Join(constants.ContentTypesAsStringSlice(), ", ") + ". Number lessons in reading order with 'order'.",
		"Never output null. If a field is not present, omit it.",
	}
	if mode == constants.ModeVision {
		parts = append(parts,
			"You are looking at a single rendered page. A question may continue from the previous page or onto the next one; extract only what is visible and keep its printed label.",
			"When a question relies on a figure, graph or table, set 'hasDiagram' to true and describe the figure in 'diagramDescription'.",
		)
	}
	parts = append(parts, "JSON Schema:\n"+mustJSON(BuildPayloadJSONSchema()))
	return strings.Join(parts, " ")
}

// BuildTextUserPrompt wraps one chunk of normalized document text.
func BuildTextUserPrompt(chunkText string, index, total int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Document section %d of %d.\n", index+1, total)
	if total > 1 {
		b.WriteString("Sections are cut at paragraph boundaries; skip a question only if its wording is clearly cut off.\n")
	}
	b.WriteString("\nText:\n")
	b.WriteString(chunkText)
	return b.String()
}

// BuildVisionUserPrompt accompanies one page image.
func BuildVisionUserPrompt(pageNumber, totalPages int) string {
	return fmt.Sprintf("Page %d of %d is attached. Extract every question and lesson visible on it.", pageNumber, totalPages)
}

// TextMessages is the full message list for one text chunk.
func TextMessages(chunkText string, index, total int) []Message {
	return []Message{
		{Role: RoleSystem, Content: BuildSystemPrompt(constants.ModeText)},
		{Role: RoleUser, Content: BuildTextUserPrompt(chunkText, index, total)},
	}
}

// VisionMessages is the full message list for one page image.
func VisionMessages(img Image, pageNumber, totalPages int) []Message {
	return []Message{
		{Role: RoleSystem, Content: BuildSystemPrompt(constants.ModeVision)},
		{Role: RoleUser, Content: BuildVisionUserPrompt(pageNumber, totalPages), Images: []Image{img}},
	}
}

func mustJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
