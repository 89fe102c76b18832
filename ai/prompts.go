package ai

import (
	"fmt"
	"strings"
)

// Caption prompts shared by the vision providers.
const (
	DescribeSystemPrompt = "You are a traveler immersed in the world around you. Describe the scene with attention to cultural, " +
		"geographical, and sensory details. Offer personal insights and reflections that reveal the atmosphere, " +
		"local traditions, and unique experiences of the place. Bring the reader into the moment with vivid descriptions."

	PhotoPrefix = "The photo: "

	AnswerSystemPrompt = "You are a helpful assistant answering the question using the provided options."
)

// StyleRules follow the image in the user message.
var StyleRules = []string{
	"Ensure the description is concise and engaging. Limit the description to 2-3 sentences.",
	"Avoid generating a description if the image is unclear. Be confident in the description and do not use words like 'likely' or 'perhaps'.",
	"Do not refer to the image explicitly. Avoid phrases such as 'This image shows' or 'In this photo' or 'This scene'. " +
		"Focus on describing the essence of the scene directly without any verbs.",
}

// Prompts renders the set hints as extra instructions.
func (h Hints) Prompts() []string {
	var out []string
	if len(h.Persons) > 0 {
		out = append(out, fmt.Sprintf("Use the person(s) %s as a hint who is in the photo when generating the image summary", h.PersonList()))
	}
	if h.Folder != "" {
		out = append(out, fmt.Sprintf("Use the folder %s as a hint where this photo was taken when generating the image summary", h.Folder))
	}
	if h.Location != "" {
		out = append(out, fmt.Sprintf("Use the GPS coordinates %s as a hint where this photo was taken when generating the image summary", h.Location))
	}
	return out
}

// AnswerPrompt builds the user message for an Answerer.
func AnswerPrompt(question string, options []string) string {
	return fmt.Sprintf("\nQuestion: %sOptions: %s", question, strings.Join(options, "\n"))
}
