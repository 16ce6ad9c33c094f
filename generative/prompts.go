package generative

import (
	"fmt"
	"strings"
)

const candidateSystem = `You are a creative writing partner in a group storytelling game.
Given the story so far, propose possible next lines. Each line is one or two sentences
and continues directly from the last line.`

func candidatePrompt(text, personality string, n int) (system, user string) {
	system = candidateSystem
	if personality != "" {
		system += fmt.Sprintf("\nWrite every line in a %s voice.", personality)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Story so far:\n%s\n\n", text)
	fmt.Fprintf(&b, "Provide exactly %d possible next lines.\n", n)
	b.WriteString(`Respond with only a JSON array of objects, each with a single "text" field:`)
	b.WriteString("\n[{\"text\": \"...\"}")
	for i := 1; i < n; i++ {
		b.WriteString(", {\"text\": \"...\"}")
	}
	b.WriteString("]")
	return system, b.String()
}

const extractionTemplate = `The story so far is:
%s

The latest line is: %q

List any characters introduced or revealed in more detail under "newCharacters".
Each character has "name", "description", "status", "traits" (array of strings) and
optionally "opinionsOf", an array of {"characterName", "opinionText", "trustLevel"}
where trustLevel is an integer.

List any locations introduced or revealed under "newSettings". Each setting has
"locationName", "description" and "keyDetails" (array of strings).

Respond with only a JSON object using those two top-level keys. Omit a key when
nothing new applies to it.`

func extractionPrompt(fullText, newLine string) string {
	return fmt.Sprintf(extractionTemplate, fullText, newLine)
}

const summaryTemplate = `The following text is the story so far:
%q

Write a concise summary of it in one or two sentences. Respond with the summary
text only.`

func summaryPrompt(text string) string {
	return fmt.Sprintf(summaryTemplate, text)
}

const describeTemplate = `The story is:
%q

Propose:
1. a short title of at most five words
2. the best fitting genre
3. the overall tone (for example mysterious, whimsical, dark, comedic)
4. the narrative style (for example flowery, concise, action-packed)
5. a few theme keywords

Respond with only a JSON object with exactly the keys "title", "genre", "tone",
"style" and "themeKeywords" (an array of strings).`

func describePrompt(text string) string {
	return fmt.Sprintf(describeTemplate, text)
}

const scoreSystem = `You evaluate completed short stories. Score each story on six categories
from 0 (extremely poor) to 10 (exceptional):
- plotCohesion: do the lines connect logically and build toward conflict and resolution?
- creativity: how original is the premise, setting and execution?
- characters: are the characters well defined, interesting and suited to the story?
- settingAtmosphere: does the story establish and use its setting and mood?
- toneStyleAlignment: do the style and tone match the story metadata and stay consistent?
- completeness: does the story feel finished?
Respond with only a JSON object with exactly those six keys, each an integer from 0 to 10.
No commentary and no code fences.`

func scorePrompt(record string) string {
	return "Story data to evaluate:\n" + record
}

const relationshipSystem = `Find the relationships between every pair of characters that interact in a
short story. Write each one on its own line as "Character A -> feeling -> Character B".
Nothing may come before the first name or after the second. For example, instead of
"A finds B fun to be around" write "A -> enjoys being with -> B".
Add no descriptions or explanations.`

func relationshipPrompt(text string) string {
	return "Story so far:\n" + text + "\n\nList the relationships in the required format."
}
