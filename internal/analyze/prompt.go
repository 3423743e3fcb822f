package analyze

import "strings"

const systemPrompt = `You are a research librarian cataloguing academic papers. You reply with a single JSON object and nothing else: no markdown fences, no commentary.`

const userTemplate = `Extract the following information from the paper below and return it as JSON:

{
  "title": "<full title>",
  "authors": ["<author name>", "..."],
  "year": <4-digit integer or null>,
  "keywords": ["kw1", "kw2", "..."],
  "main_topics": ["topic1", "topic2", "..."],
  "key_findings": "<2-3 sentences summarising the main findings>",
  "methodology": "<1-2 sentences describing the method>",
  "relevance_score": "High | Medium | Low",
  "research_area": "Primary Research | Related Field | Methodology | Background",
  "language": "<language the paper is written in>"
}

Rules:
- keywords: 5-10 concise terms that capture the core subjects
- main_topics: 3-5 broader thematic areas
- relevance_score: High = cutting-edge or directly relevant; Low = tangential
- research_area: how this paper fits into a research portfolio
- year must be an integer, not a string; use null if it cannot be determined

---

Paper text (may be truncated for long papers):

{{text}}`

// buildPrompt renders the extraction prompt around already-truncated text.
func buildPrompt(text string) Prompt {
	return Prompt{
		System: systemPrompt,
		User:   strings.Replace(userTemplate, "{{text}}", text, 1),
	}
}

// pingPrompt is the smallest round trip that proves credentials work.
func pingPrompt() Prompt {
	return Prompt{User: "Reply with just: OK", MaxTokens: 16}
}
