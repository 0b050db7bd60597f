package util

import (
	"sort"
	"strings"
	"unicode"
)

// Truncate cuts s to maxRunes runes, appending "..." when something was dropped.
func Truncate(s string, maxRunes int) string {
	runes := []rune(s)
	if maxRunes <= 0 || len(runes) <= maxRunes {
		return s
	}
	return strings.TrimSpace(string(runes[:maxRunes])) + "..."
}

// DisplaySnippet cleans chunk text for display and truncates it.
func DisplaySnippet(s string, maxRunes int) string {
	if maxRunes <= 0 {
		maxRunes = 420
	}
	return Truncate(printable(CleanPageText(s)), maxRunes)
}

// DisplayEvidenceSnippet picks the sentence(s) of chunkText that share the most terms with query.
func DisplayEvidenceSnippet(chunkText, query string, maxRunes int) string {
	text := DisplaySnippet(chunkText, 4000)
	if text == "" {
		return ""
	}
	terms := MeaningfulTerms(query)
	sentences := splitSentences(text)
	if len(terms) == 0 || len(sentences) == 0 {
		return DisplaySnippet(text, maxRunes)
	}

	type scored struct {
		sentence string
		score    int
	}
	list := make([]scored, 0, len(sentences))
	for _, s := range sentences {
		low := strings.ToLower(s)
		score := 0
		for _, term := range terms {
			if strings.Contains(low, term) {
				score++
			}
		}
		list = append(list, scored{sentence: s, score: score})
	}
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].score == list[j].score {
			return len(list[i].sentence) < len(list[j].sentence)
		}
		return list[i].score > list[j].score
	})
	if list[0].score == 0 {
		return DisplaySnippet(text, maxRunes)
	}
	best := list[0].sentence
	if len(list) > 1 && list[1].score > 0 {
		best += " " + list[1].sentence
	}
	return DisplaySnippet(best, maxRunes)
}

// Questions arrive in Portuguese or English, so both stop lists apply.
var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "was": {}, "were": {}, "what": {}, "how": {}, "why": {},
	"which": {}, "that": {}, "this": {}, "these": {}, "those": {}, "with": {}, "from": {}, "can": {},
	"que": {}, "para": {}, "com": {}, "uma": {}, "por": {}, "como": {}, "mais": {}, "dos": {}, "das": {},
	"não": {}, "nao": {}, "sim": {}, "ser": {}, "ter": {}, "meu": {}, "minha": {}, "sobre": {}, "qual": {},
	"quais": {}, "quando": {}, "onde": {}, "porque": {}, "isso": {}, "esse": {}, "essa": {}, "eu": {},
}

// MeaningfulTerms lowercases s and returns its distinct non-stop-word terms of three or more runes.
func MeaningfulTerms(s string) []string {
	fields := strings.Fields(strings.ToLower(s))
	seen := map[string]struct{}{}
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimFunc(f, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsNumber(r) })
		if len([]rune(f)) < 3 {
			continue
		}
		if _, ok := stopWords[f]; ok {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		terms = append(terms, f)
	}
	return terms
}

func splitSentences(s string) []string {
	out := make([]string, 0, 8)
	var b strings.Builder
	for _, r := range s {
		b.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if x := strings.TrimSpace(b.String()); x != "" {
				out = append(out, x)
			}
			b.Reset()
		}
	}
	if rest := strings.TrimSpace(b.String()); rest != "" {
		out = append(out, rest)
	}
	return out
}

func printable(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsPrint(r) {
			return r
		}
		return -1
	}, s)
}
