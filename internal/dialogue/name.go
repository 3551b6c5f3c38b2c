package dialogue

import (
	"regexp"
	"strings"
	"unicode"
)

const maxNameRunes = 60

var (
	introPattern = regexp.MustCompile(`(?i)(?:^|[\s,.!¡])(?:me llamo|mi nombre es|soy|my name is|i am|i'm)\s+([\p{L}][\p{L}\s'-]*)`)

	greetings = map[string]struct{}{
		"hola": {}, "hey": {}, "hi": {}, "hello": {}, "buenas": {},
		"buenos": {}, "saludos": {}, "ola": {},
	}

	retryKeywords = map[string]struct{}{
		"reintentar": {}, "retry": {}, "intentar de nuevo": {}, "intenta de nuevo": {},
		"otra vez": {}, "de nuevo": {},
	}
)

// ExtractName finds the student's name in a free-text message. It accepts
// introductions ("me llamo Ana"), any multi-word message, or a single word that
// is not a greeting.
func ExtractName(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}

	if m := introPattern.FindStringSubmatch(text); m != nil {
		if name := cleanName(m[1]); name != "" {
			return name, true
		}
	}

	words := strings.Fields(text)
	if len(words) >= 2 {
		if name := cleanName(text); name != "" {
			return name, true
		}
		return "", false
	}

	word := cleanName(words[0])
	if word == "" {
		return "", false
	}
	if _, ok := greetings[strings.ToLower(word)]; ok {
		return "", false
	}
	return word, true
}

// cleanName trims punctuation and whitespace and caps the length. Names
// without letters are rejected.
func cleanName(s string) string {
	s = strings.TrimFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	s = strings.Join(strings.Fields(s), " ")
	if !strings.ContainsFunc(s, unicode.IsLetter) {
		return ""
	}
	if r := []rune(s); len(r) > maxNameRunes {
		s = strings.TrimSpace(string(r[:maxNameRunes]))
	}
	return s
}

func isRetryKeyword(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	t = strings.TrimRight(t, ".!¡?¿ ")
	_, ok := retryKeywords[t]
	return ok
}
