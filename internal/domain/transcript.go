package domain

import "strings"

// Transcript renders the history as plain text, one "Usuario:" or "Bot:" line
// per message.
func Transcript(history []Message) string {
	var b strings.Builder
	for _, m := range history {
		if m.Sender == SenderUser {
			b.WriteString("Usuario: ")
		} else {
			b.WriteString("Bot: ")
		}
		b.WriteString(m.Text)
		b.WriteByte('\n')
	}
	return b.String()
}
