// Package prompts builds the instructions sent to the completion service and
// holds the canned messages shown to students.
package prompts

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/ashureev/orientador/internal/domain"
)

//go:embed system_prompt.md
var defaultSystemPrompt string

// SystemPrompt returns the counselor instructions, read from path when set.
func SystemPrompt(path string) (string, error) {
	if path == "" {
		return defaultSystemPrompt, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read system prompt: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", fmt.Errorf("system prompt file %s is empty", path)
	}
	return text, nil
}

// QuestionGeneration asks for count interview questions tailored to the student's interests.
func QuestionGeneration(interests string, count int) string {
	return fmt.Sprintf(`Eres un orientador vocacional de la UTMACH. El estudiante se describe así: "%s".

Genera %d preguntas variadas y relevantes que te ayuden a conocerlo mejor para orientarlo vocacionalmente. Cubre las cuatro competencias (Comunicacional, Matemática, Digital y Socio-emocional) y sus valores.

Devuelve SOLO un arreglo JSON, sin markdown ni comentarios, con este formato:
[{"key": "pregunta1", "text": "¿Primera pregunta?"}, {"key": "pregunta2", "text": "¿Segunda pregunta?"}]`, interests, count)
}

// Reformulation asks for a friendlier rewording of a question the student did not answer usefully.
func Reformulation(question domain.Question) string {
	return fmt.Sprintf(`Eres un orientador vocacional empático de la Universidad Técnica de Machala (UTMACH). Hiciste esta pregunta: "%s". El estudiante respondió de manera confusa.

Reformula la pregunta explicándola mejor o con un ejemplo y termina repitiéndola. Usa un tono amable.
No incluyas anotaciones internas ni explicaciones entre corchetes o paréntesis. Escribe solo el mensaje para el estudiante.`, question.Text)
}

// Transition asks for an empathetic comment on an answer that leads into the next question.
func Transition(answered domain.Question, answer string, next domain.Question) string {
	return fmt.Sprintf(`Eres un orientador cálido y natural de la UTMACH. Comenta con empatía la respuesta "%s" a la pregunta "%s". Luego enlaza de forma natural con la siguiente pregunta: "%s".

Escribe un solo mensaje, fluido y cercano, que termine con la siguiente pregunta.
No incluyas notas entre corchetes ni explicaciones entre paréntesis.`, answer, answered.Text, next.Text)
}

// Recommendation summarizes every answer and asks for the final career recommendation.
func Recommendation(name string, questions []domain.Question, answers []domain.Answer) string {
	var b strings.Builder
	if name != "" {
		fmt.Fprintf(&b, "Este es el resumen del estudiante %s:\n\n", name)
	} else {
		b.WriteString("Este es el resumen del estudiante:\n\n")
	}

	texts := make(map[string]string, len(questions))
	for _, q := range questions {
		texts[q.Key] = q.Text
	}
	for _, a := range answers {
		if text, ok := texts[a.QuestionKey]; ok {
			fmt.Fprintf(&b, "- %s (%s): %s\n", a.QuestionKey, text, a.Text)
		} else {
			fmt.Fprintf(&b, "- %s: %s\n", a.QuestionKey, a.Text)
		}
	}

	b.WriteString("\nCon base en esto, ¿qué carreras de la Universidad Técnica de Machala (UTMACH) le recomiendas? Redacta de forma cálida y cierra la conversación.")
	return b.String()
}

// FollowUp asks for a warm reply to a message sent after the recommendation.
func FollowUp(message string) string {
	return fmt.Sprintf(`El estudiante escribió: "%s" después de recibir su recomendación vocacional. Responde de manera cálida y útil.`, message)
}

// Score asks for a single integer rating of how usable an answer is.
func Score(question domain.Question, answer string, minScore, maxScore int) string {
	return fmt.Sprintf(`Evalúa si la respuesta de un estudiante sirve para orientarlo vocacionalmente.

Pregunta: "%s"
Respuesta: "%s"

Califica de %d (vacía, evasiva o sin relación) a %d (clara, concreta y con detalles). Responde SOLO con el número.`, question.Text, answer, minScore, maxScore)
}
