package prompts

import "fmt"

// Canned messages shown to the student.
const (
	Greeting           = "¡Hola! Soy tu orientador vocacional de la Universidad Técnica de Machala (UTMACH). ¿Cuál es tu nombre?"
	NameRetry          = `No entendí tu nombre. Por favor, dime cómo te llamas, por ejemplo: "Me llamo Juan" o "Soy Ana".`
	GenerationFailed   = "Hubo un problema generando las preguntas. Por favor, intenta de nuevo o escribe \"reintentar\"."
	TransitionFallback = "Gracias por tu respuesta. Vamos con otra pregunta."
	Analyzing          = "Gracias por compartir todo eso conmigo. Déjame analizar tus respuestas..."
	RecommendationFail = "Ocurrió un error al generar tu recomendación. Escríbeme cualquier mensaje o pulsa reintentar para intentarlo de nuevo."
	FollowUpFallback   = "Gracias por tu mensaje."
	Busy               = "Un momento, todavía estoy procesando tu mensaje anterior."
	PreparingQuestions = "¡Perfecto! Estoy preparando unas preguntas para conocerte mejor..."
	Unavailable        = "Tuve un problema procesando tu mensaje. Intenta de nuevo en un momento."
)

// Welcome greets the student by first name and asks for interests.
func Welcome(firstName string) string {
	return fmt.Sprintf("¡Qué gusto conocerte, %s! 😊 Para ayudarte mejor, cuéntame: ¿cuáles son tus intereses, pasatiempos o aspiraciones profesionales?", firstName)
}

// WelcomePooled greets the student and introduces the first question directly.
func WelcomePooled(firstName string) string {
	return fmt.Sprintf("¡Qué gusto conocerte, %s! 😊 Te haré algunas preguntas para conocerte mejor. No hay respuestas correctas o incorrectas.", firstName)
}

// Elaborate nudges for more detail on the same question.
func Elaborate(questionText string) string {
	return fmt.Sprintf("¡Vas bien! ¿Podrías contarme un poco más? Me ayudaría tener más detalles. %s", questionText)
}

// Resumed greets a student returning to a stored conversation.
func Resumed(firstName string) string {
	return fmt.Sprintf("¡Hola de nuevo, %s! Retomemos donde lo dejamos.", firstName)
}
