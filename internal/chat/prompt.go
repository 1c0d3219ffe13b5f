package chat

import (
	"fmt"
	"strings"

	"github.com/havenmind/haven/internal/knowledge"
)

// systemPrompt frames every model call. The model is a supportive
// companion, not a clinician, and must never present itself as one.
const systemPrompt = `You are Haven, a warm and supportive mental wellness companion.

Guidelines:
- Listen with empathy and without judgment. Validate feelings before offering anything else.
- Ground your suggestions in the reference material provided, when any is given.
- Keep answers conversational and concise. No bullet-point lectures.
- You are not a therapist or doctor. Never diagnose, never prescribe, and
  gently suggest professional help when the conversation warrants it.
- Never dismiss or minimize what the user shares.`

// crisisReply is the fixed response returned when a message trips
// crisis detection. It intentionally bypasses the model: a generated
// reply must never race a safety response.
const crisisReply = `I'm really concerned about what you're sharing with me right now. You are not alone, and you deserve support from someone who can truly help.

Please reach out to a crisis counselor right away - you can call or text 988 (Suicide & Crisis Lifeline) any time, day or night. If you are in immediate danger, please call emergency services.

I've let our support team know you may need help. Would you be willing to talk to someone today?`

// buildUserPrompt assembles the final user turn: retrieved reference
// passages (when any) followed by the user's message.
func buildUserPrompt(query string, passages []knowledge.Result) string {
	if len(passages) == 0 {
		return query
	}

	var sb strings.Builder
	sb.WriteString("Reference material:\n")
	for i, r := range passages {
		fmt.Fprintf(&sb, "[%d] (%s) %s\n", i+1, r.Passage.Source, r.Passage.Content)
	}
	sb.WriteString("\nUser message:\n")
	sb.WriteString(query)
	return sb.String()
}
