package usecases

import (
	"fmt"
	"strings"

	"project_broadcast/internal/entities"
)

// FallbackReply is sent when the reply generator fails or returns nothing.
const FallbackReply = "Sorry, I'm having trouble answering right now. We'll get back to you shortly."

// BuildAIPrompt turns the user's AI configuration into a system prompt.
func BuildAIPrompt(cfg entities.AIConfig, history []entities.ChatMessage, message string) entities.AIPrompt {
	var sb strings.Builder

	sb.WriteString("You are a WhatsApp assistant replying to customers on behalf of a business.\n")
	if ctx := strings.TrimSpace(cfg.BusinessContext); ctx != "" {
		sb.WriteString("\nBusiness context:\n")
		sb.WriteString(ctx)
		sb.WriteString("\n")
	}

	sb.WriteString("\nTone:\n")
	p := cfg.Personality
	fmt.Fprintf(&sb, "- %s\n", scale(p.Formality, "Casual and relaxed", "Balanced, neither stiff nor sloppy", "Formal and professional"))
	fmt.Fprintf(&sb, "- %s\n", scale(p.Friendliness, "Neutral and to the point", "Polite and approachable", "Warm and enthusiastic"))
	fmt.Fprintf(&sb, "- %s\n", scale(p.Verbosity, "Keep replies to one or two short sentences", "Keep replies brief", "Give thorough, detailed answers"))
	fmt.Fprintf(&sb, "- %s\n", scale(p.Humor, "No jokes", "Light humour only when it fits", "Playful and witty"))

	if len(cfg.FAQ) > 0 {
		sb.WriteString("\nFrequently asked questions (answer consistently with these):\n")
		for _, f := range cfg.FAQ {
			fmt.Fprintf(&sb, "Q: %s\nA: %s\n", f.Question, f.Answer)
		}
	}

	if len(cfg.DoNotDo) > 0 {
		sb.WriteString("\nNever do the following:\n")
		for _, d := range cfg.DoNotDo {
			fmt.Fprintf(&sb, "- %s\n", d)
		}
	}

	sb.WriteString("\nReply in the customer's language. If you don't know the answer, say a team member will follow up.")

	return entities.AIPrompt{
		System:  sb.String(),
		History: history,
		Message: message,
	}
}

// scale picks a phrase for a 0..100 slider.
func scale(v int, low, mid, high string) string {
	switch {
	case v < 34:
		return low
	case v < 67:
		return mid
	default:
		return high
	}
}

// MatchDialogFlow returns the response of the first flow whose trigger occurs
// in text, ignoring case. Flows are scanned in the given order.
func MatchDialogFlow(flows []entities.DialogFlow, text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, f := range flows {
		trigger := strings.ToLower(strings.TrimSpace(f.Trigger))
		if trigger == "" {
			continue
		}
		if strings.Contains(lower, trigger) {
			return f.Response, true
		}
	}
	return "", false
}
