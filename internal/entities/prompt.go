package entities

// AIPrompt is the input to a reply generator.
type AIPrompt struct {
	System  string
	History []ChatMessage
	Message string
}
