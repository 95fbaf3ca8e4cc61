package entities

// ReplyMode is the per-user automated reply strategy.
type ReplyMode string

const (
	ReplyModeOff     ReplyMode = "off"
	ReplyModeKeyword ReplyMode = "keyword"
	ReplyModeAI      ReplyMode = "ai"
)

type User struct {
	ID            int       `json:"id"`
	Username      string    `json:"username"`
	PasswordHash  string    `json:"-"`
	Role          string    `json:"role"`
	ReplyMode     ReplyMode `json:"reply_mode"`
	AIConfig      AIConfig  `json:"ai_config"`
	DailyLimit    int       `json:"daily_limit"`     // Max campaign messages per day (0 = unlimited)
	BotReplyLimit int       `json:"bot_reply_limit"` // Max bot replies per day (0 = unlimited)
}

// AIConfig is the user's generative reply setup.
type AIConfig struct {
	BusinessContext string      `json:"business_context"`
	Personality     Personality `json:"personality"`
	FAQ             []FAQEntry  `json:"faq"`
	DoNotDo         []string    `json:"do_not_do"`
}

// Personality sliders, each 0..100.
type Personality struct {
	Formality    int `json:"formality"`
	Friendliness int `json:"friendliness"`
	Verbosity    int `json:"verbosity"`
	Humor        int `json:"humor"`
}

type FAQEntry struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}
