package entity

// TokenUsage is the OpenAI usage object, also used as the run-wide accumulator
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates other into u. A nil other is a no-op.
func (u *TokenUsage) Add(other *TokenUsage) {
	if other == nil {
		return
	}
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// Plus returns the sum of u and other without modifying u.
func (u TokenUsage) Plus(other *TokenUsage) TokenUsage {
	u.Add(other)
	return u
}
