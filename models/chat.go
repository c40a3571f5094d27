package models

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type ChatChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type ChatResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
	Usage   ChatUsage    `json:"usage"`
}

// Content returns the first choice's message text, or "" when there is none.
func (cr ChatResponse) Content() string {
	if len(cr.Choices) == 0 {
		return ""
	}
	return cr.Choices[0].Message.Content
}

// TaskList is the payload chat models are asked to emit inside a fenced json block.
type TaskList struct {
	Type  string         `json:"type"`
	Items []TaskListItem `json:"items"`
}

type TaskListItem struct {
	Title    string `json:"title"`
	Priority int    `json:"priority,omitempty"`
	DueDate  string `json:"due_date,omitempty"`
}
