package room

// Inbound command payloads.

type JoinRoomPayload struct {
	JoinCode string `json:"joinCode"`
}

type SendPromptPayload struct {
	JoinCode string   `json:"joinCode"`
	Content  string   `json:"content"`
	Type     string   `json:"type"`
	Options  []string `json:"options,omitempty"`
}

type SubmitThoughtPayload struct {
	JoinCode    string `json:"joinCode"`
	Content     string `json:"content"`
	PromptUseID string `json:"promptUseId"`
}

type DeleteThoughtPayload struct {
	JoinCode  string `json:"joinCode"`
	ThoughtID string `json:"thoughtId"`
}

type ReassignPayload struct {
	JoinCode            string `json:"joinCode"`
	StudentConnectionID string `json:"studentConnectionId"`
}

type RequestNewThoughtPayload struct {
	JoinCode              string `json:"joinCode"`
	CurrentThoughtContent string `json:"currentThoughtContent"`
}

type SettingsPayload struct {
	JoinCode        string `json:"joinCode"`
	MaxSwapRequests int    `json:"maxSwapRequests"`
}

// Outbound notification payloads.

type ErrorPayload struct {
	Message string `json:"message"`
}

type ClassStartedPayload struct {
	JoinCode        string `json:"joinCode"`
	SessionID       string `json:"sessionId"`
	MaxSwapRequests int    `json:"maxSwapRequests"`
}

type JoinSuccessPayload struct {
	JoinCode  string `json:"joinCode"`
	SessionID string `json:"sessionId"`
}

type ParticipantInfo struct {
	ConnectionID string `json:"connectionId"`
	Name         string `json:"name"`
}

type ParticipantsPayload struct {
	Participants    []ParticipantInfo `json:"participants"`
	SubmissionCount int               `json:"submissionCount"`
}

type ThoughtInfo struct {
	ID         string `json:"id"`
	Content    string `json:"content"`
	AuthorName string `json:"authorName"`
}

type ThoughtsPayload struct {
	Thoughts []ThoughtInfo `json:"thoughts"`
}

type DistributionEntry struct {
	StudentName        string `json:"studentName"`
	ThoughtContent     string `json:"thoughtContent"`
	OriginalAuthorName string `json:"originalAuthorName"`
}

type DistributionPayload struct {
	Distribution map[string]DistributionEntry `json:"distribution"`
}

type PromptPayload struct {
	Content     string   `json:"content"`
	PromptUseID string   `json:"promptUseId"`
	Type        string   `json:"type"`
	Options     []string `json:"options,omitempty"`
}

type ReceiveSwapPayload struct {
	Content string `json:"content"`
}

type SwapCompletedPayload struct {
	Count int `json:"count"`
}

type RestoreStatePayload struct {
	Status      string   `json:"status"`
	Prompt      string   `json:"prompt,omitempty"`
	PromptUseID string   `json:"promptUseId,omitempty"`
	Type        string   `json:"type,omitempty"`
	Options     []string `json:"options,omitempty"`
}

type ThoughtDeletedPayload struct {
	Message string `json:"message"`
}

type SessionEndedPayload struct {
	SurveyLink string `json:"surveyLink,omitempty"`
}
