package models

type UpdateTranscribedTextRequest struct {
	// TranscribedText replaces the stored transcription verbatim.
	TranscribedText *string `json:"transcribed_text" binding:"required" example:"My summer holidays was very fun."`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
