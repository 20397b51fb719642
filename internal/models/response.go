package models

import "time"

type UserStatusResponse struct {
	ID                string `json:"id"`
	Email             string `json:"email,omitempty"`
	Role              string `json:"role,omitempty"`
	CurrentPaperCount int    `json:"current_paper_count"`
	MaxPaperQuota     int    `json:"max_paper_quota"`
	Credits           int    `json:"credits"`
}

type ExamPaperResponse struct {
	ID                           int64               `json:"id"`
	UserID                       string              `json:"user_id"`
	Filename                     string              `json:"filename"`
	Status                       Status              `json:"status"`
	TranscribedText              *string             `json:"transcribed_text"`
	TranscriptionCreditsConsumed int                 `json:"transcription_credits_consumed"`
	CorrectedFeedback            *string             `json:"corrected_feedback"`
	CorrectionCreditsConsumed    int                 `json:"correction_credits_consumed"`
	CorrectionPromptVersion      *string             `json:"correction_prompt_version"`
	CreatedAt                    time.Time           `json:"created_at"`
	UpdatedAt                    time.Time           `json:"updated_at"`
	CorrectedAt                  *time.Time          `json:"corrected_at"`
	Images                       []ExamImageResponse `json:"images"`
}

type ExamImageResponse struct {
	ID          int64  `json:"id"`
	ImageURL    string `json:"image_url"`
	PageNumber  *int   `json:"page_number"`
	ExamPaperID int64  `json:"exam_paper_id"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

func NewExamPaperResponse(p *ExamPaper) ExamPaperResponse {
	resp := ExamPaperResponse{
		ID:                           p.ID,
		UserID:                       p.UserID,
		Filename:                     p.Filename,
		Status:                       p.Status,
		TranscriptionCreditsConsumed: p.TranscriptionCreditsConsumed,
		CorrectionCreditsConsumed:    p.CorrectionCreditsConsumed,
		CreatedAt:                    p.CreatedAt,
		UpdatedAt:                    p.UpdatedAt,
		Images:                       make([]ExamImageResponse, 0, len(p.Images)),
	}
	if p.TranscribedText.Valid {
		resp.TranscribedText = &p.TranscribedText.String
	}
	if p.CorrectedFeedback.Valid {
		resp.CorrectedFeedback = &p.CorrectedFeedback.String
	}
	if p.CorrectionPromptVersion.Valid {
		resp.CorrectionPromptVersion = &p.CorrectionPromptVersion.String
	}
	if p.CorrectedAt.Valid {
		resp.CorrectedAt = &p.CorrectedAt.Time
	}
	for _, img := range p.Images {
		ir := ExamImageResponse{
			ID:          img.ID,
			ImageURL:    img.ImageURL,
			ExamPaperID: img.ExamPaperID,
		}
		if img.PageNumber.Valid {
			n := int(img.PageNumber.Int32)
			ir.PageNumber = &n
		}
		resp.Images = append(resp.Images, ir)
	}
	return resp
}

func NewExamPaperListResponse(papers []ExamPaper) []ExamPaperResponse {
	out := make([]ExamPaperResponse, 0, len(papers))
	for i := range papers {
		out = append(out, NewExamPaperResponse(&papers[i]))
	}
	return out
}
