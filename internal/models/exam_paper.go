package models

import (
	"database/sql"
	"sort"
	"time"
)

type Status string

const (
	StatusUploaded           Status = "uploaded"
	StatusTranscribing       Status = "transcribing"
	StatusTranscribed        Status = "transcribed"
	StatusErrorTranscription Status = "error_transcription"
	StatusCorrecting         Status = "correcting"
	StatusCorrected          Status = "corrected"
	StatusErrorCorrection    Status = "error_correction"
)

var AllStatuses = []Status{
	StatusUploaded,
	StatusTranscribing,
	StatusTranscribed,
	StatusErrorTranscription,
	StatusCorrecting,
	StatusCorrected,
	StatusErrorCorrection,
}

func (s Status) Valid() bool {
	for _, v := range AllStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// CanTranscribe reports whether a transcription may start from s.
// error_transcription is accepted so a failed attempt can be retried.
func (s Status) CanTranscribe() bool {
	return s == StatusUploaded || s == StatusErrorTranscription
}

func (s Status) CanCorrect() bool {
	return s == StatusTranscribed
}

// InFlight reports whether an AI call is running against the paper.
func (s Status) InFlight() bool {
	return s == StatusTranscribing || s == StatusCorrecting
}

type User struct {
	ID        string
	Email     sql.NullString
	Credits   int
	CreatedAt time.Time
}

type ExamPaper struct {
	ID                           int64
	UserID                       string
	Filename                     string
	Status                       Status
	TranscribedText              sql.NullString
	TranscriptionCreditsConsumed int
	CorrectedFeedback            sql.NullString
	CorrectionCreditsConsumed    int
	CorrectionPromptVersion      sql.NullString
	CreatedAt                    time.Time
	UpdatedAt                    time.Time
	CorrectedAt                  sql.NullTime

	Images []ExamImage
}

type ExamImage struct {
	ID          int64
	ExamPaperID int64
	ImageURL    string
	StoragePath string
	PageNumber  sql.NullInt32
	CreatedAt   time.Time
}

// SortImagesByPage orders images by page number; images without a page
// number go last and keep their relative order.
func SortImagesByPage(images []ExamImage) {
	sort.SliceStable(images, func(i, j int) bool {
		a, b := images[i].PageNumber, images[j].PageNumber
		if !a.Valid {
			return false
		}
		if !b.Valid {
			return true
		}
		return a.Int32 < b.Int32
	})
}
