package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"essay-corrector-backend/internal/common"
	"essay-corrector-backend/internal/llm"
	"essay-corrector-backend/internal/metrics"
	"essay-corrector-backend/internal/models"
)

const pageSeparator = "\n\n"

func pagePlaceholder(pageNumber int) string {
	return fmt.Sprintf("[Error transcribing page %d]", pageNumber)
}

// TranscribeExamPaper transcribes every page in page order. The user is
// billed TranscriptionCost once, and only when every page produced text.
func (s *EssayService) TranscribeExamPaper(ctx context.Context, userID string, paperID int64) (*models.ExamPaper, error) {
	paper, err := s.getOwned(ctx, userID, paperID)
	if err != nil {
		return nil, err
	}
	if !paper.Status.CanTranscribe() {
		return nil, fmt.Errorf("%w: cannot transcribe exam paper in status %s", ErrConflict, paper.Status)
	}
	if len(paper.Images) == 0 {
		return nil, fmt.Errorf("%w: exam paper has no images", ErrBadRequest)
	}
	if err := s.checkCredits(ctx, userID, s.opts.TranscriptionCost, metrics.StepTranscription); err != nil {
		return nil, err
	}

	if err := s.repo.TransitionStatus(ctx, paper.ID, models.StatusTranscribing, models.StatusUploaded, models.StatusErrorTranscription); err != nil {
		return nil, s.transitionError(err)
	}

	log := s.log.WithFields(logrus.Fields{
		"user_id":  userID,
		"paper_id": paper.ID,
		"pages":    len(paper.Images),
	})
	log.Info("transcription started")

	parts := make([]string, 0, len(paper.Images))
	failed := 0
	lastPage := 0
	for _, img := range paper.Images {
		// Images are sorted by page with unnumbered ones last, so those
		// continue after the highest page number instead of reusing one.
		pageNumber := lastPage + 1
		if img.PageNumber.Valid {
			pageNumber = int(img.PageNumber.Int32)
		}
		lastPage = max(lastPage, pageNumber)

		text, err := s.transcribePage(ctx, img.ImageURL)
		if err != nil {
			log.WithError(err).WithField("page", pageNumber).Warn("page transcription failed")
			parts = append(parts, pagePlaceholder(pageNumber))
			failed++
			continue
		}
		parts = append(parts, text)
	}

	if failed > 0 {
		outcome := metrics.OutcomePartialFailure
		if failed == len(paper.Images) {
			outcome = metrics.OutcomeFailure
		}
		metrics.RecordStep(metrics.StepTranscription, outcome)
		partial := strings.Join(parts, pageSeparator)
		s.failTranscription(ctx, paper.ID, &partial)
		return nil, fmt.Errorf("%w: %d of %d pages failed to transcribe", ErrAIFailure, failed, len(paper.Images))
	}

	text := strings.Join(parts, pageSeparator)
	cost := s.opts.TranscriptionCost
	if err := s.repo.CompleteTranscription(ctx, paper.ID, userID, text, cost); err != nil {
		s.failTranscription(ctx, paper.ID, nil)
		return nil, s.commitError(log, metrics.StepTranscription, err)
	}

	metrics.RecordStep(metrics.StepTranscription, metrics.OutcomeSuccess)
	metrics.RecordDebit(metrics.StepTranscription, cost)
	log.WithField("credits", cost).Info("transcription completed")

	return s.reload(ctx, paper.ID)
}

// CorrectExamPaper generates feedback for a transcribed paper and bills
// CorrectionCost on success.
func (s *EssayService) CorrectExamPaper(ctx context.Context, userID string, paperID int64) (*models.ExamPaper, error) {
	paper, err := s.getOwned(ctx, userID, paperID)
	if err != nil {
		return nil, err
	}
	if !paper.TranscribedText.Valid || strings.TrimSpace(paper.TranscribedText.String) == "" {
		return nil, fmt.Errorf("%w: exam paper has no transcribed text", ErrBadRequest)
	}
	if !paper.Status.CanCorrect() {
		return nil, fmt.Errorf("%w: cannot correct exam paper in status %s", ErrConflict, paper.Status)
	}
	if err := s.checkCredits(ctx, userID, s.opts.CorrectionCost, metrics.StepCorrection); err != nil {
		return nil, err
	}

	if err := s.repo.TransitionStatus(ctx, paper.ID, models.StatusCorrecting, models.StatusTranscribed); err != nil {
		return nil, s.transitionError(err)
	}

	log := s.log.WithFields(logrus.Fields{
		"user_id":  userID,
		"paper_id": paper.ID,
	})
	log.Info("correction started")

	feedback, err := s.callAI(ctx, metrics.StepCorrection, func(ctx context.Context) (string, error) {
		return s.corrector.Correct(ctx, paper.TranscribedText.String, llm.CorrectionSystemPrompt)
	})
	if err != nil {
		log.WithError(err).Warn("correction failed")
		metrics.RecordStep(metrics.StepCorrection, metrics.OutcomeFailure)
		s.failCorrection(ctx, paper.ID)
		return nil, fmt.Errorf("%w: correction failed", ErrAIFailure)
	}

	cost := s.opts.CorrectionCost
	if err := s.repo.CompleteCorrection(ctx, paper.ID, userID, feedback, llm.PromptVersion, cost, s.now().UTC()); err != nil {
		s.failCorrection(ctx, paper.ID)
		return nil, s.commitError(log, metrics.StepCorrection, err)
	}

	metrics.RecordStep(metrics.StepCorrection, metrics.OutcomeSuccess)
	metrics.RecordDebit(metrics.StepCorrection, cost)
	log.WithField("credits", cost).Info("correction completed")

	return s.reload(ctx, paper.ID)
}

// UpdateTranscribedText replaces the transcription by hand. A non-empty
// text on a paper that was never transcribed, or whose transcription
// failed, moves it to transcribed without billing.
func (s *EssayService) UpdateTranscribedText(ctx context.Context, userID string, paperID int64, text string) (*models.ExamPaper, error) {
	paper, err := s.getOwned(ctx, userID, paperID)
	if err != nil {
		return nil, err
	}
	if paper.Status.InFlight() {
		return nil, fmt.Errorf("%w: exam paper is %s", ErrConflict, paper.Status)
	}

	status := paper.Status
	if status.CanTranscribe() && strings.TrimSpace(text) != "" {
		status = models.StatusTranscribed
	}

	if err := s.repo.UpdateTranscribedText(ctx, paper.ID, text, status); err != nil {
		return nil, s.repoError("update transcribed text", err)
	}

	s.log.WithFields(logrus.Fields{
		"user_id":  userID,
		"paper_id": paper.ID,
		"from":     paper.Status,
		"to":       status,
	}).Info("transcribed text edited")

	return s.reload(ctx, paper.ID)
}

func (s *EssayService) transcribePage(ctx context.Context, imageURL string) (string, error) {
	return s.callAI(ctx, metrics.StepTranscription, func(ctx context.Context) (string, error) {
		return s.transcriber.Transcribe(ctx, imageURL, llm.VisionTranscriptionPrompt)
	})
}

// callAI runs one model call under the configured timeout. Empty output
// counts as a failure.
func (s *EssayService) callAI(ctx context.Context, step string, fn func(ctx context.Context) (string, error)) (string, error) {
	if s.opts.AIRequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.AIRequestTimeout)
		defer cancel()
	}

	start := time.Now()
	out, err := fn(ctx)
	metrics.ObserveAICall(step, time.Since(start))
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", errors.New("empty response")
	}
	return out, nil
}

func (s *EssayService) checkCredits(ctx context.Context, userID string, cost int, step string) error {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return s.repoError("get user", err)
	}
	if user.Credits < cost {
		metrics.RecordStep(step, metrics.OutcomeInsufficientCredit)
		return fmt.Errorf("%w: %s costs %d, balance is %d", ErrInsufficientCredits, step, cost, user.Credits)
	}
	return nil
}

func (s *EssayService) transitionError(err error) error {
	if errors.Is(err, common.ErrStatusChanged) {
		return fmt.Errorf("%w: exam paper status changed concurrently", ErrConflict)
	}
	return s.repoError("update exam paper status", err)
}

// commitError reports a failed final write. The paper has already been
// forced to its error state by the caller.
func (s *EssayService) commitError(log logrus.FieldLogger, step string, err error) error {
	if errors.Is(err, ErrInsufficientCredits) {
		metrics.RecordStep(step, metrics.OutcomeInsufficientCredit)
		log.Warn("balance dropped below cost before debit")
		return fmt.Errorf("%w: balance dropped below the %s cost", ErrInsufficientCredits, step)
	}
	metrics.RecordStep(step, metrics.OutcomeCommitFailure)
	log.WithError(err).Error("failed to commit result")
	return fmt.Errorf("%w: failed to save %s result", ErrInternal, step)
}

// failTranscription and failCorrection are best effort: the caller already
// has an error to return, so a failing write is only logged.
func (s *EssayService) failTranscription(ctx context.Context, paperID int64, text *string) {
	if err := s.repo.FailTranscription(context.WithoutCancel(ctx), paperID, text); err != nil {
		s.log.WithError(err).WithField("paper_id", paperID).Error("failed to mark transcription as failed")
	}
}

func (s *EssayService) failCorrection(ctx context.Context, paperID int64) {
	if err := s.repo.FailCorrection(context.WithoutCancel(ctx), paperID); err != nil {
		s.log.WithError(err).WithField("paper_id", paperID).Error("failed to mark correction as failed")
	}
}

func (s *EssayService) reload(ctx context.Context, paperID int64) (*models.ExamPaper, error) {
	paper, err := s.repo.GetExamPaper(ctx, paperID)
	if err != nil {
		return nil, s.repoError("get exam paper", err)
	}
	return paper, nil
}
