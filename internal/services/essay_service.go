package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"essay-corrector-backend/internal/config"
	"essay-corrector-backend/internal/models"
)

// Repository persists users, exam papers and their page images.
type Repository interface {
	EnsureUser(ctx context.Context, id, email string, initialCredits int) (*models.User, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
	CountExamPapers(ctx context.Context, userID string) (int, error)

	CreateExamPaper(ctx context.Context, userID, filename string) (*models.ExamPaper, error)
	CreateExamImage(ctx context.Context, paperID int64, imageURL, storagePath string, pageNumber int) (*models.ExamImage, error)
	// GetExamPaper returns the paper with its images sorted by page.
	GetExamPaper(ctx context.Context, id int64) (*models.ExamPaper, error)
	// ListExamPapers returns the user's papers, newest first.
	ListExamPapers(ctx context.Context, userID string) ([]models.ExamPaper, error)

	// TransitionStatus moves the paper to status `to` only if it is
	// currently in one of `from`, returning common.ErrStatusChanged otherwise.
	TransitionStatus(ctx context.Context, id int64, to models.Status, from ...models.Status) error
	UpdateTranscribedText(ctx context.Context, id int64, text string, status models.Status) error

	// CompleteTranscription debits the user, stores the text and marks the
	// paper transcribed in one transaction. A balance below cost yields
	// common.ErrInsufficientCredits and no change.
	CompleteTranscription(ctx context.Context, id int64, userID, text string, cost int) error
	// FailTranscription marks the paper error_transcription. A nil text
	// leaves the stored transcription untouched.
	FailTranscription(ctx context.Context, id int64, text *string) error
	CompleteCorrection(ctx context.Context, id int64, userID, feedback, promptVersion string, cost int, correctedAt time.Time) error
	FailCorrection(ctx context.Context, id int64) error

	DeleteExamImages(ctx context.Context, paperID int64) error
	DeleteExamPaper(ctx context.Context, id int64) error
}

// ObjectStore keeps the uploaded page images.
type ObjectStore interface {
	Put(ctx context.Context, path string, data []byte, contentType string) (string, error)
	Delete(ctx context.Context, paths []string) error
}

type Transcriber interface {
	Transcribe(ctx context.Context, imageURL, instructions string) (string, error)
}

type Corrector interface {
	Correct(ctx context.Context, text, instructions string) (string, error)
}

type Options struct {
	TranscriptionCost    int
	CorrectionCost       int
	MaxExamPapersPerUser int
	MaxImageSizeBytes    int64
	MaxImagesPerUpload   int
	InitialCredits       int
	AIRequestTimeout     time.Duration
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		TranscriptionCost:    cfg.TranscriptionCost,
		CorrectionCost:       cfg.CorrectionCost,
		MaxExamPapersPerUser: cfg.MaxExamPapersPerUser,
		MaxImageSizeBytes:    cfg.MaxImageSizeBytes,
		MaxImagesPerUpload:   cfg.MaxImagesPerUpload,
		InitialCredits:       cfg.InitialCredits,
		AIRequestTimeout:     cfg.AIRequestTimeout,
	}
}

// UploadFile is one page of an upload. Open is called at most once.
type UploadFile struct {
	Filename    string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
}

// UserStatus is the quota and credit view of a user.
type UserStatus struct {
	User       *models.User
	PaperCount int
	MaxPapers  int
}

// EssayService drives an exam paper from upload through transcription and
// correction, billing credits only for successful steps.
type EssayService struct {
	repo        Repository
	store       ObjectStore
	transcriber Transcriber
	corrector   Corrector
	opts        Options
	log         logrus.FieldLogger
	now         func() time.Time
}

// NewEssayService builds the service. store may be nil when no object
// storage is configured; uploads then fail with ErrStorageUnavailable.
func NewEssayService(
	repo Repository,
	store ObjectStore,
	transcriber Transcriber,
	corrector Corrector,
	opts Options,
	log logrus.FieldLogger,
) *EssayService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &EssayService{
		repo:        repo,
		store:       store,
		transcriber: transcriber,
		corrector:   corrector,
		opts:        opts,
		log:         log,
		now:         time.Now,
	}
}

func (s *EssayService) EnsureUser(ctx context.Context, userID, email string) (*models.User, error) {
	user, err := s.repo.EnsureUser(ctx, userID, email, s.opts.InitialCredits)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to ensure user: %v", ErrInternal, err)
	}
	return user, nil
}

func (s *EssayService) GetUserStatus(ctx context.Context, userID string) (*UserStatus, error) {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, s.repoError("get user", err)
	}
	count, err := s.repo.CountExamPapers(ctx, userID)
	if err != nil {
		return nil, s.repoError("count exam papers", err)
	}
	return &UserStatus{
		User:       user,
		PaperCount: count,
		MaxPapers:  s.opts.MaxExamPapersPerUser,
	}, nil
}

func (s *EssayService) ListExamPapers(ctx context.Context, userID string) ([]models.ExamPaper, error) {
	papers, err := s.repo.ListExamPapers(ctx, userID)
	if err != nil {
		return nil, s.repoError("list exam papers", err)
	}
	return papers, nil
}

func (s *EssayService) GetExamPaper(ctx context.Context, userID string, paperID int64) (*models.ExamPaper, error) {
	return s.getOwned(ctx, userID, paperID)
}

// DeleteExamPaper removes the paper, its image rows and, best effort, the
// stored blobs. It returns the paper as it was before deletion.
func (s *EssayService) DeleteExamPaper(ctx context.Context, userID string, paperID int64) (*models.ExamPaper, error) {
	paper, err := s.getOwned(ctx, userID, paperID)
	if err != nil {
		return nil, err
	}

	if err := s.repo.DeleteExamImages(ctx, paper.ID); err != nil {
		return nil, s.repoError("delete exam images", err)
	}

	paths := make([]string, 0, len(paper.Images))
	for _, img := range paper.Images {
		if img.StoragePath != "" {
			paths = append(paths, img.StoragePath)
		}
	}
	if len(paths) > 0 {
		if s.store == nil {
			s.log.WithField("paper_id", paper.ID).Warn("object storage not configured, leaving blobs in place")
		} else if err := s.store.Delete(ctx, paths); err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{
				"paper_id": paper.ID,
				"paths":    paths,
			}).Warn("failed to delete exam images from storage")
		}
	}

	if err := s.repo.DeleteExamPaper(ctx, paper.ID); err != nil {
		return nil, s.repoError("delete exam paper", err)
	}

	s.log.WithFields(logrus.Fields{
		"user_id":  userID,
		"paper_id": paper.ID,
		"pages":    len(paper.Images),
	}).Info("exam paper deleted")

	return paper, nil
}

func (s *EssayService) getOwned(ctx context.Context, userID string, paperID int64) (*models.ExamPaper, error) {
	paper, err := s.repo.GetExamPaper(ctx, paperID)
	if err != nil {
		return nil, s.repoError("get exam paper", err)
	}
	if paper.UserID != userID {
		return nil, fmt.Errorf("%w: exam paper %d belongs to another user", ErrForbidden, paperID)
	}
	return paper, nil
}

// repoError keeps not-found distinguishable and folds everything else into
// ErrInternal.
func (s *EssayService) repoError(op string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	s.log.WithError(err).WithField("op", op).Error("repository call failed")
	return fmt.Errorf("%w: failed to %s", ErrInternal, op)
}
