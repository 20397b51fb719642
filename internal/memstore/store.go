// Package memstore is an in-memory exam paper repository used when no
// database is configured and in tests.
package memstore

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"essay-corrector-backend/internal/common"
	"essay-corrector-backend/internal/models"
)

type Store struct {
	mu sync.RWMutex

	users     map[string]*models.User
	papers    map[int64]*models.ExamPaper
	images    map[int64][]models.ExamImage
	nextPaper int64
	nextImage int64

	now func() time.Time
}

func New() *Store {
	return &Store{
		users:  make(map[string]*models.User),
		papers: make(map[int64]*models.ExamPaper),
		images: make(map[int64][]models.ExamImage),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetCredits overwrites a user's balance. Used for seeding.
func (s *Store) SetCredits(userID string, credits int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("user %s: %w", userID, common.ErrNotFound)
	}
	u.Credits = credits
	return nil
}

func (s *Store) EnsureUser(_ context.Context, id, email string, initialCredits int) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		u = &models.User{
			ID:        id,
			Email:     sql.NullString{String: email, Valid: email != ""},
			Credits:   initialCredits,
			CreatedAt: s.now(),
		}
		s.users[id] = u
	}
	cp := *u
	return &cp, nil
}

func (s *Store) GetUser(_ context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, common.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (s *Store) CountExamPapers(_ context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, p := range s.papers {
		if p.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (s *Store) CreateExamPaper(_ context.Context, userID, filename string) (*models.ExamPaper, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextPaper++
	now := s.now()
	p := &models.ExamPaper{
		ID:        s.nextPaper,
		UserID:    userID,
		Filename:  filename,
		Status:    models.StatusUploaded,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.papers[p.ID] = p
	return s.snapshot(p), nil
}

func (s *Store) CreateExamImage(_ context.Context, paperID int64, imageURL, storagePath string, pageNumber int) (*models.ExamImage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.papers[paperID]; !ok {
		return nil, fmt.Errorf("exam paper %d: %w", paperID, common.ErrNotFound)
	}
	s.nextImage++
	img := models.ExamImage{
		ID:          s.nextImage,
		ExamPaperID: paperID,
		ImageURL:    imageURL,
		StoragePath: storagePath,
		PageNumber:  sql.NullInt32{Int32: int32(pageNumber), Valid: pageNumber > 0},
		CreatedAt:   s.now(),
	}
	s.images[paperID] = append(s.images[paperID], img)
	return &img, nil
}

func (s *Store) GetExamPaper(_ context.Context, id int64) (*models.ExamPaper, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.papers[id]
	if !ok {
		return nil, fmt.Errorf("exam paper %d: %w", id, common.ErrNotFound)
	}
	return s.snapshot(p), nil
}

func (s *Store) ListExamPapers(_ context.Context, userID string) ([]models.ExamPaper, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.ExamPaper, 0)
	for _, p := range s.papers {
		if p.UserID == userID {
			out = append(out, *s.snapshot(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) TransitionStatus(_ context.Context, id int64, to models.Status, from ...models.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.papers[id]
	if !ok {
		return fmt.Errorf("exam paper %d: %w", id, common.ErrNotFound)
	}
	for _, st := range from {
		if p.Status == st {
			p.Status = to
			p.UpdatedAt = s.now()
			return nil
		}
	}
	return common.ErrStatusChanged
}

func (s *Store) UpdateTranscribedText(_ context.Context, id int64, text string, status models.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.papers[id]
	if !ok {
		return fmt.Errorf("exam paper %d: %w", id, common.ErrNotFound)
	}
	p.TranscribedText = sql.NullString{String: text, Valid: true}
	p.Status = status
	p.UpdatedAt = s.now()
	return nil
}

func (s *Store) CompleteTranscription(_ context.Context, id int64, userID, text string, cost int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, u, err := s.billable(id, userID, cost)
	if err != nil {
		return err
	}
	u.Credits -= cost
	p.TranscribedText = sql.NullString{String: text, Valid: true}
	p.TranscriptionCreditsConsumed = cost
	p.Status = models.StatusTranscribed
	p.UpdatedAt = s.now()
	return nil
}

func (s *Store) FailTranscription(_ context.Context, id int64, text *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.papers[id]
	if !ok {
		return fmt.Errorf("exam paper %d: %w", id, common.ErrNotFound)
	}
	if text != nil {
		p.TranscribedText = sql.NullString{String: *text, Valid: true}
	}
	p.Status = models.StatusErrorTranscription
	p.UpdatedAt = s.now()
	return nil
}

func (s *Store) CompleteCorrection(_ context.Context, id int64, userID, feedback, promptVersion string, cost int, correctedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, u, err := s.billable(id, userID, cost)
	if err != nil {
		return err
	}
	u.Credits -= cost
	p.CorrectedFeedback = sql.NullString{String: feedback, Valid: true}
	p.CorrectionPromptVersion = sql.NullString{String: promptVersion, Valid: true}
	p.CorrectionCreditsConsumed = cost
	p.CorrectedAt = sql.NullTime{Time: correctedAt, Valid: true}
	p.Status = models.StatusCorrected
	p.UpdatedAt = s.now()
	return nil
}

func (s *Store) FailCorrection(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.papers[id]
	if !ok {
		return fmt.Errorf("exam paper %d: %w", id, common.ErrNotFound)
	}
	p.Status = models.StatusErrorCorrection
	p.UpdatedAt = s.now()
	return nil
}

func (s *Store) DeleteExamImages(_ context.Context, paperID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.images, paperID)
	return nil
}

func (s *Store) DeleteExamPaper(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.papers[id]; !ok {
		return fmt.Errorf("exam paper %d: %w", id, common.ErrNotFound)
	}
	delete(s.papers, id)
	delete(s.images, id)
	return nil
}

// billable must be called with the write lock held.
func (s *Store) billable(id int64, userID string, cost int) (*models.ExamPaper, *models.User, error) {
	p, ok := s.papers[id]
	if !ok {
		return nil, nil, fmt.Errorf("exam paper %d: %w", id, common.ErrNotFound)
	}
	u, ok := s.users[userID]
	if !ok {
		return nil, nil, fmt.Errorf("user %s: %w", userID, common.ErrNotFound)
	}
	if u.Credits < cost {
		return nil, nil, common.ErrInsufficientCredits
	}
	return p, u, nil
}

// snapshot must be called with the lock held.
func (s *Store) snapshot(p *models.ExamPaper) *models.ExamPaper {
	cp := *p
	cp.Images = append([]models.ExamImage(nil), s.images[p.ID]...)
	models.SortImagesByPage(cp.Images)
	return &cp
}
