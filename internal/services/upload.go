package services

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"essay-corrector-backend/internal/metrics"
	"essay-corrector-backend/internal/models"
)

type page struct {
	filename    string
	contentType string
	data        []byte
}

// UploadExamPaper creates a paper from one or more page images. Pages are
// numbered in the order given. Any failure after the paper row exists
// removes the stored blobs, the image rows and the paper row.
func (s *EssayService) UploadExamPaper(ctx context.Context, userID, title string, files []UploadFile) (paper *models.ExamPaper, err error) {
	defer func() {
		if err != nil {
			metrics.RecordUpload(metrics.OutcomeFailure)
		}
	}()

	if len(files) == 0 {
		return nil, fmt.Errorf("%w: at least one image is required", ErrBadRequest)
	}
	if s.opts.MaxImagesPerUpload > 0 && len(files) > s.opts.MaxImagesPerUpload {
		return nil, fmt.Errorf("%w: at most %d images per upload", ErrBadRequest, s.opts.MaxImagesPerUpload)
	}
	if s.store == nil {
		return nil, ErrStorageUnavailable
	}

	count, err := s.repo.CountExamPapers(ctx, userID)
	if err != nil {
		return nil, s.repoError("count exam papers", err)
	}
	if count >= s.opts.MaxExamPapersPerUser {
		return nil, fmt.Errorf("%w: limit is %d", ErrQuotaExceeded, s.opts.MaxExamPapersPerUser)
	}

	pages := make([]page, 0, len(files))
	for _, f := range files {
		p, err := s.readPage(f)
		if err != nil {
			return nil, err
		}
		pages = append(pages, p)
	}

	filename := strings.TrimSpace(title)
	if filename == "" {
		filename = pages[0].filename
	}

	created, err := s.repo.CreateExamPaper(ctx, userID, filename)
	if err != nil {
		return nil, s.repoError("create exam paper", err)
	}

	var stored []string
	defer func() {
		if err == nil {
			return
		}
		s.compensateUpload(context.WithoutCancel(ctx), created.ID, stored)
	}()

	for i, p := range pages {
		path := storagePath(userID, created.ID, i+1, p)
		url, err := s.store.Put(ctx, path, p.data, p.contentType)
		if err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{
				"paper_id": created.ID,
				"path":     path,
			}).Error("failed to store exam image")
			return nil, fmt.Errorf("%w: failed to store page %d", ErrInternal, i+1)
		}
		stored = append(stored, path)

		if _, err := s.repo.CreateExamImage(ctx, created.ID, url, path, i+1); err != nil {
			return nil, s.repoError("create exam image", err)
		}
	}

	paper, err = s.repo.GetExamPaper(ctx, created.ID)
	if err != nil {
		return nil, s.repoError("get exam paper", err)
	}

	metrics.RecordUpload(metrics.OutcomeSuccess)
	s.log.WithFields(logrus.Fields{
		"user_id":  userID,
		"paper_id": paper.ID,
		"pages":    len(pages),
	}).Info("exam paper uploaded")

	return paper, nil
}

// readPage loads one file fully, enforcing the size limit and checking the
// content is an image.
func (s *EssayService) readPage(f UploadFile) (page, error) {
	limit := s.opts.MaxImageSizeBytes
	if f.Size > limit {
		return page{}, fmt.Errorf("%w: %s exceeds %d bytes", ErrPayloadTooLarge, f.Filename, limit)
	}
	if f.ContentType != "" && !strings.HasPrefix(f.ContentType, "image/") {
		return page{}, fmt.Errorf("%w: %s is not an image", ErrBadRequest, f.Filename)
	}

	rc, err := f.Open()
	if err != nil {
		return page{}, fmt.Errorf("%w: failed to open %s", ErrBadRequest, f.Filename)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return page{}, fmt.Errorf("%w: failed to read %s", ErrBadRequest, f.Filename)
	}
	if int64(len(data)) > limit {
		return page{}, fmt.Errorf("%w: %s exceeds %d bytes", ErrPayloadTooLarge, f.Filename, limit)
	}
	if len(data) == 0 {
		return page{}, fmt.Errorf("%w: %s is empty", ErrBadRequest, f.Filename)
	}

	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		return page{}, fmt.Errorf("%w: %s is not an image", ErrBadRequest, f.Filename)
	}

	name := filepath.Base(f.Filename)
	if name == "." || name == "/" {
		name = "exam_paper"
	}

	return page{filename: name, contentType: contentType, data: data}, nil
}

func (s *EssayService) compensateUpload(ctx context.Context, paperID int64, stored []string) {
	log := s.log.WithField("paper_id", paperID)

	if len(stored) > 0 {
		if err := s.store.Delete(ctx, stored); err != nil {
			log.WithError(err).WithField("paths", stored).Warn("failed to remove stored images during rollback")
		}
	}
	if err := s.repo.DeleteExamImages(ctx, paperID); err != nil {
		log.WithError(err).Warn("failed to remove image rows during rollback")
	}
	if err := s.repo.DeleteExamPaper(ctx, paperID); err != nil {
		log.WithError(err).Warn("failed to remove exam paper during rollback")
	}
	log.Info("upload rolled back")
}

func storagePath(userID string, paperID int64, pageNumber int, p page) string {
	ext := strings.ToLower(filepath.Ext(p.filename))
	if ext == "" {
		if exts, _ := mime.ExtensionsByType(p.contentType); len(exts) > 0 {
			ext = exts[0]
		}
	}
	return fmt.Sprintf("users/%s/exam_papers/%d/page_%02d_%s%s",
		userID, paperID, pageNumber, uuid.New().String()[:8], ext)
}
