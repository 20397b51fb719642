package supabase

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"essay-corrector-backend/internal/common"
	"essay-corrector-backend/internal/dbx"
	"essay-corrector-backend/internal/models"
)

const paperColumns = `id, user_id, filename, status, transcribed_text,
	transcription_credits_consumed, corrected_feedback, correction_credits_consumed,
	correction_prompt_version, created_at, updated_at, corrected_at`

const imageColumns = `id, exam_paper_id, image_url, storage_path, page_number, created_at`

// DatabaseClient is the Postgres exam paper repository.
type DatabaseClient struct {
	db *sql.DB
}

func NewDatabaseClient(db *sql.DB) *DatabaseClient {
	return &DatabaseClient{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.Email, &u.Credits, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func scanPaper(row rowScanner) (*models.ExamPaper, error) {
	var p models.ExamPaper
	var status string
	err := row.Scan(
		&p.ID, &p.UserID, &p.Filename, &status, &p.TranscribedText,
		&p.TranscriptionCreditsConsumed, &p.CorrectedFeedback, &p.CorrectionCreditsConsumed,
		&p.CorrectionPromptVersion, &p.CreatedAt, &p.UpdatedAt, &p.CorrectedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Status = models.Status(status)
	return &p, nil
}

func scanImage(row rowScanner) (*models.ExamImage, error) {
	var img models.ExamImage
	err := row.Scan(&img.ID, &img.ExamPaperID, &img.ImageURL, &img.StoragePath, &img.PageNumber, &img.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &img, nil
}

// EnsureUser inserts the user on first sight. An existing row keeps its
// balance; a missing email is filled in.
func (d *DatabaseClient) EnsureUser(ctx context.Context, id, email string, initialCredits int) (*models.User, error) {
	row := d.db.QueryRowContext(ctx, `
		INSERT INTO users (id, email, credits)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET email = COALESCE(users.email, EXCLUDED.email)
		RETURNING id, email, credits, created_at
	`, id, sql.NullString{String: email, Valid: email != ""}, initialCredits)

	u, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure user: %w", err)
	}
	return u, nil
}

func (d *DatabaseClient) GetUser(ctx context.Context, id string) (*models.User, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT id, email, credits, created_at
		FROM users
		WHERE id = $1
	`, id)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", id, common.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

func (d *DatabaseClient) CountExamPapers(ctx context.Context, userID string) (int, error) {
	var n int
	err := d.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM exam_papers
		WHERE user_id = $1
	`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count exam papers: %w", err)
	}
	return n, nil
}

func (d *DatabaseClient) CreateExamPaper(ctx context.Context, userID, filename string) (*models.ExamPaper, error) {
	row := d.db.QueryRowContext(ctx, `
		INSERT INTO exam_papers (user_id, filename, status)
		VALUES ($1, $2, $3)
		RETURNING `+paperColumns,
		userID, filename, string(models.StatusUploaded))

	p, err := scanPaper(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create exam paper: %w", err)
	}
	return p, nil
}

func (d *DatabaseClient) CreateExamImage(ctx context.Context, paperID int64, imageURL, storagePath string, pageNumber int) (*models.ExamImage, error) {
	page := sql.NullInt32{Int32: int32(pageNumber), Valid: pageNumber > 0}
	row := d.db.QueryRowContext(ctx, `
		INSERT INTO exam_images (exam_paper_id, image_url, storage_path, page_number)
		VALUES ($1, $2, $3, $4)
		RETURNING `+imageColumns,
		paperID, imageURL, storagePath, page)

	img, err := scanImage(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create exam image: %w", err)
	}
	return img, nil
}

func (d *DatabaseClient) GetExamPaper(ctx context.Context, id int64) (*models.ExamPaper, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT `+paperColumns+`
		FROM exam_papers
		WHERE id = $1
	`, id)

	p, err := scanPaper(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("exam paper %d: %w", id, common.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get exam paper: %w", err)
	}

	images, err := d.listImages(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	p.Images = images[id]
	return p, nil
}

func (d *DatabaseClient) ListExamPapers(ctx context.Context, userID string) ([]models.ExamPaper, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT `+paperColumns+`
		FROM exam_papers
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list exam papers: %w", err)
	}
	defer rows.Close()

	papers := make([]models.ExamPaper, 0)
	ids := make([]int64, 0)
	for rows.Next() {
		p, err := scanPaper(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan exam paper: %w", err)
		}
		papers = append(papers, *p)
		ids = append(ids, p.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list exam papers: %w", err)
	}
	if len(ids) == 0 {
		return papers, nil
	}

	images, err := d.listImages(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range papers {
		papers[i].Images = images[papers[i].ID]
	}
	return papers, nil
}

func (d *DatabaseClient) listImages(ctx context.Context, paperIDs []int64) (map[int64][]models.ExamImage, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT `+imageColumns+`
		FROM exam_images
		WHERE exam_paper_id = ANY($1)
		ORDER BY exam_paper_id, page_number NULLS LAST, id
	`, pq.Array(paperIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to list exam images: %w", err)
	}
	defer rows.Close()

	out := make(map[int64][]models.ExamImage, len(paperIDs))
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan exam image: %w", err)
		}
		out[img.ExamPaperID] = append(out[img.ExamPaperID], *img)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list exam images: %w", err)
	}
	for id := range out {
		models.SortImagesByPage(out[id])
	}
	return out, nil
}

func (d *DatabaseClient) TransitionStatus(ctx context.Context, id int64, to models.Status, from ...models.Status) error {
	allowed := make([]string, len(from))
	for i, s := range from {
		allowed[i] = string(s)
	}

	res, err := d.db.ExecContext(ctx, `
		UPDATE exam_papers
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = ANY($3)
	`, string(to), id, pq.Array(allowed))
	if err != nil {
		return fmt.Errorf("failed to update exam paper status: %w", err)
	}
	return expectOneRow(res, common.ErrStatusChanged)
}

func (d *DatabaseClient) UpdateTranscribedText(ctx context.Context, id int64, text string, status models.Status) error {
	res, err := d.db.ExecContext(ctx, `
		UPDATE exam_papers
		SET transcribed_text = $1, status = $2, updated_at = NOW()
		WHERE id = $3
	`, text, string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update transcribed text: %w", err)
	}
	return expectOneRow(res, common.ErrNotFound)
}

func (d *DatabaseClient) CompleteTranscription(ctx context.Context, id int64, userID, text string, cost int) error {
	return dbx.WithTx(ctx, d.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := debit(ctx, tx, userID, cost); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE exam_papers
			SET status = $1, transcribed_text = $2, transcription_credits_consumed = $3, updated_at = NOW()
			WHERE id = $4
		`, string(models.StatusTranscribed), text, cost, id)
		if err != nil {
			return fmt.Errorf("failed to complete transcription: %w", err)
		}
		return expectOneRow(res, common.ErrNotFound)
	})
}

func (d *DatabaseClient) FailTranscription(ctx context.Context, id int64, text *string) error {
	var partial sql.NullString
	if text != nil {
		partial = sql.NullString{String: *text, Valid: true}
	}

	res, err := d.db.ExecContext(ctx, `
		UPDATE exam_papers
		SET status = $1, transcribed_text = COALESCE($2, transcribed_text), updated_at = NOW()
		WHERE id = $3
	`, string(models.StatusErrorTranscription), partial, id)
	if err != nil {
		return fmt.Errorf("failed to mark transcription failed: %w", err)
	}
	return expectOneRow(res, common.ErrNotFound)
}

func (d *DatabaseClient) CompleteCorrection(ctx context.Context, id int64, userID, feedback, promptVersion string, cost int, correctedAt time.Time) error {
	return dbx.WithTx(ctx, d.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := debit(ctx, tx, userID, cost); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE exam_papers
			SET status = $1, corrected_feedback = $2, correction_prompt_version = $3,
				correction_credits_consumed = $4, corrected_at = $5, updated_at = NOW()
			WHERE id = $6
		`, string(models.StatusCorrected), feedback, promptVersion, cost, correctedAt, id)
		if err != nil {
			return fmt.Errorf("failed to complete correction: %w", err)
		}
		return expectOneRow(res, common.ErrNotFound)
	})
}

func (d *DatabaseClient) FailCorrection(ctx context.Context, id int64) error {
	res, err := d.db.ExecContext(ctx, `
		UPDATE exam_papers
		SET status = $1, updated_at = NOW()
		WHERE id = $2
	`, string(models.StatusErrorCorrection), id)
	if err != nil {
		return fmt.Errorf("failed to mark correction failed: %w", err)
	}
	return expectOneRow(res, common.ErrNotFound)
}

func (d *DatabaseClient) DeleteExamImages(ctx context.Context, paperID int64) error {
	_, err := d.db.ExecContext(ctx, `
		DELETE FROM exam_images
		WHERE exam_paper_id = $1
	`, paperID)
	if err != nil {
		return fmt.Errorf("failed to delete exam images: %w", err)
	}
	return nil
}

func (d *DatabaseClient) DeleteExamPaper(ctx context.Context, id int64) error {
	res, err := d.db.ExecContext(ctx, `
		DELETE FROM exam_papers
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("failed to delete exam paper: %w", err)
	}
	return expectOneRow(res, common.ErrNotFound)
}

// debit takes cost credits from the user only if the balance covers it.
func debit(ctx context.Context, tx dbx.DBTX, userID string, cost int) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE users
		SET credits = credits - $1
		WHERE id = $2 AND credits >= $1
	`, cost, userID)
	if err != nil {
		return fmt.Errorf("failed to debit credits: %w", err)
	}
	return expectOneRow(res, common.ErrInsufficientCredits)
}

func expectOneRow(res sql.Result, none error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return none
	}
	return nil
}
