package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"essay-corrector-backend/internal/common"
	"essay-corrector-backend/internal/llm"
	"essay-corrector-backend/internal/memstore"
	"essay-corrector-backend/internal/models"
	"essay-corrector-backend/internal/services"
)

func TestTranscribe_AllPagesSucceed(t *testing.T) {
	f := newFixture(t, 3)
	paper := f.upload(t, 3)
	for i, img := range paper.Images {
		f.ai.pages[img.ImageURL] = []string{"First page.", "  Second page. ", "Third page."}[i]
	}

	got, err := f.svc.TranscribeExamPaper(context.Background(), testUser, paper.ID)
	require.NoError(t, err)

	assert.Equal(t, models.StatusTranscribed, got.Status)
	assert.Equal(t, "First page.\n\nSecond page.\n\nThird page.", got.TranscribedText.String)
	assert.Equal(t, f.opts.TranscriptionCost, got.TranscriptionCreditsConsumed)
	assert.Equal(t, 3-f.opts.TranscriptionCost, f.credits(t))
}

func TestTranscribe_ExactBalance(t *testing.T) {
	f := newFixture(t, 1)
	paper := f.upload(t, 1)

	got, err := f.svc.TranscribeExamPaper(context.Background(), testUser, paper.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusTranscribed, got.Status)
	assert.Equal(t, 0, f.credits(t))
}

func TestTranscribe_InsufficientCredits(t *testing.T) {
	f := newFixture(t, 0)
	paper := f.upload(t, 1)

	_, err := f.svc.TranscribeExamPaper(context.Background(), testUser, paper.ID)
	assert.ErrorIs(t, err, services.ErrInsufficientCredits)

	assert.Equal(t, models.StatusUploaded, f.paper(t, paper.ID).Status)
	assert.Equal(t, 0, f.credits(t))
	assert.Zero(t, f.ai.calls)
}

func TestTranscribe_PartialFailure(t *testing.T) {
	f := newFixture(t, 5)
	paper := f.upload(t, 3)
	f.ai.pages[paper.Images[0].ImageURL] = "Intro."
	f.ai.fail[paper.Images[1].ImageURL] = true
	f.ai.pages[paper.Images[2].ImageURL] = "Ending."

	_, err := f.svc.TranscribeExamPaper(context.Background(), testUser, paper.ID)
	assert.ErrorIs(t, err, services.ErrAIFailure)

	got := f.paper(t, paper.ID)
	assert.Equal(t, models.StatusErrorTranscription, got.Status)
	assert.Equal(t, "Intro.\n\n[Error transcribing page 2]\n\nEnding.", got.TranscribedText.String)
	assert.NotContains(t, got.TranscribedText.String, "page 1]")
	assert.Zero(t, got.TranscriptionCreditsConsumed)
	assert.Equal(t, 5, f.credits(t))
}

func TestTranscribe_EmptyPageCountsAsFailure(t *testing.T) {
	f := newFixture(t, 5)
	paper := f.upload(t, 2)
	f.ai.pages[paper.Images[0].ImageURL] = "   "
	f.ai.pages[paper.Images[1].ImageURL] = "Body."

	_, err := f.svc.TranscribeExamPaper(context.Background(), testUser, paper.ID)
	assert.ErrorIs(t, err, services.ErrAIFailure)

	got := f.paper(t, paper.ID)
	assert.Equal(t, models.StatusErrorTranscription, got.Status)
	assert.Equal(t, "[Error transcribing page 1]\n\nBody.", got.TranscribedText.String)
	assert.Equal(t, 5, f.credits(t))
}

func TestTranscribe_AllPagesFail(t *testing.T) {
	f := newFixture(t, 5)
	paper := f.upload(t, 2)
	for _, img := range paper.Images {
		f.ai.fail[img.ImageURL] = true
	}

	_, err := f.svc.TranscribeExamPaper(context.Background(), testUser, paper.ID)
	assert.ErrorIs(t, err, services.ErrAIFailure)

	got := f.paper(t, paper.ID)
	assert.Equal(t, models.StatusErrorTranscription, got.Status)
	assert.Equal(t, "[Error transcribing page 1]\n\n[Error transcribing page 2]", got.TranscribedText.String)
	assert.Zero(t, got.TranscriptionCreditsConsumed)
	assert.Equal(t, 5, f.credits(t))
}

func TestTranscribe_RetryFailureReplacesStaleText(t *testing.T) {
	f := newFixture(t, 5)
	paper := f.upload(t, 2)
	f.ai.fail[paper.Images[0].ImageURL] = true
	f.ai.pages[paper.Images[1].ImageURL] = "Second page."

	_, err := f.svc.TranscribeExamPaper(context.Background(), testUser, paper.ID)
	require.ErrorIs(t, err, services.ErrAIFailure)
	require.Contains(t, f.paper(t, paper.ID).TranscribedText.String, "Second page.")

	f.ai.fail[paper.Images[1].ImageURL] = true
	_, err = f.svc.TranscribeExamPaper(context.Background(), testUser, paper.ID)
	require.ErrorIs(t, err, services.ErrAIFailure)

	got := f.paper(t, paper.ID)
	assert.Equal(t, models.StatusErrorTranscription, got.Status)
	assert.Contains(t, got.TranscribedText.String, "[Error transcribing page 2]")
	assert.NotContains(t, got.TranscribedText.String, "Second page.")
	assert.Equal(t, 5, f.credits(t))
}

// unnumberedPageRepo drops the page number of page 2 when reading, as rows
// written before page numbers existed would look.
type unnumberedPageRepo struct {
	*memstore.Store
}

func (r *unnumberedPageRepo) GetExamPaper(ctx context.Context, id int64) (*models.ExamPaper, error) {
	p, err := r.Store.GetExamPaper(ctx, id)
	if err != nil {
		return nil, err
	}
	for i := range p.Images {
		if p.Images[i].PageNumber.Int32 == 2 {
			p.Images[i].PageNumber.Valid = false
		}
	}
	models.SortImagesByPage(p.Images)
	return p, nil
}

func TestTranscribe_UnnumberedPageGetsDistinctLabel(t *testing.T) {
	f := newFixtureWith(t, 5, defaultOptions(), func(mem *memstore.Store) services.Repository {
		return &unnumberedPageRepo{Store: mem}
	})
	paper := f.paper(t, f.upload(t, 3).ID)
	f.ai.pages[paper.Images[0].ImageURL] = "One."
	f.ai.fail[paper.Images[1].ImageURL] = true
	f.ai.pages[paper.Images[2].ImageURL] = "Three."

	_, err := f.svc.TranscribeExamPaper(context.Background(), testUser, paper.ID)
	require.ErrorIs(t, err, services.ErrAIFailure)

	got := f.paper(t, paper.ID)
	assert.Equal(t, "One.\n\nThree.\n\n[Error transcribing page 4]", got.TranscribedText.String)
	assert.Zero(t, got.TranscriptionCreditsConsumed)
}

func TestTranscribe_RetryAfterFailure(t *testing.T) {
	f := newFixture(t, 5)
	paper := f.upload(t, 1)
	f.ai.fail[paper.Images[0].ImageURL] = true

	_, err := f.svc.TranscribeExamPaper(context.Background(), testUser, paper.ID)
	require.ErrorIs(t, err, services.ErrAIFailure)

	f.ai.fail[paper.Images[0].ImageURL] = false
	got, err := f.svc.TranscribeExamPaper(context.Background(), testUser, paper.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusTranscribed, got.Status)
	assert.Equal(t, 4, f.credits(t))
}

func TestTranscribe_ConflictStates(t *testing.T) {
	for _, status := range []models.Status{
		models.StatusTranscribed,
		models.StatusTranscribing,
		models.StatusCorrected,
		models.StatusCorrecting,
	} {
		t.Run(string(status), func(t *testing.T) {
			f := newFixture(t, 5)
			paper := f.upload(t, 1)
			require.NoError(t, f.repo.TransitionStatus(context.Background(), paper.ID, status, models.StatusUploaded))

			_, err := f.svc.TranscribeExamPaper(context.Background(), testUser, paper.ID)
			assert.ErrorIs(t, err, services.ErrConflict)

			assert.Equal(t, status, f.paper(t, paper.ID).Status)
			assert.Equal(t, 5, f.credits(t))
			assert.Zero(t, f.ai.calls)
		})
	}
}

func TestTranscribe_NotOwner(t *testing.T) {
	f := newFixture(t, 5)
	paper := f.upload(t, 1)

	_, err := f.svc.TranscribeExamPaper(context.Background(), "intruder", paper.ID)
	assert.ErrorIs(t, err, services.ErrForbidden)
	assert.Equal(t, models.StatusUploaded, f.paper(t, paper.ID).Status)
}

// racingRepo drains the balance between the credit check and the debit.
type racingRepo struct {
	*memstore.Store
}

func (r *racingRepo) CompleteTranscription(ctx context.Context, id int64, userID, text string, cost int) error {
	if err := r.Store.SetCredits(userID, 0); err != nil {
		return err
	}
	return r.Store.CompleteTranscription(ctx, id, userID, text, cost)
}

func TestTranscribe_BalanceDrainedBeforeDebit(t *testing.T) {
	f := newFixtureWith(t, 1, defaultOptions(), func(mem *memstore.Store) services.Repository {
		return &racingRepo{Store: mem}
	})
	paper := f.upload(t, 1)

	_, err := f.svc.TranscribeExamPaper(context.Background(), testUser, paper.ID)
	assert.ErrorIs(t, err, services.ErrInsufficientCredits)

	got := f.paper(t, paper.ID)
	assert.Equal(t, models.StatusErrorTranscription, got.Status)
	assert.Zero(t, got.TranscriptionCreditsConsumed)
	assert.Equal(t, 0, f.credits(t))
}

type brokenCommitRepo struct {
	*memstore.Store
}

func (r *brokenCommitRepo) CompleteCorrection(context.Context, int64, string, string, string, int, time.Time) error {
	return errors.New("connection reset")
}

func (r *brokenCommitRepo) CompleteTranscription(context.Context, int64, string, string, int) error {
	return errors.New("connection reset")
}

func newBrokenCommitFixture(t *testing.T, credits int) *fixture {
	t.Helper()
	return newFixtureWith(t, credits, defaultOptions(), func(mem *memstore.Store) services.Repository {
		return &brokenCommitRepo{Store: mem}
	})
}

func TestTranscribe_CommitFailureForcesErrorState(t *testing.T) {
	f := newBrokenCommitFixture(t, 5)
	paper := f.upload(t, 1)

	_, err := f.svc.TranscribeExamPaper(context.Background(), testUser, paper.ID)
	assert.ErrorIs(t, err, services.ErrInternal)

	assert.Equal(t, models.StatusErrorTranscription, f.paper(t, paper.ID).Status)
	assert.Equal(t, 5, f.credits(t))
}

func transcribed(t *testing.T, f *fixture, text string) *models.ExamPaper {
	t.Helper()
	paper := f.upload(t, 1)
	require.NoError(t, f.repo.UpdateTranscribedText(context.Background(), paper.ID, text, models.StatusTranscribed))
	return f.paper(t, paper.ID)
}

func TestCorrect_Success(t *testing.T) {
	f := newFixture(t, 3)
	paper := transcribed(t, f, "My summer holidays was very fun.")

	got, err := f.svc.CorrectExamPaper(context.Background(), testUser, paper.ID)
	require.NoError(t, err)

	assert.Equal(t, models.StatusCorrected, got.Status)
	assert.Equal(t, "Score: 7/10", got.CorrectedFeedback.String)
	assert.Equal(t, llm.PromptVersion, got.CorrectionPromptVersion.String)
	assert.Equal(t, f.opts.CorrectionCost, got.CorrectionCreditsConsumed)
	assert.True(t, got.CorrectedAt.Valid)
	assert.Equal(t, 3-f.opts.CorrectionCost, f.credits(t))
}

func TestCorrect_EmptyTranscript(t *testing.T) {
	f := newFixture(t, 3)

	fresh := f.upload(t, 1)
	_, err := f.svc.CorrectExamPaper(context.Background(), testUser, fresh.ID)
	assert.ErrorIs(t, err, services.ErrBadRequest)

	blank := transcribed(t, f, "  \n ")
	_, err = f.svc.CorrectExamPaper(context.Background(), testUser, blank.ID)
	assert.ErrorIs(t, err, services.ErrBadRequest)

	assert.Equal(t, 3, f.credits(t))
	assert.Zero(t, f.ai.calls)
}

func TestCorrect_WrongState(t *testing.T) {
	f := newFixture(t, 3)
	paper := transcribed(t, f, "Some text.")
	_, err := f.svc.CorrectExamPaper(context.Background(), testUser, paper.ID)
	require.NoError(t, err)

	_, err = f.svc.CorrectExamPaper(context.Background(), testUser, paper.ID)
	assert.ErrorIs(t, err, services.ErrConflict)
	assert.Equal(t, 3-f.opts.CorrectionCost, f.credits(t))
}

func TestCorrect_InsufficientCredits(t *testing.T) {
	f := newFixture(t, 1)
	paper := transcribed(t, f, "Some text.")

	_, err := f.svc.CorrectExamPaper(context.Background(), testUser, paper.ID)
	assert.ErrorIs(t, err, services.ErrInsufficientCredits)
	assert.Equal(t, models.StatusTranscribed, f.paper(t, paper.ID).Status)
	assert.Equal(t, 1, f.credits(t))
}

func TestCorrect_ProviderFailure(t *testing.T) {
	f := newFixture(t, 3)
	f.ai.correctFn = func(context.Context) error { return errors.New("model overloaded") }
	paper := transcribed(t, f, "Some text.")

	_, err := f.svc.CorrectExamPaper(context.Background(), testUser, paper.ID)
	assert.ErrorIs(t, err, services.ErrAIFailure)

	got := f.paper(t, paper.ID)
	assert.Equal(t, models.StatusErrorCorrection, got.Status)
	assert.Zero(t, got.CorrectionCreditsConsumed)
	assert.False(t, got.CorrectedAt.Valid)
	assert.Equal(t, 3, f.credits(t))
}

func TestCorrect_EmptyFeedback(t *testing.T) {
	f := newFixture(t, 3)
	f.ai.feedback = ""
	paper := transcribed(t, f, "Some text.")

	_, err := f.svc.CorrectExamPaper(context.Background(), testUser, paper.ID)
	assert.ErrorIs(t, err, services.ErrAIFailure)
	assert.Equal(t, models.StatusErrorCorrection, f.paper(t, paper.ID).Status)
	assert.Equal(t, 3, f.credits(t))
}

func TestCorrect_Timeout(t *testing.T) {
	opts := defaultOptions()
	opts.AIRequestTimeout = 10 * time.Millisecond
	f := newFixtureWith(t, 3, opts, nil)
	f.ai.correctFn = func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}
	paper := transcribed(t, f, "Some text.")

	_, err := f.svc.CorrectExamPaper(context.Background(), testUser, paper.ID)
	assert.ErrorIs(t, err, services.ErrAIFailure)
	assert.Equal(t, models.StatusErrorCorrection, f.paper(t, paper.ID).Status)
	assert.Equal(t, 3, f.credits(t))
}

func TestCorrect_CommitFailureForcesErrorState(t *testing.T) {
	f := newBrokenCommitFixture(t, 3)
	paper := transcribed(t, f, "Some text.")

	_, err := f.svc.CorrectExamPaper(context.Background(), testUser, paper.ID)
	assert.ErrorIs(t, err, services.ErrInternal)
	assert.Equal(t, models.StatusErrorCorrection, f.paper(t, paper.ID).Status)
	assert.Equal(t, 3, f.credits(t))
}

func TestUpdateTranscribedText(t *testing.T) {
	tests := []struct {
		name   string
		from   models.Status
		text   string
		expect models.Status
	}{
		{"error transcription with text", models.StatusErrorTranscription, "Fixed by hand.", models.StatusTranscribed},
		{"uploaded with text", models.StatusUploaded, "Typed in.", models.StatusTranscribed},
		{"uploaded with blank text", models.StatusUploaded, "   ", models.StatusUploaded},
		{"transcribed stays", models.StatusTranscribed, "Edited.", models.StatusTranscribed},
		{"corrected stays", models.StatusCorrected, "Edited.", models.StatusCorrected},
		{"error correction stays", models.StatusErrorCorrection, "Edited.", models.StatusErrorCorrection},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 2)
			paper := f.upload(t, 1)
			if tt.from != models.StatusUploaded {
				require.NoError(t, f.repo.TransitionStatus(context.Background(), paper.ID, tt.from, models.StatusUploaded))
			}

			got, err := f.svc.UpdateTranscribedText(context.Background(), testUser, paper.ID, tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.expect, got.Status)
			assert.Equal(t, tt.text, got.TranscribedText.String)
			assert.Zero(t, got.TranscriptionCreditsConsumed)
			assert.Equal(t, 2, f.credits(t))
		})
	}
}

func TestUpdateTranscribedText_Rejected(t *testing.T) {
	f := newFixture(t, 2)
	paper := f.upload(t, 1)
	ctx := context.Background()

	_, err := f.svc.UpdateTranscribedText(ctx, "intruder", paper.ID, "text")
	assert.ErrorIs(t, err, services.ErrForbidden)

	require.NoError(t, f.repo.TransitionStatus(ctx, paper.ID, models.StatusTranscribing, models.StatusUploaded))
	_, err = f.svc.UpdateTranscribedText(ctx, testUser, paper.ID, "text")
	assert.ErrorIs(t, err, services.ErrConflict)

	_, err = f.svc.UpdateTranscribedText(ctx, testUser, paper.ID+1, "text")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestScenario_FullPipeline(t *testing.T) {
	f := newFixture(t, 3)
	paper := f.upload(t, 2)
	ctx := context.Background()

	got, err := f.svc.TranscribeExamPaper(ctx, testUser, paper.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusTranscribed, got.Status)

	got, err = f.svc.UpdateTranscribedText(ctx, testUser, paper.ID, got.TranscribedText.String+" (edited)")
	require.NoError(t, err)
	require.Equal(t, models.StatusTranscribed, got.Status)

	got, err = f.svc.CorrectExamPaper(ctx, testUser, paper.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCorrected, got.Status)
	assert.Equal(t, 0, f.credits(t))
	assert.Equal(t, 1, got.TranscriptionCreditsConsumed)
	assert.Equal(t, 2, got.CorrectionCreditsConsumed)
}
