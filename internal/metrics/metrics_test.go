package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"essay-corrector-backend/internal/metrics"
)

func TestHandlerExposesPipelineCounters(t *testing.T) {
	metrics.RecordStep(metrics.StepTranscription, metrics.OutcomeSuccess)
	metrics.RecordDebit(metrics.StepTranscription, 2)

	w := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `essay_corrector_pipeline_steps_total{outcome="success",step="transcription"}`)
	assert.Contains(t, body, `essay_corrector_credits_debited_total{step="transcription"}`)
}

func TestGinMiddlewareUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(metrics.GinMiddleware())
	router.GET("/exam_papers/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/exam_papers/42", nil))

	w := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, w.Body.String(), `path="/exam_papers/:id"`)
	assert.NotContains(t, w.Body.String(), `path="/exam_papers/42"`)
}
