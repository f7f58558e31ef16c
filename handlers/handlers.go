package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"

	"pgr-report-service/metrics"
	"pgr-report-service/models"
	"pgr-report-service/pdfgen"
)

// Handlers contains all HTTP handlers
type Handlers struct {
	gen *pdfgen.Generator
}

// New creates a new handlers instance
func New(gen *pdfgen.Generator) *Handlers {
	return &Handlers{gen: gen}
}

// GenerateReport handles POST /generate-report?key=<key>. The body is the
// checklist payload; the response is the rendered PDF.
func (h *Handlers) GenerateReport(c *gin.Context) {
	started := time.Now()

	key := c.Query("key")
	if key == "" {
		c.String(http.StatusBadRequest, "Parâmetro 'key' obrigatório")
		metrics.GeneratedTotal.WithLabelValues("validation_error").Inc()
		return
	}

	body, err := c.GetRawData()
	if err != nil || len(body) == 0 {
		c.String(http.StatusBadRequest, "JSON do corpo obrigatório")
		metrics.GeneratedTotal.WithLabelValues("validation_error").Inc()
		return
	}

	report, err := models.ParseReport(key, body)
	if err != nil {
		log.Warnf("Invalid payload for report %s: %v", key, err)
		c.String(http.StatusBadRequest, err.Error())
		metrics.GeneratedTotal.WithLabelValues("validation_error").Inc()
		return
	}

	data, err := h.gen.Generate(c.Request.Context(), report)
	if err != nil {
		if errors.Is(err, models.ErrValidation) {
			c.String(http.StatusBadRequest, err.Error())
			metrics.GeneratedTotal.WithLabelValues("validation_error").Inc()
			return
		}
		log.Errorf("Generating report %s: %v", key, err)
		c.String(http.StatusInternalServerError, "Erro interno: falha ao gerar o relatório")
		metrics.GeneratedTotal.WithLabelValues("error").Inc()
		return
	}

	metrics.GeneratedTotal.WithLabelValues("ok").Inc()
	metrics.GenerationDurationSeconds.Observe(time.Since(started).Seconds())

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "checklist-pgr-"+key+".pdf"))
	c.Data(http.StatusOK, "application/pdf", data)
}

// Health handles GET /health.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
