package api

import (
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/member-dashboard-api/internal/config"
	"github.com/member-dashboard-api/internal/service"
	"github.com/rs/zerolog"
)

// TemplateFilename is the download name of the import template
const TemplateFilename = "sample_members.csv"

// ImportHandler handles import endpoints
type ImportHandler struct {
	services *service.Services
	cfg      *config.Config
	log      zerolog.Logger
}

// NewImportHandler creates a new ImportHandler
func NewImportHandler(services *service.Services, cfg *config.Config, log zerolog.Logger) *ImportHandler {
	return &ImportHandler{
		services: services,
		cfg:      cfg,
		log:      log.With().Str("handler", "import").Logger(),
	}
}

// Template handles GET /v1/imports/template
func (h *ImportHandler) Template(c *gin.Context) {
	tpl, err := h.services.Import.Template()
	if err != nil {
		respondError(c, err, "failed to build template")
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", TemplateFilename))
	c.Data(http.StatusOK, "text/csv", tpl)
}

// Upload handles POST /v1/imports
// Accepts a multipart CSV file, parses it and returns a preview session
func (h *ImportHandler) Upload(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file upload is required"})
		return
	}
	defer file.Close()

	// Validate file size
	if header.Size > h.cfg.Import.MaxUploadSize {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("file too large, max size is %d MB", h.cfg.Import.MaxUploadSize/(1024*1024)),
		})
		return
	}

	if ext := strings.ToLower(filepath.Ext(header.Filename)); ext != ".csv" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "member import requires a CSV file"})
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, h.cfg.Import.MaxUploadSize+1))
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to read upload")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read file"})
		return
	}

	session, err := h.services.Import.Upload(c.Request.Context(), currentAccount(c), header.Filename, data)
	if err != nil {
		respondError(c, err, "failed to parse import")
		return
	}

	h.log.Info().
		Str("import_id", session.ID).
		Str("file", header.Filename).
		Int64("size_bytes", header.Size).
		Int("rows", session.TotalRows).
		Msg("Import parsed")

	c.JSON(http.StatusCreated, session)
}

// Get handles GET /v1/imports/:import_id
func (h *ImportHandler) Get(c *gin.Context) {
	session, err := h.services.Import.Get(c.Request.Context(), c.Param("import_id"))
	if err != nil {
		respondError(c, err, "failed to get import")
		return
	}
	c.JSON(http.StatusOK, session)
}

// Confirm handles POST /v1/imports/:import_id/confirm
// Runs validation, de-duplication and the member writes
func (h *ImportHandler) Confirm(c *gin.Context) {
	id := c.Param("import_id")
	session, err := h.services.Import.Confirm(c.Request.Context(), currentAccount(c), id)
	if err != nil {
		if session != nil && HTTPStatusFromError(err) == http.StatusInternalServerError {
			h.log.Error().Err(err).Str("import_id", id).Msg("Import failed")
			c.JSON(http.StatusInternalServerError, session)
			return
		}
		respondError(c, err, "failed to run import")
		return
	}
	c.JSON(http.StatusOK, session)
}
