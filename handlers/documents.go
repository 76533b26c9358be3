package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/docport/gateway/internal/backend"
	"github.com/docport/gateway/internal/documents"
	"github.com/docport/gateway/pkg/middleware"
)

// DocumentsHandler proxies document listing, upload and deletion for the
// signed-in session.
type DocumentsHandler struct {
	svc *documents.Service
}

func NewDocumentsHandler(svc *documents.Service) *DocumentsHandler {
	return &DocumentsHandler{svc: svc}
}

// Register routes on an already-guarded group.
func (h *DocumentsHandler) Register(rg *gin.RouterGroup) {
	d := rg.Group("/documents")
	d.GET("", h.List)
	d.POST("/upload", h.Upload)
	d.DELETE("/:id", h.Delete)
}

func (h *DocumentsHandler) List(c *gin.Context) {
	p := backend.ListParams{
		Department:   c.Query("department"),
		DocumentType: c.Query("document_type"),
		Sort:         c.Query("sort"),
		Order:        c.Query("order"),
	}
	p.Limit, _ = strconv.Atoi(c.Query("limit"))
	p.Offset, _ = strconv.Atoi(c.Query("offset"))

	list, err := h.svc.List(c.Request.Context(), middleware.TokenFrom(c), p)
	if err != nil {
		writeBackendError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list})
}

// Upload accepts one or more files in the multipart "file" field plus shared
// metadata fields. Each file is forwarded individually; partial failure
// reports both halves.
func (h *DocumentsHandler) Upload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart form required"})
		return
	}
	files := form.File["file"]
	if len(files) == 0 {
		files = form.File["files"]
	}
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no file provided"})
		return
	}

	var inputs []documents.UploadInput
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable file: " + fh.Filename})
			return
		}
		defer f.Close()
		inputs = append(inputs, documents.UploadInput{
			Reader:               f,
			FileName:             fh.Filename,
			ContentType:          fh.Header.Get("Content-Type"),
			Title:                c.PostForm("title"),
			Department:           c.PostForm("department"),
			ConfidentialityLevel: c.PostForm("confidentiality_level"),
			Description:          c.PostForm("description"),
			Tags:                 form.Value["tags"],
		})
	}

	results, failed := h.svc.UploadAll(c.Request.Context(), middleware.TokenFrom(c), inputs)
	if len(results) == 0 && len(failed) > 0 {
		writeBackendError(c, failed[0].Err)
		return
	}

	resp := gin.H{"data": results}
	if len(failed) > 0 {
		errs := make([]gin.H, 0, len(failed))
		for _, f := range failed {
			errs = append(errs, gin.H{"file_name": f.FileName, "error": f.Err.Error()})
		}
		resp["failed"] = errs
		c.JSON(http.StatusMultiStatus, resp)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *DocumentsHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), middleware.TokenFrom(c), c.Param("id")); err != nil {
		writeBackendError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
