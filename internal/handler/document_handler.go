package handler

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/dsetyadi/chatagent/internal/model"
	"github.com/dsetyadi/chatagent/internal/pkg/errcode"
	"github.com/dsetyadi/chatagent/internal/pkg/response"
	"github.com/dsetyadi/chatagent/internal/service"
)

const maxUploadBytes = 32 << 20

type DocumentHandler struct {
	documents *service.DocumentService
}

func NewDocumentHandler(documents *service.DocumentService) *DocumentHandler {
	return &DocumentHandler{documents: documents}
}

type uploadResult struct {
	Document   *model.Document `json:"document"`
	ChunkCount int             `json:"chunk_count"`
}

func (h *DocumentHandler) openUpload(c *gin.Context) (string, io.ReadCloser, bool) {
	fh, err := c.FormFile("file")
	if err != nil {
		response.Error(c, errcode.ErrInvalidFile, "missing form file field")
		return "", nil, false
	}
	if fh.Size > maxUploadBytes {
		response.Error(c, errcode.ErrInvalidFile, "file too large")
		return "", nil, false
	}
	f, err := fh.Open()
	if err != nil {
		response.Error(c, errcode.ErrUploadFailed, "open uploaded file failed")
		return "", nil, false
	}
	return fh.Filename, f, true
}

func (h *DocumentHandler) Upload(c *gin.Context) {
	filename, f, ok := h.openUpload(c)
	if !ok {
		return
	}
	defer f.Close()
	doc, chunks, err := h.documents.Upload(c.Request.Context(), filename, f)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, uploadResult{Document: doc, ChunkCount: len(chunks)})
}

func (h *DocumentHandler) Reupload(c *gin.Context) {
	id, ok := parsePathID(c)
	if !ok {
		return
	}
	filename, f, ok := h.openUpload(c)
	if !ok {
		return
	}
	defer f.Close()
	doc, chunks, err := h.documents.Reupload(c.Request.Context(), id, filename, f)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, uploadResult{Document: doc, ChunkCount: len(chunks)})
}

type listResult struct {
	Documents []model.Document `json:"documents"`
	Total     int              `json:"total"`
	Offset    int              `json:"offset"`
	Limit     int              `json:"limit"`
}

func (h *DocumentHandler) List(c *gin.Context) {
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	docs, total, err := h.documents.List(c.Request.Context(), offset, limit)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, listResult{Documents: docs, Total: total, Offset: offset, Limit: limit})
}

func (h *DocumentHandler) Get(c *gin.Context) {
	id, ok := parsePathID(c)
	if !ok {
		return
	}
	doc, err := h.documents.Get(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, doc)
}

func (h *DocumentHandler) Chunks(c *gin.Context) {
	id, ok := parsePathID(c)
	if !ok {
		return
	}
	chunks, err := h.documents.Chunks(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, chunks)
}

func (h *DocumentHandler) Download(c *gin.Context) {
	id, ok := parsePathID(c)
	if !ok {
		return
	}
	doc, rc, err := h.documents.Download(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	defer rc.Close()
	c.Header("Content-Disposition", `attachment; filename="`+doc.Filename+`"`)
	c.Header("Content-Type", "application/octet-stream")
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, rc)
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	id, ok := parsePathID(c)
	if !ok {
		return
	}
	if err := h.documents.Delete(c.Request.Context(), id); err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"deleted": id})
}
