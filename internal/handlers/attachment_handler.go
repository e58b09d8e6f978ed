package handler

import (
	"context"
	"mime"
	"net/http"

	"qonto-reconciliation-backend/internal/services/attachments"

	"github.com/gin-gonic/gin"
)

type AttachmentOpener interface {
	Open(ctx context.Context, id string) (*attachments.File, error)
}

type AttachmentHandler struct {
	opener AttachmentOpener
}

func NewAttachmentHandler(opener AttachmentOpener) *AttachmentHandler {
	return &AttachmentHandler{opener: opener}
}

// Get proxies attachment bytes so signed URLs never reach the browser
func (h *AttachmentHandler) Get(c *gin.Context) {
	file, err := h.opener.Open(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, requestLog(c), err)
		return
	}
	defer file.Body.Close()

	headers := map[string]string{"Cache-Control": "private, max-age=300"}
	if file.FileName != "" {
		disposition := mime.FormatMediaType("inline", map[string]string{"filename": file.FileName})
		if disposition == "" {
			disposition = "inline"
		}
		headers["Content-Disposition"] = disposition
	}
	c.DataFromReader(http.StatusOK, -1, file.ContentType, file.Body, headers)
}
