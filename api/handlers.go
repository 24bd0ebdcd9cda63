// Package api exposes the composition service over HTTP.
package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/hankolab/sealpress/adapters/storage"
	"github.com/hankolab/sealpress/core"
	apperrors "github.com/hankolab/sealpress/errors"
	"github.com/hankolab/sealpress/hooks"
	"github.com/hankolab/sealpress/utils"
)

// Processor is the part of the composition facade the handlers use.
type Processor interface {
	Process(ctx context.Context, req core.Request) (*core.Result, error)
	Store() core.ObjectStore
}

// Handler holds the dependencies of every route.
type Handler struct {
	svc     Processor
	metrics *hooks.InMemoryMetrics
	log     core.Logger
	started time.Time
}

func NewHandler(svc Processor, metrics *hooks.InMemoryMetrics, log core.Logger) *Handler {
	return &Handler{svc: svc, metrics: metrics, log: log, started: time.Now()}
}

// issueRequest is the request body of POST /issue.  Parsing is tolerant: a
// malformed body is treated as empty rather than rejected, so a bare POST
// still produces the default certificate.
type issueRequest struct {
	Message string `json:"message"`
	Format  string `json:"format"`
}

// issue runs one composition and answers in the requested output mode.
func (h *Handler) issue(c *gin.Context) {
	var body issueRequest
	if raw, err := c.GetRawData(); err == nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, &body); err != nil {
			h.log.Warn("ignoring malformed request body", "error", err.Error())
			body = issueRequest{}
		}
	}

	rawFormat := c.Query("format")
	if rawFormat == "" {
		rawFormat = body.Format
	}
	mode, recognized := core.ParseOutputMode(rawFormat)

	res, err := h.svc.Process(c.Request.Context(), core.Request{
		Message: body.Message,
		Mode:    mode,
	})
	if err != nil {
		h.log.Error("composition failed", "error", err.Error())
		c.JSON(apperrors.StatusOf(err), gin.H{
			"message": "error processing image",
			"error":   err.Error(),
		})
		return
	}
	h.metrics.RecordRun(len(res.PNG))

	if mode == core.ModeDownload {
		c.Header("Content-Disposition", `attachment; filename="processed_output.png"`)
		c.Data(http.StatusOK, "text/plain", []byte(base64.StdEncoding.EncodeToString(res.PNG)))
		return
	}

	resp := gin.H{"imageUrl": res.URL}
	if !recognized {
		resp["message"] = fmt.Sprintf("unrecognized format %q: use \"json\" or \"download\"", rawFormat)
	}
	c.JSON(http.StatusOK, resp)
}

// artifact serves a locally published object after validating its
// capability URL.  Only available on the local storage backend.
func (h *Handler) artifact(c *gin.Context) {
	local, ok := h.svc.Store().(*storage.Local)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "artifact serving is not available on this backend"})
		return
	}
	key := strings.TrimPrefix(c.Param("key"), "/")
	if err := local.Verify(key, c.Query("exp"), c.Query("sig")); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		return
	}
	data, err := local.Fetch(c.Request.Context(), key)
	if err != nil {
		c.JSON(apperrors.StatusOf(err), gin.H{"error": "artifact not found"})
		return
	}
	c.Data(http.StatusOK, utils.ContentTypeFor(data), data)
}

// qr encodes an artifact URL as a QR code PNG, so a freshly issued
// certificate link can be scanned off a screen.
func (h *Handler) qr(c *gin.Context) {
	target := c.Query("url")
	if target == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url query parameter is required"})
		return
	}
	size := 256
	if v := c.Query("size"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			size = n
		}
	}
	if size < 64 {
		size = 64
	}
	if size > 1024 {
		size = 1024
	}
	png, err := qrcode.Encode(target, qrcode.Medium, size)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "qr encoding failed"})
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
	})
}

func (h *Handler) stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.metrics.Snapshot())
}
