package main

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/rhyrak/go-allocate/internal/attempt"
	"github.com/rhyrak/go-allocate/internal/csvio"
	"github.com/rhyrak/go-allocate/internal/solver"
	"github.com/rhyrak/go-allocate/internal/storage"
	"github.com/rhyrak/go-allocate/pkg/model"
)

// maxSolutionSize bounds uploaded solution files.
const maxSolutionSize = 64 << 20

type queue interface {
	Enqueue(id string) bool
}

type handler struct {
	runner  *attempt.Runner
	store   storage.Store
	solvers *solver.Registry
	pool    queue
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(log.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"latency": time.Since(start),
		}).Debug("request")
	}
}

// fail writes err with the status its cause maps to.
func fail(ctx *gin.Context, err error) {
	status := http.StatusInternalServerError
	var verr validator.ValidationErrors
	switch {
	case errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	case errors.As(err, &verr), errors.Is(err, solver.ErrUnknownBackend):
		status = http.StatusBadRequest
	case errors.Is(err, attempt.ErrNotOffline), errors.Is(err, attempt.ErrNotPrepared),
		errors.Is(err, model.ErrAttemptFinished), errors.Is(err, storage.ErrExists):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		log.WithError(err).WithField("path", ctx.FullPath()).Error("request failed")
	}
	ctx.JSON(status, gin.H{"error": err.Error()})
}

func (h *handler) handleGetBackends(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"backends": h.solvers.Names()})
}

func (h *handler) handlePostAttempt(ctx *gin.Context) {
	var req attempt.Request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	a, err := h.runner.Create(ctx.Request.Context(), req)
	if err != nil {
		fail(ctx, err)
		return
	}
	if !h.pool.Enqueue(a.ID) {
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"error": "shutting down", "id": a.ID})
		return
	}
	ctx.JSON(http.StatusAccepted, a)
}

func (h *handler) handleGetAttempts(ctx *gin.Context) {
	attempts, err := h.store.ListAttempts(ctx.Request.Context())
	if err != nil {
		fail(ctx, err)
		return
	}
	if attempts == nil {
		attempts = []*model.Attempt{}
	}
	ctx.JSON(http.StatusOK, gin.H{"attempts": attempts})
}

func (h *handler) handleGetAttempt(ctx *gin.Context) {
	a, err := h.store.GetAttempt(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, a)
}

// handleGetPlacements answers with JSON, or with CSV for ?format=csv.
func (h *handler) handleGetPlacements(ctx *gin.Context) {
	id := ctx.Param("id")
	placements, err := h.store.Placements(ctx.Request.Context(), id)
	if err != nil {
		fail(ctx, err)
		return
	}
	if ctx.Query("format") == "csv" {
		var buf bytes.Buffer
		if err := csvio.WritePlacements(&buf, placements); err != nil {
			fail(ctx, err)
			return
		}
		ctx.Header("Content-Disposition", `attachment; filename="`+id+`-placements.csv"`)
		ctx.Data(http.StatusOK, "text/csv", buf.Bytes())
		return
	}
	if placements == nil {
		placements = []model.Placement{}
	}
	ctx.JSON(http.StatusOK, gin.H{"placements": placements})
}

func (h *handler) handleGetArtifact(ctx *gin.Context) {
	id, format := ctx.Param("id"), ctx.Param("format")
	if format != storage.FormatLP && format != storage.FormatMPS {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "format must be lp or mps"})
		return
	}
	data, err := h.store.Artifact(ctx.Request.Context(), id, format)
	if err != nil {
		fail(ctx, err)
		return
	}
	ctx.Header("Content-Disposition", `attachment; filename="`+id+`.`+format+`"`)
	ctx.Data(http.StatusOK, "text/plain", data)
}

// handlePostSolution accepts the file as multipart field "solution" or as the
// raw request body.
func (h *handler) handlePostSolution(ctx *gin.Context) {
	var body io.Reader = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, maxSolutionSize)
	if fh, err := ctx.FormFile("solution"); err == nil {
		f, err := fh.Open()
		if err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		defer f.Close()
		body = f
	}
	a, err := h.runner.ImportSolution(ctx.Request.Context(), ctx.Param("id"), body)
	if err != nil {
		fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, a)
}

func (h *handler) handlePostRevert(ctx *gin.Context) {
	if err := h.runner.Revert(ctx.Request.Context(), ctx.Param("id")); err != nil {
		fail(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (h *handler) handleDeleteEnumeration(ctx *gin.Context) {
	if err := h.store.DeleteEnumeration(ctx.Request.Context(), ctx.Param("id")); err != nil {
		fail(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (h *handler) handlePurge(ctx *gin.Context) {
	n, err := h.runner.Purge(ctx.Request.Context())
	if err != nil {
		fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"purged": n})
}
