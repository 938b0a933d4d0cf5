package submissions

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"picture-backend/internal/shared/server/respond"
)

// MaxBodyBytes caps a submission request; base64 photos are large.
const MaxBodyBytes = 15 << 20

// Handler wires HTTP handlers to the pipeline and query.
type Handler struct {
	Pipeline *Pipeline
	Query    *Query
}

// NewHandler constructs a Handler.
func NewHandler(pipeline *Pipeline, query *Query) *Handler {
	return &Handler{Pipeline: pipeline, Query: query}
}

// RegisterRoutes attaches the public submission route.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, mw ...gin.HandlerFunc) {
	rg.POST("/submissions", append(mw, h.submit)...)
}

// RegisterAdminRoutes attaches the read-only admin routes.
func (h *Handler) RegisterAdminRoutes(rg *gin.RouterGroup) {
	rg.GET("/submissions", h.list)
	rg.GET("/submissions/:id", h.get)
}

func (h *Handler) submit(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxBodyBytes)

	var candidate Candidate
	if err := c.ShouldBindJSON(&candidate); err != nil {
		respond.JSON(c, http.StatusBadRequest, failedResponse())
		return
	}

	result := h.Pipeline.SubmitDetailed(c.Request.Context(), candidate)
	if result.Submission.ID != 0 {
		c.Set("submissionId", result.Submission.ID)
	}
	switch {
	case result.Err == nil:
		respond.Created(c, result.Response)
	case errors.Is(result.Err, ErrValidation):
		respond.JSON(c, http.StatusBadRequest, result.Response)
	default:
		respond.JSON(c, http.StatusInternalServerError, result.Response)
	}
}

func (h *Handler) list(c *gin.Context) {
	subs, err := h.Query.List(c.Request.Context())
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "storage_error", "failed to list submissions", nil)
		return
	}
	respond.NoStore(c)
	includePicture := c.Query("include_picture") == "true"
	items := make([]submissionResponse, 0, len(subs))
	for _, sub := range subs {
		items = append(items, toResponse(sub, includePicture))
	}
	respond.OK(c, listResponse{Items: items, Total: len(items)})
}

func (h *Handler) get(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		respond.Error(c, http.StatusBadRequest, "validation_error", "id must be a positive integer", nil)
		return
	}
	sub, err := h.Query.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			respond.Error(c, http.StatusNotFound, "not_found", "submission not found", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "storage_error", "failed to load submission", nil)
		return
	}
	respond.NoStore(c)
	respond.OK(c, toResponse(sub, true))
}
