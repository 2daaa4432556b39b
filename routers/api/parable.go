package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"ParableToVideo-server/apperr"
	"ParableToVideo-server/models"
	"ParableToVideo-server/service"
)

// CreateParable stores a new draft: POST /parables
func (h *Handler) CreateParable(c *gin.Context) {
	var req struct {
		TitleOriginal string `form:"title_original" json:"title_original"`
		TextOriginal  string `form:"text_original" json:"text_original"`
	}
	if err := c.ShouldBind(&req); err != nil {
		RespondError(c, apperr.Validation("invalid request body: %v", err))
		return
	}
	if strings.TrimSpace(req.TextOriginal) == "" {
		RespondError(c, apperr.Validation("text_original is required"))
		return
	}
	p := &models.Parable{
		TitleOriginal: strings.TrimSpace(req.TitleOriginal),
		TextOriginal:  req.TextOriginal,
	}
	if err := h.Store.CreateParable(c.Request.Context(), p); err != nil {
		RespondError(c, err)
		return
	}
	h.Log.Info("parable created", "parable_id", p.ID)
	c.JSON(http.StatusCreated, p)
}

// ListParables: GET /parables
func (h *Handler) ListParables(c *gin.Context) {
	list, err := h.Store.ListParables(c.Request.Context())
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"parables": list})
}

// GetParable returns the unit with every owned collection.
func (h *Handler) GetParable(resolve Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := resolve(c, h.Store)
		if err != nil {
			RespondError(c, err)
			return
		}
		d, err := h.Store.GetDetail(c.Request.Context(), id)
		if err != nil {
			RespondError(c, err)
			return
		}
		RespondOK(c, d)
	}
}

// DeleteParable removes the unit with its rows and files. Deleting a source
// parable also removes its translation.
func (h *Handler) DeleteParable(resolve Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		id, err := resolve(c, h.Store)
		if err != nil {
			RespondError(c, err)
			return
		}
		p, err := h.Store.GetParable(ctx, id)
		if err != nil {
			RespondError(c, err)
			return
		}
		ids := []string{}
		if !p.IsTranslation() {
			t, err := h.Store.GetTranslation(ctx, id)
			switch {
			case err == nil:
				ids = append(ids, t.ID)
			case !apperr.Is(err, apperr.KindNotFound):
				RespondError(c, err)
				return
			}
		}
		ids = append(ids, id)
		for _, uid := range ids {
			if err := h.Store.DeleteParable(ctx, uid); err != nil {
				RespondError(c, err)
				return
			}
			if err := h.Files.RemoveParable(uid); err != nil {
				h.Log.Warn("remove parable files failed", "parable_id", uid, "error", err)
			}
		}
		h.Log.Info("parable deleted", "parable_id", id, "units", len(ids))
		RespondOK(c, gin.H{"id": id, "message": "parable deleted"})
	}
}

// ProcessParable starts or resumes the pipeline in the background.
func (h *Handler) ProcessParable(resolve Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		id, err := resolve(c, h.Store)
		if err != nil {
			RespondError(c, err)
			return
		}
		p, err := h.Pipeline.Start(ctx, id)
		if err != nil {
			RespondError(c, err)
			return
		}
		if err := h.dispatch(ctx, service.Job{Kind: service.JobProcess, ParableID: id}, h.Pipeline.Abort); err != nil {
			RespondError(c, apperr.External("schedule processing: %v", err))
			return
		}
		c.JSON(http.StatusAccepted, gin.H{
			"id":           id,
			"status":       p.Status,
			"current_step": p.CurrentStep,
			"message":      "processing started",
		})
	}
}

// RegenerateImages re-renders every scene image without touching status.
func (h *Handler) RegenerateImages(resolve Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		id, err := resolve(c, h.Store)
		if err != nil {
			RespondError(c, err)
			return
		}
		if _, err := h.Store.GetParable(ctx, id); err != nil {
			RespondError(c, err)
			return
		}
		n, err := h.Store.CountPrompts(ctx, id)
		if err != nil {
			RespondError(c, err)
			return
		}
		if n == 0 {
			RespondError(c, apperr.Validation("parable %s has no scene prompts, process it first", id))
			return
		}
		if err := h.dispatch(ctx, service.Job{Kind: service.JobRegenerateImages, ParableID: id}, nil); err != nil {
			RespondError(c, apperr.External("schedule image regeneration: %v", err))
			return
		}
		RespondAccepted(c, id, "image regeneration started")
	}
}

// GenerateFinal renders the final video in the background.
func (h *Handler) GenerateFinal(resolve Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		id, err := resolve(c, h.Store)
		if err != nil {
			RespondError(c, err)
			return
		}
		if _, err := h.Finalizer.Begin(ctx, id); err != nil {
			RespondError(c, err)
			return
		}
		if err := h.dispatch(ctx, service.Job{Kind: service.JobGenerateFinal, ParableID: id}, h.Finalizer.Abort); err != nil {
			RespondError(c, apperr.External("schedule final video: %v", err))
			return
		}
		RespondAccepted(c, id, "final video generation started")
	}
}
