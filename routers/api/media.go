package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"ParableToVideo-server/apperr"
	"ParableToVideo-server/service"
)

// UploadAudio replaces the unit's narration with the multipart "file".
func (h *Handler) UploadAudio(resolve Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := resolve(c, h.Store)
		if err != nil {
			RespondError(c, err)
			return
		}
		fh, err := c.FormFile("file")
		if err != nil {
			RespondError(c, apperr.Validation("file is required"))
			return
		}
		f, err := fh.Open()
		if err != nil {
			RespondError(c, apperr.Validation("open upload: %v", err))
			return
		}
		defer f.Close()

		a, err := h.Media.UploadAudio(c.Request.Context(), id, fh.Filename, f)
		if err != nil {
			RespondError(c, err)
			return
		}
		RespondOK(c, a)
	}
}

// SynthesizeAudio voices the narration script in the background.
func (h *Handler) SynthesizeAudio(resolve Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		id, err := resolve(c, h.Store)
		if err != nil {
			RespondError(c, err)
			return
		}
		if err := h.Media.CheckSynthesis(ctx, id); err != nil {
			RespondError(c, err)
			return
		}
		if err := h.dispatch(ctx, service.Job{Kind: service.JobSynthesizeAudio, ParableID: id}, nil); err != nil {
			RespondError(c, apperr.External("schedule narration: %v", err))
			return
		}
		RespondAccepted(c, id, "narration synthesis started")
	}
}

// UploadVideo stores the clip for one scene. scene_order comes from the
// form or the query string.
func (h *Handler) UploadVideo(resolve Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := resolve(c, h.Store)
		if err != nil {
			RespondError(c, err)
			return
		}
		raw := c.PostForm("scene_order")
		if raw == "" {
			raw = c.Query("scene_order")
		}
		order, err := strconv.Atoi(raw)
		if err != nil {
			RespondError(c, apperr.Validation("scene_order must be an integer"))
			return
		}
		fh, err := c.FormFile("file")
		if err != nil {
			RespondError(c, apperr.Validation("file is required"))
			return
		}
		f, err := fh.Open()
		if err != nil {
			RespondError(c, apperr.Validation("open upload: %v", err))
			return
		}
		defer f.Close()

		frag, err := h.Media.UploadFragment(c.Request.Context(), id, order, f)
		if err != nil {
			RespondError(c, err)
			return
		}
		RespondOK(c, frag)
	}
}

// SetVideoDuration sets or clears a fragment's target duration.
func (h *Handler) SetVideoDuration(resolve Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := resolve(c, h.Store)
		if err != nil {
			RespondError(c, err)
			return
		}
		var req struct {
			TargetDuration *float64 `json:"target_duration"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			RespondError(c, apperr.Validation("invalid request body: %v", err))
			return
		}
		frag, err := h.Media.SetTargetDuration(c.Request.Context(), id, c.Param("fragment_id"), req.TargetDuration)
		if err != nil {
			RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, frag)
	}
}
