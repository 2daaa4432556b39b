package api

import (
	"github.com/gin-gonic/gin"

	"ParableToVideo-server/apperr"
	"ParableToVideo-server/service"
)

// ListMusicTracks: GET /music-tracks
func (h *Handler) ListMusicTracks(c *gin.Context) {
	tracks, err := h.Store.ListTracks(c.Request.Context())
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"music_tracks": tracks})
}

func (h *Handler) GetMusic(resolve Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := resolve(c, h.Store)
		if err != nil {
			RespondError(c, err)
			return
		}
		m, err := h.Store.GetMusic(c.Request.Context(), id)
		if err != nil {
			RespondError(c, err)
			return
		}
		RespondOK(c, m)
	}
}

// SetMusic changes the track and/or volume of the unit's background music.
func (h *Handler) SetMusic(resolve Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := resolve(c, h.Store)
		if err != nil {
			RespondError(c, err)
			return
		}
		var req struct {
			MusicTrackID string   `json:"music_track_id"`
			VolumeDB     *float64 `json:"volume_db"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			RespondError(c, apperr.Validation("invalid request body: %v", err))
			return
		}
		if req.MusicTrackID == "" && req.VolumeDB == nil {
			RespondError(c, apperr.Validation("music_track_id or volume_db is required"))
			return
		}
		m, err := h.Music.Assign(c.Request.Context(), id, req.MusicTrackID, req.VolumeDB)
		if err != nil {
			RespondError(c, err)
			return
		}
		RespondOK(c, m)
	}
}

// AutoAssignMusic picks a track by mood in the background.
func (h *Handler) AutoAssignMusic(resolve Resolver) gin.HandlerFunc {
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
		if err := h.dispatch(ctx, service.Job{Kind: service.JobAssignMusic, ParableID: id}, nil); err != nil {
			RespondError(c, apperr.External("schedule music assignment: %v", err))
			return
		}
		RespondAccepted(c, id, "music assignment started")
	}
}
