package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"ParableToVideo-server/logger"
	"ParableToVideo-server/models"
	"ParableToVideo-server/service"
)

// Handler serves the parable API. Every unit-scoped endpoint is built for a
// Resolver so the same handler serves a parable and its translation.
type Handler struct {
	Store        *models.Store
	Pipeline     *service.Pipeline
	Finalizer    *service.Finalizer
	Media        *service.MediaService
	Music        *service.MusicService
	Translations *service.TranslationService
	Dispatcher   service.Dispatcher
	Files        *service.FileStore
	Log          *logger.Logger

	// PollInterval is how often the progress socket re-reads the unit.
	PollInterval time.Duration
}

// Resolver maps a request to the id of the unit it addresses.
type Resolver func(c *gin.Context, store *models.Store) (string, error)

// Primary addresses the parable named by the :id path parameter.
func Primary(c *gin.Context, _ *models.Store) (string, error) {
	return c.Param("id"), nil
}

// Translated addresses the translation of the parable named by :id.
func Translated(c *gin.Context, store *models.Store) (string, error) {
	t, err := store.GetTranslation(c.Request.Context(), c.Param("id"))
	if err != nil {
		return "", err
	}
	return t.ID, nil
}

// dispatch hands a job to the background. When the job carries a state
// transition already made, abort moves the unit to error so it is not left
// running with nothing behind it.
func (h *Handler) dispatch(ctx context.Context, job service.Job, abort func(context.Context, string, error)) error {
	if err := h.Dispatcher.Dispatch(ctx, job); err != nil {
		h.Log.Error("dispatch failed", "kind", job.Kind, "parable_id", job.ParableID, "error", err)
		if abort != nil {
			abort(ctx, job.ParableID, err)
		}
		return err
	}
	return nil
}
