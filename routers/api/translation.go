package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"ParableToVideo-server/apperr"
)

// CreateTranslation translates a processed parable into a new draft unit:
// POST /parables/:id/translation
func (h *Handler) CreateTranslation(c *gin.Context) {
	var req struct {
		Language string `form:"language" json:"language"`
	}
	if err := c.ShouldBind(&req); err != nil && !errors.Is(err, io.EOF) {
		RespondError(c, apperr.Validation("invalid request body: %v", err))
		return
	}
	p, err := h.Translations.Create(c.Request.Context(), c.Param("id"), req.Language)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}
