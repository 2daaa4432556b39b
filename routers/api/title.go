package api

import (
	"github.com/gin-gonic/gin"
)

// ListTitles: GET .../titles
func (h *Handler) ListTitles(resolve Resolver) gin.HandlerFunc {
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
		vs, err := h.Store.ListTitleVariants(ctx, id)
		if err != nil {
			RespondError(c, err)
			return
		}
		RespondOK(c, gin.H{"title_variants": vs})
	}
}

// SelectTitle makes one variant the unit's published title.
func (h *Handler) SelectTitle(resolve Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := resolve(c, h.Store)
		if err != nil {
			RespondError(c, err)
			return
		}
		v, err := h.Store.SelectTitleVariant(c.Request.Context(), id, c.Param("variant_id"))
		if err != nil {
			RespondError(c, err)
			return
		}
		RespondOK(c, v)
	}
}
