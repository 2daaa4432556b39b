package routers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ParableToVideo-server/routers/api"
)

type Options struct {
	AllowOrigins []string
	UploadDir    string
	OutputDir    string
}

func InitRouter(h *api.Handler, opts Options) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), CORS(opts.AllowOrigins), RequestLogger(h.Log))
	if opts.UploadDir != "" {
		r.Static("/uploads", opts.UploadDir)
	}
	if opts.OutputDir != "" {
		r.Static("/outputs", opts.OutputDir)
	}

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"service": "parable-to-video", "status": "ok"})
	})
	r.GET("/music-tracks", h.ListMusicTracks)
	r.POST("/parables", h.CreateParable)
	r.GET("/parables", h.ListParables)
	r.POST("/parables/:id/translation", h.CreateTranslation)

	// A parable and its translation expose the same unit endpoints.
	units := []struct {
		path    string
		resolve api.Resolver
	}{
		{"/parables/:id", api.Primary},
		{"/parables/:id/translation", api.Translated},
	}
	for _, u := range units {
		g := r.Group(u.path)
		g.GET("", h.GetParable(u.resolve))
		g.DELETE("", h.DeleteParable(u.resolve))
		g.POST("/process", h.ProcessParable(u.resolve))
		g.POST("/regenerate-images", h.RegenerateImages(u.resolve))
		g.POST("/generate-final", h.GenerateFinal(u.resolve))
		g.POST("/audio/upload", h.UploadAudio(u.resolve))
		g.POST("/audio/synthesize", h.SynthesizeAudio(u.resolve))
		g.POST("/videos/upload", h.UploadVideo(u.resolve))
		g.PUT("/videos/:fragment_id/duration", h.SetVideoDuration(u.resolve))
		g.GET("/titles", h.ListTitles(u.resolve))
		g.PUT("/titles/:variant_id/select", h.SelectTitle(u.resolve))
		g.GET("/music", h.GetMusic(u.resolve))
		g.PUT("/music", h.SetMusic(u.resolve))
		g.POST("/music/auto", h.AutoAssignMusic(u.resolve))
		g.GET("/wss", h.ProgressSocket(u.resolve))
	}
	return r
}
