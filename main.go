package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gin-gonic/gin"

	"ParableToVideo-server/config"
	"ParableToVideo-server/logger"
	"ParableToVideo-server/media"
	"ParableToVideo-server/models"
	"ParableToVideo-server/routers"
	"ParableToVideo-server/routers/api"
	"ParableToVideo-server/service"
)

func main() {
	config.InitConfig()
	cfg := config.AppConfig

	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := models.InitDB(cfg.MySQL.DSN)
	if err != nil {
		log.Fatal("database init failed", "error", err)
	}
	log.Info("database initialized")
	store := models.NewStore(db)
	files := service.NewFileStore(cfg.Storage.UploadDir, cfg.Storage.OutputDir, cfg.Storage.StaticDir)

	gemini, err := service.NewGeminiClient(ctx, cfg.Gemini.APIKey, cfg.Gemini.TextModel, cfg.Gemini.ImageModel)
	if err != nil {
		log.Fatal("gemini client init failed", "error", err)
	}
	defer gemini.Close()

	synth := service.NewSynthesizer(gemini, cfg.Music.DefaultMood, log)
	scenes := service.NewSceneGenerator(gemini, files, log)
	pipeline := service.NewPipeline(store, synth, scenes, service.PipelineOptions{
		MaxHealAttempts: cfg.Pipeline.MaxHealAttempts,
		TitleVariants:   cfg.Pipeline.TitleVariants,
	}, log)

	runner := media.ExecRunner{}
	prober := media.NewFFprobe(cfg.Media.FFprobe, runner)
	assembler := media.NewAssembler(media.Settings{
		FFmpeg:      cfg.Media.FFmpeg,
		FPS:         cfg.Media.FPS,
		Bitrate:     cfg.Media.Bitrate,
		Width:       cfg.Media.Width,
		Height:      cfg.Media.Height,
		MaxDuration: cfg.Media.MaxDuration,
		WorkRoot:    filepath.Join(cfg.Storage.OutputDir, "work"),
	}, runner, prober, media.NewGGRenderer(cfg.Media.FontPath), log)

	var publisher service.Publisher
	if cfg.MinIO.Enabled {
		p, err := service.NewMinIOPublisher(cfg.MinIO.Endpoint, cfg.MinIO.AccessKey, cfg.MinIO.SecretKey, cfg.MinIO.Bucket, cfg.MinIO.UseSSL, log)
		if err != nil {
			log.Fatal("minio init failed", "error", err)
		}
		publisher = p
		log.Info("minio initialized", "bucket", cfg.MinIO.Bucket)
	}
	finalizer := service.NewFinalizer(store, assembler, files, publisher, log)

	var voice service.VoiceSynthesizer
	if cfg.ElevenLabs.APIKey != "" && cfg.ElevenLabs.VoiceID != "" {
		voice = service.NewElevenLabs(cfg.ElevenLabs.APIKey, cfg.ElevenLabs.VoiceID, cfg.ElevenLabs.Model, cfg.ElevenLabs.BaseURL)
	}

	var dispatcher service.Dispatcher
	var inproc *service.GoDispatcher
	if cfg.Redis.Addr != "" {
		q := service.NewQueueDispatcher(cfg.Redis.Addr, cfg.Redis.Password, log)
		defer q.Close()
		dispatcher = q
	} else {
		inproc = service.NewGoDispatcher(log)
		dispatcher = inproc
	}

	mediaSvc := service.NewMediaService(store, files, prober, voice, dispatcher, log)
	musicSvc := service.NewMusicService(store, synth, files, cfg.Music.Library, cfg.Music.DefaultMood, cfg.Music.DefaultVolumeDB, log)
	processor := service.NewProcessor(pipeline, finalizer, mediaSvc, musicSvc, log)

	if inproc != nil {
		inproc.Bind(processor.Handle)
		log.Info("jobs run in process")
	} else {
		srv := processor.StartQueueServer(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.Concurrency)
		defer srv.Shutdown()
		log.Info("queue initialized", "addr", cfg.Redis.Addr)
	}

	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	h := &api.Handler{
		Store:        store,
		Pipeline:     pipeline,
		Finalizer:    finalizer,
		Media:        mediaSvc,
		Music:        musicSvc,
		Translations: service.NewTranslationService(store, synth, log),
		Dispatcher:   dispatcher,
		Files:        files,
		Log:          log,
	}
	r := routers.InitRouter(h, routers.Options{
		AllowOrigins: cfg.Server.AllowOrigins,
		UploadDir:    cfg.Storage.UploadDir,
		OutputDir:    cfg.Storage.OutputDir,
	})

	errc := make(chan error, 1)
	go func() {
		log.Info("server starting", "port", cfg.Server.Port)
		errc <- r.Run(cfg.Server.Port)
	}()
	select {
	case err := <-errc:
		log.Error("server stopped", "error", err)
	case <-ctx.Done():
		log.Info("shutting down")
	}
	if inproc != nil {
		inproc.Wait()
	}
}
