package service

import (
	"context"
	"fmt"
	"time"

	"ParableToVideo-server/apperr"
	"ParableToVideo-server/logger"
	"ParableToVideo-server/media"
	"ParableToVideo-server/models"
)

// VideoAssembler renders the final video from prepared inputs.
type VideoAssembler interface {
	Assemble(ctx context.Context, req media.Request) (media.Result, error)
}

// Finalizer owns the generating_final transition and the final render.
type Finalizer struct {
	store     *models.Store
	assembler VideoAssembler
	files     *FileStore
	publisher Publisher
	log       *logger.Logger
}

// NewFinalizer builds a Finalizer. publisher may be nil.
func NewFinalizer(store *models.Store, assembler VideoAssembler, files *FileStore, publisher Publisher, log *logger.Logger) *Finalizer {
	return &Finalizer{store: store, assembler: assembler, files: files, publisher: publisher, log: log.With("service", "Finalizer")}
}

// Begin checks the render inputs and atomically moves the parable to
// generating_final.
func (f *Finalizer) Begin(ctx context.Context, id string) (*models.Parable, error) {
	par, err := f.store.GetParable(ctx, id)
	if err != nil {
		return nil, err
	}
	n, err := f.store.CountFragments(ctx, id)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, apperr.Validation("no video fragments uploaded")
	}
	if _, err := f.store.GetAudio(ctx, id); err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, apperr.Validation("no audio file found")
		}
		return nil, err
	}
	if par.Status == models.StatusGeneratingFinal {
		return nil, apperr.Conflict("final video of parable %s is already being generated", id)
	}
	if err := f.store.CompareAndSetStatus(ctx, id, par.Status, models.StatusGeneratingFinal, map[string]interface{}{
		"stage":         models.StageGeneratingFinal,
		"error_message": "",
		"failure":       nil,
	}); err != nil {
		return nil, err
	}
	return f.store.GetParable(ctx, id)
}

// Run renders the final video. On success the parable is completed; on
// failure it moves to error with the failure recorded.
func (f *Finalizer) Run(ctx context.Context, id string) error {
	log := f.log.With("parable_id", id)
	res, err := f.render(ctx, id, log)
	if err != nil {
		log.Error("final video failed", "error", err)
		f.fail(ctx, id, err, log)
		return err
	}

	fields := map[string]interface{}{
		"final_video_path":     res.Path,
		"final_video_duration": res.Duration,
		"completed_at":         time.Now(),
		"stage":                models.StageCompleted,
	}
	if f.publisher != nil {
		u, perr := f.publisher.Publish(ctx, res.Path, fmt.Sprintf("parables/%s/final.mp4", id))
		if perr != nil {
			log.Warn("publish final video failed, serving local file only", "error", perr)
		} else {
			fields["final_video_url"] = u
		}
	}
	if err := f.store.CompareAndSetStatus(ctx, id, models.StatusGeneratingFinal, models.StatusCompleted, fields); err != nil {
		f.fail(ctx, id, err, log)
		return err
	}
	log.Info("final video ready", "path", res.Path, "duration", res.Duration)
	return nil
}

func (f *Finalizer) render(ctx context.Context, id string, log *logger.Logger) (media.Result, error) {
	par, err := f.store.GetParable(ctx, id)
	if err != nil {
		return media.Result{}, err
	}
	frags, err := f.store.ListFragments(ctx, id)
	if err != nil {
		return media.Result{}, err
	}
	audio, err := f.store.GetAudio(ctx, id)
	if err != nil {
		return media.Result{}, err
	}
	req := media.Request{
		NarrationPath:     audio.AudioPath,
		NarrationDuration: audio.Duration,
		Subtitles:         par.TextForTTS,
		Hook:              par.HookText,
		OutputPath:        f.files.FinalPath(id),
	}
	for _, fr := range frags {
		req.Fragments = append(req.Fragments, media.Fragment{
			Path:       fr.VideoPath,
			SceneOrder: fr.SceneOrder,
			Duration:   fr.Duration,
			Target:     fr.TargetDuration,
		})
	}
	music, err := f.store.GetMusic(ctx, id)
	switch {
	case err == nil && music.Track != nil:
		req.MusicPath = music.Track.FilePath
		req.MusicVolumeDB = music.VolumeDB
	case err != nil && !apperr.Is(err, apperr.KindNotFound):
		return media.Result{}, err
	}
	log.Info("assembling final video", "fragments", len(req.Fragments), "music", req.MusicPath != "")
	return f.assembler.Assemble(ctx, req)
}

func (f *Finalizer) fail(ctx context.Context, id string, err error, log *logger.Logger) {
	persistCtx := context.WithoutCancel(ctx)
	step := 0
	if par, gerr := f.store.GetParable(persistCtx, id); gerr == nil {
		step = par.CurrentStep
	}
	failure := &models.Failure{
		Step:    step,
		Stage:   models.StageGeneratingFinal,
		Message: err.Error(),
		Kind:    string(apperr.KindOf(err)),
	}
	if perr := f.store.CompareAndSetStatus(persistCtx, id, models.StatusGeneratingFinal, models.StatusError, map[string]interface{}{
		"stage":         models.StageFailed,
		"error_message": failure.String(),
		"failure":       failure,
	}); perr != nil {
		log.Error("failed to persist final video failure", "error", perr)
	}
}

// Abort records err as the failure of a render that could not be started in
// the background.
func (f *Finalizer) Abort(ctx context.Context, id string, err error) {
	f.fail(ctx, id, err, f.log.With("parable_id", id))
}
