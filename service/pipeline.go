package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ParableToVideo-server/apperr"
	"ParableToVideo-server/logger"
	"ParableToVideo-server/models"
)

// PipelineOptions tunes the processing run.
type PipelineOptions struct {
	MaxHealAttempts int
	TitleVariants   int
}

// Pipeline drives a parable through rewrite, metadata, assets, audio and
// finalize, checkpointing after every step so a failed run can resume.
type Pipeline struct {
	store  *models.Store
	synth  *Synthesizer
	scenes *SceneGenerator
	opts   PipelineOptions
	log    *logger.Logger
}

func NewPipeline(store *models.Store, synth *Synthesizer, scenes *SceneGenerator, opts PipelineOptions, log *logger.Logger) *Pipeline {
	if opts.MaxHealAttempts < 0 {
		opts.MaxHealAttempts = 0
	}
	if opts.TitleVariants <= 0 {
		opts.TitleVariants = 5
	}
	return &Pipeline{store: store, synth: synth, scenes: scenes, opts: opts, log: log.With("service", "Pipeline")}
}

// assetShortfall signals that stored assets no longer cover every prompt.
type assetShortfall struct {
	have, want int64
}

func (e *assetShortfall) Error() string {
	return fmt.Sprintf("scene assets incomplete: %d/%d", e.have, e.want)
}

// stepError remembers the step a failure happened in.
type stepError struct {
	step int
	err  error
}

func (e *stepError) Error() string { return e.err.Error() }
func (e *stepError) Unwrap() error { return e.err }

// Start atomically claims the parable for processing. A parable in error
// resumes from its checkpoint; any other restartable status starts over.
func (p *Pipeline) Start(ctx context.Context, id string) (*models.Parable, error) {
	par, err := p.store.GetParable(ctx, id)
	if err != nil {
		return nil, err
	}
	if par.Status == models.StatusProcessing {
		return nil, apperr.Conflict("parable %s is already being processed", id)
	}
	if !models.CanTransition(par.Status, models.StatusProcessing) {
		return nil, apperr.Conflict("parable %s cannot be processed while %s", id, par.Status)
	}
	fields := map[string]interface{}{
		"error_message": "",
		"failure":       nil,
	}
	if par.Status != models.StatusError {
		fields["current_step"] = models.StepNotStarted
		fields["stage"] = models.StageNotStarted
	}
	if err := p.store.CompareAndSetStatus(ctx, id, par.Status, models.StatusProcessing, fields); err != nil {
		return nil, err
	}
	return p.store.GetParable(ctx, id)
}

// Run executes every step at or after the parable's checkpoint. Assets found
// missing behind the checkpoint are healed by re-running from the assets step;
// a shortfall right after generation fails the run. Any failure is persisted
// on the parable before being returned.
func (p *Pipeline) Run(ctx context.Context, id string) error {
	par, err := p.store.GetParable(ctx, id)
	if err != nil {
		return err
	}
	log := p.log.With("parable_id", id)
	if par.Status != models.StatusProcessing {
		return apperr.Conflict("parable %s is %s, not processing", id, par.Status)
	}
	log.Info("pipeline started", "resume_step", par.CurrentStep)

	start := par.CurrentStep
	if start < models.StepRewrite {
		start = models.StepRewrite
	}
	heals := 0
	for {
		err = p.runFrom(ctx, par, start, log)
		var short *assetShortfall
		if !errors.As(err, &short) {
			break
		}
		heals++
		if heals > p.opts.MaxHealAttempts {
			err = &stepError{step: models.StepAssets, err: apperr.Validation("%s after %d healing attempts", short.Error(), p.opts.MaxHealAttempts)}
			break
		}
		log.Warn("scene assets incomplete, healing", "have", short.have, "want", short.want, "attempt", heals)
		if err = p.checkpoint(ctx, par, models.StepAssets, models.StageHealingAssets); err != nil {
			break
		}
		start = models.StepAssets
	}
	if err != nil {
		p.fail(ctx, par, err, log)
		return err
	}
	log.Info("pipeline finished, awaiting audio")
	return nil
}

func (p *Pipeline) runFrom(ctx context.Context, par *models.Parable, start int, log *logger.Logger) error {
	for step := models.StepRewrite; step <= models.StepFinalize; step++ {
		if step < start {
			if step == models.StepAssets {
				if err := p.verifyAssets(ctx, par.ID); err != nil {
					return err
				}
			}
			continue
		}
		if err := ctx.Err(); err != nil {
			return &stepError{step: step, err: err}
		}
		if step != models.StepAssets || par.Stage != models.StageHealingAssets {
			if err := p.checkpoint(ctx, par, step, models.StageForStep(step)); err != nil {
				return &stepError{step: step, err: err}
			}
		}
		var err error
		switch step {
		case models.StepRewrite:
			err = p.rewrite(ctx, par, log)
		case models.StepMetadata:
			err = p.deriveMetadata(ctx, par, log)
		case models.StepAssets:
			err = p.generateAssets(ctx, par, log)
		case models.StepAudio:
			err = p.checkAudio(ctx, par, log)
		case models.StepFinalize:
			err = p.finalize(ctx, par, log)
		}
		if err != nil {
			var short *assetShortfall
			if errors.As(err, &short) {
				return err
			}
			return &stepError{step: step, err: err}
		}
	}
	return nil
}

func (p *Pipeline) checkpoint(ctx context.Context, par *models.Parable, step int, stage models.Stage) error {
	if err := p.store.UpdateParable(ctx, par.ID, map[string]interface{}{
		"current_step": step,
		"stage":        stage,
	}); err != nil {
		return err
	}
	par.CurrentStep = step
	par.Stage = stage
	return nil
}

// rewrite produces the narration script. Translations translate the source
// parable's script instead of rewriting their own text.
func (p *Pipeline) rewrite(ctx context.Context, par *models.Parable, log *logger.Logger) error {
	var script string
	if par.IsTranslation() {
		orig, err := p.store.GetParable(ctx, *par.OriginalID)
		if err != nil {
			return err
		}
		source := scriptBody(orig)
		if source == "" {
			source = par.TextOriginal
		}
		if script, err = p.synth.TranslateForVoice(ctx, source, par.Language); err != nil {
			return err
		}
	} else {
		var err error
		if script, err = p.synth.RewriteForVoice(ctx, par.TextOriginal); err != nil {
			return err
		}
	}
	hook, err := p.synth.GenerateHook(ctx, script)
	if err != nil {
		return err
	}
	full := script
	if hook != "" {
		full = hook + "\n\n" + script
	}
	if err := p.store.UpdateParable(ctx, par.ID, map[string]interface{}{
		"text_for_tts": full,
		"hook_text":    hook,
	}); err != nil {
		return err
	}
	par.TextForTTS = full
	par.HookText = hook
	log.Debug("narration script written", "chars", len(full), "has_hook", hook != "")
	return nil
}

// scriptBody is the narration script without its leading hook line.
func scriptBody(p *models.Parable) string {
	if p.HookText == "" {
		return p.TextForTTS
	}
	return strings.TrimPrefix(p.TextForTTS, p.HookText+"\n\n")
}

func (p *Pipeline) deriveMetadata(ctx context.Context, par *models.Parable, log *logger.Logger) error {
	n, err := p.store.CountPrompts(ctx, par.ID)
	if err != nil {
		return err
	}
	if n > 0 {
		log.Info("scene prompts already exist, skipping metadata", "prompts", n)
	} else {
		meta, err := p.synth.DeriveMetadata(ctx, par.TextOriginal, par.TextForTTS, par.HookText)
		if err != nil {
			return err
		}
		var prompts []models.ScenePrompt
		if par.HookText != "" {
			hookPrompt := meta.HookImagePrompt
			if hookPrompt == "" {
				hookPrompt = "Opening shot that visualizes: " + par.HookText
			}
			prompts = append(prompts, models.ScenePrompt{SceneOrder: models.HookSceneOrder, PromptText: hookPrompt})
		}
		for i, s := range meta.prompts() {
			prompts = append(prompts, models.ScenePrompt{SceneOrder: i, PromptText: s.ImagePrompt, VideoPromptText: s.VideoPrompt})
		}
		if err := p.store.SavePrompts(ctx, par.ID, map[string]interface{}{
			"youtube_title":       meta.YoutubeTitle,
			"youtube_description": meta.YoutubeDescription,
			"youtube_hashtags":    meta.YoutubeHashtags,
		}, prompts); err != nil {
			return err
		}
		par.YoutubeTitle = meta.YoutubeTitle
		log.Info("scene prompts stored", "prompts", len(prompts))
	}
	return p.generateTitles(ctx, par, log)
}

func (p *Pipeline) generateTitles(ctx context.Context, par *models.Parable, log *logger.Logger) error {
	existing, err := p.store.ListTitleVariants(ctx, par.ID)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	candidates, err := p.synth.TitleVariants(ctx, par.TextForTTS, p.opts.TitleVariants)
	if err != nil {
		return err
	}
	selected, err := p.synth.PickTitle(ctx, par.TextForTTS, candidates)
	if err != nil {
		return err
	}
	variants := make([]models.TitleVariant, len(candidates))
	for i, c := range candidates {
		variants[i] = models.TitleVariant{VariantText: c.Text, VariantType: c.Type}
	}
	if err := p.store.ReplaceTitleVariants(ctx, par.ID, variants, selected); err != nil {
		return err
	}
	log.Debug("title variants stored", "count", len(variants), "selected", selected)
	return p.store.UpdateParable(ctx, par.ID, map[string]interface{}{"youtube_title": candidates[selected].Text})
}

func (p *Pipeline) generateAssets(ctx context.Context, par *models.Parable, log *logger.Logger) error {
	prompts, err := p.store.ListPrompts(ctx, par.ID)
	if err != nil {
		return err
	}
	if len(prompts) == 0 {
		return apperr.Validation("parable %s has no scene prompts", par.ID)
	}
	have, err := p.store.CountAssets(ctx, par.ID)
	if err != nil {
		return err
	}
	if have == int64(len(prompts)) {
		log.Info("scene assets already complete, skipping generation", "assets", have)
		return nil
	}
	if err := p.saveScenes(ctx, par.ID, prompts, false, log); err != nil {
		return err
	}
	if err := p.verifyAssets(ctx, par.ID); err != nil {
		var short *assetShortfall
		if errors.As(err, &short) {
			// Generation itself fell short: fail and let the caller resume.
			return apperr.Validation("%s after generation", short.Error())
		}
		return err
	}
	return nil
}

// saveScenes generates images and replaces the asset rows with the scenes
// that succeeded.
func (p *Pipeline) saveScenes(ctx context.Context, parableID string, prompts []models.ScenePrompt, force bool, log *logger.Logger) error {
	outcomes := p.scenes.Generate(ctx, parableID, prompts, force)
	assets := make([]models.SceneAsset, 0, len(prompts))
	failed := 0
	for _, pr := range prompts {
		o := outcomes[pr.SceneOrder]
		if !o.OK() {
			failed++
			continue
		}
		assets = append(assets, models.SceneAsset{PromptID: pr.ID, SceneOrder: pr.SceneOrder, ImagePath: o.Path})
	}
	if err := p.store.ReplaceAssets(ctx, parableID, assets); err != nil {
		return err
	}
	log.Info("scene assets stored", "saved", len(assets), "failed", failed)
	return nil
}

func (p *Pipeline) verifyAssets(ctx context.Context, parableID string) error {
	want, err := p.store.CountPrompts(ctx, parableID)
	if err != nil {
		return err
	}
	have, err := p.store.CountAssets(ctx, parableID)
	if err != nil {
		return err
	}
	if want == 0 || have != want {
		return &assetShortfall{have: have, want: want}
	}
	return nil
}

func (p *Pipeline) checkAudio(ctx context.Context, par *models.Parable, log *logger.Logger) error {
	a, err := p.store.GetAudio(ctx, par.ID)
	if err != nil && !apperr.Is(err, apperr.KindNotFound) {
		return err
	}
	log.Info("narration check", "has_audio", a != nil)
	return nil
}

func (p *Pipeline) finalize(ctx context.Context, par *models.Parable, log *logger.Logger) error {
	fresh, err := p.store.GetParable(ctx, par.ID)
	if err != nil {
		return err
	}
	if fresh.TextForTTS == "" {
		return apperr.Validation("narration script is missing")
	}
	if err := p.verifyAssets(ctx, par.ID); err != nil {
		return err
	}
	now := time.Now()
	return p.store.CompareAndSetStatus(ctx, par.ID, models.StatusProcessing, models.StatusAwaitingAudio, map[string]interface{}{
		"stage":         models.StageAwaitingAudioUpload,
		"processed_at":  &now,
		"error_message": "",
		"failure":       nil,
	})
}

// fail records the failing step and moves the parable to error. It uses a
// context detached from ctx so cancellation does not lose the record.
func (p *Pipeline) fail(ctx context.Context, par *models.Parable, err error, log *logger.Logger) {
	step := par.CurrentStep
	var se *stepError
	if errors.As(err, &se) {
		step = se.step
	}
	f := &models.Failure{Step: step, Stage: models.StageForStep(step), Message: err.Error(), Kind: string(apperr.KindOf(err))}
	log.Error("pipeline failed", "step", step, "error", err)

	persistCtx := context.WithoutCancel(ctx)
	if perr := p.store.CompareAndSetStatus(persistCtx, par.ID, models.StatusProcessing, models.StatusError, map[string]interface{}{
		"current_step":  step,
		"stage":         models.StageFailed,
		"error_message": f.String(),
		"failure":       f,
	}); perr != nil {
		log.Error("failed to persist pipeline failure", "error", perr)
	}
}

// RegenerateAssets force-regenerates every scene image. It does not change
// the parable's status.
func (p *Pipeline) RegenerateAssets(ctx context.Context, id string) error {
	log := p.log.With("parable_id", id)
	prompts, err := p.store.ListPrompts(ctx, id)
	if err != nil {
		return err
	}
	if len(prompts) == 0 {
		return apperr.Validation("parable %s has no scene prompts", id)
	}
	if err := p.saveScenes(ctx, id, prompts, true, log); err != nil {
		return err
	}
	if err := p.verifyAssets(ctx, id); err != nil {
		log.Warn("regeneration left scenes without images", "error", err)
		return apperr.External("%s", err.Error())
	}
	return nil
}

// Abort records err as the failure of a run that could not be started in
// the background.
func (p *Pipeline) Abort(ctx context.Context, id string, err error) {
	par, gerr := p.store.GetParable(ctx, id)
	if gerr != nil {
		p.log.Error("abort: load parable failed", "parable_id", id, "error", gerr)
		return
	}
	p.fail(ctx, par, err, p.log.With("parable_id", id))
}
