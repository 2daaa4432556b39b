package service

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"ParableToVideo-server/apperr"
	"ParableToVideo-server/logger"
	"ParableToVideo-server/media"
	"ParableToVideo-server/models"
)

var audioExts = map[string]bool{".mp3": true, ".wav": true, ".m4a": true}

// MediaService stores narration audio and video fragments for a parable.
type MediaService struct {
	store      *models.Store
	files      *FileStore
	prober     media.DurationProber
	voice      VoiceSynthesizer
	dispatcher Dispatcher
	log        *logger.Logger
}

// NewMediaService builds the service. voice may be nil when synthesis is
// not configured.
func NewMediaService(store *models.Store, files *FileStore, prober media.DurationProber, voice VoiceSynthesizer, dispatcher Dispatcher, log *logger.Logger) *MediaService {
	return &MediaService{
		store:      store,
		files:      files,
		prober:     prober,
		voice:      voice,
		dispatcher: dispatcher,
		log:        log.With("service", "MediaService"),
	}
}

// UploadAudio replaces the parable's narration with the uploaded file and
// schedules music selection. The previous narration file is removed.
func (m *MediaService) UploadAudio(ctx context.Context, parableID, filename string, r io.Reader) (*models.NarrationAudio, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !audioExts[ext] {
		return nil, apperr.Validation("unsupported audio format %q, expected mp3, wav or m4a", ext)
	}
	if _, err := m.store.GetParable(ctx, parableID); err != nil {
		return nil, err
	}
	return m.storeAudio(ctx, parableID, ext, r, models.AudioSourceUpload)
}

// CheckSynthesis validates that the parable can be voiced.
func (m *MediaService) CheckSynthesis(ctx context.Context, parableID string) error {
	if m.voice == nil {
		return apperr.Validation("voice synthesis is not configured")
	}
	par, err := m.store.GetParable(ctx, parableID)
	if err != nil {
		return err
	}
	if strings.TrimSpace(par.TextForTTS) == "" {
		return apperr.Validation("parable %s has no narration script yet", parableID)
	}
	return nil
}

// SynthesizeAudio voices the narration script and stores it as the live
// narration.
func (m *MediaService) SynthesizeAudio(ctx context.Context, parableID string) (*models.NarrationAudio, error) {
	if err := m.CheckSynthesis(ctx, parableID); err != nil {
		return nil, err
	}
	par, err := m.store.GetParable(ctx, parableID)
	if err != nil {
		return nil, err
	}
	audio, err := m.voice.Synthesize(ctx, par.TextForTTS)
	if err != nil {
		return nil, err
	}
	return m.storeAudio(ctx, parableID, ".mp3", bytes.NewReader(audio), models.AudioSourceSynthesized)
}

func (m *MediaService) storeAudio(ctx context.Context, parableID, ext string, r io.Reader, source string) (*models.NarrationAudio, error) {
	path := m.files.AudioPath(parableID, ext)
	var duration float64
	_, err := WriteFileAtomic(path, r, func(tmp string) error {
		d, err := m.prober.Duration(ctx, tmp)
		if err != nil {
			return apperr.Validation("could not read audio duration: %v", err)
		}
		duration = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	a := &models.NarrationAudio{ParableID: parableID, AudioPath: path, Duration: duration, Source: source}
	prev, err := m.store.ReplaceAudio(ctx, a)
	if err != nil {
		return nil, err
	}
	if prev != nil && prev.AudioPath != "" && prev.AudioPath != path {
		if err := os.Remove(prev.AudioPath); err != nil && !os.IsNotExist(err) {
			m.log.Warn("remove previous narration failed", "path", prev.AudioPath, "error", err)
		}
	}
	m.log.Info("narration stored", "parable_id", parableID, "duration", duration, "source", source)

	if m.dispatcher != nil {
		if err := m.dispatcher.Dispatch(ctx, Job{Kind: JobAssignMusic, ParableID: parableID}); err != nil {
			m.log.Warn("schedule music selection failed", "parable_id", parableID, "error", err)
		}
	}
	return a, nil
}

// UploadFragment stores the clip for a scene, replacing any earlier upload
// for the same scene.
func (m *MediaService) UploadFragment(ctx context.Context, parableID string, sceneOrder int, r io.Reader) (*models.VideoFragment, error) {
	if _, err := m.store.GetParable(ctx, parableID); err != nil {
		return nil, err
	}
	path := m.files.VideoPath(parableID, sceneOrder)
	var duration float64
	_, err := WriteFileAtomic(path, r, func(tmp string) error {
		d, err := m.prober.Duration(ctx, tmp)
		if err != nil {
			return apperr.Validation("could not read video duration: %v", err)
		}
		duration = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	frag := &models.VideoFragment{ParableID: parableID, SceneOrder: sceneOrder, VideoPath: path, Duration: duration}
	if asset, err := m.store.GetAssetBySceneOrder(ctx, parableID, sceneOrder); err == nil {
		frag.AssetID = &asset.ID
	} else if !apperr.Is(err, apperr.KindNotFound) {
		return nil, err
	}
	if err := m.store.UpsertFragment(ctx, frag); err != nil {
		return nil, err
	}
	m.log.Info("video fragment stored", "parable_id", parableID, "scene_order", sceneOrder, "duration", duration)
	return frag, nil
}

// SetTargetDuration sets or clears the playback length a fragment is
// retimed to during assembly.
func (m *MediaService) SetTargetDuration(ctx context.Context, parableID, fragmentID string, target *float64) (*models.VideoFragment, error) {
	if target != nil && *target <= 0 {
		return nil, apperr.Validation("target_duration must be positive")
	}
	return m.store.SetFragmentTarget(ctx, parableID, fragmentID, target)
}
