package service

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ParableToVideo-server/apperr"
	"ParableToVideo-server/logger"
	"ParableToVideo-server/models"
)

// MusicService picks background music by mood and manages assignments.
type MusicService struct {
	store       *models.Store
	synth       *Synthesizer
	files       *FileStore
	library     map[string][]string
	defaultMood string
	defaultDB   float64
	http        *http.Client
	log         *logger.Logger
}

func NewMusicService(store *models.Store, synth *Synthesizer, files *FileStore, library map[string][]string, defaultMood string, defaultDB float64, log *logger.Logger) *MusicService {
	return &MusicService{
		store:       store,
		synth:       synth,
		files:       files,
		library:     library,
		defaultMood: defaultMood,
		defaultDB:   defaultDB,
		http:        &http.Client{Timeout: 2 * time.Minute},
		log:         log.With("service", "MusicService"),
	}
}

// AutoAssign detects the parable's mood and links a matching library
// track. An existing assignment keeps its volume.
func (m *MusicService) AutoAssign(ctx context.Context, parableID string) (*models.MusicAssignment, error) {
	par, err := m.store.GetParable(ctx, parableID)
	if err != nil {
		return nil, err
	}
	text := par.TextForTTS
	if text == "" {
		text = par.TextOriginal
	}
	mood := m.synth.DetectMood(ctx, text)
	path, mood, err := m.ensureTrack(ctx, mood)
	if err != nil {
		return nil, err
	}
	track, err := m.store.FindOrCreateTrack(ctx, &models.MusicTrack{
		Name:     fmt.Sprintf("Auto-selected %s music", strings.ToUpper(mood[:1])+mood[1:]),
		FilePath: path,
		Mood:     mood,
		IsActive: true,
	})
	if err != nil {
		return nil, err
	}
	a, err := m.store.UpsertMusic(ctx, parableID, track.ID, nil, m.defaultDB)
	if err != nil {
		return nil, err
	}
	a.Track = track
	m.log.Info("music assigned", "parable_id", parableID, "mood", mood, "track", track.Name)
	return a, nil
}

// ensureTrack returns the local file for the mood, downloading it once.
// Moods without a configured track fall back to the default mood.
func (m *MusicService) ensureTrack(ctx context.Context, mood string) (string, string, error) {
	urls := m.library[mood]
	if len(urls) == 0 {
		mood = m.defaultMood
		urls = m.library[mood]
	}
	if len(urls) == 0 || mood == "" {
		return "", mood, apperr.Validation("no music configured for mood %q", mood)
	}
	src := urls[0]
	sum := md5.Sum([]byte(src))
	path := filepath.Join(m.files.MusicDir(), fmt.Sprintf("%s_%s.mp3", mood, hex.EncodeToString(sum[:])[:8]))
	if st, err := os.Stat(path); err == nil && st.Size() > 0 {
		return path, mood, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return "", mood, fmt.Errorf("create music request: %w", err)
	}
	resp, err := m.http.Do(req)
	if err != nil {
		return "", mood, apperr.External("download music: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", mood, apperr.External("download music: status %d", resp.StatusCode)
	}
	if _, err := WriteFileAtomic(path, resp.Body, nil); err != nil {
		return "", mood, err
	}
	m.log.Info("music downloaded", "mood", mood, "path", path)
	return path, mood, nil
}

// Assign sets the track and/or volume of a parable's assignment by hand.
func (m *MusicService) Assign(ctx context.Context, parableID, trackID string, volumeDB *float64) (*models.MusicAssignment, error) {
	if _, err := m.store.GetParable(ctx, parableID); err != nil {
		return nil, err
	}
	if trackID != "" {
		if _, err := m.store.GetTrack(ctx, trackID); err != nil {
			return nil, err
		}
	}
	if _, err := m.store.UpsertMusic(ctx, parableID, trackID, volumeDB, m.defaultDB); err != nil {
		return nil, err
	}
	return m.store.GetMusic(ctx, parableID)
}
