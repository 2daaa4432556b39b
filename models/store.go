package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ParableToVideo-server/apperr"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Store is the persistence boundary for the parable aggregate.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) DB() *gorm.DB {
	return s.db
}

func notFound(err error, what, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound("%s %s not found", what, id)
	}
	return fmt.Errorf("load %s %s: %w", what, id, err)
}

// ---- parables ----

func (s *Store) CreateParable(ctx context.Context, p *Parable) error {
	now := time.Now()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = StatusDraft
	}
	if p.Stage == "" {
		p.Stage = StageNotStarted
	}
	p.CreatedAt = now
	p.UpdatedAt = now
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("create parable: %w", err)
	}
	return nil
}

func (s *Store) GetParable(ctx context.Context, id string) (*Parable, error) {
	var p Parable
	if err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "parable", id)
	}
	return &p, nil
}

// ListParables returns source parables newest first; translations are
// reached through their original.
func (s *Store) ListParables(ctx context.Context) ([]Parable, error) {
	var out []Parable
	err := s.db.WithContext(ctx).
		Where("original_id IS NULL").
		Order("created_at DESC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list parables: %w", err)
	}
	return out, nil
}

func (s *Store) GetTranslation(ctx context.Context, originalID string) (*Parable, error) {
	var p Parable
	if err := s.db.WithContext(ctx).First(&p, "original_id = ?", originalID).Error; err != nil {
		return nil, notFound(err, "translation of parable", originalID)
	}
	return &p, nil
}

func (s *Store) GetDetail(ctx context.Context, id string) (*ParableDetail, error) {
	p, err := s.GetParable(ctx, id)
	if err != nil {
		return nil, err
	}
	d := &ParableDetail{Parable: *p}
	if d.Prompts, err = s.ListPrompts(ctx, id); err != nil {
		return nil, err
	}
	if d.Assets, err = s.ListAssets(ctx, id); err != nil {
		return nil, err
	}
	if d.Audio, err = s.GetAudio(ctx, id); err != nil && !apperr.Is(err, apperr.KindNotFound) {
		return nil, err
	}
	if d.Fragments, err = s.ListFragments(ctx, id); err != nil {
		return nil, err
	}
	if d.TitleVariants, err = s.ListTitleVariants(ctx, id); err != nil {
		return nil, err
	}
	if d.Music, err = s.GetMusic(ctx, id); err != nil && !apperr.Is(err, apperr.KindNotFound) {
		return nil, err
	}
	return d, nil
}

// UpdateParable writes the given columns without touching status.
func (s *Store) UpdateParable(ctx context.Context, id string, fields map[string]interface{}) error {
	fields["updated_at"] = time.Now()
	res := s.db.WithContext(ctx).Model(&Parable{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("update parable %s: %w", id, res.Error)
	}
	return nil
}

// CompareAndSetStatus moves a parable from one status to another in a single
// conditional UPDATE. Zero affected rows means another writer got there first.
func (s *Store) CompareAndSetStatus(ctx context.Context, id string, from, to Status, fields map[string]interface{}) error {
	if !CanTransition(from, to) {
		return apperr.Conflict("parable %s cannot move from %s to %s", id, from, to)
	}
	if fields == nil {
		fields = map[string]interface{}{}
	}
	fields["status"] = to
	fields["updated_at"] = time.Now()
	res := s.db.WithContext(ctx).Model(&Parable{}).
		Where("id = ? AND status = ?", id, from).
		Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("set status %s on %s: %w", to, id, res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := s.GetParable(ctx, id); err != nil {
			return err
		}
		return apperr.Conflict("parable %s is no longer %s", id, from)
	}
	return nil
}

// DeleteParable removes the parable row and every row it owns.
func (s *Store) DeleteParable(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		owned := []interface{}{
			&SceneAsset{}, &ScenePrompt{}, &NarrationAudio{},
			&VideoFragment{}, &TitleVariant{}, &MusicAssignment{},
		}
		for _, m := range owned {
			if err := tx.Where("parable_id = ?", id).Delete(m).Error; err != nil {
				return fmt.Errorf("delete children of %s: %w", id, err)
			}
		}
		res := tx.Delete(&Parable{}, "id = ?", id)
		if res.Error != nil {
			return fmt.Errorf("delete parable %s: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return apperr.NotFound("parable %s not found", id)
		}
		return nil
	})
}

// ---- scene prompts ----

func (s *Store) CountPrompts(ctx context.Context, parableID string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&ScenePrompt{}).Where("parable_id = ?", parableID).Count(&n).Error
	return n, err
}

func (s *Store) ListPrompts(ctx context.Context, parableID string) ([]ScenePrompt, error) {
	var out []ScenePrompt
	err := s.db.WithContext(ctx).Where("parable_id = ?", parableID).Order("scene_order ASC").Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list prompts of %s: %w", parableID, err)
	}
	return out, nil
}

// SavePrompts inserts a complete prompt set together with the parable's
// metadata columns, so step 2 is either fully visible or not at all.
func (s *Store) SavePrompts(ctx context.Context, parableID string, meta map[string]interface{}, prompts []ScenePrompt) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(meta) > 0 {
			meta["updated_at"] = time.Now()
			if err := tx.Model(&Parable{}).Where("id = ?", parableID).Updates(meta).Error; err != nil {
				return fmt.Errorf("update metadata: %w", err)
			}
		}
		now := time.Now()
		for i := range prompts {
			if prompts[i].ID == "" {
				prompts[i].ID = uuid.NewString()
			}
			prompts[i].ParableID = parableID
			prompts[i].CreatedAt = now
		}
		if len(prompts) == 0 {
			return nil
		}
		if err := tx.Create(&prompts).Error; err != nil {
			return fmt.Errorf("insert prompts: %w", err)
		}
		return nil
	})
}

// ---- scene assets ----

func (s *Store) CountAssets(ctx context.Context, parableID string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&SceneAsset{}).Where("parable_id = ?", parableID).Count(&n).Error
	return n, err
}

func (s *Store) ListAssets(ctx context.Context, parableID string) ([]SceneAsset, error) {
	var out []SceneAsset
	err := s.db.WithContext(ctx).Where("parable_id = ?", parableID).Order("scene_order ASC").Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list assets of %s: %w", parableID, err)
	}
	return out, nil
}

func (s *Store) GetAssetBySceneOrder(ctx context.Context, parableID string, sceneOrder int) (*SceneAsset, error) {
	var a SceneAsset
	err := s.db.WithContext(ctx).First(&a, "parable_id = ? AND scene_order = ?", parableID, sceneOrder).Error
	if err != nil {
		return nil, notFound(err, "scene asset", fmt.Sprintf("%s/%d", parableID, sceneOrder))
	}
	return &a, nil
}

// ReplaceAssets deletes every asset row of the parable and writes the given
// set in one transaction.
func (s *Store) ReplaceAssets(ctx context.Context, parableID string, assets []SceneAsset) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("parable_id = ?", parableID).Delete(&SceneAsset{}).Error; err != nil {
			return fmt.Errorf("delete assets: %w", err)
		}
		if len(assets) == 0 {
			return nil
		}
		now := time.Now()
		for i := range assets {
			if assets[i].ID == "" {
				assets[i].ID = uuid.NewString()
			}
			assets[i].ParableID = parableID
			assets[i].CreatedAt = now
		}
		if err := tx.Create(&assets).Error; err != nil {
			return fmt.Errorf("insert assets: %w", err)
		}
		return nil
	})
}

func (s *Store) DeleteAssets(ctx context.Context, parableID string, sceneOrders ...int) error {
	q := s.db.WithContext(ctx).Where("parable_id = ?", parableID)
	if len(sceneOrders) > 0 {
		q = q.Where("scene_order IN ?", sceneOrders)
	}
	return q.Delete(&SceneAsset{}).Error
}

// ---- narration audio ----

func (s *Store) GetAudio(ctx context.Context, parableID string) (*NarrationAudio, error) {
	var a NarrationAudio
	if err := s.db.WithContext(ctx).First(&a, "parable_id = ?", parableID).Error; err != nil {
		return nil, notFound(err, "audio of parable", parableID)
	}
	return &a, nil
}

// ReplaceAudio swaps the live narration row and returns the previous one, if any.
func (s *Store) ReplaceAudio(ctx context.Context, a *NarrationAudio) (*NarrationAudio, error) {
	var prev *NarrationAudio
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var old NarrationAudio
		err := tx.First(&old, "parable_id = ?", a.ParableID).Error
		switch {
		case err == nil:
			prev = &old
			if err := tx.Delete(&old).Error; err != nil {
				return fmt.Errorf("delete previous audio: %w", err)
			}
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return fmt.Errorf("load previous audio: %w", err)
		}
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		a.CreatedAt = time.Now()
		if err := tx.Create(a).Error; err != nil {
			return fmt.Errorf("insert audio: %w", err)
		}
		return nil
	})
	return prev, err
}

// ---- video fragments ----

func (s *Store) ListFragments(ctx context.Context, parableID string) ([]VideoFragment, error) {
	var out []VideoFragment
	err := s.db.WithContext(ctx).Where("parable_id = ?", parableID).Order("scene_order ASC").Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list fragments of %s: %w", parableID, err)
	}
	return out, nil
}

func (s *Store) CountFragments(ctx context.Context, parableID string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&VideoFragment{}).Where("parable_id = ?", parableID).Count(&n).Error
	return n, err
}

// UpsertFragment replaces any fragment already stored for the same scene.
func (s *Store) UpsertFragment(ctx context.Context, f *VideoFragment) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("parable_id = ? AND scene_order = ?", f.ParableID, f.SceneOrder).
			Delete(&VideoFragment{}).Error; err != nil {
			return fmt.Errorf("delete previous fragment: %w", err)
		}
		if f.ID == "" {
			f.ID = uuid.NewString()
		}
		f.UploadedAt = time.Now()
		if err := tx.Create(f).Error; err != nil {
			return fmt.Errorf("insert fragment: %w", err)
		}
		return nil
	})
}

func (s *Store) SetFragmentTarget(ctx context.Context, parableID, fragmentID string, target *float64) (*VideoFragment, error) {
	var f VideoFragment
	if err := s.db.WithContext(ctx).First(&f, "id = ? AND parable_id = ?", fragmentID, parableID).Error; err != nil {
		return nil, notFound(err, "video fragment", fragmentID)
	}
	if err := s.db.WithContext(ctx).Model(&f).Update("target_duration", target).Error; err != nil {
		return nil, fmt.Errorf("update fragment %s: %w", fragmentID, err)
	}
	f.TargetDuration = target
	return &f, nil
}

// ---- title variants ----

func (s *Store) ListTitleVariants(ctx context.Context, parableID string) ([]TitleVariant, error) {
	var out []TitleVariant
	err := s.db.WithContext(ctx).Where("parable_id = ?", parableID).Order("created_at ASC, id ASC").Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list title variants of %s: %w", parableID, err)
	}
	return out, nil
}

// ReplaceTitleVariants stores a fresh variant set with at most the variant
// at selected (if in range) marked selected.
func (s *Store) ReplaceTitleVariants(ctx context.Context, parableID string, variants []TitleVariant, selected int) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("parable_id = ?", parableID).Delete(&TitleVariant{}).Error; err != nil {
			return fmt.Errorf("delete title variants: %w", err)
		}
		if len(variants) == 0 {
			return nil
		}
		now := time.Now()
		for i := range variants {
			if variants[i].ID == "" {
				variants[i].ID = uuid.NewString()
			}
			variants[i].ParableID = parableID
			variants[i].IsSelected = i == selected
			variants[i].CreatedAt = now
		}
		if err := tx.Create(&variants).Error; err != nil {
			return fmt.Errorf("insert title variants: %w", err)
		}
		return nil
	})
}

// SelectTitleVariant marks one variant selected and clears every other
// variant of the same parable.
func (s *Store) SelectTitleVariant(ctx context.Context, parableID, variantID string) (*TitleVariant, error) {
	var v TitleVariant
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&v, "id = ? AND parable_id = ?", variantID, parableID).Error; err != nil {
			return notFound(err, "title variant", variantID)
		}
		if err := tx.Model(&TitleVariant{}).Where("parable_id = ?", parableID).Update("is_selected", false).Error; err != nil {
			return fmt.Errorf("clear selection: %w", err)
		}
		if err := tx.Model(&v).Update("is_selected", true).Error; err != nil {
			return fmt.Errorf("select variant: %w", err)
		}
		if err := tx.Model(&Parable{}).Where("id = ?", parableID).Updates(map[string]interface{}{
			"youtube_title": v.VariantText,
			"updated_at":    time.Now(),
		}).Error; err != nil {
			return fmt.Errorf("apply selected title: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	v.IsSelected = true
	return &v, nil
}

// ---- music ----

func (s *Store) ListTracks(ctx context.Context) ([]MusicTrack, error) {
	var out []MusicTrack
	err := s.db.WithContext(ctx).Where("is_active = ?", true).Order("mood ASC, name ASC").Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list tracks: %w", err)
	}
	return out, nil
}

func (s *Store) GetTrack(ctx context.Context, id string) (*MusicTrack, error) {
	var t MusicTrack
	if err := s.db.WithContext(ctx).First(&t, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "music track", id)
	}
	return &t, nil
}

// FindOrCreateTrack returns the track stored for t.FilePath, creating it on first use.
func (s *Store) FindOrCreateTrack(ctx context.Context, t *MusicTrack) (*MusicTrack, error) {
	var existing MusicTrack
	err := s.db.WithContext(ctx).First(&existing, "file_path = ?", t.FilePath).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("find track: %w", err)
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.CreatedAt = time.Now()
	if err := s.db.WithContext(ctx).Create(t).Error; err != nil {
		return nil, fmt.Errorf("create track: %w", err)
	}
	return t, nil
}

func (s *Store) GetMusic(ctx context.Context, parableID string) (*MusicAssignment, error) {
	var m MusicAssignment
	if err := s.db.WithContext(ctx).First(&m, "parable_id = ?", parableID).Error; err != nil {
		return nil, notFound(err, "music of parable", parableID)
	}
	track, err := s.GetTrack(ctx, m.MusicTrackID)
	if err != nil && !apperr.Is(err, apperr.KindNotFound) {
		return nil, err
	}
	m.Track = track
	return &m, nil
}

// UpsertMusic creates or updates the parable's assignment. A nil volume keeps
// the current value, or uses defaultDB for a new assignment.
func (s *Store) UpsertMusic(ctx context.Context, parableID, trackID string, volumeDB *float64, defaultDB float64) (*MusicAssignment, error) {
	var m MusicAssignment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.First(&m, "parable_id = ?", parableID).Error
		now := time.Now()
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if trackID == "" {
				return apperr.Validation("music_track_id is required")
			}
			m = MusicAssignment{
				ID:           uuid.NewString(),
				ParableID:    parableID,
				MusicTrackID: trackID,
				VolumeDB:     defaultDB,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			if volumeDB != nil {
				m.VolumeDB = *volumeDB
			}
			return tx.Create(&m).Error
		case err != nil:
			return fmt.Errorf("load music assignment: %w", err)
		}
		updates := map[string]interface{}{"updated_at": now}
		if trackID != "" {
			updates["music_track_id"] = trackID
			m.MusicTrackID = trackID
		}
		if volumeDB != nil {
			updates["volume_db"] = *volumeDB
			m.VolumeDB = *volumeDB
		}
		return tx.Model(&m).Updates(updates).Error
	})
	if err != nil {
		return nil, err
	}
	return &m, nil
}
