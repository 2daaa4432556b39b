package models_test

import (
	"context"
	"testing"

	"ParableToVideo-server/apperr"
	"ParableToVideo-server/models"
	"ParableToVideo-server/models/testutil"
)

func TestCompareAndSetStatusRejectsStaleStatus(t *testing.T) {
	ctx := context.Background()
	s := testutil.Store(t)
	p := testutil.SeedParable(t, s, "A king lost his way")

	if err := s.CompareAndSetStatus(ctx, p.ID, models.StatusDraft, models.StatusProcessing, nil); err != nil {
		t.Fatalf("draft -> processing: %v", err)
	}
	err := s.CompareAndSetStatus(ctx, p.ID, models.StatusDraft, models.StatusProcessing, nil)
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("second start: got=%v want conflict", err)
	}
	err = s.CompareAndSetStatus(ctx, p.ID, models.StatusProcessing, models.StatusProcessing, nil)
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("processing -> processing: got=%v want conflict", err)
	}
	err = s.CompareAndSetStatus(ctx, "missing", models.StatusDraft, models.StatusProcessing, nil)
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("missing parable: got=%v want not found", err)
	}

	got, err := s.GetParable(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetParable: %v", err)
	}
	if got.Status != models.StatusProcessing {
		t.Fatalf("status: got=%s want=%s", got.Status, models.StatusProcessing)
	}
}

func TestFailureRoundTripsThroughStatusUpdate(t *testing.T) {
	ctx := context.Background()
	s := testutil.Store(t)
	p := testutil.SeedParable(t, s, "text")
	if err := s.CompareAndSetStatus(ctx, p.ID, models.StatusDraft, models.StatusProcessing, nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	f := &models.Failure{Step: 3, Stage: models.StageGeneratingAssets, Message: "only 2/3 images"}
	err := s.CompareAndSetStatus(ctx, p.ID, models.StatusProcessing, models.StatusError, map[string]interface{}{
		"failure":       f,
		"error_message": f.String(),
		"stage":         models.StageFailed,
	})
	if err != nil {
		t.Fatalf("fail: %v", err)
	}
	got, err := s.GetParable(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetParable: %v", err)
	}
	if got.Failure == nil || got.Failure.Step != 3 || got.Failure.Message != "only 2/3 images" {
		t.Fatalf("failure: got=%+v", got.Failure)
	}
	if got.ErrorMessage != "Step 3: only 2/3 images" {
		t.Fatalf("error message: got=%q", got.ErrorMessage)
	}
}

func TestReplaceAssetsLeavesOnlyNewSet(t *testing.T) {
	ctx := context.Background()
	s := testutil.Store(t)
	p := testutil.SeedParable(t, s, "text")
	prompts := testutil.SeedPrompts(t, s, p.ID, models.HookSceneOrder, 0, 1)

	first := []models.SceneAsset{{PromptID: prompts[0].ID, SceneOrder: models.HookSceneOrder, ImagePath: "a"}}
	if err := s.ReplaceAssets(ctx, p.ID, first); err != nil {
		t.Fatalf("first replace: %v", err)
	}
	full := make([]models.SceneAsset, 0, len(prompts))
	for _, pr := range prompts {
		full = append(full, models.SceneAsset{PromptID: pr.ID, SceneOrder: pr.SceneOrder, ImagePath: "x"})
	}
	if err := s.ReplaceAssets(ctx, p.ID, full); err != nil {
		t.Fatalf("second replace: %v", err)
	}
	assets, err := s.ListAssets(ctx, p.ID)
	if err != nil {
		t.Fatalf("ListAssets: %v", err)
	}
	if len(assets) != 3 {
		t.Fatalf("assets: got=%d want=3", len(assets))
	}
	if assets[0].SceneOrder != models.HookSceneOrder {
		t.Fatalf("hook must sort first: got=%d", assets[0].SceneOrder)
	}
}

func TestSelectTitleVariantKeepsOneSelected(t *testing.T) {
	ctx := context.Background()
	s := testutil.Store(t)
	p := testutil.SeedParable(t, s, "text")
	variants := []models.TitleVariant{
		{VariantText: "Why did the king get lost?", VariantType: models.TitleTypeQuestion},
		{VariantText: "The king nobody found", VariantType: models.TitleTypeIntrigue},
		{VariantText: "3 words that saved a king", VariantType: models.TitleTypeNumbers},
	}
	if err := s.ReplaceTitleVariants(ctx, p.ID, variants, 0); err != nil {
		t.Fatalf("ReplaceTitleVariants: %v", err)
	}
	if _, err := s.SelectTitleVariant(ctx, p.ID, variants[2].ID); err != nil {
		t.Fatalf("SelectTitleVariant: %v", err)
	}
	got, err := s.ListTitleVariants(ctx, p.ID)
	if err != nil {
		t.Fatalf("ListTitleVariants: %v", err)
	}
	selected := 0
	for _, v := range got {
		if v.IsSelected {
			selected++
			if v.ID != variants[2].ID {
				t.Fatalf("wrong variant selected: %s", v.VariantText)
			}
		}
	}
	if selected != 1 {
		t.Fatalf("selected: got=%d want=1", selected)
	}
	parable, _ := s.GetParable(ctx, p.ID)
	if parable.YoutubeTitle != variants[2].VariantText {
		t.Fatalf("youtube title: got=%q", parable.YoutubeTitle)
	}
	if _, err := s.SelectTitleVariant(ctx, p.ID, "nope"); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("unknown variant: got=%v want not found", err)
	}
}

func TestReplaceAudioReturnsPrevious(t *testing.T) {
	ctx := context.Background()
	s := testutil.Store(t)
	p := testutil.SeedParable(t, s, "text")

	prev, err := s.ReplaceAudio(ctx, &models.NarrationAudio{ParableID: p.ID, AudioPath: "one.mp3", Duration: 5})
	if err != nil || prev != nil {
		t.Fatalf("first upload: prev=%v err=%v", prev, err)
	}
	prev, err = s.ReplaceAudio(ctx, &models.NarrationAudio{ParableID: p.ID, AudioPath: "two.wav", Duration: 6})
	if err != nil {
		t.Fatalf("second upload: %v", err)
	}
	if prev == nil || prev.AudioPath != "one.mp3" {
		t.Fatalf("previous: got=%+v", prev)
	}
	cur, err := s.GetAudio(ctx, p.ID)
	if err != nil || cur.AudioPath != "two.wav" {
		t.Fatalf("current: got=%+v err=%v", cur, err)
	}
}

func TestUpsertFragmentReplacesSameScene(t *testing.T) {
	ctx := context.Background()
	s := testutil.Store(t)
	p := testutil.SeedParable(t, s, "text")

	if err := s.UpsertFragment(ctx, &models.VideoFragment{ParableID: p.ID, SceneOrder: 0, VideoPath: "a.mp4", Duration: 4}); err != nil {
		t.Fatalf("first: %v", err)
	}
	second := &models.VideoFragment{ParableID: p.ID, SceneOrder: 0, VideoPath: "a.mp4", Duration: 5}
	if err := s.UpsertFragment(ctx, second); err != nil {
		t.Fatalf("second: %v", err)
	}
	frags, err := s.ListFragments(ctx, p.ID)
	if err != nil {
		t.Fatalf("ListFragments: %v", err)
	}
	if len(frags) != 1 || frags[0].Duration != 5 {
		t.Fatalf("fragments: got=%+v", frags)
	}
	f, err := s.SetFragmentTarget(ctx, p.ID, second.ID, testutil.Float(3.5))
	if err != nil {
		t.Fatalf("SetFragmentTarget: %v", err)
	}
	if f.TargetDuration == nil || *f.TargetDuration != 3.5 {
		t.Fatalf("target: got=%v", f.TargetDuration)
	}
}

func TestDeleteParableCascades(t *testing.T) {
	ctx := context.Background()
	s := testutil.Store(t)
	p := testutil.SeedParable(t, s, "text")
	testutil.SeedPrompts(t, s, p.ID, 0, 1)
	if _, err := s.ReplaceAudio(ctx, &models.NarrationAudio{ParableID: p.ID, AudioPath: "n.mp3"}); err != nil {
		t.Fatalf("audio: %v", err)
	}

	if err := s.DeleteParable(ctx, p.ID); err != nil {
		t.Fatalf("DeleteParable: %v", err)
	}
	if _, err := s.GetParable(ctx, p.ID); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("parable still present: %v", err)
	}
	if n, _ := s.CountPrompts(ctx, p.ID); n != 0 {
		t.Fatalf("prompts left: %d", n)
	}
	if _, err := s.GetAudio(ctx, p.ID); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("audio left: %v", err)
	}
	if err := s.DeleteParable(ctx, p.ID); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("second delete: got=%v want not found", err)
	}
}

func TestUpsertMusicUsesDefaultVolume(t *testing.T) {
	ctx := context.Background()
	s := testutil.Store(t)
	p := testutil.SeedParable(t, s, "text")
	track, err := s.FindOrCreateTrack(ctx, &models.MusicTrack{Name: "calm", FilePath: "static/music/calm_1.mp3", Mood: "calm", IsActive: true})
	if err != nil {
		t.Fatalf("FindOrCreateTrack: %v", err)
	}
	again, err := s.FindOrCreateTrack(ctx, &models.MusicTrack{FilePath: "static/music/calm_1.mp3"})
	if err != nil || again.ID != track.ID {
		t.Fatalf("track not reused: %+v err=%v", again, err)
	}

	m, err := s.UpsertMusic(ctx, p.ID, track.ID, nil, -18)
	if err != nil {
		t.Fatalf("UpsertMusic: %v", err)
	}
	if m.VolumeDB != -18 {
		t.Fatalf("volume: got=%v want=-18", m.VolumeDB)
	}
	m, err = s.UpsertMusic(ctx, p.ID, "", testutil.Float(-12), -18)
	if err != nil {
		t.Fatalf("UpsertMusic volume: %v", err)
	}
	got, err := s.GetMusic(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetMusic: %v", err)
	}
	if got.VolumeDB != -12 || got.MusicTrackID != track.ID || got.Track == nil {
		t.Fatalf("music: got=%+v", got)
	}
}

func TestListParablesSkipsTranslations(t *testing.T) {
	ctx := context.Background()
	s := testutil.Store(t)
	p := testutil.SeedParable(t, s, "text")
	orig := p.ID
	tr := &models.Parable{OriginalID: &orig, Language: "en", TextOriginal: "translated"}
	if err := s.CreateParable(ctx, tr); err != nil {
		t.Fatalf("create translation: %v", err)
	}
	list, err := s.ListParables(ctx)
	if err != nil {
		t.Fatalf("ListParables: %v", err)
	}
	if len(list) != 1 || list[0].ID != p.ID {
		t.Fatalf("list: got=%+v", list)
	}
	got, err := s.GetTranslation(ctx, p.ID)
	if err != nil || got.ID != tr.ID {
		t.Fatalf("GetTranslation: %+v err=%v", got, err)
	}
	dup := &models.Parable{OriginalID: &orig, Language: "en"}
	if err := s.CreateParable(ctx, dup); err == nil {
		t.Fatalf("expected unique violation for second translation")
	}
}
