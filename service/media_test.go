package service

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"ParableToVideo-server/apperr"
	"ParableToVideo-server/logger"
	"ParableToVideo-server/models"
	"ParableToVideo-server/models/testutil"
)

type fakeVoice struct {
	calls int
	err   error
}

func (v *fakeVoice) Synthesize(context.Context, string) ([]byte, error) {
	v.calls++
	if v.err != nil {
		return nil, v.err
	}
	return []byte("ID3-audio"), nil
}

func newMediaFixture(t *testing.T, prober fakeProber, voice VoiceSynthesizer) (*MediaService, *models.Store, *recordingDispatcher) {
	t.Helper()
	root := t.TempDir()
	store := testutil.Store(t)
	d := &recordingDispatcher{}
	m := NewMediaService(store, NewFileStore(root, root, root), prober, voice, d, logger.Nop())
	return m, store, d
}

func TestUploadAudioReplacesPreviousNarration(t *testing.T) {
	m, store, d := newMediaFixture(t, fakeProber{duration: 42.5}, nil)
	ctx := context.Background()
	par := testutil.SeedParable(t, store, "text")

	first, err := m.UploadAudio(ctx, par.ID, "take1.WAV", strings.NewReader("wav"))
	if err != nil {
		t.Fatalf("first upload: %v", err)
	}
	second, err := m.UploadAudio(ctx, par.ID, "take2.mp3", strings.NewReader("mp3"))
	if err != nil {
		t.Fatalf("second upload: %v", err)
	}
	if second.Duration != 42.5 || second.Source != models.AudioSourceUpload {
		t.Fatalf("audio row: %+v", second)
	}
	if _, err := os.Stat(first.AudioPath); !os.IsNotExist(err) {
		t.Fatalf("previous narration file not removed: %v", err)
	}
	live, err := store.GetAudio(ctx, par.ID)
	if err != nil || live.ID != second.ID {
		t.Fatalf("live audio: %+v err=%v", live, err)
	}
	kinds := d.kinds()
	if len(kinds) != 2 || kinds[0] != JobAssignMusic {
		t.Fatalf("music jobs: %v", kinds)
	}
}

func TestUploadAudioValidation(t *testing.T) {
	m, store, _ := newMediaFixture(t, fakeProber{err: errors.New("invalid data")}, nil)
	ctx := context.Background()
	par := testutil.SeedParable(t, store, "text")

	if _, err := m.UploadAudio(ctx, par.ID, "voice.ogg", strings.NewReader("x")); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("bad extension: got=%v", err)
	}
	if _, err := m.UploadAudio(ctx, "missing", "voice.mp3", strings.NewReader("x")); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("missing parable: got=%v", err)
	}
	if _, err := m.UploadAudio(ctx, par.ID, "voice.mp3", strings.NewReader("x")); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("unreadable audio: got=%v", err)
	}
	if _, err := store.GetAudio(ctx, par.ID); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("rejected upload stored a row: %v", err)
	}
}

func TestSynthesizeAudioRequiresScript(t *testing.T) {
	voice := &fakeVoice{}
	m, store, _ := newMediaFixture(t, fakeProber{duration: 30}, voice)
	ctx := context.Background()
	par := testutil.SeedParable(t, store, "text")

	if err := m.CheckSynthesis(ctx, par.ID); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("no script: got=%v", err)
	}
	if err := store.UpdateParable(ctx, par.ID, map[string]interface{}{"text_for_tts": "[softly] hello"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	a, err := m.SynthesizeAudio(ctx, par.ID)
	if err != nil {
		t.Fatalf("SynthesizeAudio: %v", err)
	}
	if a.Source != models.AudioSourceSynthesized || !strings.HasSuffix(a.AudioPath, "narration.mp3") || voice.calls != 1 {
		t.Fatalf("synthesized audio: %+v calls=%d", a, voice.calls)
	}

	unconfigured, store2, _ := newMediaFixture(t, fakeProber{duration: 1}, nil)
	other := testutil.SeedParable(t, store2, "text")
	if err := unconfigured.CheckSynthesis(ctx, other.ID); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("no voice backend: got=%v", err)
	}
}

func TestUploadFragmentReplacesSameScene(t *testing.T) {
	m, store, _ := newMediaFixture(t, fakeProber{duration: 5}, nil)
	ctx := context.Background()
	par := testutil.SeedParable(t, store, "text")
	testutil.SeedPrompts(t, store, par.ID, 0, 1)
	if err := store.ReplaceAssets(ctx, par.ID, []models.SceneAsset{{SceneOrder: 0, ImagePath: "scene_0.png"}}); err != nil {
		t.Fatalf("seed asset: %v", err)
	}

	if _, err := m.UploadFragment(ctx, par.ID, 0, strings.NewReader("v1")); err != nil {
		t.Fatalf("first upload: %v", err)
	}
	frag, err := m.UploadFragment(ctx, par.ID, 0, strings.NewReader("v2"))
	if err != nil {
		t.Fatalf("second upload: %v", err)
	}
	if frag.AssetID == nil {
		t.Fatalf("fragment not linked to scene asset")
	}
	if _, err := m.UploadFragment(ctx, par.ID, 1, strings.NewReader("v3")); err != nil {
		t.Fatalf("unlinked scene upload: %v", err)
	}
	frags, _ := store.ListFragments(ctx, par.ID)
	if len(frags) != 2 {
		t.Fatalf("fragments: got=%d want=2", len(frags))
	}
	if b, _ := os.ReadFile(frags[0].VideoPath); string(b) != "v2" {
		t.Fatalf("scene 0 content: %q", b)
	}

	if _, err := m.SetTargetDuration(ctx, par.ID, frag.ID, testutil.Float(-1)); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("negative target: got=%v", err)
	}
	updated, err := m.SetTargetDuration(ctx, par.ID, frag.ID, testutil.Float(2.5))
	if err != nil || updated.TargetDuration == nil || *updated.TargetDuration != 2.5 {
		t.Fatalf("set target: %+v err=%v", updated, err)
	}
	if _, err := m.SetTargetDuration(ctx, par.ID, "nope", nil); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("unknown fragment: got=%v", err)
	}
}
