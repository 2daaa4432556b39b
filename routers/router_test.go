package routers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"ParableToVideo-server/logger"
	"ParableToVideo-server/media"
	"ParableToVideo-server/models"
	"ParableToVideo-server/models/testutil"
	"ParableToVideo-server/routers/api"
	"ParableToVideo-server/service"
)

var replies = []struct{ marker, reply string }{
	{"Rewrite the parable", "[dramatically] A king lost his crown.\n\nHe searched [pause] and found it."},
	{"Translate this narration script", "[softly] Un rey perdió su corona."},
	{"single hook line", "Would you give up a crown?"},
	{"YouTube Shorts content", `{"youtube_title": "The lost crown", "youtube_description": "A parable.", "youtube_hashtags": "#parable", "hook_image_prompt": "hook", "scenes": [{"image_prompt": "gate", "video_prompt": "push"}, {"image_prompt": "forest", "video_prompt": "pan"}]}`},
	{"alternative YouTube Shorts titles", `[{"text": "Why did the king run?", "type": "question"}, {"text": "The crown nobody wanted", "type": "intrigue"}]`},
	{"Which of these titles", `{"index": 0}`},
	{"Translate this parable into", `{"title": "El rey perdido", "text": "Un rey perdió su corona."}`},
	{"Analyze the mood", "calm"},
}

type cannedText struct{}

func (cannedText) Generate(_ context.Context, prompt string) (string, error) {
	for _, r := range replies {
		if strings.Contains(prompt, r.marker) {
			return r.reply, nil
		}
	}
	return "", errors.New("unexpected prompt")
}

type pngImages struct{}

func (pngImages) GenerateImage(_ context.Context, prompt string, _ service.StyleContext) (*service.Image, error) {
	return &service.Image{Data: []byte("\x89PNG" + prompt), MIMEType: "image/png"}, nil
}

type fixedProber float64

func (p fixedProber) Duration(context.Context, string) (float64, error) {
	return float64(p), nil
}

type copyAssembler struct{}

func (copyAssembler) Assemble(_ context.Context, req media.Request) (media.Result, error) {
	if err := os.MkdirAll(filepath.Dir(req.OutputPath), 0o755); err != nil {
		return media.Result{}, err
	}
	if err := os.WriteFile(req.OutputPath, []byte("mp4"), 0o644); err != nil {
		return media.Result{}, err
	}
	return media.Result{Path: req.OutputPath, Duration: req.NarrationDuration}, nil
}

// inlineDispatcher runs jobs before Dispatch returns so responses can be
// checked against the finished state.
type inlineDispatcher struct {
	handle service.JobHandler
	err    error
}

func (d *inlineDispatcher) Dispatch(ctx context.Context, job service.Job) error {
	if d.err != nil {
		return d.err
	}
	_ = d.handle(ctx, job)
	return nil
}

type env struct {
	store      *models.Store
	dispatcher *inlineDispatcher
	handler    *api.Handler
	router     *gin.Engine
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	root := t.TempDir()
	log := logger.Nop()
	store := testutil.Store(t)
	files := service.NewFileStore(filepath.Join(root, "uploads"), filepath.Join(root, "outputs"), filepath.Join(root, "static"))

	synth := service.NewSynthesizer(cannedText{}, "dramatic", log)
	pipeline := service.NewPipeline(store, synth, service.NewSceneGenerator(pngImages{}, files, log), service.PipelineOptions{MaxHealAttempts: 1, TitleVariants: 2}, log)
	finalizer := service.NewFinalizer(store, copyAssembler{}, files, nil, log)
	d := &inlineDispatcher{}
	mediaSvc := service.NewMediaService(store, files, fixedProber(30), nil, d, log)
	musicSvc := service.NewMusicService(store, synth, files, nil, "dramatic", -18, log)
	d.handle = service.NewProcessor(pipeline, finalizer, mediaSvc, musicSvc, log).Handle

	h := &api.Handler{
		Store:        store,
		Pipeline:     pipeline,
		Finalizer:    finalizer,
		Media:        mediaSvc,
		Music:        musicSvc,
		Translations: service.NewTranslationService(store, synth, log),
		Dispatcher:   d,
		Files:        files,
		Log:          log,
		PollInterval: 10 * time.Millisecond,
	}
	r := InitRouter(h, Options{AllowOrigins: []string{"http://localhost:5173"}})
	return &env{store: store, dispatcher: d, handler: h, router: r}
}

func (e *env) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *env) upload(t *testing.T, path string, fields map[string]string, filename, content string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		_ = w.WriteField(k, v)
	}
	fw, err := w.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	_, _ = fw.Write([]byte(content))
	_ = w.Close()
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status: got=%d want=%d body=%s", rec.Code, want, rec.Body.String())
	}
}

func (e *env) create(t *testing.T) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/parables", map[string]string{
		"title_original": "The lost king",
		"text_original":  "A king lost his crown in the forest.",
	})
	expectStatus(t, rec, http.StatusCreated)
	var p models.Parable
	decode(t, rec, &p)
	return p.ID
}

func TestParableLifecycle(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/parables", map[string]string{"title_original": "empty"})
	expectStatus(t, rec, http.StatusBadRequest)
	var apiErr api.ErrorEnvelope
	decode(t, rec, &apiErr)
	if apiErr.Error.Code != "validation_failed" {
		t.Fatalf("error code: %q", apiErr.Error.Code)
	}

	id := e.create(t)
	expectStatus(t, e.do(t, http.MethodPost, "/parables/"+id+"/generate-final", nil), http.StatusBadRequest)
	expectStatus(t, e.do(t, http.MethodPost, "/parables/"+id+"/regenerate-images", nil), http.StatusBadRequest)
	expectStatus(t, e.do(t, http.MethodPost, "/parables/"+id+"/process", nil), http.StatusAccepted)

	var detail models.ParableDetail
	rec = e.do(t, http.MethodGet, "/parables/"+id, nil)
	expectStatus(t, rec, http.StatusOK)
	decode(t, rec, &detail)
	if detail.Status != models.StatusAwaitingAudio || detail.Stage != models.StageAwaitingAudioUpload {
		t.Fatalf("after process: %s/%s err=%q", detail.Status, detail.Stage, detail.ErrorMessage)
	}
	if len(detail.Prompts) != 3 || len(detail.Assets) != 3 {
		t.Fatalf("scenes: prompts=%d assets=%d", len(detail.Prompts), len(detail.Assets))
	}
	if detail.YoutubeTitle != "Why did the king run?" || len(detail.TitleVariants) != 2 {
		t.Fatalf("titles: %q %d", detail.YoutubeTitle, len(detail.TitleVariants))
	}

	rec = e.do(t, http.MethodPut, "/parables/"+id+"/titles/"+detail.TitleVariants[1].ID+"/select", nil)
	expectStatus(t, rec, http.StatusOK)
	got, _ := e.store.GetParable(context.Background(), id)
	if got.YoutubeTitle != detail.TitleVariants[1].VariantText {
		t.Fatalf("selected title not applied: %q", got.YoutubeTitle)
	}

	expectStatus(t, e.upload(t, "/parables/"+id+"/videos/upload", map[string]string{"scene_order": "x"}, "a.mp4", "v"), http.StatusBadRequest)
	rec = e.upload(t, "/parables/"+id+"/videos/upload", map[string]string{"scene_order": "0"}, "a.mp4", "video")
	expectStatus(t, rec, http.StatusOK)
	var frag models.VideoFragment
	decode(t, rec, &frag)
	expectStatus(t, e.do(t, http.MethodPut, "/parables/"+id+"/videos/"+frag.ID+"/duration", map[string]float64{"target_duration": 2.5}), http.StatusOK)
	expectStatus(t, e.do(t, http.MethodPut, "/parables/"+id+"/videos/"+frag.ID+"/duration", map[string]float64{"target_duration": 0}), http.StatusBadRequest)

	expectStatus(t, e.do(t, http.MethodPost, "/parables/"+id+"/generate-final", nil), http.StatusBadRequest)
	expectStatus(t, e.upload(t, "/parables/"+id+"/audio/upload", nil, "voice.ogg", "a"), http.StatusBadRequest)
	expectStatus(t, e.upload(t, "/parables/"+id+"/audio/upload", nil, "voice.mp3", "audio"), http.StatusOK)

	expectStatus(t, e.do(t, http.MethodPost, "/parables/"+id+"/generate-final", nil), http.StatusAccepted)
	got, _ = e.store.GetParable(context.Background(), id)
	if got.Status != models.StatusCompleted || got.FinalVideoPath == "" {
		t.Fatalf("after final: status=%s path=%q err=%q", got.Status, got.FinalVideoPath, got.ErrorMessage)
	}

	rec = e.do(t, http.MethodGet, "/parables", nil)
	expectStatus(t, rec, http.StatusOK)
	var list struct {
		Parables []models.Parable `json:"parables"`
	}
	decode(t, rec, &list)
	if len(list.Parables) != 1 {
		t.Fatalf("list: %d", len(list.Parables))
	}

	expectStatus(t, e.do(t, http.MethodDelete, "/parables/"+id, nil), http.StatusOK)
	expectStatus(t, e.do(t, http.MethodGet, "/parables/"+id, nil), http.StatusNotFound)
}

func TestProcessConflictsWhileRunning(t *testing.T) {
	e := newEnv(t)
	id := e.create(t)
	if err := e.store.UpdateParable(context.Background(), id, map[string]interface{}{"status": models.StatusProcessing}); err != nil {
		t.Fatalf("update: %v", err)
	}
	rec := e.do(t, http.MethodPost, "/parables/"+id+"/process", nil)
	expectStatus(t, rec, http.StatusConflict)
	expectStatus(t, e.do(t, http.MethodPost, "/parables/missing/process", nil), http.StatusNotFound)
}

func TestDispatchFailureMovesParableToError(t *testing.T) {
	e := newEnv(t)
	id := e.create(t)
	e.dispatcher.err = errors.New("redis unavailable")

	expectStatus(t, e.do(t, http.MethodPost, "/parables/"+id+"/process", nil), http.StatusBadGateway)
	got, _ := e.store.GetParable(context.Background(), id)
	if got.Status != models.StatusError || got.Failure == nil {
		t.Fatalf("after failed dispatch: status=%s failure=%+v", got.Status, got.Failure)
	}
}

func TestTranslationSharesUnitRoutes(t *testing.T) {
	e := newEnv(t)
	id := e.create(t)

	expectStatus(t, e.do(t, http.MethodPost, "/parables/"+id+"/translation", map[string]string{"language": "es"}), http.StatusBadRequest)
	expectStatus(t, e.do(t, http.MethodGet, "/parables/"+id+"/translation", nil), http.StatusNotFound)
	expectStatus(t, e.do(t, http.MethodPost, "/parables/"+id+"/process", nil), http.StatusAccepted)

	rec := e.do(t, http.MethodPost, "/parables/"+id+"/translation", map[string]string{"language": "es"})
	expectStatus(t, rec, http.StatusCreated)
	var tr models.Parable
	decode(t, rec, &tr)
	if tr.Language != "es" || tr.TitleOriginal != "El rey perdido" || tr.Status != models.StatusDraft {
		t.Fatalf("translation: %+v", tr)
	}
	expectStatus(t, e.do(t, http.MethodPost, "/parables/"+id+"/translation", map[string]string{"language": "es"}), http.StatusConflict)

	expectStatus(t, e.do(t, http.MethodPost, "/parables/"+id+"/translation/process", nil), http.StatusAccepted)
	var detail models.ParableDetail
	rec = e.do(t, http.MethodGet, "/parables/"+id+"/translation", nil)
	expectStatus(t, rec, http.StatusOK)
	decode(t, rec, &detail)
	if detail.ID != tr.ID || detail.Status != models.StatusAwaitingAudio {
		t.Fatalf("translation detail: id=%s status=%s err=%q", detail.ID, detail.Status, detail.ErrorMessage)
	}
	if !strings.Contains(detail.TextForTTS, "Un rey") {
		t.Fatalf("translation script: %q", detail.TextForTTS)
	}

	rec = e.do(t, http.MethodGet, "/parables", nil)
	var list struct {
		Parables []models.Parable `json:"parables"`
	}
	decode(t, rec, &list)
	if len(list.Parables) != 1 {
		t.Fatalf("translations must not be listed: %d", len(list.Parables))
	}

	expectStatus(t, e.do(t, http.MethodDelete, "/parables/"+id, nil), http.StatusOK)
	if _, err := e.store.GetParable(context.Background(), tr.ID); err == nil {
		t.Fatalf("translation survived deletion of its original")
	}
}

func TestMusicEndpoints(t *testing.T) {
	e := newEnv(t)
	id := e.create(t)

	rec := e.do(t, http.MethodGet, "/music-tracks", nil)
	expectStatus(t, rec, http.StatusOK)
	expectStatus(t, e.do(t, http.MethodGet, "/parables/"+id+"/music", nil), http.StatusNotFound)
	expectStatus(t, e.do(t, http.MethodPut, "/parables/"+id+"/music", map[string]string{}), http.StatusBadRequest)
	expectStatus(t, e.do(t, http.MethodPut, "/parables/"+id+"/music", map[string]string{"music_track_id": "nope"}), http.StatusNotFound)

	track, err := e.store.FindOrCreateTrack(context.Background(), &models.MusicTrack{Name: "Calm", FilePath: "static/music/calm.mp3", Mood: "calm", IsActive: true})
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	rec = e.do(t, http.MethodPut, "/parables/"+id+"/music", map[string]interface{}{"music_track_id": track.ID, "volume_db": -9})
	expectStatus(t, rec, http.StatusOK)
	var m models.MusicAssignment
	decode(t, rec, &m)
	if m.VolumeDB != -9 || m.Track == nil || m.Track.ID != track.ID {
		t.Fatalf("assignment: %+v", m)
	}
}

func TestProgressSocketPushesChanges(t *testing.T) {
	e := newEnv(t)
	id := e.create(t)
	ctx := context.Background()
	if err := e.store.UpdateParable(ctx, id, map[string]interface{}{"status": models.StatusProcessing, "stage": models.StageRewriting}); err != nil {
		t.Fatalf("update: %v", err)
	}

	srv := httptest.NewServer(e.router)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/parables/" + id + "/wss"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first api.Progress
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("first snapshot: %v", err)
	}
	if first.Status != models.StatusProcessing || first.Stage != models.StageRewriting {
		t.Fatalf("first snapshot: %+v", first)
	}

	if err := e.store.UpdateParable(ctx, id, map[string]interface{}{"status": models.StatusAwaitingAudio, "stage": models.StageAwaitingAudioUpload}); err != nil {
		t.Fatalf("update: %v", err)
	}
	var last api.Progress
	if err := conn.ReadJSON(&last); err != nil {
		t.Fatalf("change: %v", err)
	}
	if last.Status != models.StatusAwaitingAudio {
		t.Fatalf("change: %+v", last)
	}
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("socket must close once idle: %v", err)
	}
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	e := newEnv(t)
	req := httptest.NewRequest(http.MethodOptions, "/parables", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Fatalf("allow-origin: got=%q", got)
	}
}
