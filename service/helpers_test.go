package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"ParableToVideo-server/logger"
	"ParableToVideo-server/models"
	"ParableToVideo-server/models/testutil"
)

const metadataReply = "Here you go:\n```json\n" + `{
  "youtube_title": "The king who lost his crown",
  "youtube_description": "A short parable about pride.",
  "youtube_hashtags": "#parable #wisdom",
  "hook_image_prompt": "hook image",
  "scenes": [
    {"image_prompt": "king at gate", "video_prompt": "slow push in"},
    {"image_prompt": "dark forest", "video_prompt": "pan left"},
    {"image_prompt": "crown found", "video_prompt": "tilt up"}
  ]
}` + "\n```"

// fakeText answers each prompt family with a canned reply.
type fakeText struct {
	mu     sync.Mutex
	calls  map[string]int
	failOn map[string]error
}

func newFakeText() *fakeText {
	return &fakeText{calls: map[string]int{}, failOn: map[string]error{}}
}

var textReplies = []struct{ marker, kind, reply string }{
	{"Rewrite the parable", "rewrite", "[dramatically] A king lost his crown.\n\nHe searched the forest [pause] and found it."},
	{"Translate this narration script", "translate_voice", "[softly] translated script"},
	{"single hook line", "hook", "\"Would you give up a crown?\""},
	{"YouTube Shorts content", "metadata", metadataReply},
	{"alternative YouTube Shorts titles", "titles", `[{"text": "Why did the king run?", "type": "question"}, {"text": "The crown nobody wanted", "type": "intrigue"}, {"text": "  ", "type": "emotion"}, {"text": "3 lessons from a king", "type": "bogus"}]`},
	{"Which of these titles", "pick", `{"index": 1}`},
	{"Translate this parable into", "translate", `{"title": "The Lost King", "text": "translated text"}`},
	{"Analyze the mood", "mood", "Calm."},
}

func (f *fakeText) Generate(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range textReplies {
		if strings.Contains(prompt, r.marker) {
			f.calls[r.kind]++
			if err := f.failOn[r.kind]; err != nil {
				return "", err
			}
			return r.reply, nil
		}
	}
	return "", errors.New("unexpected prompt")
}

func (f *fakeText) count(kind string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[kind]
}

func (f *fakeText) fail(kind string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failOn, kind)
		return
	}
	f.failOn[kind] = err
}

// fakeImages returns a tiny png for every prompt except those in failing.
type fakeImages struct {
	mu      sync.Mutex
	calls   map[string]int
	styles  []StyleContext
	failing map[string]bool
}

func newFakeImages() *fakeImages {
	return &fakeImages{calls: map[string]int{}, failing: map[string]bool{}}
}

func (f *fakeImages) GenerateImage(_ context.Context, prompt string, style StyleContext) (*Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[prompt]++
	f.styles = append(f.styles, style)
	if f.failing[prompt] {
		return nil, errors.New("quota exceeded")
	}
	return &Image{Data: []byte("\x89PNG" + prompt), MIMEType: "image/png"}, nil
}

func (f *fakeImages) count(prompt string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[prompt]
}

func (f *fakeImages) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

type fakeProber struct {
	duration float64
	err      error
}

func (p fakeProber) Duration(context.Context, string) (float64, error) {
	return p.duration, p.err
}

type recordingDispatcher struct {
	mu   sync.Mutex
	jobs []Job
}

func (d *recordingDispatcher) Dispatch(_ context.Context, job Job) error {
	d.mu.Lock()
	d.jobs = append(d.jobs, job)
	d.mu.Unlock()
	return nil
}

func (d *recordingDispatcher) kinds() []JobKind {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]JobKind, len(d.jobs))
	for i, j := range d.jobs {
		out[i] = j.Kind
	}
	return out
}

type fixture struct {
	store    *models.Store
	files    *FileStore
	text     *fakeText
	images   *fakeImages
	synth    *Synthesizer
	pipeline *Pipeline
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{
		store:  testutil.Store(t),
		files:  NewFileStore(root+"/uploads", root+"/outputs", root+"/static"),
		text:   newFakeText(),
		images: newFakeImages(),
	}
	log := logger.Nop()
	f.synth = NewSynthesizer(f.text, "dramatic", log)
	scenes := NewSceneGenerator(f.images, f.files, log)
	f.pipeline = NewPipeline(f.store, f.synth, scenes, PipelineOptions{MaxHealAttempts: 2, TitleVariants: 5}, log)
	return f
}

func (f *fixture) parable(t *testing.T, id string) *models.Parable {
	t.Helper()
	p, err := f.store.GetParable(context.Background(), id)
	if err != nil {
		t.Fatalf("GetParable: %v", err)
	}
	return p
}

// process claims and runs the pipeline for a parable.
func (f *fixture) process(t *testing.T, id string) error {
	t.Helper()
	if _, err := f.pipeline.Start(context.Background(), id); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return f.pipeline.Run(context.Background(), id)
}

func (f *fixture) setStatus(t *testing.T, id string, status models.Status, step int) {
	t.Helper()
	if err := f.store.UpdateParable(context.Background(), id, map[string]interface{}{
		"status":       status,
		"current_step": step,
	}); err != nil {
		t.Fatalf("set status: %v", err)
	}
}
