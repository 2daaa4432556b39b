package service

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"ParableToVideo-server/apperr"
	"ParableToVideo-server/logger"
	"ParableToVideo-server/models"
)

// TextModel is a text synthesis backend: one prompt in, generated text out.
type TextModel interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Metadata is the structured result of the metadata step.
type Metadata struct {
	YoutubeTitle       string        `json:"youtube_title"`
	YoutubeDescription string        `json:"youtube_description"`
	YoutubeHashtags    string        `json:"youtube_hashtags"`
	HookImagePrompt    string        `json:"hook_image_prompt"`
	Scenes             []ScenePrompt `json:"scenes"`
	ImagePrompts       []string      `json:"image_prompts"`
}

type ScenePrompt struct {
	ImagePrompt string `json:"image_prompt"`
	VideoPrompt string `json:"video_prompt"`
}

// prompts flattens either scene shape into ordered scene prompts.
func (m *Metadata) prompts() []ScenePrompt {
	var out []ScenePrompt
	for _, s := range m.Scenes {
		if strings.TrimSpace(s.ImagePrompt) != "" {
			out = append(out, s)
		}
	}
	if len(out) > 0 {
		return out
	}
	for _, p := range m.ImagePrompts {
		if strings.TrimSpace(p) != "" {
			out = append(out, ScenePrompt{ImagePrompt: p})
		}
	}
	return out
}

type TitleCandidate struct {
	Text string `json:"text"`
	Type string `json:"type"`
}

type Translation struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

// Synthesizer builds the prompts of every text synthesis call the service
// makes and decodes the replies.
type Synthesizer struct {
	model       TextModel
	defaultMood string
	log         *logger.Logger
}

func NewSynthesizer(model TextModel, defaultMood string, log *logger.Logger) *Synthesizer {
	return &Synthesizer{model: model, defaultMood: defaultMood, log: log.With("service", "Synthesizer")}
}

func (s *Synthesizer) generate(ctx context.Context, op, prompt string) (string, error) {
	out, err := s.model.Generate(ctx, prompt)
	if err != nil {
		if apperr.KindOf(err) != "" {
			return "", err
		}
		return "", apperr.External("%s: %v", op, err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", apperr.External("%s: empty response", op)
	}
	return out, nil
}

const rewritePrompt = `You are a professional scriptwriter for short audio content.

Rewrite the parable below so it can be read aloud by a voice synthesizer.

REQUIREMENTS:
1. Make the text expressive and dramatic.
2. Add emotion tags the voice engine understands: [whispers], [sarcastically], [giggles], [pause], [dramatically], [softly], [excited].
3. Keep the language of the original text. Do not translate.
4. Keep it short enough for a video under 60 seconds.
5. Prefer short sentences.

ORIGINAL TEXT:
%s

Return only the rewritten script.`

// RewriteForVoice turns the source text into a tagged narration script in
// the source language.
func (s *Synthesizer) RewriteForVoice(ctx context.Context, text string) (string, error) {
	return s.generate(ctx, "rewrite for voice", fmt.Sprintf(rewritePrompt, text))
}

const translateVoicePrompt = `Translate this narration script into %s.

Keep every emotion tag in square brackets exactly as written, keep the dramatic rhythm and keep it short enough for a video under 60 seconds.

SCRIPT:
%s

Return only the translated script.`

// TranslateForVoice translates an existing narration script, preserving its tags.
func (s *Synthesizer) TranslateForVoice(ctx context.Context, script, language string) (string, error) {
	return s.generate(ctx, "translate for voice", fmt.Sprintf(translateVoicePrompt, languageName(language), script))
}

const hookPrompt = `Write a single hook line for the opening of a short vertical video narrating this story.

The hook must make the viewer stay: a question, a paradox or a bold claim. At most 15 words, same language as the story, no emotion tags, no quotes.

STORY:
%s

Return only the hook.`

// GenerateHook writes the short attention-grabbing opening line.
func (s *Synthesizer) GenerateHook(ctx context.Context, script string) (string, error) {
	out, err := s.generate(ctx, "generate hook", fmt.Sprintf(hookPrompt, script))
	if err != nil {
		return "", err
	}
	return strings.Trim(out, "\"'“”«» \n"), nil
}

const metadataPrompt = `You are an expert in YouTube Shorts content.

ORIGINAL PARABLE:
%s

NARRATION SCRIPT:
%s
%s
Create:
1. youtube_title: a catchy title up to 100 characters.
2. youtube_description: 2-3 sentences.
3. youtube_hashtags: 5-10 relevant hashtags separated by spaces.
4. scenes: 3-7 consecutive scenes. Each has an image_prompt and a video_prompt (camera and motion for animating that image).
%s
Image prompts must be in English, describe characters in the same detail in every scene so they stay consistent, and end with the style: cinematic, dramatic lighting, detailed, vertical 9:16.

Return STRICT JSON:
{"youtube_title": "...", "youtube_description": "...", "youtube_hashtags": "#a #b", %s"scenes": [{"image_prompt": "...", "video_prompt": "..."}]}`

// DeriveMetadata asks for publishing metadata plus an ordered scene prompt
// list. hook may be empty.
func (s *Synthesizer) DeriveMetadata(ctx context.Context, original, script, hook string) (*Metadata, error) {
	hookBlock, hookTask, hookField := "", "", ""
	if hook != "" {
		hookBlock = fmt.Sprintf("\nOPENING HOOK:\n%s\n", hook)
		hookTask = "5. hook_image_prompt: one striking image prompt for the opening hook.\n"
		hookField = `"hook_image_prompt": "...", `
	}
	raw, err := s.generate(ctx, "derive metadata", fmt.Sprintf(metadataPrompt, original, script, hookBlock, hookTask, hookField))
	if err != nil {
		return nil, err
	}
	var meta Metadata
	if err := decodeJSON(raw, &meta); err != nil {
		return nil, err
	}
	if len(meta.prompts()) == 0 {
		return nil, apperr.External("derive metadata: no scene prompts in response")
	}
	return &meta, nil
}

const titlesPrompt = `Write %d alternative YouTube Shorts titles for this story, each under 100 characters, in the language of the story.

Use different angles, one per type where possible: question, intrigue, emotion, numbers, provocation.

STORY:
%s

Return STRICT JSON: [{"text": "...", "type": "question"}]`

// TitleVariants proposes n alternative titles tagged by angle.
func (s *Synthesizer) TitleVariants(ctx context.Context, script string, n int) ([]TitleCandidate, error) {
	raw, err := s.generate(ctx, "title variants", fmt.Sprintf(titlesPrompt, n, script))
	if err != nil {
		return nil, err
	}
	var out []TitleCandidate
	if err := decodeJSON(raw, &out); err != nil {
		return nil, err
	}
	kept := out[:0]
	for _, c := range out {
		c.Text = strings.TrimSpace(c.Text)
		if c.Text == "" {
			continue
		}
		if !isTitleType(c.Type) {
			c.Type = models.TitleTypeIntrigue
		}
		kept = append(kept, c)
	}
	if len(kept) == 0 {
		return nil, apperr.External("title variants: no titles in response")
	}
	if len(kept) > n {
		kept = kept[:n]
	}
	return kept, nil
}

const pickTitlePrompt = `Which of these titles would get the most views as a YouTube Short for the story below?

TITLES:
%s
STORY:
%s

Return STRICT JSON: {"index": <zero-based index>}`

// PickTitle chooses the strongest candidate. Out-of-range answers fall back to 0.
func (s *Synthesizer) PickTitle(ctx context.Context, script string, candidates []TitleCandidate) (int, error) {
	if len(candidates) <= 1 {
		return 0, nil
	}
	var list strings.Builder
	for i, c := range candidates {
		fmt.Fprintf(&list, "%d. %s\n", i, c.Text)
	}
	raw, err := s.generate(ctx, "pick title", fmt.Sprintf(pickTitlePrompt, list.String(), script))
	if err != nil {
		return 0, err
	}
	var pick struct {
		Index int `json:"index"`
	}
	if err := decodeJSON(raw, &pick); err != nil {
		return 0, err
	}
	if pick.Index < 0 || pick.Index >= len(candidates) {
		return 0, nil
	}
	return pick.Index, nil
}

const translatePrompt = `Translate this parable into %s. Keep its meaning, tone and imagery.

TITLE:
%s

TEXT:
%s

Return STRICT JSON: {"title": "...", "text": "..."}`

// Translate produces the title and source text of a translation unit.
func (s *Synthesizer) Translate(ctx context.Context, title, text, language string) (*Translation, error) {
	raw, err := s.generate(ctx, "translate", fmt.Sprintf(translatePrompt, languageName(language), title, text))
	if err != nil {
		return nil, err
	}
	var tr Translation
	if err := decodeJSON(raw, &tr); err != nil {
		return nil, err
	}
	if strings.TrimSpace(tr.Text) == "" {
		return nil, apperr.External("translate: empty text in response")
	}
	if strings.TrimSpace(tr.Title) == "" {
		tr.Title = title
	}
	return &tr, nil
}

const moodPrompt = `Analyze the mood of this parable and return ONLY ONE word from this list: %s.

TEXT:
%s

Return only the mood word.`

// DetectMood classifies the text into a known mood. It never fails: any
// error or unknown answer yields the default mood.
func (s *Synthesizer) DetectMood(ctx context.Context, text string) string {
	if r := []rune(text); len(r) > 500 {
		text = string(r[:500])
	}
	out, err := s.generate(ctx, "detect mood", fmt.Sprintf(moodPrompt, strings.Join(models.Moods, ", "), text))
	if err != nil {
		s.log.Warn("mood detection failed, using default", "error", err, "mood", s.defaultMood)
		return s.defaultMood
	}
	mood := strings.ToLower(strings.Trim(out, " .\"'\n"))
	if !models.IsMood(mood) {
		s.log.Debug("unknown mood answer, using default", "answer", out)
		return s.defaultMood
	}
	return mood
}

var fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// ExtractJSON pulls the JSON payload out of a model reply that may wrap it
// in a fenced block or surround it with prose.
func ExtractJSON(text string) (string, error) {
	text = strings.TrimSpace(text)
	if m := fencedJSON.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
	}
	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return "", apperr.External("no JSON payload in model response")
	}
	closer := byte('}')
	if text[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(text, closer)
	if end < start {
		return "", apperr.External("unterminated JSON payload in model response")
	}
	return text[start : end+1], nil
}

func decodeJSON(raw string, v interface{}) error {
	payload, err := ExtractJSON(raw)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(payload), v); err != nil {
		return apperr.External("decode model response: %v", err)
	}
	return nil
}

func isTitleType(t string) bool {
	switch t {
	case models.TitleTypeQuestion, models.TitleTypeIntrigue, models.TitleTypeEmotion,
		models.TitleTypeNumbers, models.TitleTypeProvocation:
		return true
	}
	return false
}

var languageNames = map[string]string{
	"en": "English",
	"ru": "Russian",
	"es": "Spanish",
	"de": "German",
	"fr": "French",
	"pt": "Portuguese",
	"it": "Italian",
}

func languageName(code string) string {
	if n, ok := languageNames[strings.ToLower(code)]; ok {
		return n
	}
	return code
}
