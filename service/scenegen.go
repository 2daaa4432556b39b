package service

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"ParableToVideo-server/logger"
	"ParableToVideo-server/models"
)

type Image struct {
	Data     []byte
	MIMEType string
}

// ImageModel synthesizes one image per call. A nil image with a nil error
// means the backend produced no image for the prompt.
type ImageModel interface {
	GenerateImage(ctx context.Context, prompt string, style StyleContext) (*Image, error)
}

// StyleContract is prepended to every scene so independently generated
// images share one look.
const StyleContract = `STYLE REQUIREMENTS (identical for every scene of this story):
- Cinematic, dramatic composition
- One consistent art style across all scenes
- Rich colors and atmospheric lighting
- Vertical format, 9:16 ratio
- High detail; the same characters must look the same in every scene`

// StyleContext carries the shared style contract and the scene's position
// in the story to the image backend.
type StyleContext struct {
	Contract   string
	SceneIndex int
	SceneCount int
	Hook       bool
}

// Compose renders the full image prompt for a scene.
func (s StyleContext) Compose(prompt string) string {
	var b strings.Builder
	switch {
	case s.Hook:
		b.WriteString("Create the opening hook image of a visual story.\n\n")
	case s.SceneIndex == 0:
		fmt.Fprintf(&b, "Create the first scene of a visual story. This is scene 1 of %d.\n\n", s.SceneCount)
	default:
		fmt.Fprintf(&b, "Continue the visual story. This is scene %d of %d. Keep the same art style, characters and atmosphere as the previous scenes.\n\n", s.SceneIndex+1, s.SceneCount)
	}
	if s.Contract != "" {
		b.WriteString(s.Contract)
		b.WriteString("\n\n")
	}
	b.WriteString("SCENE DESCRIPTION:\n")
	b.WriteString(prompt)
	return b.String()
}

// SceneOutcome is the per-scene result of a generation run.
type SceneOutcome struct {
	Path    string
	Skipped bool
	Err     error
}

func (o SceneOutcome) OK() bool { return o.Err == nil && o.Path != "" }

type SceneGenerator struct {
	model ImageModel
	files *FileStore
	log   *logger.Logger
}

func NewSceneGenerator(model ImageModel, files *FileStore, log *logger.Logger) *SceneGenerator {
	return &SceneGenerator{model: model, files: files, log: log.With("service", "SceneGenerator")}
}

// Generate produces an image for every prompt, keyed by scene order. Scenes
// whose image already exists on disk are reused unless force is set. A
// failing scene is recorded in its outcome and does not stop the others.
func (g *SceneGenerator) Generate(ctx context.Context, parableID string, prompts []models.ScenePrompt, force bool) map[int]SceneOutcome {
	out := make(map[int]SceneOutcome, len(prompts))
	count := 0
	for _, p := range prompts {
		if p.SceneOrder != models.HookSceneOrder {
			count++
		}
	}
	index := 0
	for _, p := range prompts {
		hook := p.SceneOrder == models.HookSceneOrder
		style := StyleContext{Contract: StyleContract, SceneIndex: index, SceneCount: count, Hook: hook}
		if !hook {
			index++
		}
		if force {
			g.files.RemoveImages(parableID, p.SceneOrder)
		} else if path, ok := g.files.FindImage(parableID, p.SceneOrder); ok {
			out[p.SceneOrder] = SceneOutcome{Path: path, Skipped: true}
			continue
		}
		if err := ctx.Err(); err != nil {
			out[p.SceneOrder] = SceneOutcome{Err: err}
			continue
		}
		path, err := g.generateOne(ctx, parableID, p, style)
		if err != nil {
			g.log.Warn("scene image failed", "parable_id", parableID, "scene_order", p.SceneOrder, "error", err)
			out[p.SceneOrder] = SceneOutcome{Err: err}
			continue
		}
		g.log.Debug("scene image saved", "parable_id", parableID, "scene_order", p.SceneOrder, "path", path)
		out[p.SceneOrder] = SceneOutcome{Path: path}
	}
	return out
}

func (g *SceneGenerator) generateOne(ctx context.Context, parableID string, p models.ScenePrompt, style StyleContext) (string, error) {
	img, err := g.model.GenerateImage(ctx, p.PromptText, style)
	if err != nil {
		return "", err
	}
	if img == nil || len(img.Data) == 0 {
		return "", fmt.Errorf("no image returned for scene %d", p.SceneOrder)
	}
	g.files.RemoveImages(parableID, p.SceneOrder)
	path := g.files.ImagePath(parableID, p.SceneOrder, extForMIME(img.MIMEType))
	if _, err := WriteFileAtomic(path, bytes.NewReader(img.Data), nil); err != nil {
		return "", err
	}
	return path, nil
}

func extForMIME(mime string) string {
	switch strings.ToLower(mime) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}
