package media

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"sync"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
)

// CaptionRenderer draws one caption onto a transparent PNG.
type CaptionRenderer interface {
	Render(text string, width, height int, path string) error
}

// GGRenderer renders white text with a thin outline over a translucent box.
// Render is safe for concurrent use: the parsed font is shared and every call
// builds its own face, since a truetype face caches glyphs as it draws.
type GGRenderer struct {
	FontPath string
	FontSize float64

	once sync.Once
	font *truetype.Font
}

func NewGGRenderer(fontPath string) *GGRenderer {
	return &GGRenderer{FontPath: fontPath, FontSize: 48}
}

func (r *GGRenderer) fontFace() font.Face {
	r.once.Do(func() {
		if r.FontPath != "" {
			if f, err := loadFont(r.FontPath); err == nil {
				r.font = f
			}
		}
	})
	if r.font == nil {
		return basicfont.Face7x13
	}
	return truetype.NewFace(r.font, &truetype.Options{
		Size:    r.FontSize,
		DPI:     72,
		Hinting: font.HintingNone,
	})
}

func (r *GGRenderer) Render(text string, width, height int, path string) error {
	dc := gg.NewContext(width, height)
	dc.SetFontFace(r.fontFace())

	tw, th := dc.MeasureString(text)
	x := (float64(width) - tw) / 2
	y := (float64(height) - th) / 2

	const padding = 15
	dc.SetRGBA255(0, 0, 0, 200)
	dc.DrawRectangle(x-padding, y-padding, tw+2*padding, th+2*padding)
	dc.Fill()

	dc.SetColor(color.Black)
	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			if dx != 0 || dy != 0 {
				dc.DrawString(text, x+float64(dx), y+th+float64(dy))
			}
		}
	}
	dc.SetColor(color.White)
	dc.DrawString(text, x, y+th)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("caption dir: %w", err)
	}
	if err := dc.SavePNG(path); err != nil {
		return fmt.Errorf("save caption png: %w", err)
	}
	return nil
}

func loadFont(fontPath string) (*truetype.Font, error) {
	fontBytes, err := os.ReadFile(fontPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read font file: %w", err)
	}
	parsed, err := truetype.Parse(fontBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse TTF: %w", err)
	}
	return parsed, nil
}
