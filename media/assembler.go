// Package media turns uploaded fragments, narration, music and subtitle text
// into one rendered clip with ffmpeg.
package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"ParableToVideo-server/apperr"
	"ParableToVideo-server/logger"

	"golang.org/x/sync/errgroup"
)

type Settings struct {
	FFmpeg      string
	FPS         int
	Bitrate     string
	Width       int
	Height      int
	MaxDuration float64
	// WorkRoot holds per-run scratch directories; empty means os.TempDir().
	WorkRoot string
}

type Fragment struct {
	Path       string
	SceneOrder int
	Duration   float64
	Target     *float64
}

type Request struct {
	Fragments         []Fragment
	NarrationPath     string
	NarrationDuration float64
	MusicPath         string
	MusicVolumeDB     float64
	Subtitles         string
	Hook              string
	OutputPath        string
}

type Result struct {
	Path     string
	Duration float64
}

type Assembler struct {
	cfg      Settings
	runner   Runner
	prober   DurationProber
	captions CaptionRenderer
	log      *logger.Logger
}

func NewAssembler(cfg Settings, runner Runner, prober DurationProber, captions CaptionRenderer, log *logger.Logger) *Assembler {
	if cfg.FFmpeg == "" {
		cfg.FFmpeg = "ffmpeg"
	}
	if cfg.FPS <= 0 {
		cfg.FPS = 30
	}
	if cfg.Bitrate == "" {
		cfg.Bitrate = "8000k"
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		cfg.Width, cfg.Height = 1080, 1920
	}
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = 60
	}
	return &Assembler{cfg: cfg, runner: runner, prober: prober, captions: captions, log: log.With("service", "MediaAssembler")}
}

type captionInput struct {
	path       string
	start, end float64
}

// Assemble renders req into req.OutputPath. The output only appears once the
// whole render succeeded; scratch files are removed on every path.
func (a *Assembler) Assemble(ctx context.Context, req Request) (Result, error) {
	if len(req.Fragments) == 0 {
		return Result{}, apperr.Validation("no video fragments to assemble")
	}
	if req.NarrationPath == "" {
		return Result{}, apperr.Validation("narration audio is required")
	}
	if req.OutputPath == "" {
		return Result{}, apperr.Validation("output path is required")
	}

	work, err := os.MkdirTemp(a.cfg.WorkRoot, "assemble-*")
	if err != nil {
		return Result{}, apperr.Assembly("create work dir: %v", err)
	}
	defer os.RemoveAll(work)

	if err := os.MkdirAll(filepath.Dir(req.OutputPath), 0o755); err != nil {
		return Result{}, apperr.Assembly("create output dir: %v", err)
	}
	partial := req.OutputPath + ".part"
	fail := func(stage string, err error) (Result, error) {
		_ = os.Remove(partial)
		return Result{}, apperr.New(apperr.KindAssembly, fmt.Errorf("%s: %w", stage, err))
	}

	frags := append([]Fragment(nil), req.Fragments...)
	sort.SliceStable(frags, func(i, j int) bool { return frags[i].SceneOrder < frags[j].SceneOrder })

	prepared, err := a.prepareFragments(ctx, work, frags)
	if err != nil {
		return fail("prepare fragments", err)
	}
	combined, err := a.concat(ctx, work, prepared)
	if err != nil {
		return fail("concat fragments", err)
	}
	dv, err := a.prober.Duration(ctx, combined)
	if err != nil {
		return fail("probe combined track", err)
	}
	da := req.NarrationDuration
	if da <= 0 {
		if da, err = a.prober.Duration(ctx, req.NarrationPath); err != nil {
			return fail("probe narration", err)
		}
	}
	synced, err := a.syncVideo(ctx, work, combined, dv, da)
	if err != nil {
		return fail("sync video to narration", err)
	}
	audio, err := a.buildAudio(ctx, work, req, da)
	if err != nil {
		return fail("build audio track", err)
	}
	caps, err := a.renderCaptions(ctx, work, req.Subtitles, req.Hook, da)
	if err != nil {
		return fail("render captions", err)
	}
	if err := a.render(ctx, synced, audio, caps, da, partial); err != nil {
		return fail("render final", err)
	}
	final, err := a.prober.Duration(ctx, partial)
	if err != nil {
		return fail("probe final", err)
	}
	if err := os.Rename(partial, req.OutputPath); err != nil {
		return fail("move final into place", err)
	}

	a.log.Info("final video assembled",
		"output", req.OutputPath,
		"fragments", len(frags),
		"video_duration", dv,
		"narration_duration", da,
		"final_duration", final,
	)
	return Result{Path: req.OutputPath, Duration: final}, nil
}

// prepareFragments strips audio, applies per-fragment retiming and brings
// every clip to the same frame geometry so the concat demuxer can copy.
func (a *Assembler) prepareFragments(ctx context.Context, work string, frags []Fragment) ([]string, error) {
	out := make([]string, len(frags))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(2)
	for i, f := range frags {
		i, f := i, f
		g.Go(func() error {
			natural := f.Duration
			if natural <= 0 && f.Target != nil {
				d, err := a.prober.Duration(gctx, f.Path)
				if err != nil {
					return err
				}
				natural = d
			}
			vf := fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1,fps=%d",
				a.cfg.Width, a.cfg.Height, a.cfg.Width, a.cfg.Height, a.cfg.FPS)
			if factor := RetimeFactor(natural, f.Target); factor != 1 {
				vf = "setpts=PTS*" + ff(factor) + "," + vf
			}
			dst := filepath.Join(work, fmt.Sprintf("frag_%03d.mp4", i))
			_, err := a.runner.Run(gctx, a.cfg.FFmpeg,
				"-y", "-i", f.Path,
				"-an",
				"-vf", vf,
				"-c:v", "libx264", "-preset", "veryfast", "-pix_fmt", "yuv420p",
				dst,
			)
			if err != nil {
				return fmt.Errorf("fragment scene %d: %w", f.SceneOrder, err)
			}
			out[i] = dst
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *Assembler) concat(ctx context.Context, work string, parts []string) (string, error) {
	var b strings.Builder
	for _, p := range parts {
		abs, err := filepath.Abs(p)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "file '%s'\n", strings.ReplaceAll(abs, "'", `'\''`))
	}
	list := filepath.Join(work, "concat.txt")
	if err := os.WriteFile(list, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("write concat list: %w", err)
	}
	dst := filepath.Join(work, "combined.mp4")
	if _, err := a.runner.Run(ctx, a.cfg.FFmpeg, "-y", "-f", "concat", "-safe", "0", "-i", list, "-c", "copy", dst); err != nil {
		return "", err
	}
	return dst, nil
}

// syncVideo stretches the whole combined track so it ends with the narration.
func (a *Assembler) syncVideo(ctx context.Context, work, combined string, dv, da float64) (string, error) {
	factor := SyncFactor(dv, da)
	if factor == 1 {
		return combined, nil
	}
	a.log.Debug("stretching video to narration", "video_duration", dv, "narration_duration", da, "setpts", factor)
	dst := filepath.Join(work, "synced.mp4")
	_, err := a.runner.Run(ctx, a.cfg.FFmpeg,
		"-y", "-i", combined,
		"-filter:v", "setpts=PTS*"+ff(factor),
		"-an",
		"-t", ff(da),
		"-c:v", "libx264", "-preset", "veryfast", "-pix_fmt", "yuv420p",
		dst,
	)
	if err != nil {
		return "", err
	}
	return dst, nil
}

// buildAudio produces the narration track, mixed with looped, trimmed and
// attenuated music when a music file is available.
func (a *Assembler) buildAudio(ctx context.Context, work string, req Request, da float64) (string, error) {
	dst := filepath.Join(work, "audio.m4a")
	music := req.MusicPath
	if music != "" {
		if _, err := os.Stat(music); err != nil {
			a.log.Warn("music file missing, using narration only", "music", music, "error", err)
			music = ""
		}
	}
	if music == "" {
		_, err := a.runner.Run(ctx, a.cfg.FFmpeg,
			"-y", "-i", req.NarrationPath,
			"-t", ff(da),
			"-c:a", "aac", "-b:a", "192k",
			dst,
		)
		return dst, err
	}

	dm, err := a.prober.Duration(ctx, music)
	if err != nil {
		return "", fmt.Errorf("probe music: %w", err)
	}
	loops := MusicLoops(da, dm)
	gain := DBToGain(req.MusicVolumeDB)
	filter := fmt.Sprintf("[1:a]atrim=0:%s,asetpts=PTS-STARTPTS,volume=%s[m];[0:a][m]amix=inputs=2:duration=first:normalize=0[a]",
		ff(da), ff(gain))
	_, err = a.runner.Run(ctx, a.cfg.FFmpeg,
		"-y",
		"-i", req.NarrationPath,
		"-stream_loop", strconv.Itoa(loops-1), "-i", music,
		"-filter_complex", filter,
		"-map", "[a]",
		"-t", ff(da),
		"-c:a", "aac", "-b:a", "192k",
		dst,
	)
	if err != nil {
		return "", err
	}
	return dst, nil
}

func (a *Assembler) renderCaptions(ctx context.Context, work, text, hook string, total float64) ([]captionInput, error) {
	if strings.TrimSpace(text) == "" || a.captions == nil {
		return nil, nil
	}
	caps := SplitCaptions(text, hook, total)
	out := make([]captionInput, len(caps))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, c := range caps {
		i, c := i, c
		g.Go(func() error {
			path := filepath.Join(work, fmt.Sprintf("caption_%03d.png", i))
			if err := a.captions.Render(c.Text, a.cfg.Width, captionHeight, path); err != nil {
				return err
			}
			out[i] = captionInput{path: path, start: c.Start, end: c.End}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// render overlays captions, applies the duration ceiling to picture and sound
// together and encodes the final container.
func (a *Assembler) render(ctx context.Context, video, audio string, caps []captionInput, total float64, dst string) error {
	args := []string{"-y", "-i", video, "-i", audio}
	for _, c := range caps {
		args = append(args, "-i", c.path)
	}

	var parts []string
	prev := "[0:v]"
	for i, c := range caps {
		label := fmt.Sprintf("[v%d]", i+1)
		parts = append(parts, fmt.Sprintf("%s[%d:v]overlay=x=(W-w)/2:y=H-%d:enable='between(t,%s,%s)'%s",
			prev, i+2, captionOffsetY, ff(c.start), ff(c.end), label))
		prev = label
	}

	speed := CeilingFactor(total, a.cfg.MaxDuration)
	length := total
	if speed != 1 {
		length = a.cfg.MaxDuration
		a.log.Info("clip exceeds ceiling, speeding up", "duration", total, "ceiling", a.cfg.MaxDuration, "factor", speed)
		parts = append(parts, fmt.Sprintf("%ssetpts=PTS/%s[vout]", prev, ff(speed)))
		tempo := make([]string, 0, 2)
		for _, t := range AtempoChain(speed) {
			tempo = append(tempo, "atempo="+ff(t))
		}
		parts = append(parts, "[1:a]"+strings.Join(tempo, ",")+"[aout]")
	} else {
		parts = append(parts, prev+"null[vout]", "[1:a]anull[aout]")
	}

	args = append(args,
		"-filter_complex", strings.Join(parts, ";"),
		"-map", "[vout]", "-map", "[aout]",
		"-r", strconv.Itoa(a.cfg.FPS),
		"-c:v", "libx264", "-preset", "medium", "-b:v", a.cfg.Bitrate, "-pix_fmt", "yuv420p",
		"-c:a", "aac", "-b:a", "192k",
		"-t", ff(length),
		"-movflags", "+faststart",
		"-f", "mp4",
		dst,
	)
	_, err := a.runner.Run(ctx, a.cfg.FFmpeg, args...)
	return err
}
