package media

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Runner executes an external binary and returns its combined output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("%s failed: %w; out=%s", name, err, tail(out, 2000))
	}
	return out, nil
}

func tail(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[len(b)-n:])
}

// DurationProber reports the playable length of a media file in seconds.
type DurationProber interface {
	Duration(ctx context.Context, path string) (float64, error)
}

// FFprobe reads the container duration with ffprobe.
type FFprobe struct {
	Bin    string
	Runner Runner
}

func NewFFprobe(bin string, r Runner) *FFprobe {
	if bin == "" {
		bin = "ffprobe"
	}
	if r == nil {
		r = ExecRunner{}
	}
	return &FFprobe{Bin: bin, Runner: r}
}

type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func (p *FFprobe) Duration(ctx context.Context, path string) (float64, error) {
	out, err := p.Runner.Run(ctx, p.Bin,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "json",
		path,
	)
	if err != nil {
		return 0, err
	}
	var parsed probeOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return 0, fmt.Errorf("parse ffprobe output for %s: %w", path, err)
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(parsed.Format.Duration), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q for %s: %w", parsed.Format.Duration, path, err)
	}
	return d, nil
}
