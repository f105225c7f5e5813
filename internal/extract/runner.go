// Package extract runs the external extraction tools (yt-dlp, gallery-dl)
// that turn a URL into files inside a scratch directory.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/linkloader/internal/media"
)

const (
	defaultTimeout = 5 * time.Minute
	maxStderrBytes = 2048
	waitDelay      = 2 * time.Second

	placeholderURL = "{url}"
	placeholderDir = "{dir}"
)

// Command is one external program invocation. Args may contain the {url} and
// {dir} placeholders.
type Command struct {
	Binary string   `mapstructure:"binary"`
	Args   []string `mapstructure:"args"`
}

// DefaultCommands returns the yt-dlp / gallery-dl invocations per mode. Every
// mode writes an info .json sidecar next to the media.
func DefaultCommands() map[media.JobKind]Command {
	return map[media.JobKind]Command{
		media.JobVideo: {
			Binary: "yt-dlp",
			Args: []string{
				"-f", "bestvideo[ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]/best",
				"--no-playlist", "--write-info-json",
				"-o", "{dir}/video.%(ext)s", "{url}",
			},
		},
		media.JobAudio: {
			Binary: "yt-dlp",
			Args: []string{
				"-f", "bestaudio/best", "-x",
				"--audio-format", "mp3", "--audio-quality", "192K",
				"--no-playlist", "--write-info-json",
				"-o", "{dir}/audio.%(ext)s", "{url}",
			},
		},
		media.JobGallery: {
			Binary: "gallery-dl",
			Args:   []string{"--directory", "{dir}", "--write-info-json", "--no-mtime", "{url}"},
		},
	}
}

// Runner executes one configured command per extraction mode.
type Runner struct {
	commands map[media.JobKind]Command
	timeout  time.Duration
	logger   *zap.Logger
}

// NewRunner builds a Runner. Modes missing from commands use the defaults.
func NewRunner(commands map[media.JobKind]Command, timeout time.Duration, logger *zap.Logger) *Runner {
	merged := DefaultCommands()
	for kind, cmd := range commands {
		if cmd.Binary != "" {
			merged[kind] = cmd
		}
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{commands: merged, timeout: timeout, logger: logger}
}

// Extract runs the tool for req.Mode and waits for it to exit. A non-zero exit
// or a timeout is returned wrapped in media.ErrExtractionFailed.
func (r *Runner) Extract(ctx context.Context, req media.ExtractRequest) error {
	command, ok := r.commands[req.Mode]
	if !ok {
		return fmt.Errorf("%w: no command for mode %q", media.ErrExtractionFailed, req.Mode)
	}
	if err := os.MkdirAll(req.OutputDir, 0o750); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	args := expand(command.Args, req)
	// #nosec G204 -- binary and args come from operator configuration.
	cmd := exec.CommandContext(ctx, command.Binary, args...)
	cmd.Dir = req.OutputDir
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s: %w", r.timeout, ctx.Err())
		}
		r.logger.Warn("extraction process failed",
			zap.String("mode", string(req.Mode)),
			zap.String("url", req.URL),
			zap.Duration("elapsed", elapsed),
			zap.String("stderr", tail(stderr.String(), maxStderrBytes)),
			zap.Error(err))
		return fmt.Errorf("%w: %s: %w, stderr: %s",
			media.ErrExtractionFailed, command.Binary, err, tail(stderr.String(), maxStderrBytes))
	}

	r.logger.Debug("extraction process finished",
		zap.String("mode", string(req.Mode)),
		zap.String("url", req.URL),
		zap.Duration("elapsed", elapsed),
		zap.Int("stdout_bytes", stdout.Len()))
	return nil
}

func expand(args []string, req media.ExtractRequest) []string {
	out := make([]string, len(args))
	replacer := strings.NewReplacer(placeholderURL, req.URL, placeholderDir, req.OutputDir)
	for i, a := range args {
		out[i] = replacer.Replace(a)
	}
	return out
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
