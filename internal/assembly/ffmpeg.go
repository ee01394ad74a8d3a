package assembly

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Audio quality constants for consistent output across all FFmpeg operations.
const (
	AudioBitrate    = "192k"
	AudioSampleRate = "44100"
	AudioChannels   = "2"
	AudioCodec      = "libmp3lame"
	AudioQuality    = "0" // LAME quality (0 = best)
	AudioResampler  = "aresample=resampler=soxr"
)

// Spacing is the silence placed around the spoken turns.
type Spacing struct {
	Lead  time.Duration // before the first turn
	Pause time.Duration // after every turn
	Tail  time.Duration // after the final pause
}

// DefaultSpacing matches the pacing listeners get from the web player.
var DefaultSpacing = Spacing{
	Lead:  500 * time.Millisecond,
	Pause: 400 * time.Millisecond,
	Tail:  1000 * time.Millisecond,
}

// Assembler joins per-turn MP3 files into one episode.
type Assembler interface {
	Assemble(ctx context.Context, segments []string, tmpDir string, output string) error
}

type FFmpegAssembler struct {
	spacing Spacing
}

func NewFFmpegAssembler(spacing Spacing) *FFmpegAssembler {
	return &FFmpegAssembler{spacing: spacing}
}

// CheckFFmpeg reports whether the ffmpeg binary is on PATH.
func CheckFFmpeg() error {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return fmt.Errorf("ffmpeg not found on PATH: %w", err)
	}
	return nil
}

func (a *FFmpegAssembler) Assemble(ctx context.Context, segments []string, tmpDir string, output string) error {
	if len(segments) == 0 {
		return fmt.Errorf("no audio segments to assemble")
	}

	silences := silenceFiles{
		lead:  filepath.Join(tmpDir, "silence_lead.mp3"),
		pause: filepath.Join(tmpDir, "silence_pause.mp3"),
		tail:  filepath.Join(tmpDir, "silence_tail.mp3"),
	}
	for path, d := range map[string]time.Duration{
		silences.lead:  a.spacing.Lead,
		silences.pause: a.spacing.Pause,
		silences.tail:  a.spacing.Tail,
	} {
		if d <= 0 {
			continue
		}
		if err := generateSilence(ctx, path, d); err != nil {
			return fmt.Errorf("generate silence: %w", err)
		}
	}

	listPath := filepath.Join(tmpDir, "concat.txt")
	lines := concatEntries(segments, silences, a.spacing)
	if err := os.WriteFile(listPath, []byte(strings.Join(lines, "\n")+"\n"), 0644); err != nil {
		return fmt.Errorf("write concat list: %w", err)
	}

	if err := runFFmpegConcat(ctx, listPath, output); err != nil {
		return fmt.Errorf("ffmpeg concat: %w", err)
	}

	return nil
}

type silenceFiles struct {
	lead, pause, tail string
}

// concatEntries lays out lead silence, each segment followed by a pause, then
// tail silence. Zero durations are left out.
func concatEntries(segments []string, s silenceFiles, spacing Spacing) []string {
	var lines []string
	if spacing.Lead > 0 {
		lines = append(lines, concatLine(s.lead))
	}
	for _, seg := range segments {
		lines = append(lines, concatLine(seg))
		if spacing.Pause > 0 {
			lines = append(lines, concatLine(s.pause))
		}
	}
	if spacing.Tail > 0 {
		lines = append(lines, concatLine(s.tail))
	}
	return lines
}

// concatLine quotes path for the concat demuxer.
func concatLine(path string) string {
	return fmt.Sprintf("file '%s'", strings.ReplaceAll(path, "'", `'\''`))
}

func generateSilence(ctx context.Context, output string, d time.Duration) error {
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-f", "lavfi",
		"-i", fmt.Sprintf("anullsrc=r=%s:cl=stereo", AudioSampleRate),
		"-t", fmt.Sprintf("%.3f", d.Seconds()),
		"-c:a", AudioCodec,
		"-b:a", AudioBitrate,
		"-y",
		output,
	)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	cmd.Stdout = nil

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg silence generation failed: %w\n%s", err, stderr.String())
	}
	return nil
}

func runFFmpegConcat(ctx context.Context, listPath string, output string) error {
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-af", AudioResampler,
		"-c:a", AudioCodec,
		"-b:a", AudioBitrate,
		"-q:a", AudioQuality,
		"-ar", AudioSampleRate,
		"-ac", AudioChannels,
		"-y",
		output,
	)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	cmd.Stdout = nil

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg concat failed: %w\n%s", err, stderr.String())
	}

	// Verify output exists and has non-zero size
	info, err := os.Stat(output)
	if err != nil {
		return fmt.Errorf("output file not created: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("output file is empty")
	}

	return nil
}
