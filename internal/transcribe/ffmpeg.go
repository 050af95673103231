package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// FFmpegCodec shells out to ffprobe and ffmpeg.
type FFmpegCodec struct {
	ffmpeg  string
	ffprobe string
}

func NewFFmpegCodec(ffmpegPath, ffprobePath string) *FFmpegCodec {
	return &FFmpegCodec{ffmpeg: ffmpegPath, ffprobe: ffprobePath}
}

type probeOutput struct {
	Streams []struct {
		CodecType  string `json:"codec_type"`
		CodecName  string `json:"codec_name"`
		SampleRate string `json:"sample_rate"`
		Channels   int    `json:"channels"`
		Duration   string `json:"duration"`
	} `json:"streams"`
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
	} `json:"format"`
}

func (f *FFmpegCodec) Probe(ctx context.Context, audio []byte) (AudioInfo, error) {
	path, cleanup, err := spill(audio)
	if err != nil {
		return AudioInfo{}, err
	}
	defer cleanup()

	cmd := exec.CommandContext(ctx, f.ffprobe,
		"-v", "error",
		"-print_format", "json",
		"-show_format", "-show_streams",
		path,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return AudioInfo{}, fmt.Errorf("ffprobe: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return parseProbe(stdout.Bytes())
}

func (f *FFmpegCodec) Normalize(ctx context.Context, audio []byte) ([]byte, error) {
	path, cleanup, err := spill(audio)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	cmd := exec.CommandContext(ctx, f.ffmpeg,
		"-hide_banner", "-loglevel", "error",
		"-i", path,
		"-vn",
		"-ac", strconv.Itoa(TargetChannels),
		"-ar", strconv.Itoa(TargetSampleRate),
		"-acodec", TargetCodec,
		"-f", "wav",
		"pipe:1",
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("ffmpeg produced no output")
	}
	return stdout.Bytes(), nil
}

func parseProbe(raw []byte) (AudioInfo, error) {
	var out probeOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return AudioInfo{}, fmt.Errorf("parse ffprobe output: %w", err)
	}

	info := AudioInfo{Format: out.Format.FormatName}
	info.DurationSeconds, _ = strconv.ParseFloat(out.Format.Duration, 64)
	for _, s := range out.Streams {
		if s.CodecType != "audio" {
			continue
		}
		info.HasAudio = true
		info.Codec = s.CodecName
		info.SampleRate, _ = strconv.Atoi(s.SampleRate)
		info.Channels = s.Channels
		if info.DurationSeconds <= 0 {
			info.DurationSeconds, _ = strconv.ParseFloat(s.Duration, 64)
		}
		break
	}
	return info, nil
}

// spill writes audio to a temp file; container formats like m4a cannot be
// probed reliably from a pipe.
func spill(audio []byte) (string, func(), error) {
	f, err := os.CreateTemp("", "nexusart-audio-*")
	if err != nil {
		return "", nil, err
	}
	if _, err := f.Write(audio); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", nil, err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", nil, err
	}
	return f.Name(), func() { os.Remove(f.Name()) }, nil
}
