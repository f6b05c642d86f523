package media

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"strings"
)

// SampleRate is the fixed rate the transcription engine requires.
const SampleRate = 16000

// DecodeError reports a source file that could not be decoded as audio.
type DecodeError struct {
	Message string     `json:"message"`
	Log     CommandLog `json:"commandLog"`
	Err     error      `json:"-"`
}

// Error formats decode failures for logs and UI.
func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if e.Log.Command == "" {
		return "decode: " + e.Message
	}
	return fmt.Sprintf("decode: %s (cmd=%s exit=%d)", e.Message, e.Log.Command, e.Log.ExitCode)
}

// Unwrap exposes underlying error for errors.Is / errors.As.
func (e *DecodeError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// AudioDecoder converts an input media file into the mono float sample
// buffer the transcription engine consumes.
type AudioDecoder struct {
	ffmpegPath string
	runner     Runner
	stat       func(name string) (os.FileInfo, error)
}

// NewAudioDecoder constructs the production decoder with OS dependencies.
func NewAudioDecoder() *AudioDecoder {
	return &AudioDecoder{
		ffmpegPath: "ffmpeg",
		runner:     &ExecRunner{},
		stat:       os.Stat,
	}
}

// NewAudioDecoderForTests constructs a decoder with injectable dependencies.
func NewAudioDecoderForTests(ffmpegPath string, runner Runner, stat func(string) (os.FileInfo, error)) *AudioDecoder {
	return &AudioDecoder{
		ffmpegPath: ffmpegPath,
		runner:     runner,
		stat:       stat,
	}
}

// DecodeMono16k extracts the audio track as normalized float32 samples,
// single channel at SampleRate. Resampling is ffmpeg's responsibility.
func (d *AudioDecoder) DecodeMono16k(ctx context.Context, inputPath string) ([]float32, error) {
	if strings.TrimSpace(inputPath) == "" {
		return nil, &DecodeError{Message: "input media path is required"}
	}

	if _, err := d.stat(inputPath); err != nil {
		return nil, &DecodeError{
			Message: fmt.Sprintf("cannot access input media: %s", inputPath),
			Err:     err,
		}
	}

	args := buildDecodeArgs(inputPath)
	result, runErr := d.runner.Run(ctx, d.ffmpegPath, args...)
	log := CommandLog{
		Command:  d.ffmpegPath,
		Args:     args,
		ExitCode: result.ExitCode,
		Stderr:   result.Stderr,
	}
	if runErr != nil {
		return nil, &DecodeError{
			Message: "ffmpeg audio decode failed",
			Log:     log,
			Err:     runErr,
		}
	}

	samples := parseFloat32LE(result.Stdout)
	if len(samples) == 0 {
		return nil, &DecodeError{
			Message: "media file contains no decodable audio",
			Log:     log,
		}
	}

	return samples, nil
}

// buildDecodeArgs builds ffmpeg CLI args for mono 16k float32 PCM on stdout.
func buildDecodeArgs(inputPath string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-i", inputPath,
		"-vn",
		"-ac", "1",
		"-ar", fmt.Sprintf("%d", SampleRate),
		"-f", "f32le",
		"-c:a", "pcm_f32le",
		"-",
	}
}

// parseFloat32LE converts a little-endian float32 byte stream to samples.
// Trailing partial frames are dropped.
func parseFloat32LE(data []byte) []float32 {
	count := len(data) / 4
	if count == 0 {
		return nil
	}

	samples := make([]float32, count)
	for i := 0; i < count; i++ {
		bits := binary.LittleEndian.Uint32(data[i*4 : i*4+4])
		samples[i] = math.Float32frombits(bits)
	}
	return samples
}
