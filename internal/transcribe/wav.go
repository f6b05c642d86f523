package transcribe

import (
	"encoding/binary"
	"math"

	"viral-clipper/internal/media"
)

// encodeWAV serializes normalized float samples as a 16-bit PCM mono
// WAV payload at media.SampleRate, the container whisper.cpp consumes.
func encodeWAV(samples []float32) []byte {
	const (
		headerSize    = 44
		bytesPerFrame = 2
	)

	dataSize := len(samples) * bytesPerFrame
	out := make([]byte, headerSize+dataSize)

	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+dataSize))
	copy(out[8:12], "WAVE")

	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16)
	binary.LittleEndian.PutUint16(out[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(out[22:24], 1) // mono
	binary.LittleEndian.PutUint32(out[24:28], media.SampleRate)
	binary.LittleEndian.PutUint32(out[28:32], media.SampleRate*bytesPerFrame)
	binary.LittleEndian.PutUint16(out[32:34], bytesPerFrame)
	binary.LittleEndian.PutUint16(out[34:36], 16)

	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(dataSize))

	for i, sample := range samples {
		v := sample
		if v > 1 {
			v = 1
		}
		if v < -1 {
			v = -1
		}
		binary.LittleEndian.PutUint16(out[headerSize+i*2:headerSize+i*2+2], uint16(int16(math.Round(float64(v)*32767))))
	}

	return out
}
