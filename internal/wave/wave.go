// Package wave reads and writes WAV files.
package wave

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/go-audio/wav"
)

// SampleRate is the rate Encode writes.
const SampleRate = 44100

const headerSize = 44

var ErrInvalidFile = errors.New("wave: not a valid WAV file")

// Encode writes mono samples in [-1, 1] as 16-bit PCM at SampleRate.
func Encode(samples []float32) []byte {
	return EncodeRate(samples, SampleRate)
}

// EncodeRate writes mono samples in [-1, 1] as 16-bit PCM. Each sample is
// scaled by 32767 and truncated toward zero; values outside the range are
// clamped first.
func EncodeRate(samples []float32, sampleRate int) []byte {
	const channels = 1
	const bytesPerSample = 2
	dataSize := len(samples) * bytesPerSample
	blockAlign := channels * bytesPerSample
	byteRate := sampleRate * blockAlign
	out := make([]byte, headerSize+dataSize)
	copy(out[0:], "RIFF")
	binary.LittleEndian.PutUint32(out[4:], uint32(36+dataSize))
	copy(out[8:], "WAVE")
	copy(out[12:], "fmt ")
	binary.LittleEndian.PutUint32(out[16:], 16)
	binary.LittleEndian.PutUint16(out[20:], 1)
	binary.LittleEndian.PutUint16(out[22:], channels)
	binary.LittleEndian.PutUint32(out[24:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:], 16)
	copy(out[36:], "data")
	binary.LittleEndian.PutUint32(out[40:], uint32(dataSize))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[headerSize+i*2:], uint16(quantize(s)))
	}
	return out
}

func quantize(s float32) int16 {
	if s != s {
		return 0
	}
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	return int16(s * 32767)
}

// Write encodes samples at sampleRate to w.
func Write(w io.Writer, samples []float32, sampleRate int) error {
	_, err := w.Write(EncodeRate(samples, sampleRate))
	return err
}

// WriteFile encodes samples at sampleRate into the named file.
func WriteFile(path string, samples []float32, sampleRate int) error {
	return os.WriteFile(path, EncodeRate(samples, sampleRate), 0o644)
}

// LoadSample decodes a PCM WAV file into mono samples in [-1, 1], averaging
// the channels of multi-channel files. It also returns the file's sample rate.
func LoadSample(path string) ([]float32, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()
	return Decode(f)
}

// Decode is LoadSample for an already opened file.
func Decode(r io.ReadSeeker) ([]float32, int, error) {
	decoder := wav.NewDecoder(r)
	if !decoder.IsValidFile() {
		return nil, 0, ErrInvalidFile
	}
	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("decode wav: %w", err)
	}
	bitDepth := int(decoder.SampleBitDepth())
	if bitDepth == 0 {
		return nil, 0, fmt.Errorf("%w: unknown bit depth", ErrInvalidFile)
	}
	channels := buf.Format.NumChannels
	if channels < 1 {
		channels = 1
	}
	factor := math.Pow(2, float64(bitDepth-1))
	frames := len(buf.Data) / channels
	out := make([]float32, frames)
	for i := range frames {
		sum := 0.0
		for c := range channels {
			sum += float64(buf.Data[i*channels+c])
		}
		out[i] = float32(sum / float64(channels) / factor)
	}
	return out, buf.Format.SampleRate, nil
}
