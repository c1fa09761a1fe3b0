package postgres

import (
	"encoding/binary"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/lernbegleiter/lernwelt-cli/internal/core/domain"
)

// Shared codec state. EncodeAll/DecodeAll are safe for concurrent use.
var (
	zstdEncoder, _ = zstd.NewWriter(nil)
	zstdDecoder, _ = zstd.NewReader(nil)
)

// encodeWAV renders the clip as 16-bit mono PCM WAV. The float32 to int16
// quantization is lossy; samples outside [-1, 1] are clamped.
func encodeWAV(clip *domain.AudioClip) []byte {
	dataLen := len(clip.Samples) * 2
	buf := make([]byte, 44+dataLen)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:], uint32(36+dataLen))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:], 16)
	binary.LittleEndian.PutUint16(buf[20:], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:], 1) // mono
	binary.LittleEndian.PutUint32(buf[24:], uint32(clip.SampleRate))
	binary.LittleEndian.PutUint32(buf[28:], uint32(clip.SampleRate*2)) // byte rate
	binary.LittleEndian.PutUint16(buf[32:], 2)                         // block align
	binary.LittleEndian.PutUint16(buf[34:], 16)                        // bits per sample

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:], uint32(dataLen))

	for i, sample := range clip.Samples {
		if sample > 1 {
			sample = 1
		} else if sample < -1 {
			sample = -1
		}
		v := int16(sample * 32767)
		binary.LittleEndian.PutUint16(buf[44+i*2:], uint16(v))
	}

	return buf
}

// decodeWAV parses a 16-bit mono PCM WAV file back into a clip.
func decodeWAV(data []byte) (*domain.AudioClip, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, fmt.Errorf("decoding wav: not a RIFF/WAVE file")
	}

	sampleRate := domain.SampleRate
	offset := 12
	for offset+8 <= len(data) {
		chunkID := string(data[offset : offset+4])
		chunkLen := int(binary.LittleEndian.Uint32(data[offset+4:]))
		body := offset + 8
		if body+chunkLen > len(data) {
			return nil, fmt.Errorf("decoding wav: truncated %s chunk", chunkID)
		}

		switch chunkID {
		case "fmt ":
			if chunkLen < 16 {
				return nil, fmt.Errorf("decoding wav: short fmt chunk")
			}
			if format := binary.LittleEndian.Uint16(data[body:]); format != 1 {
				return nil, fmt.Errorf("decoding wav: unsupported format %d", format)
			}
			if bits := binary.LittleEndian.Uint16(data[body+14:]); bits != 16 {
				return nil, fmt.Errorf("decoding wav: unsupported bit depth %d", bits)
			}
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4:]))
		case "data":
			clip := domain.ClipFromPCM16(data[body : body+chunkLen])
			clip.SampleRate = sampleRate
			return clip, nil
		}

		// Chunks are word-aligned.
		offset = body + chunkLen + chunkLen%2
	}

	return nil, fmt.Errorf("decoding wav: no data chunk")
}

// compressClip encodes the clip as zstd-compressed WAV for blob upload.
func compressClip(clip *domain.AudioClip) []byte {
	return zstdEncoder.EncodeAll(encodeWAV(clip), nil)
}

// decompressClip reverses compressClip.
func decompressClip(data []byte) (*domain.AudioClip, error) {
	wav, err := zstdDecoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompressing audio: %w", err)
	}
	return decodeWAV(wav)
}
