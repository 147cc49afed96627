package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// wavHeaderSize is the length of the canonical RIFF/WAVE header produced by
// [EncodeWAV]: "RIFF" chunk descriptor, "fmt " sub-chunk, "data" sub-chunk
// header. Interop with the EVA server requires this exact layout.
const wavHeaderSize = 44

// wavFormatPCM is the linear-PCM audio format tag.
const wavFormatPCM = 1

// WAVInfo describes the format of a WAV stream as recovered from its header.
type WAVInfo struct {
	SampleRate    int
	Channels      int
	BitsPerSample int

	// DataBytes is the size of the PCM payload following the header.
	DataBytes int
}

// EncodeWAV writes a minimal linear-PCM WAV file to w: a 44-byte header
// followed by pcm verbatim. pcm must already be little-endian samples at the
// stated format. Output is byte-exact for identical inputs.
func EncodeWAV(w io.Writer, pcm []byte, sampleRate, channels, bitsPerSample int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("audio: encode wav: sample rate %d must be positive", sampleRate)
	}
	if channels <= 0 {
		return fmt.Errorf("audio: encode wav: channel count %d must be positive", channels)
	}
	if bitsPerSample <= 0 || bitsPerSample%8 != 0 {
		return fmt.Errorf("audio: encode wav: bits per sample %d must be a positive multiple of 8", bitsPerSample)
	}

	blockAlign := channels * bitsPerSample / 8
	byteRate := sampleRate * blockAlign

	var hdr [wavHeaderSize]byte
	copy(hdr[0:4], "RIFF")
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(36+len(pcm)))
	copy(hdr[8:12], "WAVE")
	copy(hdr[12:16], "fmt ")
	binary.LittleEndian.PutUint32(hdr[16:20], 16)
	binary.LittleEndian.PutUint16(hdr[20:22], wavFormatPCM)
	binary.LittleEndian.PutUint16(hdr[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(hdr[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(hdr[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(hdr[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(hdr[34:36], uint16(bitsPerSample))
	copy(hdr[36:40], "data")
	binary.LittleEndian.PutUint32(hdr[40:44], uint32(len(pcm)))

	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("audio: encode wav: write header: %w", err)
	}
	if _, err := w.Write(pcm); err != nil {
		return fmt.Errorf("audio: encode wav: write data: %w", err)
	}
	return nil
}

// EncodeWAVBytes is a convenience wrapper around [EncodeWAV] for callers that
// want the whole file in memory, e.g. for a multipart upload.
func EncodeWAVBytes(pcm []byte, sampleRate, channels, bitsPerSample int) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderSize+len(pcm)))
	if err := EncodeWAV(buf, pcm, sampleRate, channels, bitsPerSample); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeWAVHeader reads the canonical 44-byte header produced by [EncodeWAV]
// and returns the recovered format. The reader is left positioned at the
// first byte of PCM data.
func DecodeWAVHeader(r io.Reader) (WAVInfo, error) {
	var hdr [wavHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return WAVInfo{}, fmt.Errorf("audio: decode wav: read header: %w", err)
	}

	if string(hdr[0:4]) != "RIFF" || string(hdr[8:12]) != "WAVE" {
		return WAVInfo{}, fmt.Errorf("audio: decode wav: not a RIFF/WAVE stream")
	}
	if string(hdr[12:16]) != "fmt " {
		return WAVInfo{}, fmt.Errorf("audio: decode wav: missing fmt sub-chunk")
	}
	if tag := binary.LittleEndian.Uint16(hdr[20:22]); tag != wavFormatPCM {
		return WAVInfo{}, fmt.Errorf("audio: decode wav: unsupported format tag %d", tag)
	}
	if string(hdr[36:40]) != "data" {
		return WAVInfo{}, fmt.Errorf("audio: decode wav: missing data sub-chunk")
	}

	return WAVInfo{
		Channels:      int(binary.LittleEndian.Uint16(hdr[22:24])),
		SampleRate:    int(binary.LittleEndian.Uint32(hdr[24:28])),
		BitsPerSample: int(binary.LittleEndian.Uint16(hdr[34:36])),
		DataBytes:     int(binary.LittleEndian.Uint32(hdr[40:44])),
	}, nil
}
