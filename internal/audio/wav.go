package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
)

// EncodeWAV renders the clip as a 16-bit PCM mono RIFF/WAVE file.
func EncodeWAV(c *Clip) []byte {
	dataLen := len(c.Samples) * 2
	buf := make([]byte, 44+dataLen)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataLen))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], 1) // mono
	binary.LittleEndian.PutUint32(buf[24:28], uint32(c.SampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(c.SampleRate*2))
	binary.LittleEndian.PutUint16(buf[32:34], 2)
	binary.LittleEndian.PutUint16(buf[34:36], 16)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataLen))

	for i, s := range c.Samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		v := int16(math.Round(s * 32767))
		binary.LittleEndian.PutUint16(buf[44+i*2:], uint16(v))
	}
	return buf
}

// DecodeWAV parses a 16-bit PCM RIFF/WAVE file, downmixing multi-channel
// audio to mono by averaging.
func DecodeWAV(data []byte) (*Clip, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, fmt.Errorf("not a RIFF/WAVE file")
	}

	var (
		sampleRate int
		channels   int
		bits       int
		pcm        []byte
	)
	offset := 12
	for offset+8 <= len(data) {
		chunkID := string(data[offset : offset+4])
		chunkLen := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8
		if body+chunkLen > len(data) {
			chunkLen = len(data) - body
		}
		switch chunkID {
		case "fmt ":
			if chunkLen < 16 {
				return nil, fmt.Errorf("short fmt chunk")
			}
			format := int(binary.LittleEndian.Uint16(data[body : body+2]))
			if format != 1 {
				return nil, fmt.Errorf("unsupported WAV format %d, want PCM", format)
			}
			channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bits = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
		case "data":
			pcm = data[body : body+chunkLen]
		}
		// Chunks are word aligned.
		offset = body + chunkLen
		if chunkLen%2 == 1 {
			offset++
		}
	}

	if sampleRate == 0 || channels == 0 {
		return nil, fmt.Errorf("missing fmt chunk")
	}
	if bits != 16 {
		return nil, fmt.Errorf("unsupported bit depth %d, want 16", bits)
	}
	if pcm == nil {
		return nil, fmt.Errorf("missing data chunk")
	}

	frameSize := channels * 2
	frames := len(pcm) / frameSize
	clip := &Clip{SampleRate: sampleRate, Samples: make([]float64, frames)}
	for i := 0; i < frames; i++ {
		var sum float64
		for ch := 0; ch < channels; ch++ {
			v := int16(binary.LittleEndian.Uint16(pcm[i*frameSize+ch*2:]))
			sum += float64(v) / 32768
		}
		clip.Samples[i] = sum / float64(channels)
	}
	return clip, nil
}

// ReadWAVFile loads and decodes a WAV from disk.
func ReadWAVFile(path string) (*Clip, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read wav: %w", err)
	}
	return DecodeWAV(data)
}
