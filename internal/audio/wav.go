package audio

import (
	"encoding/binary"
	"fmt"
	"os"
)

// WriteSilenceWAV writes a 16-bit PCM mono WAV of the given length filled
// with zero samples. The warm-up path uses it to exercise a freshly loaded
// model without shipping audio fixtures.
func WriteSilenceWAV(path string, seconds float64, sampleRate int) error {
	if seconds <= 0 {
		return fmt.Errorf("silence duration must be positive, got %v", seconds)
	}
	if sampleRate <= 0 {
		sampleRate = SampleRate
	}

	sampleCount := int(seconds * float64(sampleRate))
	dataSize := sampleCount * 2

	buf := make([]byte, 44+dataSize)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], 1) // mono
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*2))
	binary.LittleEndian.PutUint16(buf[32:34], 2)
	binary.LittleEndian.PutUint16(buf[34:36], 16)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))

	return os.WriteFile(path, buf, 0o644)
}
