package domain

// SampleRate is the fixed sample rate of all synthesized speech clips.
const SampleRate = 24000

// AudioClip is a mono PCM buffer keyed 1:1 by its owning task's ID.
// It has no identity of its own: deleting the task deletes the clip.
type AudioClip struct {
	// Samples are normalized mono samples in [-1, 1].
	Samples []float32

	// SampleRate is samples per second; always SampleRate for synthesized clips.
	SampleRate int
}

// NewClip wraps samples in a clip at the standard sample rate.
func NewClip(samples []float32) *AudioClip {
	return &AudioClip{Samples: samples, SampleRate: SampleRate}
}

// Duration returns the clip length in seconds.
func (c *AudioClip) Duration() float64 {
	if c.SampleRate == 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate)
}

// ClipFromPCM16 converts little-endian 16-bit PCM bytes, as returned by the
// speech provider, into a normalized clip. A trailing odd byte is dropped.
func ClipFromPCM16(data []byte) *AudioClip {
	n := len(data) / 2
	samples := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(uint16(data[2*i]) | uint16(data[2*i+1])<<8)
		samples[i] = float32(v) / 32768.0
	}
	return NewClip(samples)
}
