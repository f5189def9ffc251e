package audio

import (
	"fmt"
	"math"
)

// MixRate is the pipeline-wide output sample rate.
const MixRate = 48000

// Clip is mono PCM in float64 samples, range [-1, 1].
type Clip struct {
	SampleRate int
	Samples    []float64
}

func NewClip(sampleRate int, durationSec float64) *Clip {
	n := int(math.Round(durationSec * float64(sampleRate)))
	if n < 0 {
		n = 0
	}
	return &Clip{SampleRate: sampleRate, Samples: make([]float64, n)}
}

func (c *Clip) Duration() float64 {
	if c.SampleRate == 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate)
}

// Tone synthesizes a sine at freq Hz with a short fade envelope so abutting
// segments do not click.
func Tone(freq float64, durationSec float64, sampleRate int) *Clip {
	clip := NewClip(sampleRate, durationSec)
	n := len(clip.Samples)
	fade := sampleRate / 100
	if fade*2 > n {
		fade = n / 2
	}
	for i := 0; i < n; i++ {
		sample := 0.4 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
		if i < fade {
			sample *= float64(i) / float64(fade)
		}
		if i >= n-fade {
			sample *= float64(n-i) / float64(fade)
		}
		clip.Samples[i] = sample
	}
	return clip
}

// Resample converts to the target rate by linear interpolation.
func Resample(c *Clip, targetRate int) *Clip {
	if c.SampleRate == targetRate || len(c.Samples) == 0 {
		out := &Clip{SampleRate: targetRate, Samples: make([]float64, len(c.Samples))}
		copy(out.Samples, c.Samples)
		return out
	}
	ratio := float64(c.SampleRate) / float64(targetRate)
	n := int(math.Round(float64(len(c.Samples)) / ratio))
	out := &Clip{SampleRate: targetRate, Samples: make([]float64, n)}
	for i := 0; i < n; i++ {
		pos := float64(i) * ratio
		j := int(pos)
		if j >= len(c.Samples)-1 {
			out.Samples[i] = c.Samples[len(c.Samples)-1]
			continue
		}
		frac := pos - float64(j)
		out.Samples[i] = c.Samples[j]*(1-frac) + c.Samples[j+1]*frac
	}
	return out
}

// Stretch changes duration by the given factor at constant sample rate, so a
// factor of 1.1 plays 10% longer (and proportionally lower). Used for small
// tempo corrections, clamped by the caller.
func Stretch(c *Clip, factor float64) *Clip {
	if factor <= 0 {
		return &Clip{SampleRate: c.SampleRate}
	}
	n := int(math.Round(float64(len(c.Samples)) * factor))
	out := &Clip{SampleRate: c.SampleRate, Samples: make([]float64, n)}
	for i := 0; i < n; i++ {
		pos := float64(i) / factor
		j := int(pos)
		if j >= len(c.Samples)-1 {
			if len(c.Samples) > 0 {
				out.Samples[i] = c.Samples[len(c.Samples)-1]
			}
			continue
		}
		frac := pos - float64(j)
		out.Samples[i] = c.Samples[j]*(1-frac) + c.Samples[j+1]*frac
	}
	return out
}

// PlaceAt sums src into dst starting at tSec, growing dst as needed.
func PlaceAt(dst *Clip, src *Clip, tSec float64) error {
	if dst.SampleRate != src.SampleRate {
		return fmt.Errorf("sample rate mismatch: %d vs %d", dst.SampleRate, src.SampleRate)
	}
	start := int(math.Round(tSec * float64(dst.SampleRate)))
	if start < 0 {
		start = 0
	}
	need := start + len(src.Samples)
	if need > len(dst.Samples) {
		grown := make([]float64, need)
		copy(grown, dst.Samples)
		dst.Samples = grown
	}
	for i, s := range src.Samples {
		dst.Samples[start+i] += s
	}
	return nil
}

// ApplyGain scales in place.
func ApplyGain(c *Clip, gain float64) {
	for i := range c.Samples {
		c.Samples[i] *= gain
	}
}

// MixInto sums src into dst sample by sample, growing dst as needed.
func MixInto(dst *Clip, src *Clip) error {
	return PlaceAt(dst, src, 0)
}

// Clamp limits samples to [-1, 1] before PCM encoding.
func Clamp(c *Clip) {
	for i, s := range c.Samples {
		if s > 1 {
			c.Samples[i] = 1
		} else if s < -1 {
			c.Samples[i] = -1
		}
	}
}
