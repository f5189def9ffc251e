package audio

import "math"

// Integrated loudness per ITU-R BS.1770: K-weighting (shelf + high-pass
// biquads), 400 ms blocks with 75% overlap, -70 LUFS absolute gate and -10 LU
// relative gate.

type biquad struct {
	b0, b1, b2, a1, a2 float64
	z1, z2             float64
}

func (f *biquad) process(x float64) float64 {
	y := f.b0*x + f.z1
	f.z1 = f.b1*x - f.a1*y + f.z2
	f.z2 = f.b2*x - f.a2*y
	return y
}

// shelfFilter is the stage-1 high-shelf of the K-weighting curve, designed
// for the clip's sample rate from the BS.1770 analog prototype.
func shelfFilter(sampleRate float64) *biquad {
	const (
		db = 3.999843853973347
		f0 = 1681.974450955533
		q  = 0.7071752369554196
	)
	k := math.Tan(math.Pi * f0 / sampleRate)
	vh := math.Pow(10, db/20)
	vb := math.Pow(vh, 0.4996667741545416)
	a0 := 1 + k/q + k*k
	return &biquad{
		b0: (vh + vb*k/q + k*k) / a0,
		b1: 2 * (k*k - vh) / a0,
		b2: (vh - vb*k/q + k*k) / a0,
		a1: 2 * (k*k - 1) / a0,
		a2: (1 - k/q + k*k) / a0,
	}
}

// highpassFilter is the stage-2 RLB high-pass.
func highpassFilter(sampleRate float64) *biquad {
	const (
		f0 = 38.13547087602444
		q  = 0.5003270373238773
	)
	k := math.Tan(math.Pi * f0 / sampleRate)
	a0 := 1 + k/q + k*k
	return &biquad{
		b0: 1 / a0,
		b1: -2 / a0,
		b2: 1 / a0,
		a1: 2 * (k*k - 1) / a0,
		a2: (1 - k/q + k*k) / a0,
	}
}

// MeasureLoudness returns integrated loudness in LUFS. Silent or too-short
// clips report -inf.
func MeasureLoudness(c *Clip) float64 {
	if c.SampleRate == 0 || len(c.Samples) == 0 {
		return math.Inf(-1)
	}
	shelf := shelfFilter(float64(c.SampleRate))
	hp := highpassFilter(float64(c.SampleRate))
	weighted := make([]float64, len(c.Samples))
	for i, s := range c.Samples {
		weighted[i] = hp.process(shelf.process(s))
	}

	blockSize := int(0.4 * float64(c.SampleRate))
	hop := blockSize / 4
	if blockSize == 0 || len(weighted) < blockSize {
		return math.Inf(-1)
	}

	var blockPowers []float64
	for start := 0; start+blockSize <= len(weighted); start += hop {
		var sum float64
		for _, s := range weighted[start : start+blockSize] {
			sum += s * s
		}
		blockPowers = append(blockPowers, sum/float64(blockSize))
	}

	loudnessOf := func(power float64) float64 {
		return -0.691 + 10*math.Log10(power)
	}

	// Absolute gate at -70 LUFS.
	var gated []float64
	for _, p := range blockPowers {
		if p > 0 && loudnessOf(p) > -70 {
			gated = append(gated, p)
		}
	}
	if len(gated) == 0 {
		return math.Inf(-1)
	}
	var sum float64
	for _, p := range gated {
		sum += p
	}
	relThreshold := loudnessOf(sum/float64(len(gated))) - 10

	// Relative gate at -10 LU below the first-pass level.
	var sum2 float64
	var n2 int
	for _, p := range gated {
		if loudnessOf(p) > relThreshold {
			sum2 += p
			n2++
		}
	}
	if n2 == 0 {
		return math.Inf(-1)
	}
	return loudnessOf(sum2 / float64(n2))
}

// NormalizeLoudness applies a flat gain so the clip measures targetLUFS.
// Immeasurable clips are returned untouched.
func NormalizeLoudness(c *Clip, targetLUFS float64) {
	measured := MeasureLoudness(c)
	if math.IsInf(measured, -1) {
		return
	}
	gain := math.Pow(10, (targetLUFS-measured)/20)
	ApplyGain(c, gain)
	Clamp(c)
}
