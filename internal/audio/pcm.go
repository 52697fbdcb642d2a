package audio

// SilencePCM16 produces ms milliseconds of PCM16LE mono silence at sampleRate.
func SilencePCM16(sampleRate, ms int) []byte {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	if ms <= 0 {
		ms = 100
	}
	samples := sampleRate * ms / 1000
	return make([]byte, samples*2)
}
