package voice

import (
	"errors"
	"math"
)

// ActivityGate classifies one fixed-duration audio window as speech or
// silence. Classification is stateless across windows and must be cheap
// enough to run inline at the window arrival cadence.
type ActivityGate interface {
	Classify(window []int16) (bool, error)
}

var ErrEmptyWindow = errors.New("activity gate: empty window")

// EnergyGate is a pure-Go gate based on normalized RMS energy. The default
// threshold suits 16 kHz 20 ms windows of conversational speech.
type EnergyGate struct {
	threshold float64
}

const defaultEnergyThreshold = 0.012

func NewEnergyGate(threshold float64) *EnergyGate {
	if threshold <= 0 {
		threshold = defaultEnergyThreshold
	}
	return &EnergyGate{threshold: threshold}
}

func (g *EnergyGate) Classify(window []int16) (bool, error) {
	if len(window) == 0 {
		return false, ErrEmptyWindow
	}
	var sum float64
	for _, s := range window {
		v := float64(s) / 32768.0
		sum += v * v
	}
	rms := math.Sqrt(sum / float64(len(window)))
	return rms >= g.threshold, nil
}
