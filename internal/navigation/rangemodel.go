package navigation

import (
	"math"

	"github.com/banshee-data/meshpilot/internal/setpoint"
)

// RangeModel estimates the distance in metres from this node to the sender
// of a frame. ok is false when the frame carries no usable range.
type RangeModel interface {
	Range(r setpoint.Record) (metres float64, ok bool)
}

// RangeFunc adapts a function to RangeModel.
type RangeFunc func(r setpoint.Record) (float64, bool)

// Range calls f(r).
func (f RangeFunc) Range(r setpoint.Record) (float64, bool) { return f(r) }

// PathLossModel is a log-distance path loss model driven by the
// link-quality byte, read as attenuation in dB:
//
//	d = RefDistance * 10^((attenuation - RefAttenuation) / (10 * Exponent))
type PathLossModel struct {
	RefAttenuation float64 `json:"ref_attenuation_db" yaml:"ref_attenuation_db"`
	RefDistance    float64 `json:"ref_distance_m" yaml:"ref_distance_m"`
	Exponent       float64 `json:"exponent" yaml:"exponent"`
}

const (
	DefaultRefAttenuation = 40.0
	DefaultRefDistance    = 1.0
	DefaultExponent       = 2.5
)

// DefaultPathLoss returns an indoor model with a 1 m reference.
func DefaultPathLoss() PathLossModel {
	return PathLossModel{
		RefAttenuation: DefaultRefAttenuation,
		RefDistance:    DefaultRefDistance,
		Exponent:       DefaultExponent,
	}
}

// Range implements RangeModel. A zero link-quality byte means the radio
// did not report one.
func (m PathLossModel) Range(r setpoint.Record) (float64, bool) {
	if r.LinkQuality == 0 || m.Exponent <= 0 || m.RefDistance <= 0 {
		return 0, false
	}
	return m.RefDistance * math.Pow(10, (float64(r.LinkQuality)-m.RefAttenuation)/(10*m.Exponent)), true
}
