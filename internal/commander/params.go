package commander

import (
	"fmt"
	"strings"
)

// RPYType selects whether an axis setpoint is an angle or a rate.
type RPYType uint8

const (
	Rate  RPYType = 0
	Angle RPYType = 1
)

func (t RPYType) String() string {
	switch t {
	case Rate:
		return "rate"
	case Angle:
		return "angle"
	default:
		return fmt.Sprintf("rpy_type(%d)", uint8(t))
	}
}

// YawMode selects the frame the yaw setpoint is interpreted in.
type YawMode uint8

const (
	// Carefree locks yaw to world coordinates so heading is kept while yawing.
	Carefree YawMode = 0
	// PlusMode treats motor M1 as the front.
	PlusMode YawMode = 1
	// XMode treats M1 and M4 as the front.
	XMode YawMode = 2
)

func (m YawMode) String() string {
	switch m {
	case Carefree:
		return "carefree"
	case PlusMode:
		return "plus"
	case XMode:
		return "x"
	default:
		return fmt.Sprintf("yaw_mode(%d)", uint8(m))
	}
}

// ParseYawMode accepts the names produced by YawMode.String.
func ParseYawMode(s string) (YawMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "carefree":
		return Carefree, nil
	case "plus", "plusmode", "+":
		return PlusMode, nil
	case "x", "xmode":
		return XMode, nil
	}
	return 0, fmt.Errorf("unknown yaw mode %q: expected carefree, plus or x", s)
}

// FlightModes is the externally settable flight-mode parameter group. The
// commander only stores these values; the controller interprets them.
type FlightModes struct {
	AltHold            bool    `json:"althold"`
	YawMode            YawMode `json:"yaw_mode"`
	CarefreeResetFront bool    `json:"yaw_reset"`
	StabModeRoll       RPYType `json:"stab_mode_roll"`
	StabModePitch      RPYType `json:"stab_mode_pitch"`
	StabModeYaw        RPYType `json:"stab_mode_yaw"`
}

// Validate rejects values outside the enumerations.
func (m FlightModes) Validate() error {
	if m.YawMode > XMode {
		return fmt.Errorf("invalid yaw mode %d", m.YawMode)
	}
	for name, v := range map[string]RPYType{"roll": m.StabModeRoll, "pitch": m.StabModePitch, "yaw": m.StabModeYaw} {
		if v > Angle {
			return fmt.Errorf("invalid stabilization type %d for %s", v, name)
		}
	}
	return nil
}
