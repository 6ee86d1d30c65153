package commander

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseYawMode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    YawMode
		wantErr bool
	}{
		{in: "carefree", want: Carefree},
		{in: " Plus ", want: PlusMode},
		{in: "x", want: XMode},
		{in: "XMODE", want: XMode},
		{in: "diagonal", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseYawMode(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestYawModeStringRoundTrip(t *testing.T) {
	t.Parallel()
	for _, m := range []YawMode{Carefree, PlusMode, XMode} {
		got, err := ParseYawMode(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
	assert.Equal(t, "yaw_mode(9)", YawMode(9).String())
}

func TestFlightModesValidate(t *testing.T) {
	t.Parallel()
	assert.NoError(t, DefaultConfig().Modes.Validate())
	assert.Error(t, FlightModes{YawMode: 3}.Validate())
	assert.Error(t, FlightModes{StabModePitch: 2}.Validate())
}
