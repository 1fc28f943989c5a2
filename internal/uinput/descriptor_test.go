package uinput

import (
	"maps"
	"slices"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	evdev "github.com/gvalkov/golang-evdev"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/stick2wheel/internal/fsutil"
	"github.com/banshee-data/stick2wheel/internal/wheel"
)

const padYAML = `
NAME: Microsoft X-Box 360 pad
PRODUCT: 0x028e
VENDOR: 1118
BUSTYPE: BUS_USB
DRIVER_VERSION: 65537
PROPERTIES: []
EVENTS:
  EV_SYN: [SYN_REPORT, SYN_CONFIG, SYN_DROPPED]
  EV_KEY: [KEY_A, 305]
  EV_ABS:
    ABS_X: {VALUE: 0, MIN: -32768, MAX: 32767, FUZZ: 16, FLAT: 128, RES: 0}
    ABS_Y: {VALUE: 0, MIN: -32768, MAX: 32767, FUZZ: 16, FLAT: 128, RES: 0}
    ABS_Z: {VALUE: 0, MIN: 0, MAX: 255, FUZZ: 0, FLAT: 0, RES: 0}
  EV_FF: [FF_RUMBLE]
`

func TestParseDescriptor(t *testing.T) {
	d, err := ParseDescriptor([]byte(padYAML))
	require.NoError(t, err)

	assert.Equal(t, "Microsoft X-Box 360 pad", d.Name)
	assert.Equal(t, uint16(0x028e), d.Product)
	assert.Equal(t, uint16(0x045e), d.Vendor)
	assert.Equal(t, Bus(0x03), d.Bustype)
	assert.Equal(t, uint32(65537), d.DriverVersion)

	want := Events{
		Codes: map[uint16][]uint16{
			evdev.EV_SYN: {evdev.SYN_REPORT, evdev.SYN_CONFIG, evdev.SYN_DROPPED},
			evdev.EV_KEY: {evdev.KEY_A, 305},
			evdev.EV_FF:  {evdev.FF_RUMBLE},
		},
		Abs: map[uint16]AbsInfo{
			evdev.ABS_X: {Min: -32768, Max: 32767, Fuzz: 16, Flat: 128},
			evdev.ABS_Y: {Min: -32768, Max: 32767, Fuzz: 16, Flat: 128},
			evdev.ABS_Z: {Max: 255},
		},
	}
	if diff := cmp.Diff(want, d.Events); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestParseDescriptorAbsList(t *testing.T) {
	d, err := ParseDescriptor([]byte("NAME: stick\nEVENTS:\n  EV_ABS: [ABS_X, ABS_Y]\n"))
	require.NoError(t, err)
	assert.True(t, d.Events.Has(evdev.EV_ABS, evdev.ABS_X))
	assert.True(t, d.Events.Has(evdev.EV_ABS, evdev.ABS_Y))
	assert.False(t, d.Events.Has(evdev.EV_KEY, evdev.KEY_A))
}

func TestParseDescriptorErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown type", "NAME: x\nEVENTS:\n  EV_BOGUS: [1]\n", "unknown event type"},
		{"unknown code", "NAME: x\nEVENTS:\n  EV_KEY: [KEY_NOPE]\n", "unknown EV_KEY code"},
		{"scalar events", "NAME: x\nEVENTS: 3\n", "must be a mapping"},
		{"scalar codes", "NAME: x\nEVENTS:\n  EV_KEY: KEY_A\n", "must list its codes"},
		{"bad bus", "NAME: x\nBUSTYPE: BUS_TELEGRAPH\nEVENTS:\n  EV_KEY: [KEY_A]\n", "bus type"},
		{"missing name", "EVENTS:\n  EV_KEY: [KEY_A]\n", "name is required"},
		{"no events", "NAME: x\n", "no events declared"},
		{"inverted range", "NAME: x\nEVENTS:\n  EV_ABS:\n    ABS_X: {MIN: 10, MAX: 0}\n", "min 10 above max 0"},
		{"code too large", "NAME: x\nEVENTS:\n  EV_REL: [99]\n", "out of range"},
		{"name too long", "NAME: " + strings.Repeat("n", 90) + "\nEVENTS:\n  EV_KEY: [KEY_A]\n", "limit is 79"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDescriptor([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestDescriptorMarshal(t *testing.T) {
	d, err := ParseDescriptor([]byte(padYAML))
	require.NoError(t, err)
	d.Properties = []Prop{0x01}

	out, err := d.Marshal()
	require.NoError(t, err)
	text := string(out)

	assert.Contains(t, text, "BUSTYPE: BUS_USB")
	assert.Contains(t, text, "PROPERTIES: [INPUT_PROP_DIRECT]")
	assert.Contains(t, text, "EV_FF: [FF_RUMBLE]")
	assert.Contains(t, text, "ABS_Z: {VALUE: 0, MIN: 0, MAX: 255, FUZZ: 0, FLAT: 0, RES: 0}")
	assert.Less(t, strings.Index(text, "EV_SYN"), strings.Index(text, "EV_KEY"), "types are sorted")

	back, err := ParseDescriptor(out)
	require.NoError(t, err)
	if diff := cmp.Diff(d, back); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadDescriptor(t *testing.T) {
	m := fsutil.NewMemoryFileSystem()
	require.NoError(t, m.WriteFile("/etc/pad.yaml", []byte(padYAML), 0o644))

	d, err := LoadDescriptor(m, "/etc/pad.yaml")
	require.NoError(t, err)
	assert.Equal(t, "Microsoft X-Box 360 pad", d.Name)

	_, err = LoadDescriptor(m, "/etc/missing.yaml")
	assert.Error(t, err)

	require.NoError(t, m.WriteFile("/etc/bad.yaml", []byte("NAME: [\n"), 0o644))
	_, err = LoadDescriptor(m, "/etc/bad.yaml")
	assert.ErrorContains(t, err, "/etc/bad.yaml")
}

func TestWheelDescriptor(t *testing.T) {
	base, err := ParseDescriptor([]byte(padYAML))
	require.NoError(t, err)

	d := WheelDescriptor(base, wheel.DefaultParams())

	assert.Equal(t, AbsInfo{Value: 32767, Min: 0, Max: 65534}, d.Events.Abs[evdev.ABS_X])
	assert.False(t, d.Events.Has(evdev.EV_ABS, evdev.ABS_Y), "stick Y no longer carries events")
	assert.True(t, d.Events.Has(evdev.EV_ABS, evdev.ABS_Z))
	require.NoError(t, d.Validate())

	// the base is untouched
	assert.Equal(t, int32(-32768), base.Events.Abs[evdev.ABS_X].Min)
	assert.True(t, base.Events.Has(evdev.EV_ABS, evdev.ABS_Y))
}

func TestWheelDescriptorSeparateOutputAxis(t *testing.T) {
	base, err := ParseDescriptor([]byte("NAME: stick\nEVENTS:\n  EV_ABS: [ABS_RX, ABS_RY]\n"))
	require.NoError(t, err)

	p := wheel.DefaultParams()
	p.InputX, p.InputY, p.OutputAxis = evdev.ABS_RX, evdev.ABS_RY, evdev.ABS_WHEEL
	d := WheelDescriptor(base, p)

	assert.Equal(t, []uint16{evdev.ABS_WHEEL}, slices.Sorted(maps.Keys(d.Events.Abs)))
	assert.Equal(t, []uint16{evdev.SYN_REPORT}, d.Events.Codes[evdev.EV_SYN])
}

func TestBusAndPropNames(t *testing.T) {
	assert.Equal(t, "BUS_BLUETOOTH", Bus(0x05).String())
	assert.Equal(t, "0x99", Bus(0x99).String())
	assert.Equal(t, "INPUT_PROP_BUTTONPAD", Prop(2).String())
	assert.Equal(t, "0x1e", Prop(0x1e).String())
}
