package source

import (
	"fmt"
	"slices"
	"sort"

	evdev "github.com/gvalkov/golang-evdev"
)

// DeviceGlob is where evdev nodes are looked up.
const DeviceGlob = "/dev/input/event*"

// Device summarises an evdev node for listing.
type Device struct {
	Path    string `json:"path"`
	Name    string `json:"name"`
	Phys    string `json:"phys"`
	Bustype uint16 `json:"bustype"`
	Vendor  uint16 `json:"vendor"`
	Product uint16 `json:"product"`
	Version uint16 `json:"version"`
	// Stick is set when the device reports both stick axes.
	Stick bool `json:"stick"`
}

func (d Device) String() string {
	stick := ""
	if d.Stick {
		stick = " [stick]"
	}
	return fmt.Sprintf("%-20s %04x:%04x %q%s", d.Path, d.Vendor, d.Product, d.Name, stick)
}

// ListDevices enumerates readable evdev nodes.
func ListDevices() ([]Device, error) {
	devs, err := evdev.ListInputDevices(DeviceGlob)
	if err != nil {
		return nil, fmt.Errorf("list input devices: %w", err)
	}

	out := make([]Device, 0, len(devs))
	for _, d := range devs {
		out = append(out, Device{
			Path:    d.Fn,
			Name:    d.Name,
			Phys:    d.Phys,
			Bustype: d.Bustype,
			Vendor:  d.Vendor,
			Product: d.Product,
			Version: d.Version,
			Stick:   hasStick(d.CapabilitiesFlat, evdev.ABS_X, evdev.ABS_Y),
		})
		d.File.Close()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func hasStick(caps map[int][]int, x, y int) bool {
	abs := caps[evdev.EV_ABS]
	return slices.Contains(abs, x) && slices.Contains(abs, y)
}
