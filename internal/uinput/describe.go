package uinput

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"unsafe"

	evdev "github.com/gvalkov/golang-evdev"
	"golang.org/x/sys/unix"
)

// prober reads what Describe needs from a device.
type prober interface {
	identity() (name string, id inputID)
	capabilities() map[int][]int
	absInfo(code uint16) (AbsInfo, error)
	properties() ([]Prop, error)
	driverVersion() (uint32, error)
}

// Describe reads the identity, capabilities and axis ranges of the evdev
// node at path.
func Describe(path string) (Descriptor, error) {
	dev, err := evdev.Open(path)
	if err != nil {
		return Descriptor{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer dev.File.Close()
	return describe(evdevProber{dev})
}

func describe(p prober) (Descriptor, error) {
	name, id := p.identity()
	d := Descriptor{
		Name:    name,
		Product: id.Product,
		Vendor:  id.Vendor,
		Bustype: Bus(id.Bustype),
		Version: id.Version,
		Events:  Events{Codes: make(map[uint16][]uint16), Abs: make(map[uint16]AbsInfo)},
	}

	var err error
	if d.DriverVersion, err = p.driverVersion(); err != nil {
		return Descriptor{}, fmt.Errorf("driver version: %w", err)
	}
	if d.Properties, err = p.properties(); err != nil {
		return Descriptor{}, fmt.Errorf("properties: %w", err)
	}

	caps := p.capabilities()
	for _, typ := range slices.Sorted(maps.Keys(caps)) {
		codes := slices.Clone(caps[typ])
		slices.Sort(codes)
		if typ == evdev.EV_ABS {
			for _, c := range codes {
				info, err := p.absInfo(uint16(c))
				if err != nil {
					return Descriptor{}, fmt.Errorf("axis %d: %w", c, err)
				}
				d.Events.Abs[uint16(c)] = info
			}
			continue
		}
		if _, ok := codeMax[uint16(typ)]; !ok {
			continue
		}
		list := make([]uint16, 0, len(codes))
		for _, c := range codes {
			list = append(list, uint16(c))
		}
		d.Events.Codes[uint16(typ)] = list
	}
	return d, nil
}

type evdevProber struct {
	dev *evdev.InputDevice
}

func (e evdevProber) fd() int { return int(e.dev.File.Fd()) }

func (e evdevProber) identity() (string, inputID) {
	return e.dev.Name, inputID{
		Bustype: e.dev.Bustype,
		Vendor:  e.dev.Vendor,
		Product: e.dev.Product,
		Version: e.dev.Version,
	}
}

func (e evdevProber) capabilities() map[int][]int {
	return e.dev.CapabilitiesFlat
}

func (e evdevProber) absInfo(code uint16) (AbsInfo, error) {
	var info AbsInfo
	err := ioctlPtr(e.fd(), eviocGAbs(code), unsafe.Pointer(&info))
	return info, err
}

func (e evdevProber) properties() ([]Prop, error) {
	var bits [(propMax + 1) / 8]byte
	err := ioctlPtr(e.fd(), eviocGProp(uint(len(bits))), unsafe.Pointer(&bits[0]))
	if err != nil {
		// older kernels lack EVIOCGPROP
		if errors.Is(err, unix.EINVAL) || errors.Is(err, unix.ENOTTY) {
			return nil, nil
		}
		return nil, err
	}
	return propsFromBits(bits[:]), nil
}

func (e evdevProber) driverVersion() (uint32, error) {
	v, err := unix.IoctlGetInt(e.fd(), eviocGVersion)
	return uint32(v), err
}

func propsFromBits(bits []byte) []Prop {
	var props []Prop
	for i, b := range bits {
		for bit := 0; bit < 8; bit++ {
			if b&(1<<bit) != 0 {
				props = append(props, Prop(i*8+bit))
			}
		}
	}
	return props
}
