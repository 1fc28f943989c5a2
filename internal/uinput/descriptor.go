// Package uinput creates virtual input devices from YAML descriptors and
// feeds them raw input events.
//
// Descriptors use the layout printed by interception-tools' `uinput -p`:
//
//	NAME: Wireless Controller
//	PRODUCT: 2508
//	VENDOR: 1356
//	BUSTYPE: BUS_USB
//	DRIVER_VERSION: 65537
//	EVENTS:
//	  EV_SYN: [SYN_REPORT, SYN_DROPPED]
//	  EV_KEY: [BTN_SOUTH, BTN_EAST]
//	  EV_ABS:
//	    ABS_X: {VALUE: 0, MIN: 0, MAX: 65534, FUZZ: 0, FLAT: 0, RES: 0}
package uinput

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	evdev "github.com/gvalkov/golang-evdev"
	"gopkg.in/yaml.v3"

	"github.com/banshee-data/stick2wheel/internal/fsutil"
	"github.com/banshee-data/stick2wheel/internal/inputevent"
	"github.com/banshee-data/stick2wheel/internal/wheel"
)

// MaxNameSize is UINPUT_MAX_NAME_SIZE including the terminating NUL.
const MaxNameSize = 80

// AbsInfo is struct input_absinfo.
type AbsInfo struct {
	Value int32 `yaml:"VALUE"`
	Min   int32 `yaml:"MIN"`
	Max   int32 `yaml:"MAX"`
	Fuzz  int32 `yaml:"FUZZ"`
	Flat  int32 `yaml:"FLAT"`
	Res   int32 `yaml:"RES"`
}

// Descriptor is the identity and capability set of an input device.
type Descriptor struct {
	Name          string `yaml:"NAME"`
	Product       uint16 `yaml:"PRODUCT"`
	Vendor        uint16 `yaml:"VENDOR"`
	Bustype       Bus    `yaml:"BUSTYPE"`
	Version       uint16 `yaml:"VERSION,omitempty"`
	DriverVersion uint32 `yaml:"DRIVER_VERSION,omitempty"`
	Properties    []Prop `yaml:"PROPERTIES,omitempty,flow"`
	Events        Events `yaml:"EVENTS"`
}

// Events lists the supported codes per event type. Absolute axes carry their
// ranges.
type Events struct {
	Codes map[uint16][]uint16
	Abs   map[uint16]AbsInfo
}

// codeMax is the highest valid code per settable event type.
var codeMax = map[uint16]uint16{
	evdev.EV_SYN: 0x0f,
	evdev.EV_KEY: 0x2ff,
	evdev.EV_REL: 0x0f,
	evdev.EV_ABS: 0x3f,
	evdev.EV_MSC: 0x07,
	evdev.EV_SW:  0x10,
	evdev.EV_LED: 0x0f,
	evdev.EV_SND: 0x07,
	evdev.EV_REP: 0x01,
	evdev.EV_FF:  0x7f,
}

// Types returns the event types present, sorted.
func (e Events) Types() []uint16 {
	seen := make(map[uint16]bool, len(e.Codes)+1)
	for typ := range e.Codes {
		seen[typ] = true
	}
	if len(e.Abs) > 0 {
		seen[evdev.EV_ABS] = true
	}
	return slices.Sorted(maps.Keys(seen))
}

// Has reports whether the descriptor declares typ/code.
func (e Events) Has(typ, code uint16) bool {
	if typ == evdev.EV_ABS {
		_, ok := e.Abs[code]
		return ok
	}
	return slices.Contains(e.Codes[typ], code)
}

func (e Events) clone() Events {
	out := Events{Codes: make(map[uint16][]uint16, len(e.Codes)), Abs: maps.Clone(e.Abs)}
	for typ, codes := range e.Codes {
		out.Codes[typ] = slices.Clone(codes)
	}
	if out.Abs == nil {
		out.Abs = make(map[uint16]AbsInfo)
	}
	return out
}

// UnmarshalYAML reads the EVENTS mapping. EV_ABS may be a mapping of axis to
// AbsInfo or a plain list of axes.
func (e *Events) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: EVENTS must be a mapping", node.Line)
	}
	e.Codes = make(map[uint16][]uint16)
	e.Abs = make(map[uint16]AbsInfo)

	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		typ, err := inputevent.ParseType(key.Value)
		if err != nil {
			return fmt.Errorf("line %d: %w", key.Line, err)
		}

		if typ == evdev.EV_ABS && val.Kind == yaml.MappingNode {
			for j := 0; j+1 < len(val.Content); j += 2 {
				axis, info := val.Content[j], val.Content[j+1]
				code, err := inputevent.ParseCode(typ, axis.Value)
				if err != nil {
					return fmt.Errorf("line %d: %w", axis.Line, err)
				}
				var ai AbsInfo
				if err := info.Decode(&ai); err != nil {
					return fmt.Errorf("line %d: %s: %w", info.Line, axis.Value, err)
				}
				e.Abs[code] = ai
			}
			continue
		}

		if val.Kind != yaml.SequenceNode {
			return fmt.Errorf("line %d: %s must list its codes", val.Line, key.Value)
		}
		for _, item := range val.Content {
			code, err := inputevent.ParseCode(typ, item.Value)
			if err != nil {
				return fmt.Errorf("line %d: %w", item.Line, err)
			}
			if typ == evdev.EV_ABS {
				e.Abs[code] = AbsInfo{}
				continue
			}
			if !slices.Contains(e.Codes[typ], code) {
				e.Codes[typ] = append(e.Codes[typ], code)
			}
		}
		// a type listed with no codes still sets its EV bit
		if typ != evdev.EV_ABS {
			if _, ok := e.Codes[typ]; !ok {
				e.Codes[typ] = []uint16{}
			}
		}
	}
	for typ := range e.Codes {
		slices.Sort(e.Codes[typ])
	}
	return nil
}

// MarshalYAML writes codes by name in the compact flow style.
func (e Events) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, typ := range e.Types() {
		key := &yaml.Node{Kind: yaml.ScalarNode, Value: inputevent.TypeName(typ)}

		if typ == evdev.EV_ABS {
			axes := &yaml.Node{Kind: yaml.MappingNode}
			for _, code := range slices.Sorted(maps.Keys(e.Abs)) {
				info := &yaml.Node{}
				if err := info.Encode(e.Abs[code]); err != nil {
					return nil, err
				}
				info.Style = yaml.FlowStyle
				axes.Content = append(axes.Content,
					&yaml.Node{Kind: yaml.ScalarNode, Value: inputevent.CodeName(typ, code)}, info)
			}
			node.Content = append(node.Content, key, axes)
			continue
		}

		list := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
		for _, code := range e.Codes[typ] {
			list.Content = append(list.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: inputevent.CodeName(typ, code)})
		}
		node.Content = append(node.Content, key, list)
	}
	return node, nil
}

// Bus is the BUS_* identifier of a device.
type Bus uint16

var busNames = map[Bus]string{
	0x01: "BUS_PCI",
	0x02: "BUS_ISAPNP",
	0x03: "BUS_USB",
	0x04: "BUS_HIL",
	0x05: "BUS_BLUETOOTH",
	0x06: "BUS_VIRTUAL",
	0x10: "BUS_ISA",
	0x11: "BUS_I8042",
	0x12: "BUS_XTKBD",
	0x13: "BUS_RS232",
	0x14: "BUS_GAMEPORT",
	0x15: "BUS_PARPORT",
	0x16: "BUS_AMIGA",
	0x17: "BUS_ADB",
	0x18: "BUS_I2C",
	0x19: "BUS_HOST",
	0x1a: "BUS_GSC",
	0x1b: "BUS_ATARI",
	0x1c: "BUS_SPI",
	0x1d: "BUS_RMI",
	0x1e: "BUS_CEC",
	0x1f: "BUS_INTEL_ISHTP",
}

func (b Bus) String() string {
	if name, ok := busNames[b]; ok {
		return name
	}
	return "0x" + strconv.FormatUint(uint64(b), 16)
}

func (b *Bus) UnmarshalYAML(node *yaml.Node) error {
	v, err := parseNamed(node.Value, busNames)
	if err != nil {
		return fmt.Errorf("line %d: bus type: %w", node.Line, err)
	}
	*b = v
	return nil
}

func (b Bus) MarshalYAML() (any, error) {
	if name, ok := busNames[b]; ok {
		return name, nil
	}
	return uint16(b), nil
}

// Prop is an INPUT_PROP_* device property.
type Prop uint16

var propNames = map[Prop]string{
	0x00: "INPUT_PROP_POINTER",
	0x01: "INPUT_PROP_DIRECT",
	0x02: "INPUT_PROP_BUTTONPAD",
	0x03: "INPUT_PROP_SEMI_MT",
	0x04: "INPUT_PROP_TOPBUTTONPAD",
	0x05: "INPUT_PROP_POINTING_STICK",
	0x06: "INPUT_PROP_ACCELEROMETER",
}

// propMax is INPUT_PROP_MAX.
const propMax = 0x1f

func (p Prop) String() string {
	if name, ok := propNames[p]; ok {
		return name
	}
	return "0x" + strconv.FormatUint(uint64(p), 16)
}

func (p *Prop) UnmarshalYAML(node *yaml.Node) error {
	v, err := parseNamed(node.Value, propNames)
	if err != nil {
		return fmt.Errorf("line %d: property: %w", node.Line, err)
	}
	*p = v
	return nil
}

func (p Prop) MarshalYAML() (any, error) {
	if name, ok := propNames[p]; ok {
		return name, nil
	}
	return uint16(p), nil
}

func parseNamed[T ~uint16](s string, names map[T]string) (T, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for v, name := range names {
		if name == s {
			return v, nil
		}
	}
	n, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("unknown name %q", s)
	}
	return T(n), nil
}

// ParseDescriptor decodes a YAML descriptor and validates it.
func ParseDescriptor(b []byte) (Descriptor, error) {
	var d Descriptor
	if err := yaml.Unmarshal(b, &d); err != nil {
		return Descriptor{}, fmt.Errorf("parse descriptor: %w", err)
	}
	if err := d.Validate(); err != nil {
		return Descriptor{}, err
	}
	return d, nil
}

// LoadDescriptor reads and parses the descriptor at path.
func LoadDescriptor(fsys fsutil.FileSystem, path string) (Descriptor, error) {
	b, err := fsys.ReadFile(path)
	if err != nil {
		return Descriptor{}, fmt.Errorf("read descriptor: %w", err)
	}
	d, err := ParseDescriptor(b)
	if err != nil {
		return Descriptor{}, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

// Marshal encodes d as YAML.
func (d Descriptor) Marshal() ([]byte, error) {
	return yaml.Marshal(d)
}

// Validate checks that the descriptor can be handed to the kernel.
func (d Descriptor) Validate() error {
	var errs []error
	if d.Name == "" {
		errs = append(errs, errors.New("device name is required"))
	}
	if len(d.Name) >= MaxNameSize {
		errs = append(errs, fmt.Errorf("device name is %d bytes, limit is %d", len(d.Name), MaxNameSize-1))
	}
	if len(d.Events.Types()) == 0 {
		errs = append(errs, errors.New("no events declared"))
	}
	for typ, codes := range d.Events.Codes {
		limit, ok := codeMax[typ]
		if !ok {
			errs = append(errs, fmt.Errorf("event type %s cannot be declared", inputevent.TypeName(typ)))
			continue
		}
		for _, code := range codes {
			if code > limit {
				errs = append(errs, fmt.Errorf("%s code %d out of range", inputevent.TypeName(typ), code))
			}
		}
	}
	for _, code := range slices.Sorted(maps.Keys(d.Events.Abs)) {
		info := d.Events.Abs[code]
		name := inputevent.CodeName(evdev.EV_ABS, code)
		if code > codeMax[evdev.EV_ABS] {
			errs = append(errs, fmt.Errorf("axis %s out of range", name))
		}
		if info.Min > info.Max {
			errs = append(errs, fmt.Errorf("axis %s: min %d above max %d", name, info.Min, info.Max))
		}
	}
	for _, p := range d.Properties {
		if p > propMax {
			errs = append(errs, fmt.Errorf("property %v out of range", p))
		}
	}
	return errors.Join(errs...)
}

// Clone returns a deep copy of d.
func (d Descriptor) Clone() Descriptor {
	out := d
	out.Properties = slices.Clone(d.Properties)
	out.Events = d.Events.clone()
	return out
}

// WheelDescriptor adapts base for the wheel filter's output: the output axis
// is declared with the quantizer's range and stick axes that no longer carry
// events are dropped.
func WheelDescriptor(base Descriptor, p wheel.Params) Descriptor {
	d := base.Clone()
	for _, code := range []uint16{p.InputX, p.InputY} {
		if code != p.OutputAxis {
			delete(d.Events.Abs, code)
		}
	}
	res := d.Events.Abs[p.OutputAxis].Res
	d.Events.Abs[p.OutputAxis] = AbsInfo{
		Value: wheel.Quantize(0, p),
		Min:   wheel.AxisMin,
		Max:   wheel.AxisMax,
		Res:   res,
	}
	if d.Events.Codes == nil {
		d.Events.Codes = make(map[uint16][]uint16)
	}
	if _, ok := d.Events.Codes[evdev.EV_SYN]; !ok {
		d.Events.Codes[evdev.EV_SYN] = []uint16{evdev.SYN_REPORT}
	}
	return d
}
