package inputevent

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	evdev "github.com/gvalkov/golang-evdev"
)

var (
	reverseOnce  sync.Once
	typeByName   map[string]uint16
	codeByName   map[uint16]map[string]uint16
	codePrefixes = map[uint16]string{
		evdev.EV_SYN: "SYN_",
		evdev.EV_KEY: "KEY_",
		evdev.EV_REL: "REL_",
		evdev.EV_ABS: "ABS_",
		evdev.EV_MSC: "MSC_",
		evdev.EV_SW:  "SW_",
		evdev.EV_LED: "LED_",
		evdev.EV_SND: "SND_",
		evdev.EV_REP: "REP_",
		evdev.EV_FF:  "FF_",
	}
)

func buildReverse() {
	typeByName = make(map[string]uint16, len(evdev.EV))
	for code, name := range evdev.EV {
		typeByName[name] = uint16(code)
	}
	codeByName = make(map[uint16]map[string]uint16, len(evdev.ByEventType))
	for typ, codes := range evdev.ByEventType {
		m := make(map[string]uint16, len(codes))
		for code, name := range codes {
			m[name] = uint16(code)
		}
		codeByName[uint16(typ)] = m
	}
}

// TypeName returns the symbolic name of an event type, e.g. "EV_ABS".
func TypeName(typ uint16) string {
	if name, ok := evdev.EV[int(typ)]; ok {
		return name
	}
	return fmt.Sprintf("EV_0x%02x", typ)
}

// CodeName returns the symbolic name of code within typ, e.g. "ABS_X".
func CodeName(typ, code uint16) string {
	if codes, ok := evdev.ByEventType[int(typ)]; ok {
		if name, ok := codes[int(code)]; ok {
			return name
		}
	}
	return fmt.Sprintf("0x%03x", code)
}

// Name renders ev's type and code, e.g. "EV_ABS/ABS_X".
func Name(ev evdev.InputEvent) string {
	return TypeName(ev.Type) + "/" + CodeName(ev.Type, ev.Code)
}

// Format renders ev the way the event tracers print it.
func Format(ev evdev.InputEvent) string {
	return fmt.Sprintf("%d.%06d %-24s %d", ev.Time.Sec, ev.Time.Usec, Name(ev), ev.Value)
}

// ParseType resolves an event type by name ("EV_ABS") or number ("3", "0x03").
func ParseType(s string) (uint16, error) {
	reverseOnce.Do(buildReverse)
	s = strings.TrimSpace(s)
	if typ, ok := typeByName[strings.ToUpper(s)]; ok {
		return typ, nil
	}
	n, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("unknown event type %q", s)
	}
	return uint16(n), nil
}

// ParseCode resolves a code of the given type by name ("ABS_X"), by name
// without its type prefix ("X") or by number.
func ParseCode(typ uint16, s string) (uint16, error) {
	reverseOnce.Do(buildReverse)
	s = strings.TrimSpace(s)
	upper := strings.ToUpper(s)
	if code, ok := codeByName[typ][upper]; ok {
		return code, nil
	}
	if prefix := CodePrefix(typ); prefix != "" {
		if code, ok := codeByName[typ][prefix+upper]; ok {
			return code, nil
		}
	}
	n, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("unknown %s code %q", TypeName(typ), s)
	}
	return uint16(n), nil
}

// CodePrefix returns the conventional name prefix for codes of typ.
func CodePrefix(typ uint16) string {
	return codePrefixes[typ]
}
