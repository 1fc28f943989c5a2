package uinput

import (
	"fmt"
	"os"
	"unsafe"

	evdev "github.com/gvalkov/golang-evdev"
	"golang.org/x/sys/unix"
)

// ioctl request encoding from asm-generic/ioctl.h.
const (
	iocNRBits   = 8
	iocTypeBits = 8
	iocSizeBits = 14

	iocNRShift   = 0
	iocTypeShift = iocNRShift + iocNRBits
	iocSizeShift = iocTypeShift + iocTypeBits
	iocDirShift  = iocSizeShift + iocSizeBits

	iocNone  = 0
	iocWrite = 1
	iocRead  = 2
)

func ioc(dir, typ, nr, size uint) uint {
	return dir<<iocDirShift | typ<<iocTypeShift | nr<<iocNRShift | size<<iocSizeShift
}

type inputID struct {
	Bustype uint16
	Vendor  uint16
	Product uint16
	Version uint16
}

// uinputSetup is struct uinput_setup.
type uinputSetup struct {
	ID           inputID
	Name         [MaxNameSize]byte
	FFEffectsMax uint32
}

// uinputAbsSetup is struct uinput_abs_setup.
type uinputAbsSetup struct {
	Code uint16
	_    [2]byte
	Info AbsInfo
}

var (
	uiDevCreate  = ioc(iocNone, 'U', 1, 0)
	uiDevDestroy = ioc(iocNone, 'U', 2, 0)
	uiDevSetup   = ioc(iocWrite, 'U', 3, uint(unsafe.Sizeof(uinputSetup{})))
	uiAbsSetup   = ioc(iocWrite, 'U', 4, uint(unsafe.Sizeof(uinputAbsSetup{})))
	uiSetEvBit   = ioc(iocWrite, 'U', 100, 4)
	uiSetPropBit = ioc(iocWrite, 'U', 110, 4)

	// UI_SET_*BIT per event type.
	uiSetCodeBit = map[uint16]uint{
		evdev.EV_KEY: ioc(iocWrite, 'U', 101, 4),
		evdev.EV_REL: ioc(iocWrite, 'U', 102, 4),
		evdev.EV_ABS: ioc(iocWrite, 'U', 103, 4),
		evdev.EV_MSC: ioc(iocWrite, 'U', 104, 4),
		evdev.EV_LED: ioc(iocWrite, 'U', 105, 4),
		evdev.EV_SND: ioc(iocWrite, 'U', 106, 4),
		evdev.EV_FF:  ioc(iocWrite, 'U', 107, 4),
		evdev.EV_SW:  ioc(iocWrite, 'U', 109, 4),
	}

	eviocGVersion = ioc(iocRead, 'E', 0x01, 4)
)

func eviocGAbs(code uint16) uint {
	return ioc(iocRead, 'E', 0x40+uint(code), uint(unsafe.Sizeof(AbsInfo{})))
}

func eviocGProp(size uint) uint {
	return ioc(iocRead, 'E', 0x09, size)
}

// Driver is the ioctl surface of /dev/uinput.
type Driver interface {
	SetEvBit(typ uint16) error
	SetCodeBit(typ, code uint16) error
	SetPropBit(prop Prop) error
	AbsSetup(code uint16, info AbsInfo) error
	DevSetup(name string, id inputID) error
	DevCreate() error
	DevDestroy() error
	Write(b []byte) (int, error)
	Close() error
}

// DevicePath is the uinput control node.
const DevicePath = "/dev/uinput"

// fileDriver issues the ioctls on an open /dev/uinput.
type fileDriver struct {
	f *os.File
}

// OpenDriver opens path, normally DevicePath, for device creation.
func OpenDriver(path string) (Driver, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &fileDriver{f: f}, nil
}

func (d *fileDriver) fd() int { return int(d.f.Fd()) }

func (d *fileDriver) SetEvBit(typ uint16) error {
	return unix.IoctlSetInt(d.fd(), uiSetEvBit, int(typ))
}

func (d *fileDriver) SetCodeBit(typ, code uint16) error {
	req, ok := uiSetCodeBit[typ]
	if !ok {
		return nil
	}
	return unix.IoctlSetInt(d.fd(), req, int(code))
}

func (d *fileDriver) SetPropBit(prop Prop) error {
	return unix.IoctlSetInt(d.fd(), uiSetPropBit, int(prop))
}

func (d *fileDriver) AbsSetup(code uint16, info AbsInfo) error {
	setup := uinputAbsSetup{Code: code, Info: info}
	return ioctlPtr(d.fd(), uiAbsSetup, unsafe.Pointer(&setup))
}

func (d *fileDriver) DevSetup(name string, id inputID) error {
	setup := uinputSetup{ID: id}
	copy(setup.Name[:MaxNameSize-1], name)
	return ioctlPtr(d.fd(), uiDevSetup, unsafe.Pointer(&setup))
}

func (d *fileDriver) DevCreate() error {
	return unix.IoctlSetInt(d.fd(), uiDevCreate, 0)
}

func (d *fileDriver) DevDestroy() error {
	return unix.IoctlSetInt(d.fd(), uiDevDestroy, 0)
}

func (d *fileDriver) Write(b []byte) (int, error) { return d.f.Write(b) }

func (d *fileDriver) Close() error { return d.f.Close() }

func ioctlPtr(fd int, req uint, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(req), uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}
