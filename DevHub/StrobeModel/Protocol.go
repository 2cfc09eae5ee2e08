package StrobeModel

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/JSkrat/kagami-house-lencarta/DevHub/TranscieverModel"
)

const (
	// PayloadSize is fixed, receivers never look past the parameter byte
	PayloadSize = 10
	// BaseAddress is shared by all UltraPro strobes, the id is added to it
	BaseAddress TranscieverModel.PipeAddress = 0x5544332200
	// BaseChannel is the channel of group 0
	BaseChannel uint8 = 0x23
	// TestChannelOffset moves the connectivity test to the strobes' sync channel
	TestChannelOffset uint8 = 2
	DataRate              = TranscieverModel.DataRate250Kbps
	// MaxPower is 6.0 on the strobe display, 0 is 1.0
	MaxPower byte = 49
)

// Payload layout: opcode | parameter | zeroes
type Payload [PayloadSize]byte

// Address of a strobe as [id, group]
type Address [2]byte

func NewAddress(id byte, group byte) Address {
	return Address{id, group}
}

func (a Address) ID() byte {
	return a[0]
}

func (a Address) Group() byte {
	return a[1]
}

// Channel wraps around silently for big groups, same as the strobes' own arithmetic
func (a Address) Channel() uint8 {
	return BaseChannel + a.Group()
}

// PipeAddress adds the id to the base address, it does not substitute the low byte
func (a Address) PipeAddress() TranscieverModel.PipeAddress {
	return BaseAddress + TranscieverModel.PipeAddress(a.ID())
}

func (a Address) String() string {
	return fmt.Sprintf("[%d,%d]", a[0], a[1])
}

// LampState of the modelling lamp
type LampState byte

const (
	LampOff LampState = 0
	LampDim LampState = 1
	LampOn  LampState = 2
	// LampPowerOn is on with the power set by LampPower
	LampPowerOn LampState = 3
)

var lampStateNames = [...]string{
	LampOff:     "off",
	LampDim:     "dim",
	LampOn:      "on",
	LampPowerOn: "power on",
}

func (s LampState) String() string {
	if int(s) < len(lampStateNames) {
		return lampStateNames[s]
	}
	return fmt.Sprintf("LampState(%d)", byte(s))
}

// ParseLampState accepts a name or a number 0-3
func ParseLampState(value string) (LampState, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	for i, name := range lampStateNames {
		if name == value {
			return LampState(i), nil
		}
	}
	if n, err := strconv.ParseUint(value, 10, 8); nil == err && int(n) < len(lampStateNames) {
		return LampState(n), nil
	}
	return 0, fmt.Errorf("lamp state %q: %w", value, ErrBadParameter)
}

// ParameterKind is what byte 1 of a payload carries
type ParameterKind byte

const (
	PNone ParameterKind = iota
	PPower
	PLampState
	PSwitch
	// PFixed commands carry a constant in byte 1
	PFixed
)

// CommandKind enumerates everything a strobe understands
type CommandKind byte

const (
	KFireFlash CommandKind = iota
	KFlashPower
	KLamp
	KLampPower
	KSound
	KSlaveMode
	KTest
)

type commandInfo struct {
	name          string
	opcode        byte
	parameter     ParameterKind
	fixed         byte
	channelOffset uint8
}

var commands = [...]commandInfo{
	KFireFlash:  {name: "fire", opcode: 0x01, parameter: PNone},
	KFlashPower: {name: "flash power", opcode: 0x06, parameter: PPower},
	KLamp:       {name: "lamp", opcode: 0x07, parameter: PLampState},
	KLampPower:  {name: "lamp power", opcode: 0x08, parameter: PPower},
	KSound:      {name: "sound", opcode: 0x09, parameter: PSwitch},
	KSlaveMode:  {name: "slave", opcode: 0x0a, parameter: PSwitch},
	KTest:       {name: "test", opcode: 0x55, parameter: PFixed, fixed: 0xAA, channelOffset: TestChannelOffset},
}

// Kinds lists all command kinds in opcode table order
func Kinds() []CommandKind {
	ret := make([]CommandKind, len(commands))
	for i := range commands {
		ret[i] = CommandKind(i)
	}
	return ret
}

func (k CommandKind) Valid() bool {
	return int(k) < len(commands)
}

func (k CommandKind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("CommandKind(%d)", byte(k))
	}
	return commands[k].name
}

func (k CommandKind) Opcode() byte {
	if !k.Valid() {
		return 0
	}
	return commands[k].opcode
}

func (k CommandKind) Parameter() ParameterKind {
	if !k.Valid() {
		return PNone
	}
	return commands[k].parameter
}

func (k CommandKind) ChannelOffset() uint8 {
	if !k.Valid() {
		return 0
	}
	return commands[k].channelOffset
}

func ParseCommandKind(name string) (CommandKind, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, c := range commands {
		if c.name == name {
			return CommandKind(i), nil
		}
	}
	return 0, fmt.Errorf("command %q: %w", name, ErrUnknownCommand)
}

// BuildPayload puts the opcode and the parameter in place.
// param is ignored by commands without one and by fixed ones.
func BuildPayload(kind CommandKind, param byte) (Payload, error) {
	var p Payload
	if !kind.Valid() {
		return p, fmt.Errorf("%v: %w", kind, ErrUnknownCommand)
	}
	c := commands[kind]
	p[0] = c.opcode
	switch c.parameter {
	case PNone:
	case PFixed:
		p[1] = c.fixed
	default:
		p[1] = param
	}
	return p, nil
}

// ParseParameter converts text from the outside world into byte 1 of a command.
// Unlike the encoder itself it refuses values the strobes do not define.
func ParseParameter(kind CommandKind, value string) (byte, error) {
	switch kind.Parameter() {
	case PPower:
		n, err := strconv.ParseUint(strings.TrimSpace(value), 10, 8)
		if nil != err || byte(n) > MaxPower {
			return 0, fmt.Errorf("power %q, want 0-%d: %w", value, MaxPower, ErrBadParameter)
		}
		return byte(n), nil
	case PLampState:
		s, err := ParseLampState(value)
		return byte(s), err
	case PSwitch:
		on, err := parseSwitch(value)
		if on {
			return 1, err
		}
		return 0, err
	}
	return 0, nil
}

func parseSwitch(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(value))
	if nil != err {
		return false, fmt.Errorf("switch %q: %w", value, ErrBadParameter)
	}
	return b, nil
}
