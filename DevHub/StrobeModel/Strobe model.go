// Package StrobeModel encodes Lencarta UltraPro strobe commands into 10 byte packets
// and pushes them through a transceiver, one blocking transaction per call.
//
// An Encoder is not safe for concurrent use. Callers from several goroutines
// have to serialize all calls themselves.
package StrobeModel

import (
	"fmt"
	"os"

	"github.com/JSkrat/kagami-house-lencarta/DevHub/TranscieverModel"
	"github.com/sirupsen/logrus"
)

var log = logrus.New()

func init() {
	log.Formatter = new(logrus.TextFormatter)
	log.Level = logrus.InfoLevel
	log.Out = os.Stdout
}

func SetLogLevel(level logrus.Level) {
	log.SetLevel(level)
}

type Encoder struct {
	radio TranscieverModel.Transceiver
}

func NewEncoder(radio TranscieverModel.Transceiver) *Encoder {
	return &Encoder{radio: radio}
}

// Begin configures the radio for the strobes and starts listening on the base address.
// Must be called once before any command. Failures are only logged.
func (e *Encoder) Begin() {
	log.Info("StrobeModel.Begin")
	steps := []struct {
		name string
		call func() error
	}{
		{"Begin", e.radio.Begin},
		{"SetDataRate", func() error { return e.radio.SetDataRate(DataRate) }},
		{"SetChannel", func() error { return e.radio.SetChannel(BaseChannel) }},
		{"SetAutoAck", func() error { return e.radio.SetAutoAck(true) }},
		{"SetPayloadSize", func() error { return e.radio.SetPayloadSize(PayloadSize) }},
		{"OpenReadingPipe", func() error { return e.radio.OpenReadingPipe(0, BaseAddress) }},
	}
	for _, s := range steps {
		if err := s.call(); err != nil {
			log.Warn(fmt.Sprintf("StrobeModel.Begin: %s: %v", s.name, err))
		}
	}
}

// sendPacket is what every opcode command goes through
func (e *Encoder) sendPacket(id byte, group byte, payload Payload) bool {
	return e.transmit(BaseChannel+group, BaseAddress+TranscieverModel.PipeAddress(id), payload)
}

// transmit always leaves the radio listening, whatever happened to the packet
func (e *Encoder) transmit(channel uint8, address TranscieverModel.PipeAddress, payload Payload) bool {
	log.Debug(fmt.Sprintf("StrobeModel.transmit channel %v address %v payload %v", channel, address, Dump(payload[:])))
	ack := false
	if err := e.prepare(channel, address); err != nil {
		log.Warn(fmt.Sprintf("StrobeModel.transmit: %v, packet %v not sent", err, Dump(payload[:])))
	} else {
		ack = e.radio.Write(payload[:])
	}
	if err := e.radio.StartListening(); err != nil {
		log.Warn(fmt.Sprintf("StrobeModel.transmit: StartListening: %v", err))
	}
	if !ack {
		log.Warn(fmt.Sprintf("StrobeModel.transmit: no ack from %v on channel %v", address, channel))
	}
	return ack
}

func (e *Encoder) prepare(channel uint8, address TranscieverModel.PipeAddress) error {
	if err := e.radio.SetChannel(channel); err != nil {
		return fmt.Errorf("SetChannel: %w", err)
	}
	if err := e.radio.StopListening(); err != nil {
		return fmt.Errorf("StopListening: %w", err)
	}
	if err := e.radio.OpenWritingPipe(address); err != nil {
		return fmt.Errorf("OpenWritingPipe: %w", err)
	}
	return nil
}

func (e *Encoder) command(kind CommandKind, id byte, group byte, param byte) bool {
	payload, err := BuildPayload(kind, param)
	if err != nil {
		log.Error(fmt.Sprintf("StrobeModel.command: %v", err))
		return false
	}
	return e.sendPacket(id, group, payload)
}

// FireFlash triggers a single flash
func (e *Encoder) FireFlash(id byte, group byte) bool {
	return e.command(KFireFlash, id, group, 0)
}

// FlashPower sets the flash energy, 0-49 maps to 1.0-6.0 on the strobe
func (e *Encoder) FlashPower(id byte, group byte, power byte) bool {
	return e.command(KFlashPower, id, group, power)
}

// Lamp switches the modelling lamp
func (e *Encoder) Lamp(id byte, group byte, state LampState) bool {
	return e.command(KLamp, id, group, byte(state))
}

// LampPower sets the modelling lamp power, 0-49 like FlashPower
func (e *Encoder) LampPower(id byte, group byte, power byte) bool {
	return e.command(KLampPower, id, group, power)
}

// Sound turns the beeper on or off
func (e *Encoder) Sound(id byte, group byte, state bool) bool {
	return e.command(KSound, id, group, boolByte(state))
}

// SlaveMode turns optical slave triggering on or off
func (e *Encoder) SlaveMode(id byte, group byte, state bool) bool {
	return e.command(KSlaveMode, id, group, boolByte(state))
}

// Test checks whether a strobe responds. The strobe has to be in test mode
// (TEST selected, minus pressed), it listens two channels above its group then.
func (e *Encoder) Test(id byte, group byte) bool {
	payload, _ := BuildPayload(KTest, 0)
	return e.transmit(BaseChannel+group+TestChannelOffset, BaseAddress+TranscieverModel.PipeAddress(id), payload)
}

func (e *Encoder) FireFlashAt(address Address) bool {
	return e.FireFlash(address[0], address[1])
}

func (e *Encoder) FlashPowerAt(address Address, power byte) bool {
	return e.FlashPower(address[0], address[1], power)
}

func (e *Encoder) LampAt(address Address, state LampState) bool {
	return e.Lamp(address[0], address[1], state)
}

func (e *Encoder) LampPowerAt(address Address, power byte) bool {
	return e.LampPower(address[0], address[1], power)
}

func (e *Encoder) SoundAt(address Address, state bool) bool {
	return e.Sound(address[0], address[1], state)
}

func (e *Encoder) SlaveModeAt(address Address, state bool) bool {
	return e.SlaveMode(address[0], address[1], state)
}

func (e *Encoder) TestAt(address Address) bool {
	return e.Test(address[0], address[1])
}

// Execute runs any command kind through its own method, param is interpreted per kind
func (e *Encoder) Execute(kind CommandKind, id byte, group byte, param byte) bool {
	switch kind {
	case KFireFlash:
		return e.FireFlash(id, group)
	case KFlashPower:
		return e.FlashPower(id, group, param)
	case KLamp:
		return e.Lamp(id, group, LampState(param))
	case KLampPower:
		return e.LampPower(id, group, param)
	case KSound:
		return e.Sound(id, group, 0 != param)
	case KSlaveMode:
		return e.SlaveMode(id, group, 0 != param)
	case KTest:
		return e.Test(id, group)
	}
	log.Error(fmt.Sprintf("StrobeModel.Execute: %v", fmt.Errorf("%v: %w", kind, ErrUnknownCommand)))
	return false
}

func (e *Encoder) ExecuteAt(kind CommandKind, address Address, param byte) bool {
	return e.Execute(kind, address[0], address[1], param)
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
