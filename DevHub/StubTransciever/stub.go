// Package StubTransciever is an in-memory radio: it remembers every call and every frame
// and answers writes with a configurable acknowledgment.
package StubTransciever

import (
	"fmt"
	"os"
	"sync"

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

// Frame is a payload as it would have left the antenna
type Frame struct {
	Channel uint8
	Address TranscieverModel.PipeAddress
	Payload []byte
}

// Transceiver records operations in the order they were called, e.g. "SetChannel(35)"
type Transceiver struct {
	mu            sync.Mutex
	calls         []string
	frames        []Frame
	channel       uint8
	dataRate      TranscieverModel.DataRate
	autoAck       bool
	payloadSize   uint8
	writeAddress  TranscieverModel.PipeAddress
	readAddresses map[uint8]TranscieverModel.PipeAddress
	listening     bool
	ack           bool
	// AckFunc overrides the fixed ack answer when set
	AckFunc func(Frame) bool
}

func New() *Transceiver {
	return &Transceiver{
		ack:           true,
		payloadSize:   TranscieverModel.MaxPayloadSize,
		readAddresses: map[uint8]TranscieverModel.PipeAddress{},
	}
}

func (t *Transceiver) record(format string, args ...interface{}) {
	call := fmt.Sprintf(format, args...)
	log.Debug("stub " + call)
	t.calls = append(t.calls, call)
}

func (t *Transceiver) Begin() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record("Begin()")
	return nil
}

func (t *Transceiver) SetDataRate(rate TranscieverModel.DataRate) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record("SetDataRate(%v)", rate)
	t.dataRate = rate
	return nil
}

func (t *Transceiver) SetChannel(channel uint8) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record("SetChannel(%d)", channel)
	t.channel = channel
	return nil
}

func (t *Transceiver) SetAutoAck(enable bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record("SetAutoAck(%v)", enable)
	t.autoAck = enable
	return nil
}

func (t *Transceiver) SetPayloadSize(size uint8) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record("SetPayloadSize(%d)", size)
	t.payloadSize = size
	return nil
}

func (t *Transceiver) OpenReadingPipe(pipe uint8, address TranscieverModel.PipeAddress) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record("OpenReadingPipe(%d, %v)", pipe, address)
	t.readAddresses[pipe] = address
	return nil
}

func (t *Transceiver) OpenWritingPipe(address TranscieverModel.PipeAddress) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record("OpenWritingPipe(%v)", address)
	t.writeAddress = address
	return nil
}

// Write keeps a copy of the payload exactly as passed, no padding
func (t *Transceiver) Write(payload []byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record("Write(% X)", payload)
	frame := Frame{
		Channel: t.channel,
		Address: t.writeAddress,
		Payload: append([]byte(nil), payload...),
	}
	t.frames = append(t.frames, frame)
	if nil != t.AckFunc {
		return t.AckFunc(frame)
	}
	return t.ack
}

func (t *Transceiver) StartListening() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record("StartListening()")
	t.listening = true
	return nil
}

func (t *Transceiver) StopListening() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record("StopListening()")
	t.listening = false
	return nil
}

func (t *Transceiver) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record("Close()")
}

// SetAck fixes the answer of the following writes
func (t *Transceiver) SetAck(ack bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ack = ack
}

func (t *Transceiver) Calls() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.calls...)
}

func (t *Transceiver) Frames() []Frame {
	t.mu.Lock()
	defer t.mu.Unlock()
	ret := make([]Frame, len(t.frames))
	for i, f := range t.frames {
		ret[i] = Frame{Channel: f.Channel, Address: f.Address, Payload: append([]byte(nil), f.Payload...)}
	}
	return ret
}

// LastFrame returns false when nothing was written yet
func (t *Transceiver) LastFrame() (Frame, bool) {
	frames := t.Frames()
	if 0 == len(frames) {
		return Frame{}, false
	}
	return frames[len(frames)-1], true
}

func (t *Transceiver) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = nil
	t.frames = nil
}

func (t *Transceiver) Listening() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.listening
}

// Settings snapshot for assertions: channel, data rate, auto ack, payload size
func (t *Transceiver) Settings() (uint8, TranscieverModel.DataRate, bool, uint8) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.channel, t.dataRate, t.autoAck, t.payloadSize
}

func (t *Transceiver) ReadingPipe(pipe uint8) (TranscieverModel.PipeAddress, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	a, ok := t.readAddresses[pipe]
	return a, ok
}
