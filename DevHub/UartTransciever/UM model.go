// Package UartTransciever drives an nRF24 modem hanging on a serial port.
// The modem speaks a SLIP framed request/response protocol, one request at a time.
package UartTransciever

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/JSkrat/kagami-house-lencarta/DevHub/TranscieverModel"
	"github.com/sirupsen/logrus"
	"github.com/tarm/serial"
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

const (
	DefaultSpeed           = 115200
	DefaultResponseTimeout = 500 * time.Millisecond
	// DefaultAckTimeout is for the modem to report the delivery of a queued packet
	DefaultAckTimeout = 1000 * time.Millisecond
	readPollInterval  = 50 * time.Millisecond
	autoRetransmits   = 15
)

// flusher discards buffered input, *serial.Port does it with tcflush
type flusher interface {
	Flush() error
}

// UMTransmitter handle
type UMTransmitter struct {
	port         io.ReadWriteCloser
	mutex        sync.Mutex
	payloadSize  uint8
	writeAddress TranscieverModel.PipeAddress
	// ResponseTimeout limits a single request/response exchange
	ResponseTimeout time.Duration
	AckTimeout      time.Duration
}

// TransmitterSettings ...
type TransmitterSettings struct {
	PortName string
	Speed    int
}

// Open the serial port. The modem is not touched until Begin.
func Open(settings TransmitterSettings) (*UMTransmitter, error) {
	log.Info(fmt.Sprintf("UMModel.Open %v at %v", settings.PortName, settings.Speed))
	if 0 == settings.Speed {
		settings.Speed = DefaultSpeed
	}
	c := &serial.Config{Name: settings.PortName, Baud: settings.Speed, ReadTimeout: readPollInterval}
	port, err := serial.OpenPort(c)
	if err != nil {
		return nil, fmt.Errorf("serial.OpenPort(%v): %w", settings.PortName, err)
	}
	return newTransmitter(port), nil
}

func newTransmitter(port io.ReadWriteCloser) *UMTransmitter {
	return &UMTransmitter{
		port:            port,
		payloadSize:     TranscieverModel.MaxPayloadSize,
		ResponseTimeout: DefaultResponseTimeout,
		AckTimeout:      DefaultAckTimeout,
	}
}

func (tr *UMTransmitter) Close() {
	tr.mutex.Lock()
	defer tr.mutex.Unlock()
	if nil != tr.port {
		if err := tr.port.Close(); nil != err {
			log.Warn(fmt.Sprintf("UMModel.Close: %v", err))
		}
		tr.port = nil
	}
}

// uartTransaction writes a stuffed request and reads until a whole response arrives
func (tr *UMTransmitter) uartTransaction(data packet) (packet, error) {
	if nil == tr.port {
		return nil, errors.New("port is closed")
	}
	// a late answer to a timed out request must not pass for the answer to this one
	if f, ok := tr.port.(flusher); ok {
		if err := f.Flush(); nil != err {
			log.Warn(fmt.Sprintf("UMModel.uartTransaction: port.Flush: %v", err))
		}
	}
	if _, err := tr.port.Write(data); nil != err {
		return nil, fmt.Errorf("port.Write: %w", err)
	}
	deadline := time.Now().Add(tr.ResponseTimeout)
	var bigBuf packet
	buf := make([]byte, 0x100)
	for {
		n, err := tr.port.Read(buf)
		bigBuf = append(bigBuf, buf[:n]...)
		if nil != err && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("port.Read: %w", err)
		}
		if 0 < len(bigBuf) {
			complete, err := isPacketComplete(bigBuf)
			if nil != err {
				return nil, fmt.Errorf("response %v: %w", bigBuf, err)
			}
			if complete {
				log.Debug(fmt.Sprintf("uartTransaction(%v) data %v", data, bigBuf))
				return bigBuf, nil
			}
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("request %v, got %v: %w", data, bigBuf, ErrTimeout)
		}
	}
}

func (tr *UMTransmitter) request(cmd command, payload []byte) (uartResponse, error) {
	rq := uartRequest{
		version: protocolVersion,
		command: cmd,
		payload: payload,
	}
	response, err := tr.uartTransaction(stuffPacket(createRequest(rq)))
	if nil != err {
		return uartResponse{}, err
	}
	raw, err := unstuffPacket(response)
	if nil != err {
		return uartResponse{}, err
	}
	rs, err := parseResponse(raw)
	if nil != err {
		return rs, err
	}
	return rs, validateResponse(rs, cmd)
}

// simple sends a configuration command expecting rOk
func (tr *UMTransmitter) simple(cmd command, payload ...byte) error {
	tr.mutex.Lock()
	defer tr.mutex.Unlock()
	rs, err := tr.request(cmd, payload)
	if nil != err {
		return fmt.Errorf("command %#02x: %w", cmd, err)
	}
	if rOk != rs.code {
		return fmt.Errorf("command %#02x: %v: %w", cmd, rs.code, ErrModem)
	}
	return nil
}

// Begin checks the modem answers and empties its queues.
// The firmware version is only logged, old firmware may not know the command.
func (tr *UMTransmitter) Begin() error {
	log.Info("UMModel.Begin")
	if err := tr.simple(cEcho); nil != err {
		return err
	}
	if version, err := tr.firmwareVersion(); nil != err {
		log.Warn(fmt.Sprintf("UMModel.Begin: firmware version: %v", err))
	} else {
		log.Info(fmt.Sprintf("UMModel.Begin: modem firmware % X", version))
	}
	for _, cmd := range []command{cClearTxQueue, cClearRxQueue} {
		if err := tr.simple(cmd); nil != err {
			return err
		}
	}
	return nil
}

func (tr *UMTransmitter) firmwareVersion() ([]byte, error) {
	tr.mutex.Lock()
	defer tr.mutex.Unlock()
	rs, err := tr.request(cFWVersion, nil)
	if nil != err {
		return nil, fmt.Errorf("command %#02x: %w", cFWVersion, err)
	}
	if rOk != rs.code {
		return nil, fmt.Errorf("command %#02x: %v: %w", cFWVersion, rs.code, ErrModem)
	}
	return rs.payload, nil
}

func (tr *UMTransmitter) SetDataRate(rate TranscieverModel.DataRate) error {
	return tr.simple(cSetBitRate, byte(rate))
}

func (tr *UMTransmitter) SetChannel(channel uint8) error {
	if channel > TranscieverModel.MaxChannel {
		log.Warn(fmt.Sprintf("UMModel.SetChannel(%v) clamped to %v", channel, TranscieverModel.MaxChannel))
		channel = TranscieverModel.MaxChannel
	}
	return tr.simple(cSetRFChannel, channel)
}

// SetAutoAck maps to the retransmit count, the modem has no separate switch
func (tr *UMTransmitter) SetAutoAck(enable bool) error {
	var count byte
	if enable {
		count = autoRetransmits
	}
	return tr.simple(cSetAutoRetransmitCount, count)
}

// SetPayloadSize is kept on this side, the modem sends whatever it gets
func (tr *UMTransmitter) SetPayloadSize(size uint8) error {
	tr.mutex.Lock()
	defer tr.mutex.Unlock()
	if 0 == size || size > TranscieverModel.MaxPayloadSize {
		size = TranscieverModel.MaxPayloadSize
	}
	tr.payloadSize = size
	return nil
}

func (tr *UMTransmitter) OpenReadingPipe(pipe uint8, address TranscieverModel.PipeAddress) error {
	a := address.Bytes()
	return tr.simple(cListen, append([]byte{pipe}, a[:]...)...)
}

func (tr *UMTransmitter) OpenWritingPipe(address TranscieverModel.PipeAddress) error {
	tr.mutex.Lock()
	defer tr.mutex.Unlock()
	tr.writeAddress = address
	return nil
}

func (tr *UMTransmitter) StartListening() error {
	return tr.simple(cSetMasterSlaveMode, modeSlave)
}

func (tr *UMTransmitter) StopListening() error {
	return tr.simple(cSetMasterSlaveMode, modeMaster)
}

// Write queues the packet in the modem and polls for its delivery report
func (tr *UMTransmitter) Write(payload []byte) bool {
	tr.mutex.Lock()
	defer tr.mutex.Unlock()
	data := make([]byte, tr.payloadSize)
	copy(data, payload)
	a := tr.writeAddress.Bytes()
	rs, err := tr.request(cTransmit, append(a[:], data...))
	if nil != err {
		log.Warn(fmt.Sprintf("UMModel.Write(%v) to %v: %v", data, tr.writeAddress, err))
		return false
	}
	if rOk != rs.code {
		log.Warn(fmt.Sprintf("UMModel.Write(%v) to %v: modem says %v", data, tr.writeAddress, rs.code))
		return false
	}
	return tr.waitDelivery(a)
}

func (tr *UMTransmitter) waitDelivery(a [TranscieverModel.AddressWidth]byte) bool {
	deadline := time.Now().Add(tr.AckTimeout)
	for time.Now().Before(deadline) {
		rs, err := tr.request(cGetRxItem, nil)
		if nil != err {
			log.Warn(fmt.Sprintf("UMModel.waitDelivery(%v): %v", a, err))
			return false
		}
		if rNoPackets == rs.code {
			time.Sleep(readPollInterval / 5)
			continue
		}
		if len(rs.payload) < len(a) || string(a[:]) != string(rs.payload[:len(a)]) {
			log.Warn(fmt.Sprintf("UMModel.waitDelivery(%v) got %v from the wrong address %v", a, rs.code, rs.payload))
			continue
		}
		switch rs.code {
		case rAckPacket, rSlaveResponseTimeout:
			return true
		case rAckTimeout:
			return false
		case rDataPacket:
			log.Debug(fmt.Sprintf("UMModel.waitDelivery(%v) strobe sent data %v, strobes only ack", a, rs.payload[len(a):]))
			continue
		}
		log.Debug(fmt.Sprintf("UMModel.waitDelivery(%v) skipping %v", a, rs.code))
	}
	log.Warn(fmt.Sprintf("UMModel.waitDelivery(%v) modem did not report delivery in %v", a, tr.AckTimeout))
	return false
}
