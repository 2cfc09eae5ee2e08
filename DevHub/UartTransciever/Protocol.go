package UartTransciever

import (
	"errors"
	"fmt"
)

type packet []byte
type command byte
type responseCode byte
type uartRequest struct {
	version byte
	command command
	payload []byte
}
type uartResponse struct {
	version byte
	command command
	code    responseCode
	payload []byte
}

const protocolVersion byte = 0x00

const (
	frameEnd     byte = 0xC0
	frameEsc     byte = 0xDB
	frameEscEnd  byte = 0xDC
	frameEscEsc  byte = 0xDD
	responseFlag byte = 0x80
)

const (
	cEcho                   command = 0x00
	cFWVersion              command = 0x01
	cSetRFChannel           command = 0x10
	cSetBitRate             command = 0x12
	cSetAutoRetransmitCount command = 0x14
	cClearTxQueue           command = 0x20
	cClearRxQueue           command = 0x21
	cListen                 command = 0x30
	cSetMasterSlaveMode     command = 0x40
	cGetRxItem              command = 0x50
	cTransmit               command = 0x7F
)

const (
	rOk                   responseCode = 0x00
	rNoPackets            responseCode = 0x10
	rSlaveResponseTimeout responseCode = 0x11
	rAckTimeout           responseCode = 0x12
	rDataPacket           responseCode = 0x14
	rAckPacket            responseCode = 0x15
	// fatal errors
	rFail                    responseCode = 0x80
	rBadProtocolVersion      responseCode = 0x90
	rBadCommand              responseCode = 0x91
	rMemoryError             responseCode = 0x92
	rArgumentValidationError responseCode = 0x93
	rNotImplemented          responseCode = 0x94
)

// modes of cSetMasterSlaveMode
const (
	modeMaster byte = 0x00
	modeSlave  byte = 0x01
)

var (
	ErrFraming          = errors.New("bad uart frame")
	ErrIncomplete       = errors.New("incomplete uart frame")
	ErrResponseMismatch = errors.New("modem answered another command")
	ErrModem            = errors.New("modem error")
	ErrTimeout          = errors.New("modem response timeout")
)

func (c responseCode) fatal() bool {
	return 0 != byte(c)&responseFlag
}

func (c responseCode) String() string {
	switch c {
	case rOk:
		return "ok"
	case rNoPackets:
		return "no packets"
	case rSlaveResponseTimeout:
		return "slave response timeout"
	case rAckTimeout:
		return "ack timeout"
	case rDataPacket:
		return "data packet"
	case rAckPacket:
		return "ack packet"
	case rFail:
		return "fail"
	case rBadProtocolVersion:
		return "bad protocol version"
	case rBadCommand:
		return "bad command"
	case rMemoryError:
		return "memory error"
	case rArgumentValidationError:
		return "argument validation error"
	case rNotImplemented:
		return "not implemented"
	}
	return fmt.Sprintf("code %#02x", byte(c))
}

func stuffPacket(data packet) (ret packet) {
	ret = packet{frameEnd}
	for _, v := range data {
		switch v {
		case frameEnd:
			ret = append(ret, frameEsc, frameEscEnd)
		case frameEsc:
			ret = append(ret, frameEsc, frameEscEsc)
		default:
			ret = append(ret, v)
		}
	}
	return ret
}

func unstuffPacket(data packet) (packet, error) {
	if 0 == len(data) || frameEnd != data[0] {
		return nil, fmt.Errorf("packet begins with not 0xC0: %w", ErrFraming)
	}
	esc := false
	ret := packet{}
	for _, v := range data[1:] {
		if frameEnd == v {
			return nil, fmt.Errorf("extra 0xC0 inside a single packet: %w", ErrFraming)
		}
		if !esc {
			if frameEsc == v {
				esc = true
			} else {
				ret = append(ret, v)
			}
			continue
		}
		switch v {
		case frameEscEnd:
			ret = append(ret, frameEnd)
		case frameEscEsc:
			ret = append(ret, frameEsc)
		default:
			return nil, fmt.Errorf("unexpected escape sequence %02X %02X: %w", frameEsc, v, ErrFraming)
		}
		esc = false
	}
	if esc {
		return nil, fmt.Errorf("unfinished escape sequence: %w", ErrIncomplete)
	}
	return ret, nil
}

func createRequest(data uartRequest) (ret packet) {
	ret = packet{data.version, byte(data.command), byte(len(data.payload))}
	return append(ret, data.payload...)
}

func parseResponse(data packet) (uartResponse, error) {
	if 4 > len(data) {
		return uartResponse{}, fmt.Errorf("too short response %v: %w", len(data), ErrIncomplete)
	}
	ret := uartResponse{
		version: data[0],
		command: command(data[1]),
		code:    responseCode(data[2]),
	}
	switch want := 4 + int(data[3]); {
	case want > len(data):
		return ret, fmt.Errorf("response payload %v of %v bytes: %w", len(data)-4, data[3], ErrIncomplete)
	case want < len(data):
		return ret, fmt.Errorf("response is %v bytes longer than declared: %w", len(data)-want, ErrFraming)
	}
	ret.payload = data[4:]
	return ret, nil
}

func validateResponse(response uartResponse, requestCommand command) error {
	if byte(response.command) != byte(requestCommand)|responseFlag {
		return fmt.Errorf("request %#02x, response %#02x: %w", requestCommand, response.command, ErrResponseMismatch)
	}
	if response.code.fatal() {
		return fmt.Errorf("%v: %w", response.code, ErrModem)
	}
	return nil
}

// isPacketComplete tells if the bytes so far form one whole response.
// A non-nil error means more bytes can not help.
func isPacketComplete(data packet) (bool, error) {
	raw, err := unstuffPacket(data)
	if nil == err {
		_, err = parseResponse(raw)
	}
	switch {
	case nil == err:
		return true, nil
	case errors.Is(err, ErrIncomplete):
		return false, nil
	}
	return false, err
}
