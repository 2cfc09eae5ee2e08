// Package TranscieverModel describes a packet radio the strobe encoder talks through.
// Implementations: nRFModel (chip on SPI), UartTransciever (modem on a serial port)
// and StubTransciever (in-memory).
package TranscieverModel

import (
	"encoding/binary"
	"fmt"
)

const (
	// MaxChannel is the highest RF channel of the nRF24L01+, 2400MHz + 125MHz
	MaxChannel uint8 = 125
	// MaxPayloadSize of a single static payload
	MaxPayloadSize uint8 = 32
	// AddressWidth in bytes, the only width used here
	AddressWidth = 5
)

// DataRate of the air link
type DataRate byte

const (
	DataRate1Mbps   DataRate = 0
	DataRate2Mbps   DataRate = 1
	DataRate250Kbps DataRate = 2
)

func (r DataRate) String() string {
	switch r {
	case DataRate1Mbps:
		return "1Mbps"
	case DataRate2Mbps:
		return "2Mbps"
	case DataRate250Kbps:
		return "250kbps"
	}
	return fmt.Sprintf("DataRate(%d)", byte(r))
}

// PipeAddress keeps the on-air address in its low AddressWidth bytes.
// It is sent least significant byte first.
type PipeAddress uint64

// Bytes in the order they are written to the radio
func (a PipeAddress) Bytes() [AddressWidth]byte {
	var buf [8]byte
	var ret [AddressWidth]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(a))
	copy(ret[:], buf[:AddressWidth])
	return ret
}

func (a PipeAddress) String() string {
	return fmt.Sprintf("%010X", uint64(a)&0xFFFFFFFFFF)
}

// Transceiver is the capability set of a packet radio.
// Nothing in it is safe for concurrent use: channel, addresses and mode are shared chip state.
type Transceiver interface {
	Begin() error
	SetDataRate(rate DataRate) error
	SetChannel(channel uint8) error
	SetAutoAck(enable bool) error
	SetPayloadSize(size uint8) error
	OpenReadingPipe(pipe uint8, address PipeAddress) error
	OpenWritingPipe(address PipeAddress) error
	// Write blocks until the link layer reports delivery acknowledgment (true) or gives up (false)
	Write(payload []byte) bool
	StartListening() error
	StopListening() error
	Close()
}
