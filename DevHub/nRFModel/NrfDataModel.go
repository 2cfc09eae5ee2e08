package nRF_model

// NRF-related stuff
type Command byte
type Register byte
type Bit byte

// nRF24L01 commands
const (
	CReadRegister        Command = 0x00
	CWriteRegister       Command = 0x20
	CReadRxPayloadWidth  Command = 0x60
	CReadRxPayload       Command = 0x61
	CWriteTxPayload      Command = 0xA0
	CWriteAckPayload     Command = 0xA8
	CWriteTxPayloadNoAck Command = 0xB0
	CFlushTx             Command = 0xE1
	CFlushRx             Command = 0xE2
	CReuseTxPl           Command = 0xE3
	CNop                 Command = 0xFF

	registerMask byte = 0x1F
)

// nRF24L01 registers and bits
const (
	RConfig    Register = 0x00
	BMaskRxDr  Bit      = 6
	BMaskTxDs  Bit      = 5
	BMaskMaxRt Bit      = 4
	BEnCrc     Bit      = 3
	BCrcO      Bit      = 2
	BPwrUp     Bit      = 1
	BPrimRx    Bit      = 0

	REnAA   Register = 0x01
	BEnAAP5 Bit      = 5
	BEnAAP4 Bit      = 4
	BEnAAP3 Bit      = 3
	BEnAAP2 Bit      = 2
	BEnAAP1 Bit      = 1
	BEnAAP0 Bit      = 0

	REnRxAddr Register = 0x02
	BEnRxP5   Bit      = 5
	BEnRxP4   Bit      = 4
	BEnRxP3   Bit      = 3
	BEnRxP2   Bit      = 2
	BEnRxP1   Bit      = 1
	BEnRxP0   Bit      = 0

	RSetupAW Register = 0x03
	BAW      Bit      = 0

	RSetupRetr Register = 0x04
	BARD       Bit      = 4
	BARC       Bit      = 0

	RRFCh Register = 0x05

	RRFSetup  Register = 0x06
	BContWave Bit      = 7
	BRfDrLow  Bit      = 5
	BPllLock  Bit      = 4
	BRfDrHigh Bit      = 3
	BRfPwr    Bit      = 1

	RStatus       Register = 0x07
	BRxDr         Bit      = 6
	BTxDs         Bit      = 5
	BMaxRt        Bit      = 4
	BRxPNo        Bit      = 1
	BStatusTxFull Bit      = 0
	BRxPNoMask    byte     = 0x0E

	RObserveTx Register = 0x08
	BPLosCnt   Bit      = 4
	BArcCnt    Bit      = 0

	RRPD      Register = 0x09
	RRxAddrP0 Register = 0x0A
	RRxAddrP1 Register = 0x0B
	RRxAddrP2 Register = 0x0C
	RRxAddrP3 Register = 0x0D
	RRxAddrP4 Register = 0x0E
	RRxAddrP5 Register = 0x0F
	RTxAddr   Register = 0x10
	RRxPwP0   Register = 0x11
	RRxPwP1   Register = 0x12
	RRxPwP2   Register = 0x13
	RRxPwP3   Register = 0x14
	RRxPwP4   Register = 0x15
	RRxPwP5   Register = 0x16

	RFifoStatus Register = 0x17
	BTxReuse    Bit      = 6
	BFifoTxFull Bit      = 5
	BTxEmpty    Bit      = 4
	BRxFull     Bit      = 1
	BRxEmpty    Bit      = 0

	RDynPd Register = 0x1C
	BDplP5 Bit      = 5
	BDplP4 Bit      = 4
	BDplP3 Bit      = 3
	BDplP2 Bit      = 2
	BDplP1 Bit      = 1
	BDplP0 Bit      = 0

	RFeature  Register = 0x1D
	BEnDpl    Bit      = 2
	BEnAckPay Bit      = 1
	BEnDynAck Bit      = 0
)

// register values used by the strobe link
const (
	// SETUP_AW: 0b11 is 5 bytes address width
	setupAW5Bytes byte = 0x03
	// SETUP_RETR: 1500us delay (5), 15 retransmits
	setupRetrDefault byte = 5<<byte(BARD) | 15<<byte(BARC)
	// RF_SETUP: max power, 1Mbps
	rfSetupDefault byte = 0x03 << byte(BRfPwr)
	// EN_AA and EN_RXADDR cover pipes 0-5
	allPipes byte = 0x3F
	pipeCount     = 6
)

var registerLengths = map[Register]byte{
	RConfig:     1,
	REnAA:       1,
	REnRxAddr:   1,
	RSetupAW:    1,
	RSetupRetr:  1,
	RRFCh:       1,
	RRFSetup:    1,
	RStatus:     1,
	RObserveTx:  1,
	RRPD:        1,
	RRxAddrP0:   5,
	RRxAddrP1:   5,
	RRxAddrP2:   1,
	RRxAddrP3:   1,
	RRxAddrP4:   1,
	RRxAddrP5:   1,
	RTxAddr:     5,
	RRxPwP0:     1,
	RRxPwP1:     1,
	RRxPwP2:     1,
	RRxPwP3:     1,
	RRxPwP4:     1,
	RRxPwP5:     1,
	RFifoStatus: 1,
	RDynPd:      1,
	RFeature:    1,
}

var rxAddrRegisters = [pipeCount]Register{RRxAddrP0, RRxAddrP1, RRxAddrP2, RRxAddrP3, RRxAddrP4, RRxAddrP5}
var rxPwRegisters = [pipeCount]Register{RRxPwP0, RRxPwP1, RRxPwP2, RRxPwP3, RRxPwP4, RRxPwP5}
