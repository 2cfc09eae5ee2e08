package nRF_model

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/JSkrat/kagami-house-lencarta/DevHub/TranscieverModel"
	"periph.io/x/periph/conn/gpio"
)

// fakeChip plays both the SPI connection and the CE pin of an nRF24L01+
type fakeChip struct {
	registers map[Register][]byte
	txFifo    [][]byte
	sent      [][]byte
	ce        bool
	// ack decides between TX_DS and MAX_RT once a payload goes out
	ack bool
	// silent chips never finish a transmission
	silent bool
	// absent chips read back all zeroes and keep nothing
	absent bool
	txErr  error
}

func newFakeChip() *fakeChip {
	c := &fakeChip{registers: map[Register][]byte{}, ack: true}
	for r, l := range registerLengths {
		c.registers[r] = make([]byte, l)
	}
	return c
}

func (c *fakeChip) status() byte {
	return c.registers[RStatus][0]
}

func (c *fakeChip) Tx(w, r []byte) error {
	if nil != c.txErr {
		return c.txErr
	}
	if c.absent {
		for i := range r {
			r[i] = 0
		}
		return nil
	}
	r[0] = c.status()
	cmd := w[0]
	switch {
	case byte(CNop) == cmd, byte(CFlushRx) == cmd:
	case byte(CFlushTx) == cmd:
		c.txFifo = nil
	case byte(CWriteTxPayload) == cmd:
		p := make([]byte, len(w)-1)
		copy(p, w[1:])
		c.txFifo = append(c.txFifo, p)
	case cmd < byte(CWriteRegister):
		copy(r[1:], c.registers[Register(cmd&registerMask)])
	case cmd < 0x40:
		reg := Register(cmd & registerMask)
		if RStatus == reg {
			// interrupt flags are cleared by writing 1
			c.registers[RStatus][0] &^= w[1]
		} else {
			copy(c.registers[reg], w[1:])
		}
	}
	return nil
}

func (c *fakeChip) Out(l gpio.Level) error {
	c.ce = bool(l)
	primRx := 0 != c.registers[RConfig][0]&BV(BPrimRx)
	if c.ce && !primRx && len(c.txFifo) > 0 && !c.silent {
		c.sent = append(c.sent, c.txFifo[0])
		if c.ack {
			c.txFifo = c.txFifo[1:]
			c.registers[RStatus][0] |= BV(BTxDs)
		} else {
			c.registers[RStatus][0] |= BV(BMaxRt)
		}
	}
	return nil
}

func Assert(t *testing.T, condition bool, errorMessage string) {
	t.Helper()
	if !condition {
		t.Error(errorMessage)
	}
}

func newTestTransmitter(t *testing.T) (*NRFTransmitter, *fakeChip) {
	t.Helper()
	chip := newFakeChip()
	rf := newTransmitter(chip, chip, nil)
	if err := rf.Begin(); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	return rf, chip
}

func TestBegin(t *testing.T) {
	_, chip := newTestTransmitter(t)
	Assert(t, BV(BEnCrc)|BV(BCrcO)|BV(BPwrUp) == chip.registers[RConfig][0], "CONFIG is not powered up with 2 byte CRC")
	Assert(t, setupAW5Bytes == chip.registers[RSetupAW][0], "address width is not 5 bytes")
	Assert(t, 0x5F == chip.registers[RSetupRetr][0], "SETUP_RETR is not 1500us/15")
	Assert(t, !chip.ce, "CE is high after Begin")
}

func TestBeginNoChip(t *testing.T) {
	chip := newFakeChip()
	chip.absent = true
	rf := newTransmitter(chip, chip, nil)
	if err := rf.Begin(); !errors.Is(err, ErrNoChip) {
		t.Errorf("Begin() error = %v, want %v", err, ErrNoChip)
	}
}

func TestSetDataRate(t *testing.T) {
	rf, chip := newTestTransmitter(t)
	tests := []struct {
		name string
		rate TranscieverModel.DataRate
		want byte
	}{
		{name: "250kbps", rate: TranscieverModel.DataRate250Kbps, want: rfSetupDefault | BV(BRfDrLow)},
		{name: "2Mbps", rate: TranscieverModel.DataRate2Mbps, want: rfSetupDefault | BV(BRfDrHigh)},
		{name: "1Mbps", rate: TranscieverModel.DataRate1Mbps, want: rfSetupDefault},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := rf.SetDataRate(tt.rate); err != nil {
				t.Fatalf("SetDataRate() error = %v", err)
			}
			if got := chip.registers[RRFSetup][0]; got != tt.want {
				t.Errorf("RF_SETUP = %08b, want %08b", got, tt.want)
			}
		})
	}
	if err := rf.SetDataRate(TranscieverModel.DataRate(7)); !errors.Is(err, ErrInvalidDataRate) {
		t.Errorf("SetDataRate(7) error = %v, want %v", err, ErrInvalidDataRate)
	}
}

func TestSetChannel(t *testing.T) {
	rf, chip := newTestTransmitter(t)
	tests := []struct {
		name    string
		channel uint8
		want    uint8
	}{
		{name: "base channel", channel: 0x23, want: 0x23},
		{name: "last channel", channel: 125, want: 125},
		{name: "clamped", channel: 200, want: 125},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := rf.SetChannel(tt.channel); err != nil {
				t.Fatalf("SetChannel() error = %v", err)
			}
			Assert(t, tt.want == chip.registers[RRFCh][0], "RF_CH register is wrong")
			Assert(t, tt.want == rf.Channel(), "cached channel is wrong")
		})
	}
}

func TestAutoAckAndPayloadSize(t *testing.T) {
	rf, chip := newTestTransmitter(t)
	if err := rf.SetAutoAck(true); err != nil {
		t.Fatal(err)
	}
	Assert(t, allPipes == chip.registers[REnAA][0], "auto ack is not enabled on all pipes")
	if err := rf.SetAutoAck(false); err != nil {
		t.Fatal(err)
	}
	Assert(t, 0 == chip.registers[REnAA][0], "auto ack is not disabled")
	if err := rf.SetPayloadSize(10); err != nil {
		t.Fatal(err)
	}
	for _, r := range rxPwRegisters {
		Assert(t, 10 == chip.registers[r][0], "payload width is not 10")
	}
	if err := rf.SetPayloadSize(40); err != nil {
		t.Fatal(err)
	}
	Assert(t, 32 == chip.registers[RRxPwP0][0], "payload width is not clamped to 32")
}

func TestPipes(t *testing.T) {
	rf, chip := newTestTransmitter(t)
	base := TranscieverModel.PipeAddress(0x5544332200)
	if err := rf.OpenReadingPipe(0, base); err != nil {
		t.Fatal(err)
	}
	Assert(t, reflect.DeepEqual(chip.registers[RRxAddrP0], []byte{0x00, 0x22, 0x33, 0x44, 0x55}), "RX_ADDR_P0 is not LSB first")
	Assert(t, 0 != chip.registers[REnRxAddr][0]&BV(BEnRxP0), "pipe 0 is not enabled")

	if err := rf.OpenReadingPipe(2, base+7); err != nil {
		t.Fatal(err)
	}
	Assert(t, 7 == chip.registers[RRxAddrP2][0], "RX_ADDR_P2 lowest byte is wrong")
	Assert(t, 0 != chip.registers[REnRxAddr][0]&BV(BEnRxP2), "pipe 2 is not enabled")

	if err := rf.OpenReadingPipe(6, base); !errors.Is(err, ErrInvalidPipe) {
		t.Errorf("OpenReadingPipe(6) error = %v, want %v", err, ErrInvalidPipe)
	}

	if err := rf.OpenWritingPipe(base + 3); err != nil {
		t.Fatal(err)
	}
	want := []byte{0x03, 0x22, 0x33, 0x44, 0x55}
	Assert(t, reflect.DeepEqual(chip.registers[RTxAddr], want), "TX_ADDR is wrong")
	Assert(t, reflect.DeepEqual(chip.registers[RRxAddrP0], want), "RX_ADDR_P0 does not follow TX_ADDR")

	if err := rf.StartListening(); err != nil {
		t.Fatal(err)
	}
	Assert(t, reflect.DeepEqual(chip.registers[RRxAddrP0], []byte{0x00, 0x22, 0x33, 0x44, 0x55}), "RX_ADDR_P0 is not restored")
	Assert(t, 0 != chip.registers[RConfig][0]&BV(BPrimRx), "PRIM_RX is not set")
	Assert(t, chip.ce, "CE is low while listening")

	if err := rf.StopListening(); err != nil {
		t.Fatal(err)
	}
	Assert(t, 0 == chip.registers[RConfig][0]&BV(BPrimRx), "PRIM_RX is still set")
	Assert(t, !chip.ce, "CE is high after StopListening")
}

func TestWrite(t *testing.T) {
	tests := []struct {
		name     string
		ack      bool
		silent   bool
		wantAck  bool
		wantSent int
	}{
		{name: "acknowledged", ack: true, wantAck: true, wantSent: 1},
		{name: "max retransmits", ack: false, wantAck: false, wantSent: 1},
		{name: "timeout", silent: true, wantAck: false, wantSent: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rf, chip := newTestTransmitter(t)
			rf.WriteTimeout = 2 * time.Millisecond
			chip.ack = tt.ack
			chip.silent = tt.silent
			if err := rf.SetPayloadSize(10); err != nil {
				t.Fatal(err)
			}
			if err := rf.StopListening(); err != nil {
				t.Fatal(err)
			}
			if got := rf.Write([]byte{0x06, 25}); got != tt.wantAck {
				t.Errorf("Write() = %v, want %v", got, tt.wantAck)
			}
			if len(chip.sent) != tt.wantSent {
				t.Fatalf("sent %v packets, want %v", len(chip.sent), tt.wantSent)
			}
			if 1 == tt.wantSent {
				want := []byte{0x06, 25, 0, 0, 0, 0, 0, 0, 0, 0}
				Assert(t, reflect.DeepEqual(chip.sent[0], want), "payload is not zero padded to 10 bytes")
			}
			Assert(t, 0 == len(chip.txFifo), "TX FIFO is not empty after Write")
			Assert(t, 0 == chip.status()&(BV(BTxDs)|BV(BMaxRt)), "interrupt flags are not cleared")
			Assert(t, !chip.ce, "CE is left high")
		})
	}
}

func TestWriteSPIError(t *testing.T) {
	rf, chip := newTestTransmitter(t)
	chip.txErr = errors.New("bus gone")
	Assert(t, !rf.Write([]byte{0x01}), "Write() reports ack on a broken bus")
}

func TestClose(t *testing.T) {
	rf, chip := newTestTransmitter(t)
	if err := rf.StartListening(); err != nil {
		t.Fatal(err)
	}
	Assert(t, chip.ce, "CE is low while listening")
	rf.Close()
	Assert(t, !chip.ce, "CE is high after Close")
	Assert(t, 0 == chip.registers[RConfig][0]&BV(BPwrUp), "chip is still powered up after Close")
	Assert(t, 0 != chip.registers[RConfig][0]&BV(BEnCrc), "Close touched more than PWR_UP")
}

func TestCloseSPIError(t *testing.T) {
	rf, chip := newTestTransmitter(t)
	chip.txErr = errors.New("bus gone")
	rf.Close()
	Assert(t, !chip.ce, "CE is high after Close on a broken bus")
}
