package nRF_model

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/JSkrat/kagami-house-lencarta/DevHub/TranscieverModel"
	"github.com/sirupsen/logrus"
	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/conn/physic"
	"periph.io/x/periph/conn/spi"
	"periph.io/x/periph/conn/spi/spireg"
	"periph.io/x/periph/host"
)

var log = logrus.New()

func init() {
	log.Formatter = new(logrus.TextFormatter)
	log.Level = logrus.InfoLevel
	log.Out = os.Stdout
}

// SetLogLevel of the package logger
func SetLogLevel(level logrus.Level) {
	log.SetLevel(level)
}

const (
	// DefaultWriteTimeout is how long Write waits for TX_DS or MAX_RT.
	// 15 retries of 1500us plus airtime at 250kbps fit well inside.
	DefaultWriteTimeout = 95 * time.Millisecond
	DefaultSpeed        = 1 * physic.MegaHertz

	ceHighPulse     = 15 * time.Microsecond
	powerUpDelay    = 5 * time.Millisecond
	statusPollDelay = 100 * time.Microsecond
)

// spiConn is the part of spi.Conn the driver needs
type spiConn interface {
	Tx(w, r []byte) error
}

type pinOut interface {
	Out(l gpio.Level) error
}

type edgeWaiter interface {
	WaitForEdge(timeout time.Duration) bool
}

// NRFTransmitter drives an nRF24L01(+) in the RF24 library manner:
// static payloads, auto ack, pipe 0 doubling as the ack pipe while writing.
type NRFTransmitter struct {
	port         spi.PortCloser
	irqPin       gpio.PinIO
	connection   spiConn
	ce           pinOut
	irq          edgeWaiter
	status       uint8
	channel      uint8
	payloadSize  uint8
	pipe0Address TranscieverModel.PipeAddress
	pipe0Open    bool
	mutex        sync.Mutex
	WriteTimeout time.Duration
}

type TransmitterSettings struct {
	PortName string
	CEName   string
	// IrqName may be empty, STATUS is polled then
	IrqName string
	Speed   physic.Frequency
}

func BV(b Bit) byte {
	return 1 << byte(b)
}

// Open acquires the SPI port and GPIO pins. Begin must be called before anything else.
func Open(settings TransmitterSettings) (*NRFTransmitter, error) {
	log.Info(fmt.Sprintf("nRF model.Open %+v", settings))
	// Make sure periphery is initialized.
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host.Init: %w", err)
	}
	// Use SPI port registry to find the first available SPI bus.
	port, err := spireg.Open(settings.PortName)
	if err != nil {
		return nil, fmt.Errorf("spireg.Open of port %q: %w", settings.PortName, err)
	}
	speed := settings.Speed
	if 0 == speed {
		speed = DefaultSpeed
	}
	connection, err := port.Connect(speed, spi.Mode0, 8)
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("port.Connect: %w", err)
	}
	// CE (this signal is active high and used to activate the chip in RX or TX mode)
	ce := gpioreg.ByName(settings.CEName)
	if nil == ce {
		_ = port.Close()
		return nil, fmt.Errorf("ce pin <%s>: %w", settings.CEName, ErrPinNotFound)
	}
	if err := ce.Out(gpio.Low); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("initialization CE, PinOut.Out: %w", err)
	}
	rf := newTransmitter(connection, ce, nil)
	rf.port = port
	if "" != settings.IrqName {
		// IRQ (this signal is active low and controlled by three maskable interrupt sources)
		irq := gpioreg.ByName(settings.IrqName)
		if nil == irq {
			_ = port.Close()
			return nil, fmt.Errorf("irq pin <%s>: %w", settings.IrqName, ErrPinNotFound)
		}
		if err := irq.In(gpio.PullUp, gpio.FallingEdge); err != nil {
			_ = port.Close()
			return nil, fmt.Errorf("initialization IRQ, PinIn.In: %w", err)
		}
		rf.irqPin = irq
		rf.irq = irq
	}
	return rf, nil
}

func newTransmitter(connection spiConn, ce pinOut, irq edgeWaiter) *NRFTransmitter {
	return &NRFTransmitter{
		connection:   connection,
		ce:           ce,
		irq:          irq,
		payloadSize:  TranscieverModel.MaxPayloadSize,
		WriteTimeout: DefaultWriteTimeout,
	}
}

// Close leaves the chip powered down, it does not listen after the gateway is gone
func (rf *NRFTransmitter) Close() {
	rf.mutex.Lock()
	defer rf.mutex.Unlock()
	if err := goIdle(rf); nil != err {
		log.Warn(fmt.Sprintf("nRF model.Close: %v", err))
	}
	if nil != rf.irqPin {
		_ = rf.irqPin.In(gpio.PullNoChange, gpio.NoEdge)
	}
	if nil != rf.port {
		_ = rf.port.Close()
	}
}

func setCE(rf *NRFTransmitter, value bool) error {
	log.Trace(fmt.Sprintf("setCE %v", value))
	if err := rf.ce.Out(gpio.Level(value)); nil != err {
		return fmt.Errorf("rf.ce.Out: %w", err)
	}
	return nil
}

// goIdle drops CE and clears PWR_UP, the chip goes from standby-I to power down
func goIdle(rf *NRFTransmitter) error {
	log.Debug("nRF model.goIdle")
	if err := setCE(rf, false); nil != err {
		return err
	}
	return updateRegister(rf, RConfig, 0, BV(BPwrUp))
}

/**
 * The serial shifting SPI commands is in the following format:
 * <Command word: MSBit to LSBit (one byte)>
 * <Data bytes: LSByte to MSByte, MSBit in each byte first>
 * length of data determines how much bytes would be read and written
 */
func sendCommand(rf *NRFTransmitter, command Command, data []byte) ([]byte, error) {
	log.Trace(fmt.Sprintf("sendCommand %02X, data %v", byte(command), data))
	write := make([]byte, 1, 1+len(data))
	write[0] = byte(command)
	write = append(write, data...)
	read := make([]byte, len(write))
	if err := rf.connection.Tx(write, read); err != nil {
		return nil, fmt.Errorf("sendCommand %02X: %w", byte(command), err)
	}
	rf.status = read[0]
	return read[1:], nil
}

func readRegister(rf *NRFTransmitter, register Register) ([]byte, error) {
	return sendCommand(rf, Command(byte(CReadRegister)|byte(register)&registerMask), make([]byte, registerLengths[register]))
}

func writeRegister(rf *NRFTransmitter, r Register, data []byte) error {
	if len(data) > int(registerLengths[r]) {
		return fmt.Errorf("register %02X: %w", byte(r), ErrRegisterSize)
	}
	_, err := sendCommand(rf, Command(byte(CWriteRegister)|byte(r)&registerMask), data)
	return err
}

func writeByteRegister(rf *NRFTransmitter, r Register, data byte) error {
	return writeRegister(rf, r, []byte{data})
}

type registerValue struct {
	register Register
	value    byte
}

func writeByteRegisters(rf *NRFTransmitter, values ...registerValue) error {
	for _, v := range values {
		if err := writeByteRegister(rf, v.register, v.value); err != nil {
			return err
		}
	}
	return nil
}

// updateRegister sets then clears bits with a single read-modify-write
func updateRegister(rf *NRFTransmitter, r Register, set byte, clear byte) error {
	value, err := readRegister(rf, r)
	if err != nil {
		return err
	}
	return writeByteRegister(rf, r, (value[0]|set)&^clear)
}

func clearInterrupts(rf *NRFTransmitter) error {
	return writeByteRegister(rf, RStatus, BV(BRxDr)|BV(BTxDs)|BV(BMaxRt))
}

func (rf *NRFTransmitter) Begin() error {
	rf.mutex.Lock()
	defer rf.mutex.Unlock()
	log.Info("nRF model.Begin")
	if err := setCE(rf, false); err != nil {
		return err
	}
	time.Sleep(powerUpDelay)
	if err := writeByteRegisters(rf,
		registerValue{RSetupRetr, setupRetrDefault},
		registerValue{RSetupAW, setupAW5Bytes},
		registerValue{RRFSetup, rfSetupDefault},
		registerValue{RDynPd, 0},
		registerValue{RFeature, 0},
	); err != nil {
		return err
	}
	// a chip that is not there reads back zeroes or ones
	aw, err := readRegister(rf, RSetupAW)
	if err != nil {
		return err
	}
	if setupAW5Bytes != aw[0] {
		return fmt.Errorf("SETUP_AW reads %02X: %w", aw[0], ErrNoChip)
	}
	if _, err := sendCommand(rf, CFlushRx, nil); err != nil {
		return err
	}
	if _, err := sendCommand(rf, CFlushTx, nil); err != nil {
		return err
	}
	if err := clearInterrupts(rf); err != nil {
		return err
	}
	if err := writeByteRegister(rf, RConfig, BV(BEnCrc)|BV(BCrcO)|BV(BPwrUp)); err != nil {
		return err
	}
	time.Sleep(powerUpDelay)
	return nil
}

func (rf *NRFTransmitter) SetDataRate(rate TranscieverModel.DataRate) error {
	rf.mutex.Lock()
	defer rf.mutex.Unlock()
	log.Debug(fmt.Sprintf("nRF model.SetDataRate %v", rate))
	var set byte
	switch rate {
	case TranscieverModel.DataRate1Mbps:
	case TranscieverModel.DataRate2Mbps:
		set = BV(BRfDrHigh)
	case TranscieverModel.DataRate250Kbps:
		set = BV(BRfDrLow)
	default:
		return fmt.Errorf("%v: %w", rate, ErrInvalidDataRate)
	}
	return updateRegister(rf, RRFSetup, set, (BV(BRfDrLow)|BV(BRfDrHigh))&^set)
}

func ValidateRfChannel(channel byte) bool {
	return channel <= TranscieverModel.MaxChannel
}

// SetChannel clamps out of range channels to the last one, the way the RF24 library does
func (rf *NRFTransmitter) SetChannel(channel uint8) error {
	rf.mutex.Lock()
	defer rf.mutex.Unlock()
	log.Debug(fmt.Sprintf("nRF model.SetChannel %v", channel))
	if !ValidateRfChannel(channel) {
		log.Warn(fmt.Sprintf("nRF model.SetChannel: channel %v is out of range, using %v", channel, TranscieverModel.MaxChannel))
		channel = TranscieverModel.MaxChannel
	}
	if err := writeByteRegister(rf, RRFCh, channel); err != nil {
		return err
	}
	rf.channel = channel
	return nil
}

func (rf *NRFTransmitter) Channel() uint8 {
	rf.mutex.Lock()
	defer rf.mutex.Unlock()
	return rf.channel
}

func (rf *NRFTransmitter) SetAutoAck(enable bool) error {
	rf.mutex.Lock()
	defer rf.mutex.Unlock()
	log.Debug(fmt.Sprintf("nRF model.SetAutoAck %v", enable))
	var value byte
	if enable {
		value = allPipes
	}
	return writeByteRegister(rf, REnAA, value)
}

func (rf *NRFTransmitter) SetPayloadSize(size uint8) error {
	rf.mutex.Lock()
	defer rf.mutex.Unlock()
	log.Debug(fmt.Sprintf("nRF model.SetPayloadSize %v", size))
	if 0 == size {
		size = 1
	}
	if size > TranscieverModel.MaxPayloadSize {
		size = TranscieverModel.MaxPayloadSize
	}
	for _, r := range rxPwRegisters {
		if err := writeByteRegister(rf, r, size); err != nil {
			return err
		}
	}
	rf.payloadSize = size
	return nil
}

// OpenReadingPipe sets the address of a pipe and enables it.
// Pipes 2-5 share the upper four bytes with pipe 1, only their lowest byte is written.
func (rf *NRFTransmitter) OpenReadingPipe(pipe uint8, address TranscieverModel.PipeAddress) error {
	rf.mutex.Lock()
	defer rf.mutex.Unlock()
	log.Debug(fmt.Sprintf("nRF model.OpenReadingPipe %v %v", pipe, address))
	if pipe >= pipeCount {
		return fmt.Errorf("pipe %v: %w", pipe, ErrInvalidPipe)
	}
	a := address.Bytes()
	data := a[:]
	if pipe > 1 {
		data = a[:1]
	}
	if err := writeRegister(rf, rxAddrRegisters[pipe], data); err != nil {
		return err
	}
	if err := writeByteRegister(rf, rxPwRegisters[pipe], rf.payloadSize); err != nil {
		return err
	}
	if err := updateRegister(rf, REnRxAddr, BV(Bit(pipe)), 0); err != nil {
		return err
	}
	if 0 == pipe {
		rf.pipe0Address = address
		rf.pipe0Open = true
	}
	return nil
}

// OpenWritingPipe also points pipe 0 at the destination, auto ack answers arrive there
func (rf *NRFTransmitter) OpenWritingPipe(address TranscieverModel.PipeAddress) error {
	rf.mutex.Lock()
	defer rf.mutex.Unlock()
	log.Debug(fmt.Sprintf("nRF model.OpenWritingPipe %v", address))
	a := address.Bytes()
	if err := writeRegister(rf, RTxAddr, a[:]); err != nil {
		return err
	}
	if err := writeRegister(rf, RRxAddrP0, a[:]); err != nil {
		return err
	}
	return writeByteRegister(rf, RRxPwP0, rf.payloadSize)
}

func (rf *NRFTransmitter) StartListening() error {
	rf.mutex.Lock()
	defer rf.mutex.Unlock()
	log.Debug("nRF model.StartListening")
	if err := updateRegister(rf, RConfig, BV(BPrimRx), 0); err != nil {
		return err
	}
	if err := clearInterrupts(rf); err != nil {
		return err
	}
	// restore the reading address OpenWritingPipe has overwritten
	if rf.pipe0Open {
		a := rf.pipe0Address.Bytes()
		if err := writeRegister(rf, RRxAddrP0, a[:]); err != nil {
			return err
		}
	}
	return setCE(rf, true)
}

func (rf *NRFTransmitter) StopListening() error {
	rf.mutex.Lock()
	defer rf.mutex.Unlock()
	log.Debug("nRF model.StopListening")
	if err := setCE(rf, false); err != nil {
		return err
	}
	return updateRegister(rf, RConfig, 0, BV(BPrimRx))
}

// Write sends one static payload and waits until the chip either got the ack (TX_DS)
// or ran out of retransmits (MAX_RT). Short payloads are zero padded.
func (rf *NRFTransmitter) Write(payload []byte) bool {
	rf.mutex.Lock()
	defer rf.mutex.Unlock()
	if len(payload) > int(rf.payloadSize) {
		log.Warn(fmt.Sprintf("nRF model.Write: payload of %v bytes truncated to %v", len(payload), rf.payloadSize))
	}
	data := make([]byte, rf.payloadSize)
	copy(data, payload)
	ack, err := transmit(rf, data)
	if err != nil {
		log.Error(fmt.Sprintf("nRF model.Write: %v", err))
		return false
	}
	return ack
}

func transmit(rf *NRFTransmitter, data []byte) (bool, error) {
	if _, err := sendCommand(rf, CWriteTxPayload, data); err != nil {
		return false, err
	}
	// without a CE changing from low to high transmission won't start
	if err := setCE(rf, true); err != nil {
		return false, err
	}
	time.Sleep(ceHighPulse)
	done, err := waitTxDone(rf)
	if ceErr := setCE(rf, false); err == nil {
		err = ceErr
	}
	if err != nil {
		return false, err
	}
	ack := 0 != rf.status&BV(BTxDs)
	if err := writeByteRegister(rf, RStatus, BV(BTxDs)|BV(BMaxRt)); err != nil {
		return false, err
	}
	if !ack {
		if done {
			log.Debug("nRF model.Write: MAX_RT, no ack")
		} else {
			log.Warn(fmt.Sprintf("nRF model.Write: neither TX_DS nor MAX_RT in %v", rf.WriteTimeout))
		}
		// TX FIFO does not pop failed element. If we won't clean it, it will be re-sent again.
		if _, err := sendCommand(rf, CFlushTx, nil); err != nil {
			return false, err
		}
	}
	return ack, nil
}

// waitTxDone returns true once TX_DS or MAX_RT shows up in STATUS, false on timeout
func waitTxDone(rf *NRFTransmitter) (bool, error) {
	deadline := time.Now().Add(rf.WriteTimeout)
	for {
		if nil != rf.irq {
			// negative timeout means forever for periph
			if remaining := time.Until(deadline); remaining > 0 {
				rf.irq.WaitForEdge(remaining)
			}
		}
		// update status register
		if _, err := sendCommand(rf, CNop, nil); err != nil {
			return false, err
		}
		if 0 != rf.status&(BV(BTxDs)|BV(BMaxRt)) {
			return true, nil
		}
		if time.Now().After(deadline) {
			return false, nil
		}
		if nil == rf.irq {
			time.Sleep(statusPollDelay)
		}
	}
}
