package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/JSkrat/kagami-house-lencarta/DevHub/Dispatcher"
	"github.com/JSkrat/kagami-house-lencarta/DevHub/Redis"
	"github.com/JSkrat/kagami-house-lencarta/DevHub/StrobeModel"
	"github.com/JSkrat/kagami-house-lencarta/DevHub/StubTransciever"
	"github.com/JSkrat/kagami-house-lencarta/DevHub/TranscieverModel"
	"github.com/JSkrat/kagami-house-lencarta/DevHub/UartTransciever"
	nRF_model "github.com/JSkrat/kagami-house-lencarta/DevHub/nRFModel"
	"github.com/sirupsen/logrus"
	"periph.io/x/periph/conn/physic"
)

var log = logrus.New()

type options struct {
	transceiver string
	spiPort     string
	spiHz       int64
	ce          string
	irq         string
	uart        string
	baud        int
	redis       string
	fixtures    string
	logLevel    string
	command     string
	id          uint
	group       uint
	value       string
}

func parseFlags() options {
	var o options
	flag.StringVar(&o.transceiver, "transceiver", "nrf", "radio backend: nrf, uart or stub")
	flag.StringVar(&o.spiPort, "spi", "", "SPI port of the nRF24L01+, first available when empty")
	flag.Int64Var(&o.spiHz, "spi-hz", 1000000, "SPI clock in Hz")
	flag.StringVar(&o.ce, "ce", "GPIO25", "CE pin of the nRF24L01+")
	flag.StringVar(&o.irq, "irq", "GPIO24", "IRQ pin of the nRF24L01+, empty to poll")
	flag.StringVar(&o.uart, "uart", "/dev/ttyUSB0", "serial port of the nRF modem")
	flag.IntVar(&o.baud, "baud", UartTransciever.DefaultSpeed, "serial port speed")
	flag.StringVar(&o.redis, "redis", "localhost:6379", "redis server address")
	flag.StringVar(&o.fixtures, "fixtures", "fixtures.json5", "fixtures file")
	flag.StringVar(&o.logLevel, "log-level", "info", "trace, debug, info, warning or error")
	flag.StringVar(&o.command, "command", "", "send a single command and exit: "+commandNames())
	flag.UintVar(&o.id, "id", 0, "strobe id for -command")
	flag.UintVar(&o.group, "group", 0, "strobe group for -command")
	flag.StringVar(&o.value, "value", "", "command parameter for -command")
	flag.Parse()
	return o
}

func commandNames() (ret string) {
	for i, k := range StrobeModel.Kinds() {
		if 0 < i {
			ret += ", "
		}
		ret += fmt.Sprintf("%q", k.String())
	}
	return ret
}

func setLogLevel(level logrus.Level) {
	log.SetLevel(level)
	nRF_model.SetLogLevel(level)
	UartTransciever.SetLogLevel(level)
	StubTransciever.SetLogLevel(level)
	StrobeModel.SetLogLevel(level)
	Dispatcher.SetLogLevel(level)
	Redis.SetLogLevel(level)
}

func openTransceiver(o options) (TranscieverModel.Transceiver, error) {
	switch o.transceiver {
	case "nrf":
		return nRF_model.Open(nRF_model.TransmitterSettings{
			PortName: o.spiPort,
			CEName:   o.ce,
			IrqName:  o.irq,
			Speed:    physic.Frequency(o.spiHz) * physic.Hertz,
		})
	case "uart":
		return UartTransciever.Open(UartTransciever.TransmitterSettings{
			PortName: o.uart,
			Speed:    o.baud,
		})
	case "stub":
		return StubTransciever.New(), nil
	}
	return nil, fmt.Errorf("unknown transceiver %q", o.transceiver)
}

// oneShot sends a single command, the exit code tells if the strobe acknowledged it
func oneShot(encoder *StrobeModel.Encoder, o options) int {
	kind, err := StrobeModel.ParseCommandKind(o.command)
	if nil != err {
		log.Error(err)
		return 2
	}
	if o.id > 0xFF || o.group > 0xFF {
		log.Error(fmt.Sprintf("id %v group %v do not fit a byte", o.id, o.group))
		return 2
	}
	param, err := StrobeModel.ParseParameter(kind, o.value)
	if nil != err {
		log.Error(err)
		return 2
	}
	address := StrobeModel.NewAddress(byte(o.id), byte(o.group))
	if encoder.ExecuteAt(kind, address, param) {
		log.Info(fmt.Sprintf("%v %v: acknowledged", kind, address))
		return 0
	}
	log.Warn(fmt.Sprintf("%v %v: no acknowledgment", kind, address))
	return 1
}

func serve(encoder *StrobeModel.Encoder, o options) int {
	var out Redis.Interface
	if err := Redis.Init(&out, o.redis); nil != err {
		log.Error(err)
		return 2
	}
	var d Dispatcher.Dispatcher
	if err := Dispatcher.Init(&d, encoder, &out, o.fixtures); nil != err {
		log.Error(err)
		out.Close()
		return 2
	}
	log.Info(fmt.Sprintf("serving fixtures %v", d.Fixtures()))
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	s := <-signals
	log.Info(fmt.Sprintf("%v, shutting down", s))
	out.Close()
	d.Wait()
	return 0
}

func run() int {
	o := parseFlags()
	log.Formatter = new(logrus.TextFormatter)
	log.Out = os.Stdout
	level, err := logrus.ParseLevel(o.logLevel)
	if nil != err {
		log.Error(err)
		return 2
	}
	setLogLevel(level)
	radio, err := openTransceiver(o)
	if nil != err {
		log.Error(err)
		return 2
	}
	defer radio.Close()
	encoder := StrobeModel.NewEncoder(radio)
	encoder.Begin()
	if "" != o.command {
		return oneShot(encoder, o)
	}
	return serve(encoder, o)
}

func main() {
	os.Exit(run())
}
