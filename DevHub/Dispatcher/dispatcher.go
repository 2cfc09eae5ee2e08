// Dispatcher maps named fixtures from the fixtures file onto strobe commands.
//
// Every fixture gets one writable component per command, "<fixture>|<command>".
// A value written there is parsed, sent to the strobe, and the ack is reported
// to "<fixture>|<command>|ack" as "1" or "0". Fixture state, online or offline,
// follows the last ack and is reported to "<fixture>|state" when it changes.
//
// Fixtures file is json5:
//
//	{
//		key: { id: 1, group: 0 },
//		fill: { address: [2, 0], commands: ["fire", "flash power"] },
//	}
package Dispatcher

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/JSkrat/kagami-house-lencarta/DevHub/OutsideInterface"
	"github.com/JSkrat/kagami-house-lencarta/DevHub/StrobeModel"
	"github.com/flynn/json5"
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

var (
	ErrUnknownFixture    = errors.New("unknown fixture")
	ErrCommandNotAllowed = errors.New("command is not allowed for the fixture")
	ErrBadFixture        = errors.New("bad fixture description")
)

type State byte

const (
	SUnknown State = 0
	SOnline  State = 1
	SOffline State = 2
)

func (s State) String() string {
	switch s {
	case SOnline:
		return "online"
	case SOffline:
		return "offline"
	}
	return "unknown"
}

// Fixture is one strobe as the house knows it
type Fixture struct {
	Name     string
	Address  StrobeModel.Address
	Commands []StrobeModel.CommandKind
	// guarded by the dispatcher mutex
	state      State
	lastUpdate time.Time
}

func (f *Fixture) allows(kind StrobeModel.CommandKind) bool {
	for _, k := range f.Commands {
		if k == kind {
			return true
		}
	}
	return false
}

type Dispatcher struct {
	encoder  *StrobeModel.Encoder
	out      OutsideInterface.Interface
	fixtures map[string]*Fixture
	// mutex is the only way to the radio, one transaction at a time
	mutex sync.Mutex
	wg    sync.WaitGroup
}

type fixtureEntry struct {
	ID       *int     `json:"id"`
	Group    *int     `json:"group"`
	Address  []int    `json:"address"`
	Commands []string `json:"commands"`
}

// Init reads the fixtures file and subscribes to every fixture component
func Init(self *Dispatcher, encoder *StrobeModel.Encoder, output OutsideInterface.Interface, fixturesFile string) error {
	jsonData, err := os.ReadFile(fixturesFile)
	if nil != err {
		return fmt.Errorf("Dispatcher.Init: %w", err)
	}
	fixtures, err := ParseFixtures(jsonData)
	if nil != err {
		return fmt.Errorf("Dispatcher.Init: %v: %w", fixturesFile, err)
	}
	self.encoder = encoder
	self.out = output
	self.fixtures = fixtures
	self.registerItems()
	log.Info(fmt.Sprintf("Dispatcher.Init: %v fixtures from %v", len(fixtures), fixturesFile))
	return nil
}

// ParseFixtures decodes json5 fixture descriptions. Fixtures without a commands list allow everything.
func ParseFixtures(data []byte) (map[string]*Fixture, error) {
	var entries map[string]fixtureEntry
	if err := json5.Unmarshal(data, &entries); nil != err {
		return nil, fmt.Errorf("json5.Unmarshal: %w", err)
	}
	ret := make(map[string]*Fixture, len(entries))
	for name, e := range entries {
		address, err := e.address()
		if nil != err {
			return nil, fmt.Errorf("fixture %q: %w", name, err)
		}
		f := &Fixture{Name: name, Address: address, Commands: StrobeModel.Kinds()}
		if nil != e.Commands {
			f.Commands = nil
			for _, c := range e.Commands {
				kind, err := StrobeModel.ParseCommandKind(c)
				if nil != err {
					return nil, fmt.Errorf("fixture %q: %w", name, err)
				}
				f.Commands = append(f.Commands, kind)
			}
		}
		ret[name] = f
	}
	return ret, nil
}

func (e fixtureEntry) address() (StrobeModel.Address, error) {
	var id, group int
	switch {
	case nil != e.Address && (nil != e.ID || nil != e.Group):
		return StrobeModel.Address{}, fmt.Errorf("both address and id/group: %w", ErrBadFixture)
	case nil != e.Address:
		if 2 != len(e.Address) {
			return StrobeModel.Address{}, fmt.Errorf("address %v is not [id, group]: %w", e.Address, ErrBadFixture)
		}
		id, group = e.Address[0], e.Address[1]
	case nil != e.ID && nil != e.Group:
		id, group = *e.ID, *e.Group
	default:
		return StrobeModel.Address{}, fmt.Errorf("no address: %w", ErrBadFixture)
	}
	if id < 0 || id > 0xFF || group < 0 || group > 0xFF {
		return StrobeModel.Address{}, fmt.Errorf("id %v group %v do not fit a byte: %w", id, group, ErrBadFixture)
	}
	return StrobeModel.NewAddress(byte(id), byte(group)), nil
}

// Fixtures returns fixture names sorted
func (d *Dispatcher) Fixtures() []string {
	ret := make([]string, 0, len(d.fixtures))
	for name := range d.fixtures {
		ret = append(ret, name)
	}
	sort.Strings(ret)
	return ret
}

// GetState of a fixture as of its last command
func (d *Dispatcher) GetState(fixture string) (state State, timestamp time.Time, err error) {
	f, ok := d.fixtures[fixture]
	if !ok {
		return SUnknown, time.Time{}, fmt.Errorf("%q: %w", fixture, ErrUnknownFixture)
	}
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return f.state, f.lastUpdate, nil
}

// Wait until all subscriptions end, that is until the outside interface closes them
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func componentKey(fixture string, kind StrobeModel.CommandKind) string {
	return fixture + "|" + kind.String()
}

func ackKey(fixture string, kind StrobeModel.CommandKind) string {
	return componentKey(fixture, kind) + "|ack"
}

func stateKey(fixture string) string {
	return fixture + "|state"
}
