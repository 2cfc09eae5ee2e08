package Dispatcher

import (
	"fmt"
	"time"

	"github.com/JSkrat/kagami-house-lencarta/DevHub/OutsideInterface"
	"github.com/JSkrat/kagami-house-lencarta/DevHub/StrobeModel"
)

func (d *Dispatcher) registerItems() {
	for _, name := range d.Fixtures() {
		f := d.fixtures[name]
		for _, kind := range f.Commands {
			d.wg.Add(1)
			go func(fixture string, kind StrobeModel.CommandKind, channel <-chan OutsideInterface.SubMessage) {
				defer d.wg.Done()
				for m := range channel {
					d.writeRequest(fixture, kind, m.Value)
				}
			}(name, kind, d.out.RegisterWritableComponent(componentKey(name, kind)))
		}
	}
}

// writeRequest is entrypoint for values from outside interface
func (d *Dispatcher) writeRequest(fixture string, kind StrobeModel.CommandKind, value string) {
	if _, err := d.Perform(fixture, kind.String(), value); nil != err {
		log.Warn(fmt.Sprintf("Dispatcher.writeRequest(%v, %v, %q): %v", fixture, kind, value, err))
		d.out.UpdateComponent(ackKey(fixture, kind), "error: "+err.Error())
	}
}

// Perform sends one command to a fixture and reports the ack to the outside interface.
// An error means nothing was transmitted.
func (d *Dispatcher) Perform(fixture string, command string, value string) (bool, error) {
	f, ok := d.fixtures[fixture]
	if !ok {
		return false, fmt.Errorf("%q: %w", fixture, ErrUnknownFixture)
	}
	kind, err := StrobeModel.ParseCommandKind(command)
	if nil != err {
		return false, err
	}
	if !f.allows(kind) {
		return false, fmt.Errorf("%v for %q: %w", kind, fixture, ErrCommandNotAllowed)
	}
	param, err := StrobeModel.ParseParameter(kind, value)
	if nil != err {
		return false, err
	}
	ack, state, changed := d.performWrite(f, kind, param)
	d.out.UpdateComponent(ackKey(fixture, kind), ackValue(ack))
	if changed {
		d.out.UpdateComponent(stateKey(fixture), state.String())
	}
	return ack, nil
}

// performWrite is the single radio transaction, under the mutex
func (d *Dispatcher) performWrite(f *Fixture, kind StrobeModel.CommandKind, param byte) (ack bool, state State, changed bool) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	log.Debug(fmt.Sprintf("Dispatcher.performWrite %v %v %v", f.Name, kind, param))
	ack = d.encoder.ExecuteAt(kind, f.Address, param)
	state = SOffline
	if ack {
		state = SOnline
	}
	changed = state != f.state
	f.state = state
	f.lastUpdate = time.Now()
	if changed {
		log.Info(fmt.Sprintf("Dispatcher: fixture %v %v is %v", f.Name, f.Address, state))
	}
	return ack, state, changed
}

func ackValue(ack bool) string {
	if ack {
		return "1"
	}
	return "0"
}
