// OutsideInterface is how the rest of the house talks to the strobes
package OutsideInterface

// SubMessage is a value written to a component from outside
type SubMessage struct {
	Value string
	Key   string
}

type Interface interface {
	// UpdateComponent reports a value of a component, e.g. a command result
	UpdateComponent(key string, value string)
	// RegisterWritableComponent returns the stream of values written to key
	RegisterWritableComponent(key string) <-chan SubMessage
}
