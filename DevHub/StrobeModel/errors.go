package StrobeModel

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownCommand = errors.New("unknown strobe command")
	ErrBadParameter   = errors.New("bad command parameter")
)

// Dump formats bytes the way they show up on a logic analyzer, "06 19 00 "
func Dump(b []byte) string {
	var ret string
	for _, c := range b {
		ret += fmt.Sprintf("%02X ", c)
	}
	return ret
}
