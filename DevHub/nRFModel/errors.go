package nRF_model

import "errors"

var (
	ErrNoChip          = errors.New("nRF24L01 does not respond on SPI")
	ErrRegisterSize    = errors.New("data is bigger than register size")
	ErrInvalidPipe     = errors.New("invalid pipe (valid range: 0-5)")
	ErrInvalidDataRate = errors.New("invalid data rate")
	ErrPinNotFound     = errors.New("gpio pin not found")
)
