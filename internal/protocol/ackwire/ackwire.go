package ackwire

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// AckByte is the only byte the panel sends to approve a request.
	AckByte byte = 'R'

	RequestTerminator byte = '\n'

	// MaxCommandLen keeps requests within one HC-05 serial buffer.
	MaxCommandLen = 64
)

var (
	ErrEmptyCommand   = errors.New("ackwire: empty command")
	ErrInvalidCommand = errors.New("ackwire: invalid command")
)

// EncodeRequest returns the wire bytes for one approval request.
func EncodeRequest(command string) ([]byte, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return nil, ErrEmptyCommand
	}
	if len(command) > MaxCommandLen {
		return nil, fmt.Errorf("%w: length %d exceeds %d", ErrInvalidCommand, len(command), MaxCommandLen)
	}
	if strings.ContainsAny(command, "\r\n\x00") {
		return nil, fmt.Errorf("%w: control character in %q", ErrInvalidCommand, command)
	}
	out := make([]byte, 0, len(command)+1)
	out = append(out, command...)
	return append(out, RequestTerminator), nil
}
