// Package midicc decodes MIDI Control Change messages from raw host
// event bytes, the same manual status-byte parsing used for gomidi/midi
// message handling elsewhere in this codebase's reference material.
package midicc

import "gitlab.com/gomidi/midi/v2"

// ControlChange is a decoded Control Change message.
type ControlChange struct {
	Channel    uint8
	Controller uint8
	Value      uint8
}

// Parse interprets raw as a MIDI message and, if it is a Control Change
// (status nibble 0xB0), returns the decoded message and true. Any other
// message, or a message too short to contain a controller+value pair,
// returns false.
func Parse(raw []byte) (ControlChange, bool) {
	if len(raw) < 3 {
		return ControlChange{}, false
	}

	msg := midi.Message(raw)
	b := msg.Bytes()
	if len(b) < 3 {
		return ControlChange{}, false
	}

	status := b[0]
	command := status & 0xF0
	if command != 0xB0 {
		return ControlChange{}, false
	}

	return ControlChange{
		Channel:    status & 0x0F,
		Controller: b[1],
		Value:      b[2],
	}, true
}
