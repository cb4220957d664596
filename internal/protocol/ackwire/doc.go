// Package ackwire owns the panel wire format.
//
// Requests are one text command terminated by '\n'. The panel answers with a
// single ASCII 'R' (0x52). Every other byte on the wire is noise and is
// dropped by the Decoder without surfacing an error.
package ackwire
