// Package apnsbinary implements the legacy APNS binary protocol: one binary
// frame per device token written to a persistent TLS stream, with error
// frames read back and a separate feedback service listing dead tokens.
package apnsbinary

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
)

// Frame commands of the binary protocol.
const (
	commandSend  = 1
	commandError = 8
)

// Status bytes reported in an error frame.
const (
	StatusNoError          = 0
	StatusProcessingError  = 1
	StatusMissingToken     = 2
	StatusMissingTopic     = 3
	StatusMissingPayload   = 4
	StatusInvalidTokenSize = 5
	StatusInvalidTopicSize = 6
	StatusInvalidPayload   = 7
	StatusInvalidToken     = 8
	StatusShutdown         = 10
	StatusUnknown          = 255
)

// tokenSize is the length of a binary device token; endpoints are its hex
// form.
const tokenSize = 32

// encodeFrame serializes one notification frame: command byte, identifier,
// expiry, token length and bytes, payload length and bytes. The identifier is
// echoed back in an error frame.
func encodeFrame(identifier uint32, expiry uint32, endpoint string, payload []byte) ([]byte, error) {
	token, err := hex.DecodeString(endpoint)
	if err != nil {
		return nil, fmt.Errorf("malformed device token: %w", err)
	}
	if len(token) != tokenSize {
		return nil, fmt.Errorf("invalid device token size %d", len(token))
	}

	var buf bytes.Buffer
	buf.WriteByte(commandSend)
	_ = binary.Write(&buf, binary.BigEndian, identifier)
	_ = binary.Write(&buf, binary.BigEndian, expiry)
	_ = binary.Write(&buf, binary.BigEndian, uint16(len(token)))
	buf.Write(token)
	_ = binary.Write(&buf, binary.BigEndian, uint16(len(payload)))
	buf.Write(payload)
	return buf.Bytes(), nil
}

// readErrorFrame reads one error frame (command byte, status byte, echoed
// identifier) from the stream. The gateway sends nothing on success, so
// callers read with a short deadline and treat a timeout as accepted.
func readErrorFrame(r io.Reader) (code byte, identifier uint32, err error) {
	var frame [6]byte
	if _, err := io.ReadFull(r, frame[:]); err != nil {
		return StatusUnknown, 0, err
	}
	if frame[0] != commandError {
		return StatusUnknown, 0, fmt.Errorf("unexpected frame command %d", frame[0])
	}
	return frame[1], binary.BigEndian.Uint32(frame[2:6]), nil
}
