// Package protocol implements the mincoin wire envelope: a small
// self-describing JSON message with a protocol name, a semver-gated
// version, a type tag, and per-type optional payloads.
package protocol

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/Masterminds/semver/v3"
	"github.com/mincoin-project/mincoin/internal/chain"
)

// ProtocolName and ProtocolVersion identify this wire format. A peer
// advertising a different protocol name, or a strictly newer version,
// is rejected by Parse.
const (
	ProtocolName    = "mincoin_protocol"
	ProtocolVersion = "0.1.0"
)

// MaxFrameSize bounds a single newline-delimited frame. Frames larger
// than this are rejected outright (ErrFrameTooLarge) rather than
// silently truncated.
const MaxFrameSize = 64 * 1024

// MsgType is the envelope's type tag. Wire value is the variant name.
type MsgType string

const (
	MsgAdd              MsgType = "Add"
	MsgRemove           MsgType = "Remove"
	MsgCoreList         MsgType = "CoreList"
	MsgRequestCoreList  MsgType = "RequestCoreList"
	MsgPing             MsgType = "Ping"
	MsgAddAsEdge        MsgType = "AddAsEdge"
	MsgRemoveEdge       MsgType = "RemoveEdge"
	MsgNewTransaction   MsgType = "NewTransaction"
	MsgNewBlock         MsgType = "NewBlock"
	MsgRequestFullChain MsgType = "RequestFullChain"
	MsgRspFullChain     MsgType = "RspFullChain"
	MsgEnhanced         MsgType = "Enhanced"
)

// ErrProtocolMismatch and ErrVersionMismatch are the gating failures of
// Parse, wrapped with the offending value for logging; Parse also fails,
// without either sentinel, on malformed JSON or an unparsable version.
// ErrFrameTooLarge is the framing failure of WriteFrame/ReadFrame.
var (
	ErrProtocolMismatch = errors.New("protocol: protocol name mismatch")
	ErrVersionMismatch  = errors.New("protocol: version is newer than supported")
	ErrFrameTooLarge    = errors.New("protocol: frame exceeds maximum size")
)

// Envelope is the wire message. NewCoreSet and NewTransaction are
// mutually-exclusive-by-convention optional payloads; most message
// types populate neither.
type Envelope struct {
	Protocol       string             `json:"protocol"`
	Version        string             `json:"version"`
	MsgType        MsgType            `json:"msg_type"`
	MyAddr         string             `json:"my_addr"`
	NewCoreSet     []string           `json:"new_core_set"`
	NewTransaction *chain.Transaction `json:"new_transaction"`
}

// Build serializes a new envelope. coreSet and tx may be nil.
func Build(msgType MsgType, myAddr string, coreSet []string, tx *chain.Transaction) (string, error) {
	env := Envelope{
		Protocol:       ProtocolName,
		Version:        ProtocolVersion,
		MsgType:        msgType,
		MyAddr:         myAddr,
		NewCoreSet:     coreSet,
		NewTransaction: tx,
	}
	b, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("protocol: build: %w", err)
	}
	return string(b), nil
}

// Parse decodes and validates a single envelope. It does not validate
// per-type payload shape beyond what json.Unmarshal enforces; dispatch
// is responsible for reacting sensibly to an absent optional field.
func Parse(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("protocol: malformed envelope: %w", err)
	}
	if env.Protocol != ProtocolName {
		return nil, fmt.Errorf("%w: got %q", ErrProtocolMismatch, env.Protocol)
	}
	if err := checkVersion(env.Version); err != nil {
		return nil, err
	}
	return &env, nil
}

func checkVersion(v string) error {
	got, err := semver.NewVersion(v)
	if err != nil {
		return fmt.Errorf("protocol: invalid version %q: %w", v, err)
	}
	supported, err := semver.NewVersion(ProtocolVersion)
	if err != nil {
		// Our own constant must always parse; a failure here is a bug.
		panic(fmt.Sprintf("protocol: PROTOCOL_VERSION %q does not parse as semver: %v", ProtocolVersion, err))
	}
	if got.GreaterThan(supported) {
		return fmt.Errorf("%w: peer version %s > supported %s", ErrVersionMismatch, got, supported)
	}
	return nil
}

// WriteFrame writes msg to w terminated by a newline. Newline framing
// lets ReadFrame pull exactly one message off the wire regardless of
// how TCP happens to chunk the underlying reads.
func WriteFrame(w io.Writer, msg string) error {
	if len(msg) > MaxFrameSize {
		return ErrFrameTooLarge
	}
	_, err := io.WriteString(w, msg+"\n")
	return err
}

// ReadFrame reads one newline-delimited frame from r.
func ReadFrame(r *bufio.Reader) ([]byte, error) {
	line, err := r.ReadBytes('\n')
	if err != nil && err != io.EOF {
		return nil, err
	}
	if len(line) == 0 {
		return nil, io.EOF
	}
	// Trim the trailing newline (and a possible preceding \r).
	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}
	if len(line) > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}
	return line, nil
}
