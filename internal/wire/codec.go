package wire

import (
	"bytes"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	CodecJSON    = "json"
	CodecMsgpack = "msgpack"
)

// Codec turns envelopes into websocket frames and back.
type Codec interface {
	Name() string
	// FrameType is the websocket message type the codec writes.
	FrameType() int
	Encode(*Message) ([]byte, error)
	Decode([]byte, *Message) error
}

// CodecByName returns the JSON codec for an empty name.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", CodecJSON:
		return JSON{}, nil
	case CodecMsgpack:
		return Msgpack{}, nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}

type JSON struct{}

func (JSON) Name() string { return CodecJSON }

func (JSON) FrameType() int { return websocket.TextMessage }

func (JSON) Encode(m *Message) ([]byte, error) { return json.Marshal(m) }

func (JSON) Decode(b []byte, m *Message) error { return json.Unmarshal(b, m) }

// Msgpack reuses the json tags so both codecs agree on field names.
type Msgpack struct{}

func (Msgpack) Name() string   { return CodecMsgpack }
func (Msgpack) FrameType() int { return websocket.BinaryMessage }

func (Msgpack) Encode(m *Message) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (Msgpack) Decode(b []byte, m *Message) error {
	dec := msgpack.NewDecoder(bytes.NewReader(b))
	dec.SetCustomStructTag("json")
	return dec.Decode(m)
}
