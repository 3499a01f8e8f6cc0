package signaling

import (
	"encoding/json"

	"github.com/vmihailenco/msgpack/v5"
)

// Codec turns envelopes into transport payloads and back.
type Codec interface {
	Name() string
	Marshal(e *Envelope) ([]byte, error)
	Unmarshal(data []byte, e *Envelope) error
}

var (
	// JSON is used where the payload is embedded in a JSON frame (relay).
	JSON Codec = jsonCodec{}

	// MsgPack is used where the transport carries raw bytes (MQTT).
	MsgPack Codec = msgpackCodec{}
)

type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(e *Envelope) ([]byte, error) {
	return json.Marshal(e)
}

func (jsonCodec) Unmarshal(data []byte, e *Envelope) error {
	return json.Unmarshal(data, e)
}

type msgpackCodec struct{}

func (msgpackCodec) Name() string { return "msgpack" }

func (msgpackCodec) Marshal(e *Envelope) ([]byte, error) {
	return msgpack.Marshal(e)
}

func (msgpackCodec) Unmarshal(data []byte, e *Envelope) error {
	return msgpack.Unmarshal(data, e)
}
