// Package codec provides the serializers used for stored event payloads.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

var ErrNotRegistered = errors.New("codec: not registered")

// Codec serializes values to bytes and back.
type Codec interface {
	Name() string
	Marshal(v interface{}) ([]byte, error)
	Unmarshal(b []byte, v interface{}) error
}

var (
	JSON    Codec = &jsonCodec{}
	MsgPack Codec = &msgpackCodec{}

	Default = JSON
)

var registry = map[string]Codec{
	"json":    JSON,
	"msgpack": MsgPack,
}

// Get returns the codec registered under name. An empty name selects Default.
func Get(name string) (Codec, error) {
	if name == "" {
		return Default, nil
	}
	c, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, name)
	}
	return c, nil
}

type jsonCodec struct{}

func (*jsonCodec) Name() string { return "json" }

func (*jsonCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (*jsonCodec) Unmarshal(b []byte, v interface{}) error {
	if len(b) == 0 {
		return errors.New("codec: empty payload")
	}
	return json.Unmarshal(b, v)
}

type msgpackCodec struct{}

func (*msgpackCodec) Name() string { return "msgpack" }

func (*msgpackCodec) Marshal(v interface{}) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (*msgpackCodec) Unmarshal(b []byte, v interface{}) error {
	if len(b) == 0 {
		return errors.New("codec: empty payload")
	}
	return msgpack.Unmarshal(b, v)
}
