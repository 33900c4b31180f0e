package wire

import (
	"fmt"
	"reflect"

	"github.com/bytedance/sonic"
	"github.com/fxamacker/cbor/v2"
)

// Codec encodes frames for one transport
type Codec interface {
	Name() string
	Marshal(f *Frame) ([]byte, error)
	Unmarshal(data []byte, f *Frame) error
}

var (
	// JSON is used for websocket text frames
	JSON Codec = jsonCodec{}
	// CBOR is used for process stdio
	CBOR Codec = newCBORCodec()
)

type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(f *Frame) ([]byte, error) {
	return sonic.Marshal(f)
}

func (jsonCodec) Unmarshal(data []byte, f *Frame) error {
	return sonic.Unmarshal(data, f)
}

type cborCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

func newCBORCodec() cborCodec {
	enc, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("wire: CBOR encoder initialization failed: " + err.Error())
	}
	dec, err := cbor.DecOptions{
		// Payload values must decode as map[string]interface{}, not
		// map[interface{}]interface{}
		DefaultMapType: reflect.TypeOf(map[string]interface{}(nil)),
	}.DecMode()
	if err != nil {
		panic("wire: CBOR decoder initialization failed: " + err.Error())
	}
	return cborCodec{enc: enc, dec: dec}
}

func (cborCodec) Name() string { return "cbor" }

func (c cborCodec) Marshal(f *Frame) ([]byte, error) {
	return c.enc.Marshal(f)
}

func (c cborCodec) Unmarshal(data []byte, f *Frame) error {
	if err := c.dec.Unmarshal(data, f); err != nil {
		return fmt.Errorf("decode cbor frame: %w", err)
	}
	return nil
}
