package protocol

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

// Codec encodes envelopes for one frame kind. Binary codecs go into websocket
// binary frames, the rest into text frames.
type Codec interface {
	Name() string
	Binary() bool
	Encode(msg Message) ([]byte, error)
	Decode(data []byte, msg *Message) error
}

const (
	CodecJSON = "json"
	CodecCBOR = "cbor"
)

// ByName returns the codec for a query value; empty selects JSON.
func ByName(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", CodecJSON:
		return JSON{}, nil
	case CodecCBOR:
		return CBOR{}, nil
	}
	return nil, fmt.Errorf("unknown codec %q", name)
}

type JSON struct{}

func (JSON) Name() string { return CodecJSON }
func (JSON) Binary() bool { return false }

func (JSON) Encode(msg Message) ([]byte, error) { return json.Marshal(msg) }

func (JSON) Decode(data []byte, msg *Message) error { return json.Unmarshal(data, msg) }

// encMode: детерминированное кодирование: одинаковые данные дают одинаковые байты.
var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error

	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	encMode, err = opts.EncMode()
	if err != nil {
		panic("protocol: CBOR encoder initialization failed: " + err.Error())
	}

	// any-поля (Event) декодируются в map[string]any, как в JSON.
	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("protocol: CBOR decoder initialization failed: " + err.Error())
	}
}

type CBOR struct{}

func (CBOR) Name() string { return CodecCBOR }
func (CBOR) Binary() bool { return true }

func (CBOR) Encode(msg Message) ([]byte, error) { return encMode.Marshal(msg) }

func (CBOR) Decode(data []byte, msg *Message) error { return decMode.Unmarshal(data, msg) }
