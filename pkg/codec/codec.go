// Package codec turns estimator state into a Bundle of byte buffers and
// back. Binary components are written with a pluggable Codec; the history
// is always JSON text.
package codec

import (
	"encoding/json"
	"fmt"

	pkgerrors "github.com/absmach/cohort/pkg/errors"
	"github.com/fxamacker/cbor/v2"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	NameCBOR    = "cbor"
	NameMsgpack = "msgpack"
	NameJSON    = "json"
)

// Codec is the serialization contract for binary bundle components.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// New returns a codec by name. An empty name selects CBOR.
func New(name string) (Codec, error) {
	switch name {
	case NameCBOR, "":
		return CBOR{}, nil
	case NameMsgpack:
		return Msgpack{}, nil
	case NameJSON:
		return JSON{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown codec %q", pkgerrors.ErrInvalidInput, name)
	}
}

type CBOR struct{}

func (CBOR) Marshal(v any) ([]byte, error) { return cbor.Marshal(v) }

func (CBOR) Unmarshal(data []byte, v any) error { return cbor.Unmarshal(data, v) }

func (CBOR) Name() string { return NameCBOR }

type Msgpack struct{}

func (Msgpack) Marshal(v any) ([]byte, error) { return msgpack.Marshal(v) }

func (Msgpack) Unmarshal(data []byte, v any) error { return msgpack.Unmarshal(data, v) }

func (Msgpack) Name() string { return NameMsgpack }

type JSON struct{}

func (JSON) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (JSON) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func (JSON) Name() string { return NameJSON }
