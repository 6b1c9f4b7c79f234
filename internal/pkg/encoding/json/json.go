// Package json wraps json-iterator in the standard library compatible mode.
package json

import (
	"bytes"

	jsoniter "github.com/json-iterator/go"

	"github.com/keboola/metric-duct/internal/pkg/utils/errors"
)

// nolint: gochecknoglobals
var api = jsoniter.ConfigCompatibleWithStandardLibrary

type RawMessage = jsoniter.RawMessage

func Encode(v any, pretty bool) ([]byte, error) {
	if pretty {
		return api.MarshalIndent(v, "", "  ")
	}
	return api.Marshal(v)
}

func EncodeString(v any, pretty bool) (string, error) {
	data, err := Encode(v, pretty)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func MustEncode(v any, pretty bool) []byte {
	data, err := Encode(v, pretty)
	if err != nil {
		panic(err)
	}
	return data
}

func MustEncodeString(v any, pretty bool) string {
	return string(MustEncode(v, pretty))
}

// Decode JSON data, unknown fields are reported as an error.
func Decode(data []byte, target any) error {
	decoder := api.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		return processDecodeError(err)
	}
	return nil
}

func DecodeString(data string, target any) error {
	return Decode([]byte(data), target)
}

func processDecodeError(err error) error {
	// jsoniter uses long messages with a buffer dump, keep only the first line
	msg := err.Error()
	if i := bytes.IndexByte([]byte(msg), '\n'); i > 0 {
		msg = msg[:i]
	}
	return errors.New(msg)
}
