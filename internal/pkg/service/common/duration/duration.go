// Package duration provides a wrapper for time.Duration type,
// to serialize duration as a string, for example "1m30s", instead of int64 nanoseconds.
//
// A plain number is also accepted when decoding, it is interpreted as milliseconds.
package duration

import (
	"bytes"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/keboola/metric-duct/internal/pkg/utils/errors"
)

type Duration time.Duration

func From(duration time.Duration) Duration {
	return Duration(duration)
}

func (v Duration) Duration() time.Duration {
	return time.Duration(v)
}

func (v Duration) String() string {
	return v.Duration().String()
}

func (v Duration) MarshalText() (text []byte, err error) {
	return []byte(v.String()), nil
}

func (v *Duration) UnmarshalText(text []byte) error {
	duration, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	if duration < 0 {
		return errors.Errorf(`duration "%s" cannot be negative`, text)
	}
	*v = Duration(duration)
	return nil
}

func (v *Duration) UnmarshalJSON(b []byte) error {
	if bytes.HasPrefix(b, []byte(`"`)) && bytes.HasSuffix(b, []byte(`"`)) {
		return v.UnmarshalText(bytes.Trim(b, `"`))
	}
	return v.unmarshalMillis(string(b))
}

func (v *Duration) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode && n.Tag == "!!str" {
		return v.UnmarshalText([]byte(strings.Trim(n.Value, `"`)))
	}
	return v.unmarshalMillis(n.Value)
}

func (v *Duration) unmarshalMillis(str string) error {
	millis, err := strconv.ParseInt(str, 10, 64)
	if err != nil {
		return errors.Errorf(`invalid duration "%s", expected a string like "1m30s" or a number of milliseconds`, str)
	}
	if millis < 0 {
		return errors.Errorf(`duration "%d" cannot be negative`, millis)
	}
	*v = Duration(time.Duration(millis) * time.Millisecond)
	return nil
}
