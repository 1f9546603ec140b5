// Package config turns a HELLO payload into the {time_delta, subscriptions}
// pair the registry needs. The payload is a small YAML document, the
// idiomatic Go stand-in for the original broker's zconfig text tree.
package config

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/beroset/fncs/internal/fault"
)

// DefaultTimeDelta is used when a HELLO payload omits time_delta.
const DefaultTimeDelta = time.Second

// Config is the parsed content of a HELLO payload.
type Config struct {
	TimeDelta     time.Duration
	Subscriptions map[string]struct{}
}

type document struct {
	TimeDelta string `yaml:"time_delta"`
	Values    []struct {
		Topic string `yaml:"topic"`
	} `yaml:"values"`
}

// Parse decodes a HELLO payload. A missing time_delta defaults to one
// second with a warning; anything that fails to parse is a fatal
// ConfigError.
func Parse(payload []byte) (Config, error) {
	var doc document
	if err := yaml.Unmarshal(payload, &doc); err != nil {
		return Config{}, fmt.Errorf("%w: %v", fault.ErrConfig, err)
	}

	delta := DefaultTimeDelta
	if doc.TimeDelta == "" {
		logrus.Warn("HELLO config does not contain time_delta, defaulting to 1s")
	} else {
		parsed, err := time.ParseDuration(doc.TimeDelta)
		if err != nil {
			return Config{}, fmt.Errorf("%w: bad time_delta %q: %v", fault.ErrConfig, doc.TimeDelta, err)
		}
		if parsed <= 0 {
			return Config{}, fmt.Errorf("%w: time_delta must be positive, got %q", fault.ErrConfig, doc.TimeDelta)
		}
		delta = parsed
	}

	subs := make(map[string]struct{}, len(doc.Values))
	for _, v := range doc.Values {
		if v.Topic != "" {
			subs[v.Topic] = struct{}{}
		}
	}

	return Config{TimeDelta: delta, Subscriptions: subs}, nil
}
