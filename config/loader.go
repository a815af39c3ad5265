package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/trailmark-labs/ppm/errors"
	"github.com/trailmark-labs/ppm/geo"
)

// Loader reads the key=value policy file format: UTF-8, one key=value per
// line, '#' at column 1 starts a comment, blank lines ignored, whitespace
// trimmed around key and value.
type Loader struct{}

// NewLoader returns a ready-to-use Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// LoadFile parses path into a set of raw key=value pairs. Bus-client keys
// (anything not under the recognised "privacy.*" policy namespace) are
// returned separately so the caller can forward them to the bus client
// unchanged rather than rejected as unknown policy fields.
func (l *Loader) LoadFile(path string) (policyKeys map[string]string, transportKeys map[string]string, err error) {
	f, openErr := os.Open(path)
	if openErr != nil {
		return nil, nil, errors.WrapFatal(openErr, "config", "LoadFile", "open")
	}
	defer f.Close()

	policyKeys = make(map[string]string)
	transportKeys = make(map[string]string)

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		idx := strings.Index(line, "=")
		if idx < 0 {
			return nil, nil, errors.WrapInvalid(fmt.Errorf("%w: line %d has no '='", errors.ErrConfigInvalid, lineNo), "config", "LoadFile", "parse")
		}

		key := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])
		if key == "" {
			return nil, nil, errors.WrapInvalid(fmt.Errorf("%w: line %d has empty key", errors.ErrConfigInvalid, lineNo), "config", "LoadFile", "parse")
		}

		if strings.HasPrefix(key, "privacy.") {
			policyKeys[key] = value
		} else {
			transportKeys[key] = value
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, errors.WrapFatal(err, "config", "LoadFile", "scan")
	}

	return policyKeys, transportKeys, nil
}

// LoadYAMLFile parses an alternate YAML config format (--config foo.yaml)
// into the same policyKeys/transportKeys shape LoadFile produces from the
// key=value format, by flattening nested maps into the same dotted-key
// convention ("privacy.filter.geofence.sw.lat: 35.9" from a nested
// privacy.filter.geofence.sw.lat block). PolicyFromKeys and every other
// downstream consumer of these maps needs no separate YAML-aware path.
func (l *Loader) LoadYAMLFile(path string) (policyKeys map[string]string, transportKeys map[string]string, err error) {
	data, readErr := os.ReadFile(path)
	if readErr != nil {
		return nil, nil, errors.WrapFatal(readErr, "config", "LoadYAMLFile", "read")
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrConfigInvalid, err), "config", "LoadYAMLFile", "unmarshal")
	}

	flat := make(map[string]string)
	flattenYAML("", raw, flat)

	policyKeys = make(map[string]string)
	transportKeys = make(map[string]string)
	for key, value := range flat {
		if strings.HasPrefix(key, "privacy.") {
			policyKeys[key] = value
		} else {
			transportKeys[key] = value
		}
	}
	return policyKeys, transportKeys, nil
}

func flattenYAML(prefix string, node any, out map[string]string) {
	m, ok := node.(map[string]any)
	if !ok {
		out[prefix] = fmt.Sprintf("%v", node)
		return
	}
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		flattenYAML(key, v, out)
	}
}

// PolicyFromKeys builds a Policy from the recognised "privacy.*" keys.
// Required keys missing entirely surface as ErrConfigInvalid.
func PolicyFromKeys(keys map[string]string) (Policy, error) {
	var p Policy

	swLat, err := requireFloat(keys, "privacy.filter.geofence.sw.lat")
	if err != nil {
		return p, err
	}
	swLon, err := requireFloat(keys, "privacy.filter.geofence.sw.lon")
	if err != nil {
		return p, err
	}
	neLat, err := requireFloat(keys, "privacy.filter.geofence.ne.lat")
	if err != nil {
		return p, err
	}
	neLon, err := requireFloat(keys, "privacy.filter.geofence.ne.lon")
	if err != nil {
		return p, err
	}
	p.GeofenceSW = geo.Point{Lat: swLat, Lon: swLon}
	p.GeofenceNE = geo.Point{Lat: neLat, Lon: neLon}

	p.MapfilePath = keys["privacy.filter.geofence.mapfile"]
	p.ConsumerTopic = keys["privacy.topic.consumer"]
	p.ProducerTopic = keys["privacy.topic.producer"]

	if v, ok := keys["privacy.kafka.partition"]; ok {
		partition, err := strconv.Atoi(v)
		if err != nil {
			return p, errors.WrapInvalid(fmt.Errorf("%w: privacy.kafka.partition: %v", errors.ErrConfigInvalid, err), "config", "PolicyFromKeys", "parse")
		}
		p.Partition = int32(partition)
	}

	if v, ok := keys["privacy.consumer.timeout.ms"]; ok {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return p, errors.WrapInvalid(fmt.Errorf("%w: privacy.consumer.timeout.ms: %v", errors.ErrConfigInvalid, err), "config", "PolicyFromKeys", "parse")
		}
		p.ConsumerPollTimeout = time.Duration(ms) * time.Millisecond
	} else {
		p.ConsumerPollTimeout = time.Second
	}

	p.VelocityMin, err = requireFloat(keys, "privacy.filter.velocity.min")
	if err != nil {
		return p, err
	}
	p.VelocityMax, err = requireFloat(keys, "privacy.filter.velocity.max")
	if err != nil {
		return p, err
	}

	p.IDInclusionPattern = keys["privacy.filter.id.inclusion_pattern"]
	p.IDRedactionValue = keys["privacy.filter.id.redaction_value"]

	if p.ConsumerTopic == "" || p.ProducerTopic == "" {
		return p, errors.WrapInvalid(fmt.Errorf("%w: privacy.topic.consumer and privacy.topic.producer are required", errors.ErrConfigInvalid), "config", "PolicyFromKeys", "validate")
	}

	return p, nil
}

func requireFloat(keys map[string]string, key string) (float64, error) {
	v, ok := keys[key]
	if !ok {
		return 0, errors.WrapInvalid(fmt.Errorf("%w: missing required key %s", errors.ErrConfigInvalid, key), "config", "requireFloat", "lookup")
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, errors.WrapInvalid(fmt.Errorf("%w: %s: %v", errors.ErrConfigInvalid, key, err), "config", "requireFloat", "parse")
	}
	return f, nil
}
