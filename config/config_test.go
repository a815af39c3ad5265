package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `# geofence
privacy.filter.geofence.sw.lat=35.90
privacy.filter.geofence.sw.lon=-84.10
privacy.filter.geofence.ne.lat=35.92
privacy.filter.geofence.ne.lon=-84.08
privacy.filter.geofence.mapfile=shapes.csv

privacy.topic.consumer=bsm-in
privacy.topic.producer=bsm-out
privacy.kafka.partition=0
privacy.consumer.timeout.ms=1000

privacy.filter.velocity.min=1.0
privacy.filter.velocity.max=40.0
privacy.filter.id.inclusion_pattern=^VEH-.*$
privacy.filter.id.redaction_value=ANON

bootstrap.servers=localhost:9092
`

func writeTempConfig(t *testing.T, contents string) string {
	dir := t.TempDir()
	path := filepath.Join(dir, "ppm.conf")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadFileSeparatesPolicyAndTransportKeys(t *testing.T) {
	path := writeTempConfig(t, sampleConfig)
	l := NewLoader()

	policyKeys, transportKeys, err := l.LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "35.90", policyKeys["privacy.filter.geofence.sw.lat"])
	assert.Equal(t, "localhost:9092", transportKeys["bootstrap.servers"])
	_, isPolicy := transportKeys["privacy.filter.geofence.sw.lat"]
	assert.False(t, isPolicy)
}

func TestLoadFileRejectsLineWithoutEquals(t *testing.T) {
	path := writeTempConfig(t, "not-a-kv-line\n")
	_, _, err := NewLoader().LoadFile(path)
	assert.Error(t, err)
}

func TestLoadFileIgnoresCommentsAndBlankLines(t *testing.T) {
	path := writeTempConfig(t, "# comment\n\nprivacy.topic.consumer=x\n")
	policyKeys, _, err := NewLoader().LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "x", policyKeys["privacy.topic.consumer"])
}

func TestPolicyFromKeysRequiresGeofence(t *testing.T) {
	_, err := PolicyFromKeys(map[string]string{
		"privacy.topic.consumer": "in",
		"privacy.topic.producer": "out",
	})
	assert.Error(t, err)
}

func TestPolicyFromKeysBuildsFullPolicy(t *testing.T) {
	path := writeTempConfig(t, sampleConfig)
	policyKeys, _, err := NewLoader().LoadFile(path)
	require.NoError(t, err)

	p, err := PolicyFromKeys(policyKeys)
	require.NoError(t, err)

	assert.InDelta(t, 35.90, p.GeofenceSW.Lat, 0.0001)
	assert.Equal(t, "bsm-in", p.ConsumerTopic)
	assert.Equal(t, "bsm-out", p.ProducerTopic)
	assert.InDelta(t, 1.0, p.VelocityMin, 0.0001)
	assert.Equal(t, "ANON", p.IDRedactionValue)
}

func TestFromCLIFlagsOverrideFileValues(t *testing.T) {
	path := writeTempConfig(t, sampleConfig)
	policyKeys, _, err := NewLoader().LoadFile(path)
	require.NoError(t, err)

	flags := &CLIFlags{
		UnfilteredTopic: "override-in",
		Partition:       -1,
	}
	p, err := FromCLI(policyKeys, flags)
	require.NoError(t, err)
	assert.Equal(t, "override-in", p.ConsumerTopic)
	assert.Equal(t, "bsm-out", p.ProducerTopic)
}

const sampleYAMLConfig = `
privacy:
  filter:
    geofence:
      sw: {lat: 35.90, lon: -84.10}
      ne: {lat: 35.92, lon: -84.08}
      mapfile: shapes.csv
    velocity: {min: 1.0, max: 40.0}
    id: {inclusion_pattern: "^VEH-.*$", redaction_value: ANON}
  topic: {consumer: bsm-in, producer: bsm-out}
  kafka: {partition: 0}
  consumer: {timeout: {ms: 1000}}
jetstream:
  enabled: true
`

func TestLoadYAMLFileFlattensToPolicyAndTransportKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ppm.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAMLConfig), 0o644))

	policyKeys, transportKeys, err := NewLoader().LoadYAMLFile(path)
	require.NoError(t, err)

	assert.Equal(t, "35.9", policyKeys["privacy.filter.geofence.sw.lat"])
	assert.Equal(t, "bsm-in", policyKeys["privacy.topic.consumer"])
	assert.Equal(t, "true", transportKeys["jetstream.enabled"])

	p, err := PolicyFromKeys(policyKeys)
	require.NoError(t, err)
	assert.Equal(t, "bsm-out", p.ProducerTopic)
}

func TestSafeConfigConcurrentAccess(t *testing.T) {
	sc := NewSafeConfig(Config{Policy: Policy{ConsumerTopic: "a"}})
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			sc.Set(Config{Policy: Policy{ConsumerTopic: "b"}})
		}
		close(done)
	}()
	for i := 0; i < 100; i++ {
		_ = sc.Get()
	}
	<-done
}
