package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/trailmark-labs/ppm/config"
)

func printHelp() {
	_, _ = fmt.Fprintf(os.Stderr, `ppm - vehicle BSM privacy protection module

Usage: ppm -c <config-file> [flags]

  -c, --config          key=value config file (required)
  -C, --config-check    parse config, print, exit
  -u, --unfiltered-topic  consumer topic
  -f, --filtered-topic    producer topic
  -p, --partition          partition id
  -g, --group              consumer group
  -b, --broker             broker list, comma-separated
  -o, --offset             start offset: end/beginning/stored/int
  -x, --exit               stop on EOF across all partitions
  -d, --debug              bus client debug facets, comma-separated
  -m, --mapfile            shape CSV for the geofence
  -v, --log-level          trace/debug/info/warning/error/critical/off
  -D, --log-dir            directory for logs
  -R, --log-rm             remove pre-existing log files
  -i, --ilog               info log file name
  -e, --elog               error log file name
  --jetstream              use a JetStream durable consumer/producer instead of core NATS
  -h, --help               print help, exit 0

-c/--config accepts either the key=value format or, when the path ends in
.yaml/.yml, an equivalent nested YAML document.
`)
}

// loadPolicy parses flags and the config file into a config.Policy, applying
// the CLI-overrides-file precedence rule. -c/--config accepts either the
// key=value format or, by extension, a nested YAML document.
func loadPolicy(flags *config.CLIFlags) (config.Policy, error) {
	if flags.ConfigPath == "" {
		return config.Policy{}, fmt.Errorf("ppm: -c/--config is required")
	}

	loader := config.NewLoader()
	var policyKeys, transportKeys map[string]string
	var err error
	if isYAMLPath(flags.ConfigPath) {
		policyKeys, transportKeys, err = loader.LoadYAMLFile(flags.ConfigPath)
	} else {
		policyKeys, transportKeys, err = loader.LoadFile(flags.ConfigPath)
	}
	if err != nil {
		return config.Policy{}, err
	}

	policy, err := config.FromCLI(policyKeys, flags)
	if err != nil {
		return config.Policy{}, err
	}

	if enabled, err := strconv.ParseBool(transportKeys["jetstream.enabled"]); err == nil && enabled {
		policy.JetStreamEnabled = true
	}

	return policy, nil
}

func isYAMLPath(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
