package config

import (
	"flag"
	"os"
	"strings"
)

// CLIFlags holds every command-line flag ppm accepts, short and long forms
// bound to the same variable so either spelling works.
type CLIFlags struct {
	ConfigPath      string
	ConfigCheck     bool
	UnfilteredTopic string
	FilteredTopic   string
	Partition       int
	Group           string
	Broker          string
	Offset          string
	ExitOnEOF       bool
	Debug           string
	Mapfile         string
	LogLevel        string
	LogDir          string
	LogRM           bool
	InfoLog         string
	ErrorLog        string
	JetStream       bool
	Help            bool
}

// ParseFlags parses os.Args into a CLIFlags value.
func ParseFlags() *CLIFlags {
	f := &CLIFlags{}

	bindString := func(dst *string, short, long, def, usage string) {
		flag.StringVar(dst, short, def, usage)
		flag.StringVar(dst, long, def, usage)
	}

	bindString(&f.ConfigPath, "c", "config", "", "key=value config file (required)")
	flag.BoolVar(&f.ConfigCheck, "C", false, "parse config, print, exit")
	flag.BoolVar(&f.ConfigCheck, "config-check", false, "parse config, print, exit")
	bindString(&f.UnfilteredTopic, "u", "unfiltered-topic", "", "consumer topic")
	bindString(&f.FilteredTopic, "f", "filtered-topic", "", "producer topic")
	flag.IntVar(&f.Partition, "p", -1, "partition id")
	flag.IntVar(&f.Partition, "partition", -1, "partition id")
	bindString(&f.Group, "g", "group", "", "consumer group")
	bindString(&f.Broker, "b", "broker", "", "broker list, comma-separated")
	bindString(&f.Offset, "o", "offset", "", "start offset: end/beginning/stored/int")
	flag.BoolVar(&f.ExitOnEOF, "x", false, "stop on EOF across all partitions")
	flag.BoolVar(&f.ExitOnEOF, "exit", false, "stop on EOF across all partitions")
	bindString(&f.Debug, "d", "debug", "", "bus client debug facets, comma-separated")
	bindString(&f.Mapfile, "m", "mapfile", "", "shape CSV for the geofence")
	bindString(&f.LogLevel, "v", "log-level", "info", "trace/debug/info/warning/error/critical/off")
	bindString(&f.LogDir, "D", "log-dir", "", "directory for logs")
	flag.BoolVar(&f.LogRM, "R", false, "remove pre-existing log files")
	flag.BoolVar(&f.LogRM, "log-rm", false, "remove pre-existing log files")
	bindString(&f.InfoLog, "i", "ilog", "", "info log file name")
	bindString(&f.ErrorLog, "e", "elog", "", "error log file name")
	flag.BoolVar(&f.JetStream, "jetstream", false, "use a JetStream durable consumer/producer instead of core NATS")
	flag.BoolVar(&f.Help, "h", false, "print help, exit 0")
	flag.BoolVar(&f.Help, "help", false, "print help, exit 0")

	flag.Parse()
	return f
}

// FromCLI merges the parsed config file (policyKeys) with flags, with flags
// winning on any field they set (non-zero-value), then folds in the
// KAFKA_TYPE and DOCKER_HOST_IP environment variables. CONFLUENT_KEY and
// CONFLUENT_SECRET are read separately, by security.LoadTransportCredentials.
func FromCLI(policyKeys map[string]string, flags *CLIFlags) (Policy, error) {
	p, err := PolicyFromKeys(policyKeys)
	if err != nil {
		return p, err
	}

	if flags.UnfilteredTopic != "" {
		p.ConsumerTopic = flags.UnfilteredTopic
	}
	if flags.FilteredTopic != "" {
		p.ProducerTopic = flags.FilteredTopic
	}
	if flags.Partition >= 0 {
		p.Partition = int32(flags.Partition)
	}
	if flags.Group != "" {
		p.GroupID = flags.Group
	}
	if flags.Broker != "" {
		p.Brokers = strings.Split(flags.Broker, ",")
	}
	if flags.Offset != "" {
		p.OffsetSpec = flags.Offset
	}
	if flags.ExitOnEOF {
		p.ExitOnEOF = true
	}
	if flags.Debug != "" {
		p.DebugFacets = strings.Split(flags.Debug, ",")
	}
	if flags.Mapfile != "" {
		p.MapfilePath = flags.Mapfile
	}
	if flags.LogLevel != "" {
		p.LogLevel = flags.LogLevel
	}
	if flags.LogDir != "" {
		p.LogDir = flags.LogDir
	}
	if flags.LogRM {
		p.LogRM = true
	}
	if flags.InfoLog != "" {
		p.InfoLog = flags.InfoLog
	}
	if flags.ErrorLog != "" {
		p.ErrorLog = flags.ErrorLog
	}
	if flags.JetStream {
		p.JetStreamEnabled = true
	}

	applyKafkaEnv(&p)

	return p, nil
}

// applyKafkaEnv implements the KAFKA_TYPE-triggered environment wiring: when
// KAFKA_TYPE=CONFLUENT, DOCKER_HOST_IP stands in for a broker
// address not otherwise configured. CONFLUENT_KEY/CONFLUENT_SECRET are read
// separately by security.LoadTransportCredentials, kept out of Policy so a
// config dump never carries them.
func applyKafkaEnv(p *Policy) {
	if strings.EqualFold(os.Getenv("KAFKA_TYPE"), "CONFLUENT") {
		if host := os.Getenv("DOCKER_HOST_IP"); host != "" && len(p.Brokers) == 0 {
			p.Brokers = []string{host}
		}
	}
}

// FlagsSet reports whether name was explicitly set on the command line,
// letting callers distinguish "flag left at its zero-value default" from
// "flag explicitly set to the zero value" where that distinction matters.
func FlagsSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}
