package security

import (
	"fmt"
	"log/slog"
	"os"
)

// Redacted wraps a string that must never reach a log line in the clear: the
// bus transport credentials. (The configured id_redaction_value is a plain
// string in config.Policy and filter.Policy, not a Redacted.) Every
// formatting path — fmt's %v/%s, slog's structured attributes — prints the
// fixed mask instead of the underlying value.
type Redacted string

const mask = "***"

// String implements fmt.Stringer.
func (r Redacted) String() string { return mask }

// GoString implements fmt.GoStringer, covering %#v.
func (r Redacted) GoString() string { return mask }

// LogValue implements slog.LogValuer so a Redacted embedded in a log
// attribute never prints its underlying value even via structured logging.
func (r Redacted) LogValue() slog.Value { return slog.StringValue(mask) }

// Reveal returns the underlying value. Callers must not log or print the
// result; it exists only to hand the value to the transport layer.
func (r Redacted) Reveal() string { return string(r) }

var _ fmt.Stringer = Redacted("")

// TransportCredentials holds the bus transport's API key pair, loaded from
// environment variables rather than the policy config file so a config dump
// or file listing never carries a secret.
type TransportCredentials struct {
	Key    Redacted
	Secret Redacted
}

// LoadTransportCredentials reads CONFLUENT_KEY and CONFLUENT_SECRET from the
// environment. Both are optional: a bus reachable without SASL credentials
// (a local broker, mTLS-only auth) leaves both empty.
func LoadTransportCredentials() TransportCredentials {
	return TransportCredentials{
		Key:    Redacted(os.Getenv("CONFLUENT_KEY")),
		Secret: Redacted(os.Getenv("CONFLUENT_SECRET")),
	}
}
