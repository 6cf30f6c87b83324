// Package privacylog keeps key material and credentials out of logs and
// fingerprints client network addresses.
package privacylog

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Redacted replaces the value of every secret attribute.
const Redacted = "[REDACTED]"

// fingerprintKey is per process, so fingerprints correlate within one run
// and nowhere else.
var fingerprintKey = newFingerprintKey()

var (
	secretKeyParts = []string{
		"mnemonic", "private", "seed", "secret", "password", "passphrase",
		"token", "signature", "authorization",
	}
	clientKeys = map[string]bool{"remote_addr": true, "client_ip": true, "client_key": true}
)

// NewLogger writes JSON records to w through the redacting handler.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(WrapHandler(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})))
}

func DefaultLogger() *slog.Logger {
	return NewLogger(os.Stdout, slog.LevelInfo)
}

// ParseLevel maps debug, info, warn and error to slog levels. Anything else
// is info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Handler redacts secret attributes and fingerprints client addresses
// before passing records on.
type Handler struct {
	next slog.Handler
}

func WrapHandler(next slog.Handler) slog.Handler {
	if next == nil {
		return nil
	}
	return &Handler{next: next}
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *Handler) Handle(ctx context.Context, rec slog.Record) error {
	clean := slog.NewRecord(rec.Time, rec.Level, rec.Message, rec.PC)
	rec.Attrs(func(a slog.Attr) bool {
		clean.AddAttrs(Scrub(a))
		return true
	})
	return h.next.Handle(ctx, clean)
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Handler{next: h.next.WithAttrs(scrubAll(attrs))}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{next: h.next.WithGroup(name)}
}

// Scrub returns a with its value redacted or fingerprinted when its key
// calls for it. Groups are scrubbed member by member.
func Scrub(a slog.Attr) slog.Attr {
	key := strings.TrimSpace(a.Key)
	lower := strings.ToLower(key)
	switch {
	case isSecret(lower):
		return slog.String(key, Redacted)
	case clientKeys[lower]:
		return slog.String(fingerprintName(key), Fingerprint(a.Value.Resolve().String()))
	}
	if v := a.Value.Resolve(); v.Kind() == slog.KindGroup {
		return slog.Attr{Key: key, Value: slog.GroupValue(scrubAll(v.Group())...)}
	}
	return a
}

// Fingerprint is a short keyed hash of value, empty for an empty value.
func Fingerprint(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	mac := hmac.New(sha256.New, fingerprintKey)
	mac.Write([]byte(value))
	return "fp_" + hex.EncodeToString(mac.Sum(nil)[:8])
}

func scrubAll(attrs []slog.Attr) []slog.Attr {
	out := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		out[i] = Scrub(a)
	}
	return out
}

func fingerprintName(key string) string {
	if strings.HasSuffix(strings.ToLower(key), "_fp") {
		return key
	}
	return key + "_fp"
}

func isSecret(key string) bool {
	for _, part := range secretKeyParts {
		if strings.Contains(key, part) {
			return true
		}
	}
	return false
}

func newFingerprintKey() []byte {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		panic("privacylog: read random key: " + err.Error())
	}
	return key
}
