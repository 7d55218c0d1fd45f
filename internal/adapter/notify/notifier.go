// Package notify implements the best-effort UI event and syslog fan-out
// described in spec.md §4.G: a pub/sub publisher on the shared broker and
// a syslog sink supporting UDP/TCP/TLS transport. Every call here
// swallows its own errors and logs them, matching the teacher's
// fire-and-forget observability call sites.
package notify

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"log/slog"
	"log/syslog"
	"net"
	"os"
	"time"

	"github.com/deep-instinct/dsx-connect/internal/adapter/state/redisstate"
)

const resultsChannel = "dsxconnect:notifications:scan_results"

// Notifier publishes scan-result events to the shared broker's pub/sub
// channel and, when configured, mirrors structured records to syslog.
type Notifier struct {
	store  *redisstate.Store
	syslog *syslogSink
	logger *slog.Logger
}

// New constructs a Notifier. syslogSink may be nil if syslog is unconfigured.
func New(store *redisstate.Store, sink *syslogSink, logger *slog.Logger) *Notifier {
	return &Notifier{store: store, syslog: sink, logger: logger}
}

// PublishScanResultSync publishes an event synchronously (within the
// caller's goroutine) and returns once the broker call completes. Errors
// are swallowed and logged, per spec.md §4.G's try/swallow contract.
func (n *Notifier) PublishScanResultSync(ctx context.Context, event map[string]any) {
	n.publish(ctx, event)
}

// PublishScanResultAsync fires the publish in a separate goroutine and
// returns immediately. Used by call sites that cannot afford to block on
// broker latency (e.g. mid-poll-loop progress events).
func (n *Notifier) PublishScanResultAsync(event map[string]any) {
	go n.publish(context.Background(), event)
}

func (n *Notifier) publish(ctx context.Context, event map[string]any) {
	payload, err := json.Marshal(event)
	if err != nil {
		n.logger.Warn("notify: failed to marshal event (swallowed)", "err", err)
		return
	}
	if err := n.store.Publish(ctx, resultsChannel, string(payload)); err != nil {
		n.logger.Warn("notify: publish failed (swallowed)", "err", err)
	}
}

// EmitSyslog writes a structured record to the syslog sink, if configured.
// Errors are swallowed and logged.
func (n *Notifier) EmitSyslog(event string, fields map[string]any) {
	if n.syslog == nil {
		return
	}
	payload := map[string]any{"event": event}
	for k, v := range fields {
		payload[k] = v
	}
	line, err := json.Marshal(payload)
	if err != nil {
		n.logger.Warn("notify: failed to marshal syslog record (swallowed)", "err", err)
		return
	}
	if err := n.syslog.Write(string(line)); err != nil {
		n.logger.Warn("notify: syslog write failed (swallowed)", "err", err)
	}
}

// syslogSink writes RFC 5424 records over UDP, TCP, or TLS-over-TCP. The
// stdlib log/syslog package covers the plain UDP/TCP cases via
// syslog.Dial; the TLS case dials its own *tls.Conn and frames records
// manually, since log/syslog has no TLS transport.
type syslogSink struct {
	writer *syslog.Writer // set for udp/tcp
	tlsNet net.Conn       // set for tcp+tls
}

// SyslogConfig carries the dial parameters for a syslog sink, mirroring
// crypto/tls.Config's CA bundle / client cert / insecure-skip-verify shape.
type SyslogConfig struct {
	Network  string // "udp", "tcp", or "tcp+tls"; empty disables the sink
	Address  string
	TLSCA    string
	TLSCert  string
	TLSKey   string
	Insecure bool
}

// NewSyslogSink dials a syslog sink per cfg, returning (nil, nil) if no
// network is configured (syslog disabled).
func NewSyslogSink(cfg SyslogConfig) (*syslogSink, error) {
	if cfg.Network == "" || cfg.Address == "" {
		return nil, nil
	}

	if cfg.Network != "tcp+tls" {
		w, err := syslog.Dial(cfg.Network, cfg.Address, syslog.LOG_INFO|syslog.LOG_DAEMON, "dsx-connect")
		if err != nil {
			return nil, fmt.Errorf("op=NewSyslogSink: %w", err)
		}
		return &syslogSink{writer: w}, nil
	}

	tlsConfig := &tls.Config{InsecureSkipVerify: cfg.Insecure}
	if cfg.TLSCA != "" {
		pool := x509.NewCertPool()
		ca, err := os.ReadFile(cfg.TLSCA)
		if err != nil {
			return nil, fmt.Errorf("op=NewSyslogSink: reading ca bundle: %w", err)
		}
		if !pool.AppendCertsFromPEM(ca) {
			return nil, fmt.Errorf("op=NewSyslogSink: invalid ca bundle")
		}
		tlsConfig.RootCAs = pool
	}
	if cfg.TLSCert != "" && cfg.TLSKey != "" {
		cert, err := tls.LoadX509KeyPair(cfg.TLSCert, cfg.TLSKey)
		if err != nil {
			return nil, fmt.Errorf("op=NewSyslogSink: loading client cert: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	dialer := &net.Dialer{Timeout: 10 * time.Second}
	conn, err := tls.DialWithDialer(dialer, "tcp", cfg.Address, tlsConfig)
	if err != nil {
		return nil, fmt.Errorf("op=NewSyslogSink: dialing tls: %w", err)
	}
	return &syslogSink{tlsNet: conn}, nil
}

// Write emits one syslog record. The plain-transport path defers to
// log/syslog's own framing; the TLS path writes an RFC 5424 frame
// (octet-counted, matching common syslog-over-TLS relay expectations).
func (s *syslogSink) Write(line string) error {
	if s.writer != nil {
		_, err := s.writer.Info(line)
		return err
	}
	msg := fmt.Sprintf("<%d>1 %s dsx-connect - - - %s\n",
		syslog.LOG_INFO|syslog.LOG_DAEMON, time.Now().UTC().Format(time.RFC3339), line)
	framed := fmt.Sprintf("%d %s", len(msg), msg)
	_, err := s.tlsNet.Write([]byte(framed))
	return err
}
