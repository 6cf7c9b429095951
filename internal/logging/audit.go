package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"
)

// AuditEventType represents the type of audit event.
type AuditEventType string

// Audit event types specific to the attestation pipeline.
const (
	AuditEventProofGenerated  AuditEventType = "proof_generated"
	AuditEventLedgerAppended  AuditEventType = "ledger_appended"
	AuditEventBundleAssembled AuditEventType = "bundle_assembled"
	AuditEventBundleVerified  AuditEventType = "bundle_verified"
	AuditEventSignatureCheck  AuditEventType = "signature_check"
	AuditEventTVOCDetected    AuditEventType = "tvoc_detected"
)

// AuditEvent represents a certification-relevant event.
type AuditEvent struct {
	Timestamp  time.Time              `json:"timestamp"`
	EventType  AuditEventType         `json:"event_type"`
	Component  string                 `json:"component"`
	Action     string                 `json:"action"`
	Resource   string                 `json:"resource,omitempty"`
	Result     string                 `json:"result"` // "success", "failure", "denied"
	Details    map[string]interface{} `json:"details,omitempty"`
	SourceFile string                 `json:"source_file,omitempty"`
	SourceLine int                    `json:"source_line,omitempty"`
	Error      string                 `json:"error,omitempty"`
	RequestID  string                 `json:"request_id,omitempty"`
}

// AuditLoggerConfig holds configuration for the audit logger.
type AuditLoggerConfig struct {
	FilePath   string
	MaxSize    int64
	MaxAge     int
	MaxBackups int
	Compress   bool
	Component  string
}

// DefaultAuditConfig returns default audit logger configuration.
func DefaultAuditConfig() *AuditLoggerConfig {
	return &AuditLoggerConfig{
		FilePath:   defaultAuditLogPath(),
		MaxSize:    50,
		MaxAge:     90,
		MaxBackups: 10,
		Compress:   true,
		Component:  "spe",
	}
}

// defaultAuditLogPath returns the platform-specific default audit log path.
func defaultAuditLogPath() string {
	switch runtime.GOOS {
	case "darwin":
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, "Library", "Logs", "spe", "audit.log")
	case "windows":
		appData := os.Getenv("LOCALAPPDATA")
		if appData == "" {
			appData = os.Getenv("APPDATA")
		}
		return filepath.Join(appData, "spe", "logs", "audit.log")
	default:
		stateHome := os.Getenv("XDG_STATE_HOME")
		if stateHome == "" {
			homeDir, _ := os.UserHomeDir()
			stateHome = filepath.Join(homeDir, ".local", "state")
		}
		return filepath.Join(stateHome, "spe", "audit.log")
	}
}

// AuditLogger handles append-only JSONL audit logging for the six event
// types a certification run can emit.
type AuditLogger struct {
	config  *AuditLoggerConfig
	rotator *FileRotator
	logger  *slog.Logger
	mu      sync.Mutex
}

var (
	defaultAuditLogger *AuditLogger
	auditLoggerOnce     sync.Once
)

// DefaultAuditLogger returns the default global audit logger.
func DefaultAuditLogger() *AuditLogger {
	auditLoggerOnce.Do(func() {
		var err error
		defaultAuditLogger, err = NewAuditLogger(DefaultAuditConfig())
		if err != nil {
			defaultAuditLogger = &AuditLogger{
				config: DefaultAuditConfig(),
				logger: slog.Default(),
			}
		}
	})
	return defaultAuditLogger
}

// SetDefaultAuditLogger sets the default global audit logger.
func SetDefaultAuditLogger(l *AuditLogger) {
	defaultAuditLogger = l
}

// NewAuditLogger creates a new AuditLogger.
func NewAuditLogger(cfg *AuditLoggerConfig) (*AuditLogger, error) {
	if cfg == nil {
		cfg = DefaultAuditConfig()
	}

	rotatorCfg := &Config{
		FilePath:   cfg.FilePath,
		MaxSize:    cfg.MaxSize,
		MaxAge:     cfg.MaxAge,
		MaxBackups: cfg.MaxBackups,
		Compress:   cfg.Compress,
		Format:     FormatJSON,
		Level:      LevelInfo,
	}

	rotator, err := NewFileRotator(rotatorCfg)
	if err != nil {
		return nil, fmt.Errorf("create audit rotator: %w", err)
	}

	handler := slog.NewJSONHandler(rotator, &slog.HandlerOptions{Level: LevelInfo})

	return &AuditLogger{
		config:  cfg,
		rotator: rotator,
		logger:  slog.New(handler),
	}, nil
}

// Log writes an audit event as one JSON line.
func (a *AuditLogger) Log(ctx context.Context, event AuditEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Component == "" {
		event.Component = a.config.Component
	}
	if event.RequestID == "" {
		event.RequestID = RequestIDFromContext(ctx)
	}
	if event.SourceFile == "" {
		_, file, line, ok := runtime.Caller(1)
		if ok {
			event.SourceFile = file
			event.SourceLine = line
		}
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	data = append(data, '\n')

	if a.rotator != nil {
		if _, err := a.rotator.Write(data); err != nil {
			return fmt.Errorf("write audit event: %w", err)
		}
		return nil
	}
	a.logger.Info(string(event.EventType), "event", string(data))
	return nil
}

// LogProofGenerated logs that a forensic capsule and bundle were produced.
func (a *AuditLogger) LogProofGenerated(ctx context.Context, capsuleHash string, details map[string]interface{}) error {
	return a.Log(ctx, AuditEvent{
		EventType: AuditEventProofGenerated,
		Action:    "proof_generated",
		Resource:  capsuleHash,
		Result:    "success",
		Details:   details,
	})
}

// LogLedgerAppended logs that a ledger entry was appended.
func (a *AuditLogger) LogLedgerAppended(ctx context.Context, entryHash string, id int64) error {
	return a.Log(ctx, AuditEvent{
		EventType: AuditEventLedgerAppended,
		Action:    "ledger_appended",
		Resource:  entryHash,
		Result:    "success",
		Details:   map[string]interface{}{"id": id},
	})
}

// LogBundleAssembled logs that a proof bundle was written to disk.
func (a *AuditLogger) LogBundleAssembled(ctx context.Context, bundlePath string) error {
	return a.Log(ctx, AuditEvent{
		EventType: AuditEventBundleAssembled,
		Action:    "bundle_assembled",
		Resource:  bundlePath,
		Result:    "success",
	})
}

// LogBundleVerified logs the overall outcome of a bundle verification run.
func (a *AuditLogger) LogBundleVerified(ctx context.Context, bundlePath string, valid bool, details map[string]interface{}) error {
	result := "success"
	if !valid {
		result = "failure"
	}
	return a.Log(ctx, AuditEvent{
		EventType: AuditEventBundleVerified,
		Action:    "bundle_verified",
		Resource:  bundlePath,
		Result:    result,
		Details:   details,
	})
}

// LogSignatureCheck logs a signature verification outcome.
func (a *AuditLogger) LogSignatureCheck(ctx context.Context, verdict string) error {
	return a.Log(ctx, AuditEvent{
		EventType: AuditEventSignatureCheck,
		Action:    "signature_check",
		Result:    verdict,
	})
}

// LogTVOCDetected logs a Temporal Violation of Context finding.
func (a *AuditLogger) LogTVOCDetected(ctx context.Context, verdict string, violatingYears []int) error {
	return a.Log(ctx, AuditEvent{
		EventType: AuditEventTVOCDetected,
		Action:    "tvoc_detected",
		Result:    verdict,
		Details:   map[string]interface{}{"violating_years": violatingYears},
	})
}

// Close closes the audit logger.
func (a *AuditLogger) Close() error {
	if a.rotator != nil {
		return a.rotator.Close()
	}
	return nil
}

// Sync flushes any buffered audit events.
func (a *AuditLogger) Sync() error {
	if a.rotator != nil {
		return a.rotator.Sync()
	}
	return nil
}

// Audit logs an audit event using the default audit logger.
func Audit(ctx context.Context, event AuditEvent) error {
	return DefaultAuditLogger().Log(ctx, event)
}
