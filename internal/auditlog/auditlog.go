// Package auditlog owns the gateway's two append-only streams: the audit
// trail of privileged actions and the general application/request log.
// Records are newline-delimited JSON so they stay greppable.
package auditlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Action string

const (
	ActionStart      Action = "start"
	ActionStop       Action = "stop"
	ActionRestart    Action = "restart"
	ActionList       Action = "list"
	ActionGetState   Action = "get_state"
	ActionGetDetails Action = "get_details"
)

type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// Entry is one audit record. Entries are never edited or deleted.
type Entry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Action    Action    `json:"action"`
	Target    string    `json:"target"`
	ClientIP  string    `json:"client_ip"`
	Status    Status    `json:"status"`
	Details   string    `json:"details,omitempty"`
}

// RequestRecord describes an inbound request for the app stream.
type RequestRecord struct {
	RequestID string
	Method    string
	Path      string
	ClientIP  string
	Headers   map[string][]string
}

// Log appends to both streams. Each append is an independent
// open-append-close so concurrent lines never interleave; the per-stream
// mutex covers filesystems without atomic O_APPEND line semantics.
type Log struct {
	auditPath string
	appPath   string
	auditMu   sync.Mutex
	appMu     sync.Mutex
}

func New(auditPath, appPath string) *Log {
	return &Log{auditPath: auditPath, appPath: appPath}
}

// Audit records a privileged action. Write failures are reported to the
// process log and swallowed: a log hiccup must not turn an already-completed
// VM operation into an apparent failure.
func (l *Log) Audit(action Action, target, clientIP string, status Status, details string) {
	entry := &Entry{
		ID:        uuid.Must(uuid.NewRandom()).String(),
		Timestamp: time.Now().UTC(),
		Action:    action,
		Target:    target,
		ClientIP:  clientIP,
		Status:    status,
		Details:   details,
	}

	buf, err := json.Marshal(entry)
	if err != nil {
		log.Printf("warning: serializing audit entry: %s", err)
		return
	}
	if err := l.appendLine(l.auditPath, &l.auditMu, buf); err != nil {
		log.Printf("warning: writing audit entry: %s", err)
	}
}

// App records arbitrary structured fields on the application stream.
// A caller-supplied timestamp is preserved verbatim.
func (l *Log) App(fields map[string]any) {
	if fields["timestamp"] == nil {
		fields["timestamp"] = time.Now().UTC().Format(time.RFC3339Nano)
	}

	buf, err := json.Marshal(fields)
	if err != nil {
		log.Printf("warning: serializing app log entry: %s", err)
		return
	}
	if err := l.appendLine(l.appPath, &l.appMu, buf); err != nil {
		log.Printf("warning: writing app log entry: %s", err)
	}
}

// Request records an inbound request on the app stream. Called for every
// request before authentication so rejected requests still leave a trace.
func (l *Log) Request(rec RequestRecord, status, details string) {
	fields := map[string]any{
		"request_id": rec.RequestID,
		"method":     rec.Method,
		"path":       rec.Path,
		"client_ip":  rec.ClientIP,
		"status":     status,
	}
	if rec.Headers != nil {
		fields["headers"] = rec.Headers
	}
	if details != "" {
		fields["details"] = details
	}
	l.App(fields)
}

// History returns up to limit audit entries, most recent first, optionally
// filtered by target. A missing file yields an empty result and malformed
// lines are skipped.
func (l *Log) History(target string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 10
	}

	file, err := os.Open(l.auditPath)
	if os.IsNotExist(err) {
		return []Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening audit log: %w", err)
	}
	defer file.Close()

	matches := []Entry{}
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		entry := Entry{}
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue // tolerate partial or corrupt lines
		}
		if target != "" && entry.Target != target {
			continue
		}
		matches = append(matches, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading audit log: %w", err)
	}

	// newest first
	for i, j := 0, len(matches)-1; i < j; i, j = i+1, j-1 {
		matches[i], matches[j] = matches[j], matches[i]
	}
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (l *Log) appendLine(path string, mu *sync.Mutex, line []byte) error {
	mu.Lock()
	defer mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating log directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer file.Close()

	if _, err := file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("appending to %s: %w", path, err)
	}
	return nil
}
