package logging

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// EventSink receives structured events emitted while a run is logged.
type EventSink interface {
	EmitStatusEvent(ctx context.Context, runID, status string) error
	EmitLogEvent(ctx context.Context, runID, level, message string) error
}

// RunLogger manages logging for a single agent query or workflow run
type RunLogger struct {
	runID     string
	kind      string
	logFile   *os.File
	mutex     sync.Mutex
	startTime time.Time
	eventSink EventSink
}

var (
	currentLogger *RunLogger
	loggerMutex   sync.Mutex
)

// StartRunLogging opens <dir>/run_<id>_<timestamp>.log and makes it the current logger.
func StartRunLogging(dir, runID, kind string) (*RunLogger, error) {
	loggerMutex.Lock()
	defer loggerMutex.Unlock()

	if dir == "" {
		dir = "run_logs"
	}

	timestamp := time.Now().Format("20060102_150405")
	logPath := filepath.Join(dir, fmt.Sprintf("run_%s_%s.log", runID, timestamp))

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	logFile, err := os.Create(logPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}

	logger := &RunLogger{
		runID:     runID,
		kind:      kind,
		logFile:   logFile,
		startTime: time.Now(),
	}

	currentLogger = logger
	logger.writeHeader()

	return logger, nil
}

// GetCurrentLogger returns the most recently started logger, or nil
func GetCurrentLogger() *RunLogger {
	loggerMutex.Lock()
	defer loggerMutex.Unlock()
	return currentLogger
}

// RunID returns the identifier the logger was started with
func (r *RunLogger) RunID() string {
	if r == nil {
		return ""
	}
	return r.runID
}

// Path returns the log file path, empty once closed
func (r *RunLogger) Path() string {
	if r == nil {
		return ""
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.logFile == nil {
		return ""
	}
	return r.logFile.Name()
}

// SetEventSink sets the event sink for emitting structured events
func (r *RunLogger) SetEventSink(sink EventSink) {
	if r == nil {
		return
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.eventSink = sink

	if sink != nil {
		_ = sink.EmitStatusEvent(context.Background(), r.runID, "started")
	}
}

// Log writes a message to the run log
func (r *RunLogger) Log(format string, args ...interface{}) {
	if r == nil {
		return
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.logFile == nil {
		return
	}

	timestamp := time.Now().Format("15:04:05.000")
	elapsed := time.Since(r.startTime)
	logMessage := fmt.Sprintf(format, args...)

	r.logFile.WriteString(fmt.Sprintf("[%s] [+%v] %s\n", timestamp, elapsed.Round(time.Millisecond), logMessage))
	r.logFile.Sync()

	log.Debug().Str("run_id", r.runID).Str("kind", r.kind).Msg(logMessage)

	if r.eventSink != nil {
		_ = r.eventSink.EmitLogEvent(context.Background(), r.runID, determineLogLevel(logMessage), logMessage)
	}
}

// LogSection writes a section header to the log
func (r *RunLogger) LogSection(title string) {
	if r == nil {
		return
	}

	separator := strings.Repeat("=", 80)
	r.Log("%s", separator)
	r.Log("= %s", title)
	r.Log("%s", separator)
}

// LogRequest logs an LLM request
func (r *RunLogger) LogRequest(step, model, prompt string) {
	if r == nil {
		return
	}

	r.LogSection(fmt.Sprintf("LLM REQUEST - %s", step))
	r.Log("Model: %s", model)
	r.Log("Prompt length: %d characters", len(prompt))
	r.writeBlock("PROMPT", prompt)
}

// LogResponse logs an LLM response
func (r *RunLogger) LogResponse(step, response string) {
	if r == nil {
		return
	}

	r.LogSection(fmt.Sprintf("LLM RESPONSE - %s", step))
	r.Log("Response length: %d characters", len(response))
	r.writeBlock("RESPONSE", response)
}

// LogError logs an error
func (r *RunLogger) LogError(context string, err error) {
	if r == nil {
		return
	}

	r.Log("ERROR in %s: %v", context, err)
}

// Close finalizes the log file
func (r *RunLogger) Close() {
	if r == nil {
		return
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.logFile == nil {
		return
	}

	// written directly, Log would deadlock on r.mutex
	timestamp := time.Now().Format("15:04:05.000")
	elapsed := time.Since(r.startTime)
	r.logFile.WriteString(fmt.Sprintf("[%s] [+%v] Run logging completed. Total duration: %v\n",
		timestamp, elapsed.Round(time.Millisecond), elapsed))
	r.logFile.Sync()

	if r.eventSink != nil {
		_ = r.eventSink.EmitStatusEvent(context.Background(), r.runID, "completed")
	}

	r.logFile.Close()
	r.logFile = nil

	log.Debug().Str("run_id", r.runID).Dur("duration", elapsed).Msg("Run log closed")

	loggerMutex.Lock()
	if currentLogger == r {
		currentLogger = nil
	}
	loggerMutex.Unlock()
}

func (r *RunLogger) writeBlock(label, body string) {
	r.Log("--- %s START ---", label)
	r.mutex.Lock()
	if r.logFile != nil {
		r.logFile.WriteString(body + "\n")
	}
	r.mutex.Unlock()
	r.Log("--- %s END ---", label)
}

func (r *RunLogger) writeHeader() {
	header := fmt.Sprintf(`AGENTSHUB RUN LOG
Run ID: %s
Kind: %s
Start Time: %s
Log Format: [HH:MM:SS.mmm] [+duration] message

`, r.runID, r.kind, r.startTime.Format("2006-01-02 15:04:05"))

	r.logFile.WriteString(header)
	r.logFile.Sync()
}

// determineLogLevel guesses an event level from the message wording
func determineLogLevel(message string) string {
	lower := strings.ToLower(message)

	if containsAny(lower, "error", "failed", "panic") {
		return "error"
	}
	if containsAny(lower, "warning", "warn", "timeout", "retry", "fallback") {
		return "warn"
	}
	return "info"
}

func containsAny(text string, keywords ...string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}
