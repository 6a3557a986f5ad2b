package telemetry

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"tccycle/internal/controller"
)

// CSVHeader is the first row of every telemetry file.
var CSVHeader = []string{"timestamp", "direction", "interface", "profile", "rate_bps", "burst_bytes", "applied"}

// CSVRecorder writes one row per switch attempt and flushes after each row.
// It is safe for use by several controllers.
type CSVRecorder struct {
	logger *slog.Logger
	mu     sync.Mutex
	writer *csv.Writer
	closer io.Closer
}

// NewCSVRecorder writes the header to w when writeHeader is set.
func NewCSVRecorder(logger *slog.Logger, w io.Writer, writeHeader bool) (*CSVRecorder, error) {
	r := &CSVRecorder{logger: logger, writer: csv.NewWriter(w)}
	if closer, ok := w.(io.Closer); ok {
		r.closer = closer
	}
	if writeHeader {
		if err := r.writeRow(CSVHeader); err != nil {
			return nil, fmt.Errorf("write csv header: %w", err)
		}
	}
	return r, nil
}

// OpenCSVFile appends to path, writing the header only when the file is new
// or empty.
func OpenCSVFile(logger *slog.Logger, path string) (*CSVRecorder, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open telemetry file %s: %w", path, err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("stat telemetry file %s: %w", path, err)
	}
	recorder, err := NewCSVRecorder(logger, file, info.Size() == 0)
	if err != nil {
		file.Close()
		return nil, err
	}
	return recorder, nil
}

// RecordSwitch appends a row for event. Write errors are logged, never
// returned, so telemetry cannot stop the shaping loop.
func (r *CSVRecorder) RecordSwitch(event controller.SwitchEvent) {
	row := []string{
		event.Time.UTC().Format(time.RFC3339Nano),
		string(event.Direction),
		event.Interface,
		event.Profile.Name,
		strconv.FormatUint(uint64(event.Profile.Rate), 10),
		strconv.FormatUint(uint64(event.Profile.Burst), 10),
		strconv.FormatBool(event.Applied),
	}
	if err := r.writeRow(row); err != nil && r.logger != nil {
		r.logger.Warn("telemetry write failed", slog.String("error", err.Error()))
	}
}

func (r *CSVRecorder) writeRow(row []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.writer.Write(row); err != nil {
		return err
	}
	r.writer.Flush()
	return r.writer.Error()
}

// Close releases the underlying file, if any.
func (r *CSVRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writer.Flush()
	if r.closer == nil {
		return r.writer.Error()
	}
	return r.closer.Close()
}
