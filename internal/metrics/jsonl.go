package metrics

import (
	"encoding/json"
	"os"
	"sync"
	"time"
)

// JSONLSink appends one JSON object per update to a file. Safe for
// concurrent use. A nil *JSONLSink is valid; its methods are no-ops.
type JSONLSink struct {
	mu    sync.Mutex
	file  *os.File
	runID string
}

type jsonlRecord struct {
	RunID    string `json:"run_id"`
	Update   int    `json:"update"`
	LoggedAt string `json:"logged_at"`
	Metrics  Values `json:"metrics"`
}

// NewJSONLSink opens (or creates) path for append.
func NewJSONLSink(path, runID string) (*JSONLSink, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return &JSONLSink{file: f, runID: runID}, nil
}

func (s *JSONLSink) Emit(update int, values Values) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := jsonlRecord{
		RunID:    s.runID,
		Update:   update,
		LoggedAt: time.Now().UTC().Format(time.RFC3339Nano),
		Metrics:  values,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return
	}
	_, _ = s.file.Write(append(data, '\n'))
}

func (s *JSONLSink) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
