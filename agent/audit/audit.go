package audit

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"
)

// Entry is one limit-increase request, recorded for every call regardless of
// outcome.
type Entry struct {
	CPF            string
	At             time.Time
	CurrentLimit   float64
	RequestedLimit float64
	Status         string
}

// Sink durably records limit-increase requests.
type Sink interface {
	Record(ctx context.Context, e Entry) error
}

var csvHeader = []string{"cpf_cliente", "data_hora_solicitacao", "limite_atual", "novo_limite_solicitado", "status_pedido"}

// CSVSink appends entries to a local CSV file, writing the header when the
// file is first created. It is the default backend.
type CSVSink struct {
	mu   sync.Mutex
	path string
}

func NewCSVSink(path string) *CSVSink {
	return &CSVSink{path: path}
}

func (s *CSVSink) Record(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, statErr := os.Stat(s.path)
	fresh := os.IsNotExist(statErr)

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open request log: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if fresh {
		if err := w.Write(csvHeader); err != nil {
			return fmt.Errorf("write request log header: %w", err)
		}
	}
	row := []string{
		e.CPF,
		e.At.UTC().Format(time.RFC3339),
		strconv.FormatFloat(e.CurrentLimit, 'f', 2, 64),
		strconv.FormatFloat(e.RequestedLimit, 'f', 2, 64),
		e.Status,
	}
	if err := w.Write(row); err != nil {
		return fmt.Errorf("write request log row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush request log: %w", err)
	}
	return nil
}
