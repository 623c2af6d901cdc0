package audit

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCSVSinkWritesHeaderOnce(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "solicitacoes_aumento_limite.csv")
	sink := NewCSVSink(path)
	ctx := context.Background()

	at := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	entries := []Entry{
		{CPF: "12345678900", At: at, CurrentLimit: 5000, RequestedLimit: 7000, Status: "aprovado"},
		{CPF: "12345678900", At: at.Add(time.Minute), CurrentLimit: 7000, RequestedLimit: 90000, Status: "rejeitado"},
	}
	for _, e := range entries {
		if err := sink.Record(ctx, e); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("log has %d rows, want header + 2 entries", len(rows))
	}
	if rows[0][0] != "cpf_cliente" || rows[0][4] != "status_pedido" {
		t.Fatalf("unexpected header: %v", rows[0])
	}
	if rows[1][4] != "aprovado" || rows[2][4] != "rejeitado" {
		t.Fatalf("unexpected statuses: %v / %v", rows[1], rows[2])
	}
	if rows[1][2] != "5000.00" || rows[1][3] != "7000.00" {
		t.Fatalf("unexpected limits: %v", rows[1])
	}
}
