package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// LimitRequestLog mirrors the CSV request-log schema in Postgres.
type LimitRequestLog struct {
	bun.BaseModel `bun:"table:limit_request_logs"`

	ID             int64     `bun:"id,pk,autoincrement"`
	CPF            string    `bun:"cpf_cliente,notnull"`
	RequestedAt    time.Time `bun:"data_hora_solicitacao,notnull"`
	CurrentLimit   float64   `bun:"limite_atual"`
	RequestedLimit float64   `bun:"novo_limite_solicitado"`
	Status         string    `bun:"status_pedido,notnull"`
}

type PostgresConfig struct {
	DSN string `envconfig:"DSN" required:"true"`
}

// PostgresSink records entries in Postgres, for deployments where the request
// log must outlive the local filesystem.
type PostgresSink struct {
	db *bun.DB
}

func NewPostgresSink(ctx context.Context, cfg PostgresConfig) (*PostgresSink, error) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DSN)))
	db := bun.NewDB(sqldb, pgdialect.New())
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping request-log database: %w", err)
	}
	if _, err := db.NewCreateTable().Model((*LimitRequestLog)(nil)).IfNotExists().Exec(ctx); err != nil {
		return nil, fmt.Errorf("ensure request-log table: %w", err)
	}
	return &PostgresSink{db: db}, nil
}

func (s *PostgresSink) Record(ctx context.Context, e Entry) error {
	row := LimitRequestLog{
		CPF:            e.CPF,
		RequestedAt:    e.At.UTC(),
		CurrentLimit:   e.CurrentLimit,
		RequestedLimit: e.RequestedLimit,
		Status:         e.Status,
	}
	if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		return fmt.Errorf("insert request log: %w", err)
	}
	return nil
}

func (s *PostgresSink) Close() error {
	return s.db.Close()
}
