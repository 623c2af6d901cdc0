// Package bank implements the record store and credit rules behind the
// account tools: client lookup, authentication, limit decisions and the
// interview score.
package bank

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	contractx "github.com/ritobank/assistant/agent/contract"
)

var clientHeader = []string{"cpf", "name", "birth_date", "score", "credit_limit"}

// ClientStore is a CSV-backed client record store. Records are kept in memory
// and every mutation rewrites the file atomically, so readers never observe a
// partial write.
type ClientStore struct {
	mu    sync.RWMutex
	path  string
	byCPF map[string]contractx.Client
	order []string
}

func NewClientStore(path string) (*ClientStore, error) {
	s := &ClientStore{path: path, byCPF: map[string]contractx.Client{}}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *ClientStore) load() error {
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("open client store: %w", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return fmt.Errorf("read client store: %w", err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("client store %s: missing header", s.path)
	}
	for i, row := range rows[1:] {
		if len(row) != len(clientHeader) {
			return fmt.Errorf("client store %s: row %d has %d columns", s.path, i+2, len(row))
		}
		score, err := strconv.Atoi(row[3])
		if err != nil {
			return fmt.Errorf("client store %s: row %d score: %w", s.path, i+2, err)
		}
		limit, err := strconv.ParseFloat(row[4], 64)
		if err != nil {
			return fmt.Errorf("client store %s: row %d credit_limit: %w", s.path, i+2, err)
		}
		c := contractx.Client{
			CPF:         row[0],
			Name:        row[1],
			BirthDate:   row[2],
			Score:       score,
			CreditLimit: limit,
		}
		if _, dup := s.byCPF[c.CPF]; !dup {
			s.order = append(s.order, c.CPF)
		}
		s.byCPF[c.CPF] = c
	}
	return nil
}

// Authenticate matches an exact CPF and an exact normalized birth date
// (YYYY-MM-DD) against the record store. The result message is safe to show
// to the customer.
func (s *ClientStore) Authenticate(_ context.Context, cpf, birthDate string) (contractx.AuthResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.byCPF[cpf]
	if !ok || c.BirthDate != birthDate {
		return contractx.AuthResult{
			Authenticated: false,
			Message:       "CPF ou data de nascimento não conferem com nossos registros.",
		}, nil
	}
	return contractx.AuthResult{
		Authenticated: true,
		Message:       fmt.Sprintf("Autenticação realizada com sucesso. Bem-vindo(a), %s!", c.Name),
	}, nil
}

func (s *ClientStore) ClientByCPF(_ context.Context, cpf string) (contractx.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.byCPF[cpf]
	if !ok {
		return contractx.Client{}, fmt.Errorf("%w: %s", contractx.ErrClientNotFound, cpf)
	}
	return c, nil
}

func (s *ClientStore) UpdateLimit(_ context.Context, cpf string, newLimit float64) error {
	return s.update(cpf, func(c *contractx.Client) { c.CreditLimit = newLimit })
}

func (s *ClientStore) UpdateScore(_ context.Context, cpf string, newScore int) error {
	return s.update(cpf, func(c *contractx.Client) { c.Score = newScore })
}

func (s *ClientStore) update(cpf string, mutate func(*contractx.Client)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byCPF[cpf]
	if !ok {
		return fmt.Errorf("%w: %s", contractx.ErrClientNotFound, cpf)
	}
	mutate(&c)
	s.byCPF[cpf] = c
	return s.persist()
}

// persist rewrites the whole file through a temp file + rename. Caller holds
// the write lock.
func (s *ClientStore) persist() error {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".clients-*.csv")
	if err != nil {
		return fmt.Errorf("create temp client store: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(clientHeader); err != nil {
		tmp.Close()
		return fmt.Errorf("write client header: %w", err)
	}
	for _, cpf := range s.order {
		c := s.byCPF[cpf]
		row := []string{
			c.CPF,
			c.Name,
			c.BirthDate,
			strconv.Itoa(c.Score),
			strconv.FormatFloat(c.CreditLimit, 'f', 2, 64),
		}
		if err := w.Write(row); err != nil {
			tmp.Close()
			return fmt.Errorf("write client row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("flush client store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp client store: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace client store: %w", err)
	}
	return nil
}
