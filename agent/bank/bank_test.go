package bank

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	contractx "github.com/ritobank/assistant/agent/contract"
	"github.com/ritobank/assistant/agent/audit"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func newTestStore(t *testing.T) *ClientStore {
	t.Helper()
	path := writeFile(t, t.TempDir(), "clients.csv",
		"cpf,name,birth_date,score,credit_limit\n"+
			"12345678900,Maria Silva,1990-05-15,650,5000.00\n"+
			"98765432100,João Souza,1985-01-02,300,1000.00\n")
	store, err := NewClientStore(path)
	if err != nil {
		t.Fatalf("new client store: %v", err)
	}
	return store
}

func newTestRules(t *testing.T) *RuleTable {
	t.Helper()
	path := writeFile(t, t.TempDir(), "score_limit.csv",
		"min_score,max_score,max_limit\n"+
			"0,300,1000.00\n"+
			"301,600,5000.00\n"+
			"601,1000,15000.00\n")
	rules, err := NewRuleTable(path)
	if err != nil {
		t.Fatalf("new rule table: %v", err)
	}
	return rules
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	res, err := store.Authenticate(ctx, "12345678900", "1990-05-15")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if !res.Authenticated {
		t.Fatalf("expected match, got %+v", res)
	}

	for _, tc := range []struct{ cpf, birth string }{
		{"12345678900", "1990-05-16"},
		{"00000000000", "1990-05-15"},
	} {
		res, err := store.Authenticate(ctx, tc.cpf, tc.birth)
		if err != nil {
			t.Fatalf("authenticate %s: %v", tc.cpf, err)
		}
		if res.Authenticated {
			t.Fatalf("expected mismatch for %s/%s", tc.cpf, tc.birth)
		}
	}
}

func TestClientByCPF(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	c, err := store.ClientByCPF(ctx, "12345678900")
	if err != nil {
		t.Fatalf("client by cpf: %v", err)
	}
	if c.Name != "Maria Silva" || c.Score != 650 || c.CreditLimit != 5000 {
		t.Fatalf("unexpected client: %+v", c)
	}

	if _, err := store.ClientByCPF(ctx, "11111111111"); !errors.Is(err, contractx.ErrClientNotFound) {
		t.Fatalf("expected ErrClientNotFound, got %v", err)
	}
}

func TestUpdateLimitPersists(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeFile(t, dir, "clients.csv",
		"cpf,name,birth_date,score,credit_limit\n"+
			"12345678900,Maria Silva,1990-05-15,650,5000.00\n")
	store, err := NewClientStore(path)
	if err != nil {
		t.Fatalf("new client store: %v", err)
	}
	ctx := context.Background()

	if err := store.UpdateLimit(ctx, "12345678900", 7500); err != nil {
		t.Fatalf("update limit: %v", err)
	}

	reloaded, err := NewClientStore(path)
	if err != nil {
		t.Fatalf("reload client store: %v", err)
	}
	c, err := reloaded.ClientByCPF(ctx, "12345678900")
	if err != nil {
		t.Fatalf("client by cpf: %v", err)
	}
	if c.CreditLimit != 7500 {
		t.Fatalf("limit not persisted: %+v", c)
	}
}

func TestInterviewScore(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		form contractx.InterviewForm
		want int
	}{
		{
			name: "formal one dependent no debt",
			form: contractx.InterviewForm{Income: 5000, EmploymentType: "formal", Expenses: 1000, Dependents: 1, HasDebt: false},
			want: 630,
		},
		{
			name: "unemployed with debt clamps at zero",
			form: contractx.InterviewForm{Income: 0, EmploymentType: "desempregado", Expenses: 2000, Dependents: 5, HasDebt: true},
			want: 0,
		},
		{
			name: "high income clamps at one thousand",
			form: contractx.InterviewForm{Income: 100000, EmploymentType: "formal", Expenses: 0, Dependents: 0, HasDebt: false},
			want: 1000,
		},
		{
			name: "self-employed two dependents",
			form: contractx.InterviewForm{Income: 3000, EmploymentType: "autonomo", Expenses: 1499, Dependents: 2, HasDebt: true},
			want: 220,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := InterviewScore(tc.form); got != tc.want {
				t.Fatalf("InterviewScore = %d, want %d", got, tc.want)
			}
		})
	}
}

type memorySink struct {
	entries []audit.Entry
}

func (m *memorySink) Record(_ context.Context, e audit.Entry) error {
	m.entries = append(m.entries, e)
	return nil
}

func TestProcessLimitRequest(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	rules := newTestRules(t)
	sink := &memorySink{}
	svc, err := NewCreditService(store, rules, sink)
	if err != nil {
		t.Fatalf("new credit service: %v", err)
	}
	ctx := context.Background()

	// Score 650 → bracket ceiling 15000.
	approved := svc.ProcessLimitRequest(ctx, "12345678900", 10000)
	if approved.Status != contractx.StatusApproved {
		t.Fatalf("expected approval, got %+v", approved)
	}
	c, _ := store.ClientByCPF(ctx, "12345678900")
	if c.CreditLimit != 10000 {
		t.Fatalf("approved limit not persisted: %+v", c)
	}

	rejected := svc.ProcessLimitRequest(ctx, "12345678900", 50000)
	if rejected.Status != contractx.StatusRejected || rejected.MaxAllowed != 15000 {
		t.Fatalf("expected rejection with ceiling, got %+v", rejected)
	}
	c, _ = store.ClientByCPF(ctx, "12345678900")
	if c.CreditLimit != 10000 {
		t.Fatalf("rejected request changed the limit: %+v", c)
	}

	missing := svc.ProcessLimitRequest(ctx, "11111111111", 100)
	if missing.Status != contractx.StatusError {
		t.Fatalf("expected error status, got %+v", missing)
	}

	// One audit entry per call regardless of outcome.
	if len(sink.entries) != 3 {
		t.Fatalf("audit has %d entries, want 3", len(sink.entries))
	}
	statuses := []string{sink.entries[0].Status, sink.entries[1].Status, sink.entries[2].Status}
	want := []string{contractx.StatusApproved, contractx.StatusRejected, contractx.StatusError}
	for i := range want {
		if statuses[i] != want[i] {
			t.Fatalf("audit statuses = %v, want %v", statuses, want)
		}
	}
}

func TestSubmitInterviewPersistsScore(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	svc, err := NewCreditService(store, newTestRules(t), &memorySink{})
	if err != nil {
		t.Fatalf("new credit service: %v", err)
	}
	ctx := context.Background()

	form := contractx.InterviewForm{
		CPF:            "98765432100",
		Income:         5000,
		EmploymentType: "formal",
		Expenses:       1000,
		Dependents:     1,
		HasDebt:        false,
	}
	outcome, err := svc.SubmitInterview(ctx, form)
	if err != nil {
		t.Fatalf("submit interview: %v", err)
	}
	if outcome.Status != contractx.InterviewCompleted || outcome.NewScore != 630 {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}

	c, err := store.ClientByCPF(ctx, "98765432100")
	if err != nil {
		t.Fatalf("client by cpf: %v", err)
	}
	if c.Score != 630 {
		t.Fatalf("score not persisted: %+v", c)
	}
}
