package prompt

import (
	_ "embed"
	"strings"
)

var (
	//go:embed template/persona.txt
	personaRaw string

	//go:embed template/closing.txt
	closingRaw string

	//go:embed template/classify.txt
	classifyRaw string

	//go:embed template/direct.txt
	directRaw string

	//go:embed template/triage_cpf.txt
	triageCPFRaw string

	//go:embed template/triage_birth.txt
	triageBirthRaw string

	//go:embed template/triage_cpf_invalid.txt
	triageCPFInvalidRaw string

	//go:embed template/triage_cpf_saved.txt
	triageCPFSavedRaw string

	//go:embed template/triage_date_invalid.txt
	triageDateInvalidRaw string

	//go:embed template/triage_auth_ok.txt
	triageAuthOKRaw string

	//go:embed template/currency.txt
	currencyRaw string

	//go:embed template/credit.txt
	creditRaw string

	//go:embed template/credit_approved.txt
	creditApprovedRaw string

	//go:embed template/credit_rejected.txt
	creditRejectedRaw string

	//go:embed template/interview.txt
	interviewRaw string

	//go:embed template/interview_done.txt
	interviewDoneRaw string
)

// PromptSet holds loaded prompt content. Persona and Closing frame every
// system prompt; the rest are per-situation middles, some with {placeholders}
// resolved at invoke time.
type PromptSet struct {
	Persona string
	Closing string

	Classify string
	Direct   string

	TriageCPF         string
	TriageBirth       string
	TriageCPFInvalid  string
	TriageCPFSaved    string
	TriageDateInvalid string
	TriageAuthOK      string

	Currency string

	Credit         string
	CreditApproved string
	CreditRejected string

	Interview     string
	InterviewDone string
}

// LoadPromptSet returns a PromptSet with trimmed prompt strings.
// This is safe to call concurrently; the embed is compile-time, and trimming is cheap.
func LoadPromptSet() PromptSet {
	return PromptSet{
		Persona:           strings.TrimSpace(personaRaw),
		Closing:           strings.TrimSpace(closingRaw),
		Classify:          strings.TrimSpace(classifyRaw),
		Direct:            strings.TrimSpace(directRaw),
		TriageCPF:         strings.TrimSpace(triageCPFRaw),
		TriageBirth:       strings.TrimSpace(triageBirthRaw),
		TriageCPFInvalid:  strings.TrimSpace(triageCPFInvalidRaw),
		TriageCPFSaved:    strings.TrimSpace(triageCPFSavedRaw),
		TriageDateInvalid: strings.TrimSpace(triageDateInvalidRaw),
		TriageAuthOK:      strings.TrimSpace(triageAuthOKRaw),
		Currency:          strings.TrimSpace(currencyRaw),
		Credit:            strings.TrimSpace(creditRaw),
		CreditApproved:    strings.TrimSpace(creditApprovedRaw),
		CreditRejected:    strings.TrimSpace(creditRejectedRaw),
		Interview:         strings.TrimSpace(interviewRaw),
		InterviewDone:     strings.TrimSpace(interviewDoneRaw),
	}
}

// Fill resolves {name} placeholders in a prompt section.
func Fill(tmpl string, vars map[string]string) string {
	for k, v := range vars {
		tmpl = strings.ReplaceAll(tmpl, "{"+k+"}", v)
	}
	return tmpl
}

// Compose joins prompt sections into one system prompt, skipping empties.
func Compose(sections ...string) string {
	parts := make([]string, 0, len(sections))
	for _, s := range sections {
		if trimmed := strings.TrimSpace(s); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return strings.Join(parts, "\n\n")
}
