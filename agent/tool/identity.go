package tool

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	contractx "github.com/ritobank/assistant/agent/contract"
)

var (
	nonDigitPattern = regexp.MustCompile(`\D`)

	// Accepted date shapes: DD/MM/YYYY, DD-MM-YYYY, DDMMYYYY.
	birthDatePatterns = []*regexp.Regexp{
		regexp.MustCompile(`^(\d{2})/(\d{2})/(\d{4})$`),
		regexp.MustCompile(`^(\d{2})-(\d{2})-(\d{4})$`),
		regexp.MustCompile(`^(\d{2})(\d{2})(\d{4})$`),
	}
)

// SaveCPF strips punctuation and accepts exactly 11 remaining digits.
func SaveCPF(raw string) contractx.CPFResult {
	digits := nonDigitPattern.ReplaceAllString(raw, "")
	if len(digits) != 11 {
		return contractx.CPFResult{
			Success: false,
			Message: "CPF inválido: informe exatamente 11 dígitos.",
		}
	}
	return contractx.CPFResult{
		Success: true,
		CPF:     digits,
		Message: "CPF registrado com sucesso.",
	}
}

// SaveBirthDate parses the accepted formats, rejects calendar-invalid dates
// and normalizes to YYYY-MM-DD.
func SaveBirthDate(raw string) contractx.BirthDateResult {
	trimmed := strings.TrimSpace(raw)
	for _, pattern := range birthDatePatterns {
		m := pattern.FindStringSubmatch(trimmed)
		if m == nil {
			continue
		}
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])

		// time.Date normalizes overflow (31/02 becomes 02/03), so a
		// round-trip mismatch means the calendar date never existed.
		parsed := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
		if parsed.Year() != year || parsed.Month() != time.Month(month) || parsed.Day() != day {
			return contractx.BirthDateResult{
				Success: false,
				Message: "Data de nascimento inexistente no calendário.",
			}
		}
		return contractx.BirthDateResult{
			Success:   true,
			BirthDate: parsed.Format("2006-01-02"),
			Message:   "Data de nascimento registrada com sucesso.",
		}
	}
	return contractx.BirthDateResult{
		Success: false,
		Message: "Data de nascimento inválida: use DD/MM/AAAA, DD-MM-AAAA ou DDMMAAAA.",
	}
}
