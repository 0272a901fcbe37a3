package relay

import (
	"fmt"
	"strings"
	"text/template"

	"statusrelay/internal/cachet"
)

const (
	SymbolOperational = ":ballot_box_with_check: :ballot_box_with_check:"
	SymbolDegraded    = ":warning: :warning:"
)

// Formatter renders one changed component into a webhook message.
//
// Template data: .Symbol, .Component (cachet.Component), .Status (ordinal name).
type Formatter struct {
	tmpl *template.Template
}

type messageData struct {
	Symbol    string
	Component cachet.Component
	Status    string
}

func NewFormatter(text string) (*Formatter, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("message template is empty")
	}
	t, err := template.New("message").Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse message template: %w", err)
	}
	return &Formatter{tmpl: t}, nil
}

// Symbol picks the leading emoji pair for a component.
func Symbol(c cachet.Component) string {
	if c.StatusName == "Operational" {
		return SymbolOperational
	}
	return SymbolDegraded
}

func (f *Formatter) Format(c cachet.Component) (string, error) {
	var b strings.Builder
	err := f.tmpl.Execute(&b, messageData{
		Symbol:    Symbol(c),
		Component: c,
		Status:    c.Status.String(),
	})
	if err != nil {
		return "", fmt.Errorf("render message for component %s: %w", c.ID, err)
	}
	return b.String(), nil
}
