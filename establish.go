package qtrust

import (
	"fmt"

	"github.com/kardianos/qtrust/tdef"
	"github.com/kardianos/qtrust/tstate"
)

// DefaultPrompt is shown above the checklist of authorities.
const DefaultPrompt = "The server presented these certificate authorities.\nSelect the ones to trust:"

// Prompter is the user interface of the trust flow.
type Prompter interface {
	// Checklist shows items and blocks until the user returns the
	// zero-based indices of the chosen items.
	Checklist(prompt string, items []string) ([]int, error)

	// Notify shows a one-off message.
	Notify(msg string) error
}

// EstablisherConfig configures an Establisher.
type EstablisherConfig struct {
	Store    *Store     // Required.
	Prompter Prompter   // Required.
	Parser   CertParser // Defaults to X509Parser.
	Logger   Logger
	Metrics  *Metrics

	// Prompt overrides DefaultPrompt.
	Prompt string
}

// Establisher asks the user which authorities of a certificate chain to
// trust and saves the chosen ones.
type Establisher struct {
	store    *Store
	prompter Prompter
	parser   CertParser
	log      Logger
	metrics  *Metrics
	prompt   string
}

// NewEstablisher validates cfg and returns an Establisher.
func NewEstablisher(cfg EstablisherConfig) (*Establisher, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Prompter == nil {
		return nil, fmt.Errorf("prompter is required")
	}
	e := &Establisher{
		store:    cfg.Store,
		prompter: cfg.Prompter,
		parser:   cfg.Parser,
		log:      loggerOr(cfg.Logger),
		metrics:  cfg.Metrics,
		prompt:   cfg.Prompt,
	}
	if e.parser == nil {
		e.parser = X509Parser{}
	}
	if e.prompt == "" {
		e.prompt = DefaultPrompt
	}
	return e, nil
}

type phase int

const (
	phaseParse phase = iota
	phaseFilter
	phasePrompt
	phasePersist
	phaseDone
	phaseFailed
)

func (p phase) String() string {
	switch p {
	case phaseParse:
		return "parse"
	case phaseFilter:
		return "filter"
	case phasePrompt:
		return "prompt"
	case phasePersist:
		return "persist"
	case phaseDone:
		return "done"
	case phaseFailed:
		return "failed"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

var phaseEdges = []tstate.Edge[phase]{
	{From: phaseParse, To: phaseFilter},
	{From: phaseFilter, To: phasePrompt},
	{From: phaseFilter, To: phaseDone},
	{From: phasePrompt, To: phasePersist},
	{From: phasePrompt, To: phaseFailed},
	{From: phasePersist, To: phaseDone},
}

// Candidates parses chain and returns the certificate authorities in it,
// in chain order. Entries that do not parse and leaf certificates are dropped.
func Candidates(parser CertParser, chain [][]byte, log Logger) []Certificate {
	log = loggerOr(log)
	var out []Certificate
	for i, der := range chain {
		cert, err := parser.ParseCertificate(der)
		if err != nil {
			log.Debugf("chain[%d]: %v", i, err)
			continue
		}
		if !cert.IsCA {
			log.Debugf("chain[%d]: %q is not a CA", i, cert.Subject)
			continue
		}
		out = append(out, cert)
	}
	return out
}

// DisplayLine renders a certificate authority for the checklist.
// The serial is split after 24 characters to bound the line width.
func DisplayLine(c Certificate) string {
	first, second := c.Serial, ""
	if len(c.Serial) > 24 {
		first, second = c.Serial[:24], c.Serial[24:]
	}
	return "🏛 " + c.Subject + "\n" + first + "\n" + second
}

// CheckTrust offers the certificate authorities in chain to the user and
// saves each chosen one under its serial number. It returns the number of
// authorities the user chose, including any that failed to save.
//
// A prompter error is logged and nothing is saved.
func (e *Establisher) CheckTrust(chain [][]byte) int {
	m := tstate.New(phaseParse, phaseEdges, func(from, to phase) {
		e.log.Debugf("check trust: %s -> %s", from, to)
	})
	move := func(to phase) {
		if err := m.Move(to); err != nil {
			e.log.Errorf("check trust: %v", err)
		}
	}

	cands := Candidates(e.parser, chain, e.log)
	move(phaseFilter)
	if len(cands) == 0 {
		e.log.Infof("no certificate authorities in chain of %d", len(chain))
		move(phaseDone)
		return 0
	}

	items := make([]string, len(cands))
	for i, c := range cands {
		items[i] = DisplayLine(c)
	}
	move(phasePrompt)
	picked, err := e.prompter.Checklist(e.prompt, items)
	if err != nil {
		e.log.Errorf("trust selection failed: %v", err)
		move(phaseFailed)
		return 0
	}

	move(phasePersist)
	count := 0
	for _, idx := range picked {
		if idx < 0 || idx >= len(cands) {
			e.log.Warningf("selection index %d out of range [0,%d)", idx, len(cands))
			continue
		}
		count++
		c := cands[idx]
		key := tdef.SerialKey(c.Serial)
		if err := e.store.Save(key, c.Anchor()); err != nil {
			e.log.Warningf("failed to save %q: %v", c.Subject, err)
			e.metrics.persistFailure()
			if nerr := e.prompter.Notify(fmt.Sprintf("failed to save: %s", c.Subject)); nerr != nil {
				e.log.Errorf("notify: %v", nerr)
			}
			continue
		}
		e.log.Infof("trusted %q as %q", c.Subject, key)
	}
	e.metrics.selected(count)
	move(phaseDone)
	return count
}
