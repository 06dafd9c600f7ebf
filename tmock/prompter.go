package tmock

import (
	"sync"
)

// ScriptedPrompter answers checklists with a fixed selection and records
// what it was shown.
type ScriptedPrompter struct {
	mu sync.Mutex

	Select    []int
	Err       error
	NotifyErr error

	prompts  []string
	items    [][]string
	notified []string
}

func (p *ScriptedPrompter) Checklist(prompt string, items []string) ([]int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prompts = append(p.prompts, prompt)
	p.items = append(p.items, append([]string(nil), items...))
	if p.Err != nil {
		return nil, p.Err
	}
	return append([]int(nil), p.Select...), nil
}

func (p *ScriptedPrompter) Notify(msg string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notified = append(p.notified, msg)
	return p.NotifyErr
}

// Shown returns the items of every checklist presented, in order.
func (p *ScriptedPrompter) Shown() [][]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]string(nil), p.items...)
}

// Prompts returns the prompt text of every checklist presented.
func (p *ScriptedPrompter) Prompts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.prompts...)
}

// Notified returns every notification shown.
func (p *ScriptedPrompter) Notified() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.notified...)
}
