// Package inject prepends assembled memory context to agent prompts.
package inject

import (
	"context"

	"github.com/daverage/strata/internal/hydration"
)

// Injector builds prompt-ready context around a user prompt.
type Injector struct {
	assembler *hydration.Assembler
	maxTokens int
}

// NewInjector creates an injector. maxTokens bounds the injected context
// block; 0 means unbounded.
func NewInjector(assembler *hydration.Assembler, maxTokens int) *Injector {
	return &Injector{assembler: assembler, maxTokens: maxTokens}
}

// Inject assembles memory context for the prompt and prepends it. When no
// tier has anything to contribute the prompt comes back unchanged.
func (in *Injector) Inject(ctx context.Context, prompt string) (string, error) {
	c, err := in.assembler.Assemble(ctx, prompt)
	if err != nil {
		return "", err
	}

	if len(c.WorkingContext)+len(c.RelevantFacts)+len(c.AvailableSkills) == 0 {
		return prompt, nil
	}

	return hydration.FormatBudget(c, in.maxTokens) + "\n" + prompt, nil
}
