package utils

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"deltadebate/internal/errs"
	"deltadebate/services"
)

// SamplePrompt is one debate queued by SeedDebateData.
type SamplePrompt struct {
	Prompt   string
	Category string
}

// SamplePrompts are queued on a fresh install when seeding is enabled.
var SamplePrompts = []SamplePrompt{
	{Prompt: "Should carbon emissions be taxed to fight global warming?", Category: "Environment"},
	{Prompt: "Should healthcare be universal and publicly funded?", Category: "Health"},
	{Prompt: "Should social media platforms be regulated like publishers?", Category: "Technology"},
	{Prompt: "Should governments phase out fossil fuels by 2040?", Category: "Energy"},
	{Prompt: "Is public money for space exploration well spent?", Category: "Science"},
}

// SeedDebateData suggests every prompt that is not already in use and
// returns how many were queued. Prompts already in use are skipped, so
// seeding is safe to run on every start.
func SeedDebateData(ctx context.Context, svc *services.DebateService, prompts []SamplePrompt, logger zerolog.Logger) (int, error) {
	seeded := 0
	for _, p := range prompts {
		_, _, err := svc.SuggestPrompt(ctx, p.Prompt, p.Category)
		if errors.Is(err, errs.ErrConflict) {
			continue
		}
		if err != nil {
			return seeded, err
		}
		seeded++
	}
	if seeded > 0 {
		logger.Info().Int("prompts", seeded).Msg("seeded sample debates")
	}
	return seeded, nil
}
