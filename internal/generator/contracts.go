package generator

import (
	"context"

	"github.com/mbelshaw/dailyoffice-back/internal/domain"
)

// Generator produces a finished document for a canonical request. It is a
// black box to the orchestrator: possibly slow, possibly failing, but
// deterministic over its inputs (same request, byte-identical artifact).
type Generator interface {
	Generate(ctx context.Context, request domain.Request) (domain.Artifact, error)
}
