package quality

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/mbelshaw/dailyoffice-back/internal/domain"
)

var ErrArtifactRejected = errors.New("artifact failed output checks")

const (
	// Even a single-page typeset document is well above this size; anything
	// smaller is an error page or a truncated upload.
	minArtifactBytes = 512

	pdfMagic   = "%PDF-"
	pdfTrailer = "%%EOF"
)

// ArtifactValidator rejects generator output that is not a structurally sound
// PDF, so corrupt or partial documents are never cached or served.
type ArtifactValidator struct {
	minBytes int
}

func NewArtifactValidator() *ArtifactValidator {
	return &ArtifactValidator{minBytes: minArtifactBytes}
}

func (v *ArtifactValidator) ValidatePDF(artifact domain.Artifact) error {
	if len(artifact.Body) == 0 {
		return fmt.Errorf("%w: empty body", ErrArtifactRejected)
	}
	if len(artifact.Body) < v.minBytes {
		return fmt.Errorf("%w: body too small (%d bytes)", ErrArtifactRejected, len(artifact.Body))
	}

	if mediaType := baseMediaType(artifact.ContentType); mediaType != "" && mediaType != "application/pdf" {
		return fmt.Errorf("%w: unexpected content type %q", ErrArtifactRejected, artifact.ContentType)
	}

	if !bytes.HasPrefix(artifact.Body, []byte(pdfMagic)) {
		return fmt.Errorf("%w: missing PDF header", ErrArtifactRejected)
	}

	// The EOF marker must appear near the end; tolerate trailing whitespace
	// and producers that append a newline.
	tail := artifact.Body
	if len(tail) > 1024 {
		tail = tail[len(tail)-1024:]
	}
	if !bytes.Contains(tail, []byte(pdfTrailer)) {
		return fmt.Errorf("%w: missing PDF trailer", ErrArtifactRejected)
	}

	return nil
}

func baseMediaType(contentType string) string {
	trimmed := strings.TrimSpace(contentType)
	if trimmed == "" {
		return ""
	}
	if index := strings.Index(trimmed, ";"); index >= 0 {
		trimmed = trimmed[:index]
	}
	return strings.ToLower(strings.TrimSpace(trimmed))
}
