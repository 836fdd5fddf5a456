package quality

import (
	"bytes"
	"errors"
	"testing"

	"github.com/mbelshaw/dailyoffice-back/internal/domain"
)

func validPDF() []byte {
	body := bytes.Repeat([]byte("0 obj stream data endstream endobj\n"), 32)
	document := append([]byte("%PDF-1.7\n"), body...)
	return append(document, []byte("\n%%EOF\n")...)
}

func TestValidatePDFAcceptsWellFormedDocument(t *testing.T) {
	validator := NewArtifactValidator()

	err := validator.ValidatePDF(domain.Artifact{
		Body:        validPDF(),
		ContentType: "application/pdf",
	})
	if err != nil {
		t.Fatalf("expected valid PDF to pass, got %v", err)
	}
}

func TestValidatePDFRejectsEmptyAndTinyBodies(t *testing.T) {
	validator := NewArtifactValidator()

	if err := validator.ValidatePDF(domain.Artifact{ContentType: "application/pdf"}); !errors.Is(err, ErrArtifactRejected) {
		t.Fatalf("expected rejection for empty body, got %v", err)
	}

	err := validator.ValidatePDF(domain.Artifact{
		Body:        []byte("%PDF-1.7\n%%EOF"),
		ContentType: "application/pdf",
	})
	if !errors.Is(err, ErrArtifactRejected) {
		t.Fatalf("expected rejection for tiny body, got %v", err)
	}
}

func TestValidatePDFRejectsMissingHeader(t *testing.T) {
	validator := NewArtifactValidator()

	body := bytes.Repeat([]byte("<html>internal server error</html>\n"), 32)
	err := validator.ValidatePDF(domain.Artifact{Body: body, ContentType: "application/pdf"})
	if !errors.Is(err, ErrArtifactRejected) {
		t.Fatalf("expected rejection for missing header, got %v", err)
	}
}

func TestValidatePDFRejectsMissingTrailer(t *testing.T) {
	validator := NewArtifactValidator()

	body := append([]byte("%PDF-1.7\n"), bytes.Repeat([]byte("data\n"), 256)...)
	err := validator.ValidatePDF(domain.Artifact{Body: body, ContentType: "application/pdf"})
	if !errors.Is(err, ErrArtifactRejected) {
		t.Fatalf("expected rejection for missing trailer, got %v", err)
	}
}

func TestValidatePDFRejectsWrongContentType(t *testing.T) {
	validator := NewArtifactValidator()

	err := validator.ValidatePDF(domain.Artifact{
		Body:        validPDF(),
		ContentType: "text/html; charset=utf-8",
	})
	if !errors.Is(err, ErrArtifactRejected) {
		t.Fatalf("expected rejection for wrong content type, got %v", err)
	}
}

func TestValidatePDFAllowsParameterizedContentType(t *testing.T) {
	validator := NewArtifactValidator()

	err := validator.ValidatePDF(domain.Artifact{
		Body:        validPDF(),
		ContentType: "application/pdf; charset=binary",
	})
	if err != nil {
		t.Fatalf("expected parameterized pdf content type to pass, got %v", err)
	}
}
