package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestMetadataFallsBackToInternal(t *testing.T) {
	meta := MetadataFor(Code("NOPE"))
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected 500 fallback, got %d", meta.HTTPStatus)
	}
}

func TestAsFindsWrappedError(t *testing.T) {
	base := New(CodeStateConflict, "claim already Approved")
	wrapped := fmt.Errorf("approve: %w", base)

	got := As(wrapped)
	if got == nil || got.Code() != CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", got)
	}
	if CodeOf(stdErrors.New("plain")) != CodeInternal {
		t.Fatal("plain errors map to internal")
	}
}

func TestPublicMessageHidesInternalCauses(t *testing.T) {
	err := Wrap(CodeInternal, stdErrors.New("pq: relation \"claims\" does not exist"), "create claim")
	if got := PublicMessage(err); got != "internal server error" {
		t.Fatalf("internal cause leaked: %q", got)
	}

	conflict := New(CodeConflict, "registration KAA123B already insured under CO-0001")
	if got := PublicMessage(conflict); got != conflict.Message() {
		t.Fatalf("conflict message should be public, got %q", got)
	}

	if got := PublicMessage(stdErrors.New("raw")); got != "internal server error" {
		t.Fatalf("untyped errors must be sanitized, got %q", got)
	}
}

func TestForbiddenUsesGenericMessage(t *testing.T) {
	err := New(CodeForbidden, "policy 42 belongs to company 7")
	if got := PublicMessage(err); got != "access denied" {
		t.Fatalf("forbidden must not disclose details, got %q", got)
	}
}
