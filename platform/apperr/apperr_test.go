package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		kind Kind
		want int
	}{
		{KindNotFound, http.StatusNotFound},
		{KindValidation, http.StatusBadRequest},
		{KindConflict, http.StatusConflict},
		{KindUnprocessable, http.StatusUnprocessableEntity},
		{KindUnavailable, http.StatusServiceUnavailable},
		{KindUnknown, http.StatusBadRequest},
	}

	for _, tc := range cases {
		if got := New(tc.kind, "x").HTTPStatus(); got != tc.want {
			t.Errorf("kind %d: got status %d, want %d", tc.kind, got, tc.want)
		}
	}
}

func TestKindAndCodeSurviveWrapping(t *testing.T) {
	base := Unprocessable("configure at least one active vendor").WithCode("no_eligible_vendors")
	wrapped := fmt.Errorf("assign lead: %w", base)

	if GetKind(wrapped) != KindUnprocessable {
		t.Fatalf("expected unprocessable kind through wrap, got %d", GetKind(wrapped))
	}
	if CodeOf(wrapped) != "no_eligible_vendors" {
		t.Fatalf("unexpected code %q", CodeOf(wrapped))
	}
	if IsRetryable(wrapped) {
		t.Fatal("configuration errors must not be retryable")
	}
}

func TestUnavailableIsRetryable(t *testing.T) {
	err := Wrap(KindUnavailable, "rotation busy", errors.New("lock timeout"))
	if !IsRetryable(err) {
		t.Fatal("expected unavailable error to be retryable")
	}
	if IsRetryable(errors.New("plain")) {
		t.Fatal("plain errors are never retryable")
	}
}
