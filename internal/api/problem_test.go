package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hyperengineering/exemplar/internal/validation"
)

func TestWriteProblem(t *testing.T) {
	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/exemplars/42", nil)

	WriteProblem(rec, r, http.StatusNotFound, "Exemplar not found")

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Fatalf("unexpected content type %q", ct)
	}

	var p Problem
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatal(err)
	}
	if p.Status != http.StatusNotFound || p.Title != "Not Found" {
		t.Fatalf("unexpected problem: %+v", p)
	}
	if p.Instance != "/api/v1/exemplars/42" {
		t.Fatalf("expected instance path, got %q", p.Instance)
	}
}

func TestWriteProblemUnknownStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	WriteProblem(rec, r, http.StatusTeapot, "no coffee here")

	var p Problem
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatal(err)
	}
	if p.Title != http.StatusText(http.StatusTeapot) {
		t.Fatalf("expected fallback title, got %q", p.Title)
	}
}

func TestWriteProblemWithErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/exemplars", nil)

	errs := []validation.ValidationError{
		{Field: "content", Message: "must be at least 10 characters"},
		{Field: "group_id", Message: "is required"},
	}
	WriteProblemWithErrors(rec, r, "Request contains invalid fields", errs)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}

	var p ProblemWithErrors
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatal(err)
	}
	if len(p.Errors) != 2 || p.Errors[0].Field != "content" {
		t.Fatalf("unexpected errors: %+v", p.Errors)
	}
}
