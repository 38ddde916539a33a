package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorBuilder(t *testing.T) {
	t.Parallel()

	base := fmt.Errorf("device %q not found", "cg-001")
	err := New(base).
		Component("datastore").
		Category(CategoryNotFound).
		Context("device_id", "cg-001").
		Build()

	assert.Equal(t, base.Error(), err.Error())
	assert.Equal(t, "datastore", err.Component)
	assert.Equal(t, CategoryNotFound, err.Category)
	assert.Equal(t, "cg-001", err.Context["device_id"])
	assert.False(t, err.Timestamp.IsZero())
}

func TestErrorBuilderDefaults(t *testing.T) {
	t.Parallel()

	err := Newf("something broke").Build()
	assert.Equal(t, ComponentUnknown, err.Component)
	assert.Equal(t, CategoryGeneric, err.Category)
	assert.Nil(t, err.Context)
}

func TestUnwrapPreservesChain(t *testing.T) {
	t.Parallel()

	sentinel := fmt.Errorf("boom")
	wrapped := New(fmt.Errorf("outer: %w", sentinel)).Category(CategoryDatabase).Build()

	require.True(t, Is(wrapped, sentinel))
}

func TestIsMatchesCategory(t *testing.T) {
	t.Parallel()

	notFoundA := Newf("cough event missing").Category(CategoryNotFound).Build()
	notFoundB := Newf("notification missing").Category(CategoryNotFound).Build()
	conflict := Newf("already acknowledged").Category(CategoryConflict).Build()

	assert.True(t, Is(notFoundA, notFoundB))
	assert.False(t, Is(notFoundA, conflict))
}

func TestHTTPStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"validation", Newf("bad input").Category(CategoryValidation).Build(), http.StatusBadRequest},
		{"not found", Newf("missing").Category(CategoryNotFound).Build(), http.StatusNotFound},
		{"conflict", Newf("taken").Category(CategoryConflict).Build(), http.StatusConflict},
		{"unauthorized", Newf("no session").Category(CategoryUnauthorized).Build(), http.StatusUnauthorized},
		{"forbidden", Newf("wrong role").Category(CategoryForbidden).Build(), http.StatusForbidden},
		{"database maps to 500", Newf("db down").Category(CategoryDatabase).Build(), http.StatusInternalServerError},
		{"plain error maps to 500", fmt.Errorf("plain"), http.StatusInternalServerError},
		{"wrapped enhanced error", fmt.Errorf("ctx: %w", Newf("missing").Category(CategoryNotFound).Build()), http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, HTTPStatus(tt.err))
		})
	}
}

func TestGetContextReturnsCopy(t *testing.T) {
	t.Parallel()

	err := Newf("x").Context("k", "v").Build()
	ctx := err.GetContext()
	ctx["k"] = "mutated"
	assert.Equal(t, "v", err.Context["k"])
}
