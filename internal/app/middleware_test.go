package app

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/meridianhr/meridian/internal/shared"
	_ "github.com/meridianhr/meridian/testing"
)

func actorFromRequest(t *testing.T, headerValue string) (int64, bool) {
	t.Helper()
	stack := MiddlewareStack(MiddlewareConfig{})

	var gotID int64
	var gotOK bool
	var handler http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID, gotOK = shared.ActorFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	for i := len(stack) - 1; i >= 0; i-- {
		handler = stack[i](handler)
	}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	if headerValue != "" {
		req.Header.Set(ActorHeader, headerValue)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	return gotID, gotOK
}

func TestActorHeaderParsed(t *testing.T) {
	id, ok := actorFromRequest(t, "42")
	assert.True(t, ok)
	assert.EqualValues(t, 42, id)
}

func TestActorHeaderMissing(t *testing.T) {
	_, ok := actorFromRequest(t, "")
	assert.False(t, ok)
}

func TestActorHeaderInvalidValuesIgnored(t *testing.T) {
	for _, value := range []string{"abc", "-1", "0", "18446744073709551616"} {
		_, ok := actorFromRequest(t, value)
		assert.False(t, ok, "value %q must not identify an actor", value)
	}
}
