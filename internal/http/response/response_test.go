package response

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func respond(t *testing.T, status int, code string, err error) (*httptest.ResponseRecorder, ErrorEnvelope) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)

	RespondError(c, status, code, err)

	var env ErrorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("unmarshal error envelope: %v", err)
	}
	return rec, env
}

func TestRespondErrorServerFailureCarriesRecovery(t *testing.T) {
	rec, env := respond(t, http.StatusInternalServerError, "internal", fmt.Errorf("snapshot write failed"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if env.Error.Code != "internal" {
		t.Fatalf("code = %q, want internal", env.Error.Code)
	}
	want := []string{"retry", "restart"}
	if len(env.Error.Recovery) != len(want) {
		t.Fatalf("recovery = %v, want %v", env.Error.Recovery, want)
	}
	for i := range want {
		if env.Error.Recovery[i] != want[i] {
			t.Fatalf("recovery = %v, want %v", env.Error.Recovery, want)
		}
	}
}

func TestRespondErrorClientMistakeHasNoRecovery(t *testing.T) {
	_, env := respond(t, http.StatusBadRequest, "bad_request", fmt.Errorf("lesson_id required"))

	if len(env.Error.Recovery) != 0 {
		t.Fatalf("recovery = %v on a 4xx, want none", env.Error.Recovery)
	}
	if env.Error.Message != "lesson_id required" {
		t.Fatalf("message = %q", env.Error.Message)
	}
}

func TestRespondErrorNilError(t *testing.T) {
	_, env := respond(t, http.StatusConflict, "session_closed", nil)

	if env.Error.Message != "unknown error" {
		t.Fatalf("message = %q, want placeholder for nil error", env.Error.Message)
	}
}
