package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"boxoffice/internal/shared/apperror"

	"github.com/gin-gonic/gin"
)

func TestRespondError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name        string
		err         error
		wantCode    int
		wantKind    string
		wantMessage string
	}{
		{
			name:        "business error keeps message",
			err:         apperror.New(apperror.KindInsufficientInventory, "only 3 tickets left for General").WithDetail("ticket_type", "General"),
			wantCode:    http.StatusConflict,
			wantKind:    "INSUFFICIENT_INVENTORY",
			wantMessage: "only 3 tickets left for General",
		},
		{
			name:        "internal error hides cause",
			err:         errors.New("pq: connection reset"),
			wantCode:    http.StatusInternalServerError,
			wantKind:    "INTERNAL",
			wantMessage: "Internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)

			RespondError(c, tt.err)

			if w.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d", tt.wantCode, w.Code)
			}
			var body struct {
				Status  string                 `json:"status"`
				Message string                 `json:"message"`
				Errors  map[string]interface{} `json:"errors"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("invalid json: %v", err)
			}
			if body.Status != "error" || body.Message != tt.wantMessage {
				t.Fatalf("unexpected body %+v", body)
			}
			if body.Errors["kind"] != tt.wantKind {
				t.Fatalf("expected kind %s, got %v", tt.wantKind, body.Errors["kind"])
			}
		})
	}
}
