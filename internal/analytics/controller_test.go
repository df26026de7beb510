package analytics

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"boxoffice/internal/shared/utils/response"
	"boxoffice/internal/users"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

const testSecret = "analytics-test-secret"

func newTestRouter(t *testing.T, f *fixture) *gin.Engine {
	t.Helper()
	t.Setenv("JWT_SECRET", testSecret)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	SetupAnalyticsRoutes(r.Group("/api/v1"), NewController(f.service))
	return r
}

func bearer(t *testing.T, userID uuid.UUID, role users.Role) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"type":    "access",
		"user_id": userID.String(),
		"role":    string(role),
		"exp":     time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return "Bearer " + signed
}

func doJSON(r http.Handler, method, path, token string, body interface{}) (*httptest.ResponseRecorder, response.StandardApiResponse) {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp response.StandardApiResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

func TestAdminEndpoints(t *testing.T) {
	f := newFixture(t, 10)
	r := newTestRouter(t, f)
	admin := bearer(t, uuid.New(), users.RoleAdmin)
	organizer := bearer(t, f.organizer.ID, users.RoleOrganizer)
	pending := f.seedOrganizer(t, "nuevo@example.com", users.StatusPending)

	t.Run("metrics are admin only", func(t *testing.T) {
		w, _ := doJSON(r, http.MethodGet, "/api/v1/admin/metrics", organizer, nil)
		if w.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", w.Code)
		}
		w, _ = doJSON(r, http.MethodGet, "/api/v1/admin/metrics", "", nil)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", w.Code)
		}
		w, resp := doJSON(r, http.MethodGet, "/api/v1/admin/metrics", admin, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
		data, _ := resp.Data.(map[string]interface{})
		if _, ok := data["organizers"]; !ok {
			t.Fatalf("expected organizer counts, got %v", resp.Data)
		}
	})

	t.Run("approve", func(t *testing.T) {
		w, resp := doJSON(r, http.MethodPost, "/api/v1/admin/organizers/"+pending.ID.String()+"/approve", admin, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
		data, _ := resp.Data.(map[string]interface{})
		if data["status"] != string(users.StatusActive) {
			t.Fatalf("expected ACTIVE, got %v", data["status"])
		}

		w, _ = doJSON(r, http.MethodPost, "/api/v1/admin/organizers/not-a-uuid/approve", admin, nil)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", w.Code)
		}
		w, _ = doJSON(r, http.MethodPost, "/api/v1/admin/organizers/"+uuid.NewString()+"/suspend", admin, nil)
		if w.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", w.Code)
		}
	})

	t.Run("fee plan", func(t *testing.T) {
		path := "/api/v1/admin/organizers/" + f.organizer.ID.String() + "/fee-plan"
		w, resp := doJSON(r, http.MethodPost, path, admin, map[string]interface{}{"percent_bps": 250, "fixed_minor": 100})
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
		data, _ := resp.Data.(map[string]interface{})
		plan, _ := data["fee_plan"].(map[string]interface{})
		if plan["percent_bps"] != float64(250) {
			t.Fatalf("expected 250 bps, got %v", plan)
		}

		w, _ = doJSON(r, http.MethodPost, path, admin, map[string]interface{}{"percent_bps": 20000})
		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for a rate above 100%%, got %d", w.Code)
		}
	})

	t.Run("order details", func(t *testing.T) {
		order := f.seedPaidOrder(t, f.general, 1, "MXN", "ana@example.com")
		w, _ := doJSON(r, http.MethodGet, "/api/v1/admin/orders/"+order.ID.String(), admin, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
		w, _ = doJSON(r, http.MethodPost, "/api/v1/admin/orders/"+order.ID.String()+"/resend-tickets", admin, nil)
		if w.Code != http.StatusAccepted {
			t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
		}
	})
}

func TestOrganizerEndpoints(t *testing.T) {
	f := newFixture(t, 10)
	r := newTestRouter(t, f)
	organizer := bearer(t, f.organizer.ID, users.RoleOrganizer)
	staff := bearer(t, uuid.New(), users.RoleStaff)
	base := "/api/v1/organizer/events/" + f.event.ID.String()

	t.Run("dashboard", func(t *testing.T) {
		w, resp := doJSON(r, http.MethodGet, "/api/v1/organizer/dashboard", organizer, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
		data, _ := resp.Data.(map[string]interface{})
		if _, ok := data["complimentary"]; !ok {
			t.Fatalf("expected complimentary usage, got %v", resp.Data)
		}

		w, _ = doJSON(r, http.MethodGet, "/api/v1/organizer/dashboard", staff, nil)
		if w.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", w.Code)
		}
	})

	t.Run("complimentary", func(t *testing.T) {
		w, resp := doJSON(r, http.MethodPost, base+"/complimentary", organizer, ComplimentaryRequest{
			TicketTypeID:   f.general.ID.String(),
			Quantity:       2,
			BuyerEmail:     "guest@example.com",
			BuyerFirstName: "Guest",
		})
		if w.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
		}
		data, _ := resp.Data.(map[string]interface{})
		list, _ := data["tickets"].([]interface{})
		if len(list) != 2 {
			t.Fatalf("expected 2 tickets, got %v", data["tickets"])
		}

		w, _ = doJSON(r, http.MethodPost, base+"/complimentary", organizer, map[string]interface{}{
			"ticket_type_id": f.general.ID.String(),
			"quantity":       1,
		})
		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 without a buyer, got %d", w.Code)
		}

		w, _ = doJSON(r, http.MethodPost, base+"/complimentary", organizer, ComplimentaryRequest{
			TicketTypeID:   f.general.ID.String(),
			Quantity:       20,
			BuyerEmail:     "guest@example.com",
			BuyerFirstName: "Guest",
		})
		if w.Code != http.StatusConflict {
			t.Fatalf("expected 409 past capacity, got %d", w.Code)
		}
	})

	t.Run("metrics and orders", func(t *testing.T) {
		w, _ := doJSON(r, http.MethodGet, base+"/metrics", organizer, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
		w, resp := doJSON(r, http.MethodGet, base+"/orders?limit=5", organizer, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
		list, _ := resp.Data.([]interface{})
		if len(list) != 1 {
			t.Fatalf("expected the complimentary order, got %v", resp.Data)
		}

		other := bearer(t, uuid.New(), users.RoleOrganizer)
		w, _ = doJSON(r, http.MethodGet, base+"/metrics", other, nil)
		if w.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", w.Code)
		}
	})
}
