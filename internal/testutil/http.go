package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	"github.com/go-chi/chi/v5"
	"github.com/opethaiwoh/favored/internal/app/system/auth"
	"github.com/opethaiwoh/favored/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// WithChiURLParams adds chi URL parameters (key, value pairs) to the request
// context. Use this in handler tests that call handlers directly.
func WithChiURLParams(r *http.Request, kv ...string) *http.Request {
	rctx := chi.NewRouteContext()
	for i := 0; i+1 < len(kv); i += 2 {
		rctx.URLParams.Add(kv[i], kv[i+1])
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// WithChiURLParam adds a single chi URL parameter.
func WithChiURLParam(r *http.Request, key, value string) *http.Request {
	return WithChiURLParams(r, key, value)
}

// AdminActor is a group owner.
func AdminActor() models.Actor {
	return models.Actor{ID: primitive.NewObjectID().Hex(), Name: "Group Admin", Email: "admin@test.com", Role: models.RoleMember}
}

// ReviewerActor holds the platform reviewer role.
func ReviewerActor() models.Actor {
	return models.Actor{ID: primitive.NewObjectID().Hex(), Name: "Platform Reviewer", Email: "reviewer@test.com", Role: models.RoleAdmin}
}

// MemberActor is an ordinary signed-in user.
func MemberActor(email string) models.Actor {
	return models.Actor{ID: primitive.NewObjectID().Hex(), Name: "Member " + email, Email: email, Role: models.RoleMember}
}

// WithActor puts a as the signed-in user on r.
func WithActor(r *http.Request, a models.Actor) *http.Request {
	return auth.WithTestUser(r, &auth.SessionUser{ID: a.ID, Name: a.Name, Email: a.Email, Role: a.Role})
}

// NewJSONRequest builds a request whose body is v encoded as JSON.
func NewJSONRequest(method, target string, v any) *http.Request {
	var body bytes.Buffer
	if v != nil {
		_ = json.NewEncoder(&body).Encode(v)
	}
	req := httptest.NewRequest(method, target, &body)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// DecodeJSON decodes a recorder body into v.
func DecodeJSON(t interface {
	Helper()
	Fatalf(string, ...any)
}, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}
