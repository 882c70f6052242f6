package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestResolver_Resolve(t *testing.T) {
	codec := newTestCodec(t)
	r := NewResolver(codec)

	staffToken, _, err := codec.IssueAccess(&User{ID: "usr-s", Email: "s@x.com", Role: RoleStaff})
	if err != nil {
		t.Fatalf("IssueAccess() error = %v", err)
	}
	adminToken, _, err := codec.IssueAccess(&User{ID: "usr-a", Email: "a@x.com", Role: RoleAdmin})
	if err != nil {
		t.Fatalf("IssueAccess() error = %v", err)
	}

	tests := []struct {
		name    string
		header  string
		cookie  string
		wantID  string
		wantErr bool
	}{
		{name: "no credential"},
		{name: "bearer", header: "Bearer " + staffToken, wantID: "usr-s"},
		{name: "lowercase scheme", header: "bearer " + staffToken, wantID: "usr-s"},
		{name: "cookie", cookie: adminToken, wantID: "usr-a"},
		{name: "bearer beats cookie", header: "Bearer " + staffToken, cookie: adminToken, wantID: "usr-s"},
		{name: "basic falls through to cookie", header: "Basic dXNlcjpwYXNz", cookie: adminToken, wantID: "usr-a"},
		{name: "basic without cookie", header: "Basic dXNlcjpwYXNz"},
		{name: "empty bearer", header: "Bearer ", cookie: adminToken, wantID: "usr-a"},
		{name: "bad bearer", header: "Bearer garbage", wantErr: true},
		{name: "bad bearer does not fall back", header: "Bearer garbage", cookie: adminToken, wantErr: true},
		{name: "bad cookie", cookie: "garbage", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: tt.cookie})
			}

			id, err := r.Resolve(req)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidToken) {
					t.Fatalf("Resolve() error = %v, want ErrInvalidToken", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if tt.wantID == "" {
				if id != nil {
					t.Errorf("Resolve() = %+v, want nil", id)
				}
				return
			}
			if id == nil || id.ID != tt.wantID {
				t.Errorf("Resolve() = %+v, want id %q", id, tt.wantID)
			}
		})
	}
}

func TestRefreshTokenFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	if got := RefreshTokenFromRequest(req, ""); got != "" {
		t.Errorf("no source = %q, want empty", got)
	}

	req.AddCookie(&http.Cookie{Name: RefreshTokenCookie, Value: "from-cookie"})
	if got := RefreshTokenFromRequest(req, ""); got != "from-cookie" {
		t.Errorf("cookie = %q, want from-cookie", got)
	}
	if got := RefreshTokenFromRequest(req, "from-body"); got != "from-body" {
		t.Errorf("body = %q, want from-body", got)
	}
}
