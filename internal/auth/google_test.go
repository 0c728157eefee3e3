package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

// newTokenInfoServer fakes Google's tokeninfo endpoint. It answers with the
// given status and body regardless of the credential sent.
func newTokenInfoServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("id_token") == "" {
			t.Error("tokeninfo called without id_token")
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
}

func newTestGoogleProvider(tokenInfoURL string) *GoogleProvider {
	p := NewGoogleProvider("client-id-123", "client-secret", "http://localhost/callback")
	p.tokenInfoURL = tokenInfoURL
	return p
}

func TestVerifyCredential_Valid(t *testing.T) {
	srv := newTokenInfoServer(t, http.StatusOK,
		`{"aud":"client-id-123","sub":"g-sub-1","email":"g@x.com","email_verified":"true","name":"G User"}`)
	defer srv.Close()

	p := newTestGoogleProvider(srv.URL)

	user, err := p.VerifyCredential(context.Background(), "some-credential")
	if err != nil {
		t.Fatalf("VerifyCredential() error = %v", err)
	}
	if user.Subject != "g-sub-1" {
		t.Errorf("Subject = %q, want %q", user.Subject, "g-sub-1")
	}
	if user.Email != "g@x.com" {
		t.Errorf("Email = %q, want %q", user.Email, "g@x.com")
	}
}

func TestVerifyCredential_AudienceMismatch(t *testing.T) {
	srv := newTokenInfoServer(t, http.StatusOK,
		`{"aud":"someone-elses-client","sub":"g-sub-1","email":"g@x.com","email_verified":"true"}`)
	defer srv.Close()

	p := newTestGoogleProvider(srv.URL)

	if _, err := p.VerifyCredential(context.Background(), "some-credential"); err == nil {
		t.Error("VerifyCredential() accepted a credential minted for another client")
	}
}

func TestVerifyCredential_UnverifiedEmail(t *testing.T) {
	srv := newTokenInfoServer(t, http.StatusOK,
		`{"aud":"client-id-123","sub":"g-sub-1","email":"g@x.com","email_verified":"false"}`)
	defer srv.Close()

	p := newTestGoogleProvider(srv.URL)

	if _, err := p.VerifyCredential(context.Background(), "some-credential"); err == nil {
		t.Error("VerifyCredential() accepted an unverified email")
	}
}

func TestVerifyCredential_RejectedByGoogle(t *testing.T) {
	srv := newTokenInfoServer(t, http.StatusBadRequest, `{"error":"invalid_token"}`)
	defer srv.Close()

	p := newTestGoogleProvider(srv.URL)

	if _, err := p.VerifyCredential(context.Background(), "expired-credential"); err == nil {
		t.Error("VerifyCredential() accepted a credential Google rejected")
	}
}

func TestVerifyCredential_EmptyCredential(t *testing.T) {
	p := newTestGoogleProvider("http://unreachable.invalid")

	if _, err := p.VerifyCredential(context.Background(), ""); err == nil {
		t.Error("VerifyCredential() accepted an empty credential")
	}
}
