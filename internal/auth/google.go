package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	googleTokenInfoURL = "https://oauth2.googleapis.com/tokeninfo"
	googleUserInfoURL  = "https://openidconnect.googleapis.com/v1/userinfo"
)

// GoogleUser is the portion of Google's identity payload we care about.
// Google returns a larger object — we only unmarshal the fields we need.
type GoogleUser struct {
	Subject string `json:"sub"`   // Google's stable account ID — never changes
	Email   string `json:"email"` // verified account email
	Name    string `json:"name"`  // display name as set on the Google account
}

// GoogleProvider wraps golang.org/x/oauth2 for the Google Authorization Code
// flow and additionally verifies Google Identity Services credentials.
//
// The promotional front end renders Google's sign-in button, which yields an
// ID token (the "credential") directly in the browser; the client posts it to
// POST /auth/google and VerifyCredential checks it against Google's tokeninfo
// endpoint. The classic redirect flow (AuthURL/Exchange) is kept for
// non-browser callers.
type GoogleProvider struct {
	config       *oauth2.Config
	client       *http.Client
	tokenInfoURL string
	userInfoURL  string
}

// NewGoogleProvider creates a GoogleProvider with the given credentials.
// callbackURL must exactly match an authorized redirect URI registered in the
// Google Cloud console.
func NewGoogleProvider(clientID, clientSecret, callbackURL string) *GoogleProvider {
	return &GoogleProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		},
		client:       &http.Client{Timeout: 10 * time.Second},
		tokenInfoURL: googleTokenInfoURL,
		userInfoURL:  googleUserInfoURL,
	}
}

// AuthURL returns the URL to redirect the user to for authorization. The
// state is a random single-use value verified on callback.
func (p *GoogleProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange completes the redirect flow: trades the authorization code for a
// Google user profile via the OpenID Connect userinfo endpoint.
func (p *GoogleProvider) Exchange(ctx context.Context, code string) (*GoogleUser, error) {
	oauthToken, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("auth: exchanging OAuth code: %w", err)
	}

	// oauth2.Config.Client returns an *http.Client that attaches the
	// "Authorization: Bearer <token>" header to every request.
	client := p.config.Client(ctx, oauthToken)

	resp, err := client.Get(p.userInfoURL)
	if err != nil {
		return nil, fmt.Errorf("auth: calling Google userinfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("auth: Google userinfo returned status %d", resp.StatusCode)
	}

	var gUser GoogleUser
	if err := json.NewDecoder(resp.Body).Decode(&gUser); err != nil {
		return nil, fmt.Errorf("auth: decoding Google userinfo response: %w", err)
	}

	if gUser.Subject == "" {
		return nil, fmt.Errorf("auth: Google returned an invalid user (empty sub)")
	}

	return &gUser, nil
}

// tokenInfo is Google's tokeninfo response for an ID token. All values are
// strings regardless of their logical type.
type tokenInfo struct {
	Audience      string `json:"aud"`
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified string `json:"email_verified"`
	Name          string `json:"name"`
}

// VerifyCredential validates a Google Identity Services ID token and returns
// the identity it asserts.
//
// Google's tokeninfo endpoint checks the signature and expiry for us and
// answers 400 for anything invalid; we additionally check that the token was
// minted for our client ID, so a credential issued to another application
// cannot be replayed here.
func (p *GoogleProvider) VerifyCredential(ctx context.Context, credential string) (*GoogleUser, error) {
	if credential == "" {
		return nil, fmt.Errorf("auth: empty Google credential")
	}

	form := url.Values{"id_token": {credential}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.tokenInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("auth: building tokeninfo request: %w", err)
	}
	req.URL.RawQuery = form.Encode()

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth: calling Google tokeninfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("auth: Google rejected credential (status %d): %s", resp.StatusCode, body)
	}

	var info tokenInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("auth: decoding tokeninfo response: %w", err)
	}

	if p.config.ClientID != "" && info.Audience != p.config.ClientID {
		return nil, fmt.Errorf("auth: credential audience mismatch")
	}
	if info.Subject == "" {
		return nil, fmt.Errorf("auth: credential has no subject")
	}
	if info.Email == "" || info.EmailVerified != "true" {
		return nil, fmt.Errorf("auth: credential email not verified")
	}

	return &GoogleUser{
		Subject: info.Subject,
		Email:   info.Email,
		Name:    info.Name,
	}, nil
}
