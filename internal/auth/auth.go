// Package auth runs the OAuth2 authorization-code flow against Strava and
// supplies a token source that refreshes and persists tokens.
package auth

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/oauth2"

	"github.com/hpungsan/stravagpx/internal/config"
	"github.com/hpungsan/stravagpx/internal/errors"
)

// Scope grants read access to all activities, including private ones.
const Scope = "activity:read_all"

// OAuthConfig builds the client configuration. Strava expects the client
// credentials as form parameters rather than basic auth.
func OAuthConfig(cfg *config.Config, clientID, clientSecret string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:   cfg.AuthURL,
			TokenURL:  cfg.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
		RedirectURL: cfg.RedirectURL,
		Scopes:      []string{Scope},
	}
}

// AuthorizeURL returns the page the user opens to grant access.
func AuthorizeURL(conf *oauth2.Config) string {
	return conf.AuthCodeURL("", oauth2.SetAuthURLParam("approval_prompt", "force"))
}

// CodeFromURL extracts the authorization code from the redirect URL the
// browser landed on after the user granted (or denied) access.
func CodeFromURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", errors.NewInvalidRequest(fmt.Sprintf("invalid redirect URL: %v", err))
	}

	q := u.Query()
	if e := q.Get("error"); e != "" {
		return "", errors.NewInvalidRequest(fmt.Sprintf("authorization denied: %s", e))
	}
	code := q.Get("code")
	if code == "" {
		return "", errors.NewInvalidRequest("redirect URL has no code parameter")
	}
	return code, nil
}

// Exchange trades an authorization code for a token and saves it.
func Exchange(ctx context.Context, conf *oauth2.Config, store *Store, code string) (*oauth2.Token, error) {
	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		return nil, tokenError("exchange authorization code", err)
	}
	if err := store.SaveToken(tok); err != nil {
		return nil, err
	}
	return tok, nil
}

// tokenError maps a token endpoint failure onto an ExportError.
func tokenError(op string, err error) error {
	var rErr *oauth2.RetrieveError
	if stderrors.As(err, &rErr) && rErr.Response != nil {
		status := rErr.Response.StatusCode
		msg := rErr.ErrorDescription
		if msg == "" {
			msg = strings.TrimSpace(string(rErr.Body))
		}
		if status == 400 || status == 401 || status == 403 {
			return errors.NewUnauthorized(fmt.Sprintf("%s: %s (run `stravagpx auth` again)", op, msg))
		}
		return errors.NewRemote(status, op, msg)
	}
	return errors.NewTransport(op, err)
}
