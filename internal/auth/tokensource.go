package auth

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

// persistingSource saves every token it has not seen before.
type persistingSource struct {
	base  oauth2.TokenSource
	store *Store
	log   zerolog.Logger

	mu   sync.Mutex
	last string
}

func (p *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := p.base.Token()
	if err != nil {
		return nil, tokenError("refresh token", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if tok.AccessToken != p.last {
		if err := p.store.SaveToken(tok); err != nil {
			return nil, err
		}
		p.last = tok.AccessToken
		p.log.Info().Time("expiry", tok.Expiry).Msg("refreshed access token")
	}
	return tok, nil
}

// TokenSource returns a source that hands out the stored token while it is
// valid, refreshes it when it expires and saves refreshed tokens.
func TokenSource(ctx context.Context, conf *oauth2.Config, store *Store, log zerolog.Logger) (oauth2.TokenSource, error) {
	tok, err := store.Token()
	if err != nil {
		return nil, err
	}

	ps := &persistingSource{
		base:  conf.TokenSource(ctx, tok),
		store: store,
		log:   log,
		last:  tok.AccessToken,
	}
	return oauth2.ReuseTokenSource(tok, ps), nil
}
