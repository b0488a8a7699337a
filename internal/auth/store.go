package auth

import (
	"database/sql"
	"time"

	"golang.org/x/oauth2"

	"github.com/hpungsan/stravagpx/internal/db"
	"github.com/hpungsan/stravagpx/internal/errors"
)

// Provider keys the credentials row.
const Provider = "strava"

// Store persists client credentials and tokens in the side database.
type Store struct {
	db *sql.DB
}

// NewStore creates a Store over an initialized database.
func NewStore(database *sql.DB) *Store {
	return &Store{db: database}
}

// SaveClient stores the API application credentials.
func (s *Store) SaveClient(clientID, clientSecret string) error {
	return db.SaveClient(s.db, Provider, db.Credentials{ClientID: clientID, ClientSecret: clientSecret})
}

// Client returns the stored API application credentials.
func (s *Store) Client() (clientID, clientSecret string, err error) {
	c, err := db.LoadClient(s.db, Provider)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return "", "", errors.NewUnauthorized("no client credentials; run `stravagpx auth`")
		}
		return "", "", err
	}
	return c.ClientID, c.ClientSecret, nil
}

// SaveToken stores tok.
func (s *Store) SaveToken(tok *oauth2.Token) error {
	rec := db.TokenRecord{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
	}
	if !tok.Expiry.IsZero() {
		rec.Expiry = tok.Expiry.Unix()
	}
	return db.SaveToken(s.db, Provider, rec)
}

// Token returns the stored token.
func (s *Store) Token() (*oauth2.Token, error) {
	rec, err := db.LoadToken(s.db, Provider)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, errors.NewUnauthorized("not authorized; run `stravagpx auth`")
		}
		return nil, err
	}

	tok := &oauth2.Token{
		AccessToken:  rec.AccessToken,
		RefreshToken: rec.RefreshToken,
		TokenType:    rec.TokenType,
	}
	if rec.Expiry > 0 {
		tok.Expiry = time.Unix(rec.Expiry, 0)
	}
	return tok, nil
}
