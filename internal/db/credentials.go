package db

import (
	"database/sql"
	"time"

	"github.com/hpungsan/stravagpx/internal/errors"
)

// Credentials is the registered API application.
type Credentials struct {
	ClientID     string
	ClientSecret string
}

// TokenRecord is a stored OAuth token. Expiry is unix seconds, 0 when unknown.
type TokenRecord struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	Expiry       int64
}

// SaveClient stores the application credentials for provider, keeping any token.
func SaveClient(db *sql.DB, provider string, c Credentials) error {
	query := `
		INSERT INTO credentials (provider, client_id, client_secret, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(provider) DO UPDATE SET
			client_id = excluded.client_id,
			client_secret = excluded.client_secret,
			updated_at = excluded.updated_at
	`
	if _, err := db.Exec(query, provider, c.ClientID, c.ClientSecret, time.Now().Unix()); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// LoadClient returns the application credentials for provider.
func LoadClient(db *sql.DB, provider string) (*Credentials, error) {
	var c Credentials
	err := db.QueryRow(
		`SELECT client_id, client_secret FROM credentials WHERE provider = ?`, provider,
	).Scan(&c.ClientID, &c.ClientSecret)
	if err == sql.ErrNoRows || (err == nil && c.ClientID == "") {
		return nil, errors.NewNotFound("client credentials")
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return &c, nil
}

// SaveToken stores the token for provider, keeping the client credentials.
func SaveToken(db *sql.DB, provider string, t TokenRecord) error {
	query := `
		INSERT INTO credentials (provider, access_token, refresh_token, token_type, expiry, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(provider) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			token_type = excluded.token_type,
			expiry = excluded.expiry,
			updated_at = excluded.updated_at
	`
	_, err := db.Exec(query,
		provider, t.AccessToken, t.RefreshToken, t.TokenType, t.Expiry, time.Now().Unix(),
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// LoadToken returns the stored token for provider.
func LoadToken(db *sql.DB, provider string) (*TokenRecord, error) {
	var t TokenRecord
	err := db.QueryRow(`
		SELECT access_token, refresh_token, token_type, expiry
		FROM credentials WHERE provider = ?
	`, provider).Scan(&t.AccessToken, &t.RefreshToken, &t.TokenType, &t.Expiry)
	if err == sql.ErrNoRows || (err == nil && t.AccessToken == "" && t.RefreshToken == "") {
		return nil, errors.NewNotFound("token")
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return &t, nil
}
