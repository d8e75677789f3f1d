package db

import (
	"database/sql"
	"time"
)

// AcmeAccount persists the ACME registration so the same account and key
// survive restarts. RegistrationJSON is empty until registration completed.
type AcmeAccount struct {
	Email            string
	PrivateKeyPEM    string
	RegistrationJSON string
}

// GetAcmeAccount loads the account by email, sql.ErrNoRows when absent.
func GetAcmeAccount(handle *sql.DB, email string) (*AcmeAccount, error) {
	var account AcmeAccount
	var registration sql.NullString
	err := handle.QueryRow(`
		SELECT email, private_key_pem, registration_json FROM acme_account WHERE email = ?
	`, email).Scan(&account.Email, &account.PrivateKeyPEM, &registration)
	if err != nil {
		return nil, err
	}
	if registration.Valid {
		account.RegistrationJSON = registration.String
	}
	return &account, nil
}

// SaveAcmeAccount inserts or replaces the account row.
func SaveAcmeAccount(handle *sql.DB, account *AcmeAccount) error {
	now := time.Now().Format(time.RFC3339)

	var registration sql.NullString
	if account.RegistrationJSON != "" {
		registration = sql.NullString{String: account.RegistrationJSON, Valid: true}
	}

	_, err := ExecWithRetry(handle, `
		INSERT INTO acme_account (email, private_key_pem, registration_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(email) DO UPDATE SET
			private_key_pem = excluded.private_key_pem,
			registration_json = excluded.registration_json,
			updated_at = excluded.updated_at
	`, account.Email, account.PrivateKeyPEM, registration, now, now)
	return err
}
