package cert

import (
	"crypto"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-acme/lego/v4/certcrypto"
	"github.com/go-acme/lego/v4/registration"

	"github.com/botdock/botdock/internal/db"
	"github.com/botdock/botdock/pkg/logger"
)

// acmeUser satisfies lego's registration.User, backed by the acme_account
// table so the same account and key survive restarts.
type acmeUser struct {
	email        string
	registration *registration.Resource
	key          crypto.PrivateKey
}

func (u *acmeUser) GetEmail() string                        { return u.email }
func (u *acmeUser) GetRegistration() *registration.Resource { return u.registration }
func (u *acmeUser) GetPrivateKey() crypto.PrivateKey        { return u.key }

// loadOrCreateUser returns the persisted ACME account for the email,
// generating and saving a fresh key on first use.
func loadOrCreateUser(handle *sql.DB, email string) (*acmeUser, error) {
	account, err := db.GetAcmeAccount(handle, email)
	if err == nil {
		key, err := certcrypto.ParsePEMPrivateKey([]byte(account.PrivateKeyPEM))
		if err != nil {
			return nil, fmt.Errorf("failed to parse ACME account key: %w", err)
		}

		user := &acmeUser{email: email, key: key}
		if account.RegistrationJSON != "" {
			reg := &registration.Resource{}
			if err := json.Unmarshal([]byte(account.RegistrationJSON), reg); err != nil {
				return nil, fmt.Errorf("failed to unmarshal ACME registration: %w", err)
			}
			user.registration = reg
		}
		logger.Debug("Loaded ACME account", "email", email, "registered", user.registration != nil)
		return user, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to load ACME account: %w", err)
	}

	logger.Info("No ACME account found, creating one", "email", email)
	key, err := certcrypto.GeneratePrivateKey(certcrypto.RSA2048)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ACME account key: %w", err)
	}

	user := &acmeUser{email: email, key: key}
	if err := saveUser(handle, user); err != nil {
		return nil, err
	}
	return user, nil
}

func saveUser(handle *sql.DB, user *acmeUser) error {
	account := &db.AcmeAccount{
		Email:         user.email,
		PrivateKeyPEM: string(certcrypto.PEMEncode(user.key)),
	}
	if user.registration != nil {
		data, err := json.Marshal(user.registration)
		if err != nil {
			return fmt.Errorf("failed to marshal ACME registration: %w", err)
		}
		account.RegistrationJSON = string(data)
	}

	if err := db.SaveAcmeAccount(handle, account); err != nil {
		return fmt.Errorf("failed to save ACME account: %w", err)
	}
	return nil
}
