package db

import (
	"database/sql"
	"time"
)

// CertificateRecord tracks the reconciler state for one domain.
type CertificateRecord struct {
	Domain    string
	State     string
	Issuer    string
	IssuedAt  string
	ExpiresAt string
	UpdatedAt string
}

// UpsertCertificate records a full certificate state, typically after an
// issuance or renewal completed.
func UpsertCertificate(handle *sql.DB, rec *CertificateRecord) error {
	rec.UpdatedAt = time.Now().Format(time.RFC3339)
	_, err := ExecWithRetry(handle, `
		INSERT OR REPLACE INTO certificate (domain, state, issuer, issued_at, expires_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rec.Domain, rec.State, rec.Issuer, rec.IssuedAt, rec.ExpiresAt, rec.UpdatedAt)
	return err
}

// SetCertificateState updates only the state, creating the row when the
// domain has never been recorded.
func SetCertificateState(handle *sql.DB, domain, state string) error {
	now := time.Now().Format(time.RFC3339)
	_, err := ExecWithRetry(handle, `
		INSERT INTO certificate (domain, state, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(domain) DO UPDATE SET
			state = excluded.state,
			updated_at = excluded.updated_at
	`, domain, state, now)
	return err
}

// GetCertificate returns the record for a domain, sql.ErrNoRows when absent.
func GetCertificate(handle *sql.DB, domain string) (*CertificateRecord, error) {
	var rec CertificateRecord
	err := handle.QueryRow(`
		SELECT domain, state, COALESCE(issuer, ''), COALESCE(issued_at, ''), COALESCE(expires_at, ''), updated_at
		FROM certificate WHERE domain = ?
	`, domain).Scan(&rec.Domain, &rec.State, &rec.Issuer, &rec.IssuedAt, &rec.ExpiresAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListCertificates returns all certificate records ordered by domain.
func ListCertificates(handle *sql.DB) ([]CertificateRecord, error) {
	rows, err := QueryWithRetry(handle, `
		SELECT domain, state, COALESCE(issuer, ''), COALESCE(issued_at, ''), COALESCE(expires_at, ''), updated_at
		FROM certificate ORDER BY domain
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []CertificateRecord
	for rows.Next() {
		var rec CertificateRecord
		if err := rows.Scan(&rec.Domain, &rec.State, &rec.Issuer, &rec.IssuedAt, &rec.ExpiresAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}
