// Package kv holds the starskey-backed jail for abusive source IPs. The
// proxy's token bucket handles ordinary bursts in memory; the jail persists
// repeat offenders across restarts.
package kv

import (
	"encoding/json"
	"time"

	"github.com/charmbracelet/log"
	"github.com/starskey-io/starskey"
)

// strikeInfo is the persisted per-IP record. The IP is duplicated inside the
// value so records can be enumerated without relying on key iteration.
type strikeInfo struct {
	IP          string    `json:"ip"`
	Strikes     int       `json:"strikes"`
	WindowStart time.Time `json:"window_start"`
	JailedUntil time.Time `json:"jailed_until"`
}

func (s *strikeInfo) jailed(now time.Time) bool {
	return now.Before(s.JailedUntil)
}

// Jail tracks rate limit strikes per source IP and jails IPs that keep
// hammering after being denied.
type Jail struct {
	db          *starskey.Starskey
	threshold   int           // strikes within the window before jailing
	window      time.Duration // strike counting window
	sentence    time.Duration // how long a jailed IP stays blocked
	stopReports chan struct{}
}

// OpenJail opens (or creates) the jail database under dbPath.
func OpenJail(dbPath string, threshold int, window, sentence time.Duration) (*Jail, error) {
	db, err := starskey.Open(&starskey.Config{
		Permission:        0755,
		Directory:         dbPath,
		FlushThreshold:    64 * 1024 * 1024,
		MaxLevel:          3,
		SizeFactor:        10,
		BloomFilter:       true,
		SuRF:              false,
		Logging:           false,
		Compression:       true,
		CompressionOption: starskey.SnappyCompression,
	})
	if err != nil {
		return nil, err
	}

	log.Info("Initialized IP jail with Starskey backend",
		"path", dbPath,
		"threshold", threshold,
		"window", window,
		"sentence", sentence)

	j := &Jail{
		db:          db,
		threshold:   threshold,
		window:      window,
		sentence:    sentence,
		stopReports: make(chan struct{}),
	}

	go j.startJailReporting()

	return j, nil
}

// Strike records one rate limit denial for an IP and reports whether the IP
// is now jailed.
func (j *Jail) Strike(ip string) (bool, error) {
	var jailed bool

	err := j.db.Update(func(txn *starskey.Txn) error {
		now := time.Now()
		key := []byte(ip)

		info := strikeInfo{IP: ip, WindowStart: now}

		value, err := txn.Get(key)
		if err == nil && value != nil {
			if err := json.Unmarshal(value, &info); err != nil {
				info = strikeInfo{IP: ip, WindowStart: now}
			}
		}

		if info.jailed(now) {
			jailed = true
			return nil
		}

		// Strikes outside the window do not accumulate.
		if now.Sub(info.WindowStart) > j.window {
			info.Strikes = 0
			info.WindowStart = now
		}

		info.Strikes++
		if info.Strikes >= j.threshold {
			info.JailedUntil = now.Add(j.sentence)
			info.Strikes = 0
			jailed = true
			log.Info("IP address jailed after repeated rate limit violations",
				"ip", ip,
				"until", info.JailedUntil)
		}

		data, err := json.Marshal(info)
		if err != nil {
			return err
		}
		txn.Put(key, data)
		return nil
	})

	return jailed, err
}

// IsJailed reports whether an IP is currently jailed. A served sentence is
// cleared on read.
func (j *Jail) IsJailed(ip string) (bool, error) {
	value, err := j.db.Get([]byte(ip))
	if err != nil || value == nil {
		return false, nil
	}

	var info strikeInfo
	if err := json.Unmarshal(value, &info); err != nil {
		return false, nil
	}

	now := time.Now()
	if info.jailed(now) {
		return true, nil
	}

	if !info.JailedUntil.IsZero() {
		log.Info("IP address released from jail", "ip", ip)
		info.JailedUntil = time.Time{}
		info.Strikes = 0
		info.WindowStart = now
		if data, err := json.Marshal(info); err == nil {
			if err := j.db.Put([]byte(ip), data); err != nil {
				log.Debug("Failed to clear served sentence", "ip", ip, "error", err)
			}
		}
	}

	return false, nil
}

// Release removes an IP's record entirely.
func (j *Jail) Release(ip string) error {
	value, err := j.db.Get([]byte(ip))
	if err == nil && value != nil {
		var info strikeInfo
		if err := json.Unmarshal(value, &info); err == nil && info.jailed(time.Now()) {
			log.Info("IP address manually released from jail", "ip", ip)
		}
	}

	return j.db.Delete([]byte(ip))
}

// JailedIPs returns all currently jailed IPs with their release times.
func (j *Jail) JailedIPs() (map[string]time.Time, error) {
	jailed := make(map[string]time.Time)
	now := time.Now()

	results, err := j.db.FilterKeys(func(key []byte) bool { return true })
	if err != nil {
		return nil, err
	}

	for _, value := range results {
		var info strikeInfo
		if err := json.Unmarshal(value, &info); err != nil {
			continue // keys or corrupted records
		}

		if info.IP != "" && info.jailed(now) {
			jailed[info.IP] = info.JailedUntil
		}
	}

	return jailed, nil
}

// startJailReporting logs the jailed IP count on startup and every 5 minutes.
func (j *Jail) startJailReporting() {
	j.reportJailedIPs()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.reportJailedIPs()
		case <-j.stopReports:
			return
		}
	}
}

func (j *Jail) reportJailedIPs() {
	jailed, err := j.JailedIPs()
	if err != nil {
		log.Error("Failed to get jailed IPs", "error", err)
		return
	}

	if len(jailed) > 0 {
		log.Info("Currently jailed IPs", "count", len(jailed))
	}
}

// Close stops the reporting goroutine and closes the database.
func (j *Jail) Close() error {
	close(j.stopReports)
	return j.db.Close()
}
