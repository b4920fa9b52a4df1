package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sipeed/clawvault/pkg/activity"
	"github.com/sipeed/clawvault/pkg/logger"
)

// Wallet is one locally managed account. Address is always derived from
// the secret phrase referenced by PhraseFile; it is never set directly.
type Wallet struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Address    string    `json:"address"`
	PhraseFile string    `json:"phrase_file"`
	CreatedAt  time.Time `json:"created_at"`
}

// Asset is a tracked balance on the active chain. Balance is a
// non-negative decimal string.
type Asset struct {
	Symbol          string  `json:"symbol"`
	Name            string  `json:"name"`
	Balance         string  `json:"balance"`
	ContractAddress string  `json:"contract_address,omitempty"`
	UnitPriceUsd    float64 `json:"unit_price_usd,omitempty"`
	IsNative        bool    `json:"is_native"`
}

// Snapshot is one balance poll result for a wallet/chain pair.
type Snapshot struct {
	Assets    []Asset
	FetchedAt time.Time
}

// Degenerate reports whether every balance in the snapshot is zero.
// A degenerate snapshot from a flaky endpoint must not clobber known
// good data.
func (s Snapshot) Degenerate() bool {
	if len(s.Assets) == 0 {
		return true
	}
	for _, a := range s.Assets {
		if a.Balance != "0" && a.Balance != "" {
			return false
		}
	}
	return true
}

// Invitee is one wallet bound to a referrer.
type Invitee struct {
	Wallet   string    `json:"wallet"`
	BindTime time.Time `json:"bind_time"`
}

// ReferralRecord is the cached referral state for a wallet.
type ReferralRecord struct {
	Referrer         string    `json:"referrer"`
	InviteCount      uint64    `json:"invite_count"`
	TotalRewards     string    `json:"total_rewards"`
	TotalCommissions string    `json:"total_commissions"`
	Invitees         []Invitee `json:"invitees"`
	IsClaimed        bool      `json:"is_claimed"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Store is the single process-local mutable resource. All components
// read and write through its action methods; one mutex serializes all
// concurrent completions. Wallets, activity, and the referral cache are
// persisted to sqlite; balance snapshots are a provisional in-memory
// overlay replaced wholesale by each successful poll.
type Store struct {
	mu       sync.Mutex
	db       *sql.DB
	balances map[string]Snapshot
}

const schema = `
CREATE TABLE IF NOT EXISTS wallets (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	address TEXT NOT NULL,
	phrase_file TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS selection (
	k INTEGER PRIMARY KEY CHECK (k = 1),
	wallet_id TEXT NOT NULL,
	chain_id INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS activity (
	wallet_id TEXT NOT NULL,
	merge_key TEXT NOT NULL,
	id TEXT NOT NULL,
	type TEXT NOT NULL,
	asset TEXT NOT NULL,
	amount TEXT NOT NULL,
	status TEXT NOT NULL,
	hash TEXT NOT NULL,
	ts INTEGER NOT NULL,
	from_addr TEXT NOT NULL DEFAULT '',
	to_addr TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (wallet_id, merge_key)
);
CREATE TABLE IF NOT EXISTS referral (
	wallet_id TEXT PRIMARY KEY,
	record TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
`

// Open opens (and creates if needed) the store database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{
		db:       db,
		balances: make(map[string]Snapshot),
	}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// AddWallet persists a new wallet.
func (s *Store) AddWallet(w Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO wallets (id, name, address, phrase_file, created_at) VALUES (?, ?, ?, ?, ?)`,
		w.ID, w.Name, w.Address, w.PhraseFile, w.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to add wallet: %w", err)
	}

	logger.InfoCF("store", "Wallet added", map[string]any{
		"id":      w.ID,
		"address": w.Address,
	})
	return nil
}

// Wallets returns all wallets ordered by creation time.
func (s *Store) Wallets() ([]Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT id, name, address, phrase_file, created_at FROM wallets ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Wallet
	for rows.Next() {
		var w Wallet
		var created int64
		if err := rows.Scan(&w.ID, &w.Name, &w.Address, &w.PhraseFile, &created); err != nil {
			return nil, err
		}
		w.CreatedAt = time.Unix(created, 0).UTC()
		out = append(out, w)
	}
	return out, rows.Err()
}

// WalletByID returns a wallet, or nil when not found.
func (s *Store) WalletByID(id string) (*Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var w Wallet
	var created int64
	err := s.db.QueryRow(
		`SELECT id, name, address, phrase_file, created_at FROM wallets WHERE id = ?`, id,
	).Scan(&w.ID, &w.Name, &w.Address, &w.PhraseFile, &created)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	w.CreatedAt = time.Unix(created, 0).UTC()
	return &w, nil
}

// SelectWallet records the active wallet/chain pair.
func (s *Store) SelectWallet(walletID string, chainID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO selection (k, wallet_id, chain_id) VALUES (1, ?, ?)
		 ON CONFLICT(k) DO UPDATE SET wallet_id = excluded.wallet_id, chain_id = excluded.chain_id`,
		walletID, chainID,
	)
	return err
}

// Selected returns the active wallet/chain pair, with ok=false when no
// selection has been made.
func (s *Store) Selected() (walletID string, chainID int64, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	err = s.db.QueryRow(`SELECT wallet_id, chain_id FROM selection WHERE k = 1`).Scan(&walletID, &chainID)
	if err == sql.ErrNoRows {
		return "", 0, false, nil
	}
	if err != nil {
		return "", 0, false, err
	}
	return walletID, chainID, true, nil
}

func mergeKeyFor(it activity.Item) string {
	if key, ok := activity.NormalizeHash(it.Hash); ok {
		return key
	}
	return "id:" + it.ID
}

// RecordPending stores an optimistic local activity entry for an
// operation that has just been submitted.
func (s *Store) RecordPending(walletID string, item activity.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsertActivity(walletID, item)
}

// MarkActivity updates the status of an activity entry by hash.
func (s *Store) MarkActivity(walletID, hash string, status activity.Status) error {
	key, ok := activity.NormalizeHash(hash)
	if !ok {
		return fmt.Errorf("malformed activity hash: %s", hash)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`UPDATE activity SET status = ? WHERE wallet_id = ? AND merge_key = ?`,
		string(status), walletID, key,
	)
	return err
}

// ApplyChainEvents merges chain-observed activity into the stored feed.
// Chain records supersede local placeholders with the same hash.
func (s *Store) ApplyChainEvents(walletID string, events []activity.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.activityLocked(walletID)
	if err != nil {
		return err
	}

	merged := activity.Merge(events, current)

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM activity WHERE wallet_id = ?`, walletID); err != nil {
		return err
	}
	for _, it := range merged {
		if err := upsertActivityTx(tx, walletID, it); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Activity returns the wallet's feed sorted newest first.
func (s *Store) Activity(walletID string) ([]activity.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activityLocked(walletID)
}

func (s *Store) activityLocked(walletID string) ([]activity.Item, error) {
	rows, err := s.db.Query(
		`SELECT id, type, asset, amount, status, hash, ts, from_addr, to_addr
		 FROM activity WHERE wallet_id = ? ORDER BY ts DESC, merge_key`, walletID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []activity.Item
	for rows.Next() {
		var it activity.Item
		var ts int64
		if err := rows.Scan(&it.ID, &it.Type, &it.Asset, &it.Amount, &it.Status, &it.Hash, &ts, &it.From, &it.To); err != nil {
			return nil, err
		}
		it.Timestamp = time.Unix(ts, 0).UTC()
		out = append(out, it)
	}
	return out, rows.Err()
}

func (s *Store) upsertActivity(walletID string, it activity.Item) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := upsertActivityTx(tx, walletID, it); err != nil {
		return err
	}
	return tx.Commit()
}

func upsertActivityTx(tx *sql.Tx, walletID string, it activity.Item) error {
	_, err := tx.Exec(
		`INSERT INTO activity (wallet_id, merge_key, id, type, asset, amount, status, hash, ts, from_addr, to_addr)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(wallet_id, merge_key) DO UPDATE SET
			id = excluded.id, type = excluded.type, asset = excluded.asset,
			amount = excluded.amount, status = excluded.status, hash = excluded.hash,
			ts = excluded.ts, from_addr = excluded.from_addr, to_addr = excluded.to_addr`,
		walletID, mergeKeyFor(it), it.ID, string(it.Type), it.Asset, it.Amount,
		string(it.Status), it.Hash, it.Timestamp.Unix(), it.From, it.To,
	)
	return err
}

func balanceKey(walletID string, chainID int64) string {
	return fmt.Sprintf("%s:%d", walletID, chainID)
}

// SetBalances replaces the balance snapshot for a wallet/chain pair.
func (s *Store) SetBalances(walletID string, chainID int64, assets []Asset, fetchedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[balanceKey(walletID, chainID)] = Snapshot{Assets: assets, FetchedAt: fetchedAt}
}

// Balances returns the cached balance snapshot for a wallet/chain pair.
func (s *Store) Balances(walletID string, chainID int64) (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.balances[balanceKey(walletID, chainID)]
	return snap, ok
}

// PutReferral caches the referral record for a wallet.
func (s *Store) PutReferral(walletID string, rec ReferralRecord) error {
	rec.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.Exec(
		`INSERT INTO referral (wallet_id, record, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(wallet_id) DO UPDATE SET record = excluded.record, updated_at = excluded.updated_at`,
		walletID, string(data), rec.UpdatedAt.Unix(),
	)
	return err
}

// Referral returns the cached referral record, or nil when absent.
func (s *Store) Referral(walletID string) (*ReferralRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var raw string
	err := s.db.QueryRow(`SELECT record FROM referral WHERE wallet_id = ?`, walletID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var rec ReferralRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}
