// Package storage is the persistence boundary: the analysis cache, the
// search history audit log and the settings row, backed by SQLite.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"pricecomp/internal/pricing"
	"pricecomp/internal/settings"
)

// HistoryRecord is one append-only audit entry per completed fresh
// analysis. The pipeline writes these; it never reads them back.
type HistoryRecord struct {
	SearchType      string
	SearchQuery     string
	MedianPrice     float64
	Currency        pricing.Currency
	CompsUsed       int
	CompsExcluded   int
	ConfidenceScore int
	CreatedAt       time.Time
}

// Store defines the persistence operations the service needs.
type Store interface {
	// GetCachedAnalysis returns the cached analysis for the key, or nil
	// when absent or expired as of now. Expiry is checked at read time;
	// stale rows are left in place until overwritten.
	GetCachedAnalysis(searchType, searchQuery string, now time.Time) (*pricing.Analysis, error)
	// PutCachedAnalysis upserts the cache row for the key. Last write wins.
	PutCachedAnalysis(searchType, searchQuery string, a *pricing.Analysis, expiresAt time.Time) error

	AppendHistory(rec HistoryRecord) error
	ListHistory(limit int) ([]HistoryRecord, error)

	// GetSettings returns the settings row, or nil when none exists yet.
	GetSettings() (*settings.Settings, error)
	SaveSettings(s settings.Settings) error

	Close() error
}

// SQLiteStore implements Store with credentials encrypted at rest.
type SQLiteStore struct {
	db            *sql.DB
	encryptionKey []byte
	mu            sync.RWMutex
}

// NewSQLiteStore opens (and if needed creates) the database at dbPath.
// The encryptionKey is used to encrypt/decrypt stored API credentials.
func NewSQLiteStore(dbPath string, encryptionKey []byte) (*SQLiteStore, error) {
	// WAL mode and busy timeout for better concurrency
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteStore{
		db:            db,
		encryptionKey: encryptionKey,
	}

	if err := store.init(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) init() error {
	cacheQuery := `
	CREATE TABLE IF NOT EXISTS search_cache (
		search_type TEXT NOT NULL,
		search_query TEXT NOT NULL,
		analyzed_results TEXT NOT NULL,
		expires_at DATETIME NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (search_type, search_query)
	);
	`
	if _, err := s.db.Exec(cacheQuery); err != nil {
		return fmt.Errorf("failed to create search_cache table: %w", err)
	}

	historyQuery := `
	CREATE TABLE IF NOT EXISTS search_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		search_type TEXT NOT NULL,
		search_query TEXT NOT NULL,
		median_price REAL NOT NULL,
		currency TEXT NOT NULL,
		comps_used INTEGER NOT NULL,
		comps_excluded INTEGER NOT NULL,
		confidence_score INTEGER NOT NULL,
		created_at DATETIME NOT NULL
	);
	`
	if _, err := s.db.Exec(historyQuery); err != nil {
		return fmt.Errorf("failed to create search_history table: %w", err)
	}

	settingsQuery := `
	CREATE TABLE IF NOT EXISTS app_settings (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		serpapi_key TEXT NOT NULL,
		llm_api_key TEXT NOT NULL,
		llm_provider TEXT NOT NULL,
		default_currency TEXT NOT NULL,
		default_region TEXT NOT NULL,
		use_ai_filtering INTEGER NOT NULL,
		updated_at DATETIME NOT NULL
	);
	`
	if _, err := s.db.Exec(settingsQuery); err != nil {
		return fmt.Errorf("failed to create app_settings table: %w", err)
	}

	return nil
}

// GetCachedAnalysis implements Store.
func (s *SQLiteStore) GetCachedAnalysis(searchType, searchQuery string, now time.Time) (*pricing.Analysis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var resultsJSON string
	err := s.db.QueryRow(
		"SELECT analyzed_results FROM search_cache WHERE search_type = ? AND search_query = ? AND expires_at > ?",
		searchType, searchQuery, now,
	).Scan(&resultsJSON)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query search cache: %w", err)
	}

	var a pricing.Analysis
	if err := json.Unmarshal([]byte(resultsJSON), &a); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached analysis: %w", err)
	}

	return &a, nil
}

// PutCachedAnalysis implements Store.
func (s *SQLiteStore) PutCachedAnalysis(searchType, searchQuery string, a *pricing.Analysis, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	resultsJSON, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal analysis: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO search_cache (search_type, search_query, analyzed_results, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(search_type, search_query) DO UPDATE SET
			analyzed_results = excluded.analyzed_results,
			expires_at = excluded.expires_at,
			created_at = CURRENT_TIMESTAMP
	`, searchType, searchQuery, string(resultsJSON), expiresAt)

	if err != nil {
		return fmt.Errorf("failed to save cache entry: %w", err)
	}

	return nil
}

// AppendHistory implements Store.
func (s *SQLiteStore) AppendHistory(rec HistoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO search_history (search_type, search_query, median_price, currency, comps_used, comps_excluded, confidence_score, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.SearchType, rec.SearchQuery, rec.MedianPrice, string(rec.Currency), rec.CompsUsed, rec.CompsExcluded, rec.ConfidenceScore, rec.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to append history record: %w", err)
	}

	return nil
}

// ListHistory returns the most recent history records, newest first.
func (s *SQLiteStore) ListHistory(limit int) ([]HistoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT search_type, search_query, median_price, currency, comps_used, comps_excluded, confidence_score, created_at
		FROM search_history ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var records []HistoryRecord
	for rows.Next() {
		var rec HistoryRecord
		var currency string
		if err := rows.Scan(&rec.SearchType, &rec.SearchQuery, &rec.MedianPrice, &currency, &rec.CompsUsed, &rec.CompsExcluded, &rec.ConfidenceScore, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history record: %w", err)
		}
		rec.Currency = pricing.Currency(currency)
		records = append(records, rec)
	}

	return records, rows.Err()
}

// GetSettings implements Store. Credentials are decrypted before returning.
func (s *SQLiteStore) GetSettings() (*settings.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var cfg settings.Settings
	var encSerpKey, encLLMKey string
	var useAIFiltering int
	err := s.db.QueryRow(
		"SELECT serpapi_key, llm_api_key, llm_provider, default_currency, default_region, use_ai_filtering FROM app_settings WHERE id = 1",
	).Scan(&encSerpKey, &encLLMKey, &cfg.LLMProvider, &cfg.Currency, &cfg.Region, &useAIFiltering)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query settings: %w", err)
	}

	cfg.UseAIFiltering = useAIFiltering != 0

	if cfg.SerpAPIKey, err = s.decryptCredential(encSerpKey); err != nil {
		return nil, fmt.Errorf("failed to decrypt serpapi key: %w", err)
	}
	if cfg.LLMAPIKey, err = s.decryptCredential(encLLMKey); err != nil {
		return nil, fmt.Errorf("failed to decrypt llm key: %w", err)
	}

	return &cfg, nil
}

// SaveSettings implements Store. Credentials are encrypted at rest.
func (s *SQLiteStore) SaveSettings(cfg settings.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	encSerpKey, err := s.encryptCredential(cfg.SerpAPIKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt serpapi key: %w", err)
	}
	encLLMKey, err := s.encryptCredential(cfg.LLMAPIKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt llm key: %w", err)
	}

	useAIFiltering := 0
	if cfg.UseAIFiltering {
		useAIFiltering = 1
	}

	_, err = s.db.Exec(`
		INSERT INTO app_settings (id, serpapi_key, llm_api_key, llm_provider, default_currency, default_region, use_ai_filtering, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			serpapi_key = excluded.serpapi_key,
			llm_api_key = excluded.llm_api_key,
			llm_provider = excluded.llm_provider,
			default_currency = excluded.default_currency,
			default_region = excluded.default_region,
			use_ai_filtering = excluded.use_ai_filtering,
			updated_at = excluded.updated_at
	`, encSerpKey, encLLMKey, cfg.LLMProvider, string(cfg.Currency), string(cfg.Region), useAIFiltering, time.Now())

	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) encryptCredential(plain string) (string, error) {
	if plain == "" {
		return "", nil
	}
	return Encrypt([]byte(plain), s.encryptionKey)
}

func (s *SQLiteStore) decryptCredential(enc string) (string, error) {
	if enc == "" {
		return "", nil
	}
	plain, err := Decrypt(enc, s.encryptionKey)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}
