package cache

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/guarzo/pkmprices/internal/clock"
	"github.com/guarzo/pkmprices/internal/model"
)

// DefaultTTL is how long a resolved price list stays fresh.
const DefaultTTL = 30 * time.Minute

// Entry is the cached price list of one (card, language) bucket.
type Entry struct {
	Card     model.CardKey      `json:"card"`
	Language model.Language     `json:"language"`
	Quotes   []model.PriceQuote `json:"quotes"`
	CachedAt time.Time          `json:"cachedAt"`
}

// Stats summarises cache contents, stale entries included.
type Stats struct {
	Total     int      `json:"total"`
	Languages []string `json:"languages"`
}

// PriceCache holds resolved quotes per (card name, set name, language).
// Expired entries read as misses but stay in memory until SweepExpired.
type PriceCache struct {
	ttl     time.Duration
	clock   clock.Clock
	entries map[string]Entry
	mu      sync.RWMutex
}

// New creates an empty cache. A zero ttl means DefaultTTL; a nil clock the wall clock.
func New(ttl time.Duration, clk clock.Clock) *PriceCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &PriceCache{
		ttl:     ttl,
		clock:   clk,
		entries: make(map[string]Entry),
	}
}

// TTL returns the freshness window.
func (c *PriceCache) TTL() time.Duration { return c.ttl }

// Get returns the fresh entry for the bucket, if any.
func (c *PriceCache) Get(card model.CardKey, lang model.Language) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[PriceKey(card, lang)]
	if !ok || !c.fresh(entry) {
		return Entry{}, false
	}
	entry.Quotes = cloneQuotes(entry.Quotes)
	return entry, true
}

// Put replaces the bucket wholesale.
func (c *PriceCache) Put(card model.CardKey, lang model.Language, quotes []model.PriceQuote) {
	entry := Entry{
		Card:     model.CardKey{Name: card.Name, SetName: card.SetName},
		Language: lang,
		Quotes:   cloneQuotes(quotes),
		CachedAt: c.clock.Now(),
	}

	c.mu.Lock()
	c.entries[PriceKey(card, lang)] = entry
	c.mu.Unlock()
}

// InvalidateCard drops every language bucket of a card and returns how many went.
func (c *PriceCache) InvalidateCard(card model.CardKey) int {
	name, set := fold(card.Name), fold(card.SetName)

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, e := range c.entries {
		if fold(e.Card.Name) == name && fold(e.Card.SetName) == set {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// SweepExpired deletes every entry older than the TTL, read or not.
func (c *PriceCache) SweepExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, entry := range c.entries {
		if !c.fresh(entry) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Stats reports the entry count and the languages present.
func (c *PriceCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	seen := make(map[string]bool)
	for _, e := range c.entries {
		seen[string(e.Language)] = true
	}
	langs := make([]string, 0, len(seen))
	for l := range seen {
		langs = append(langs, l)
	}
	sort.Strings(langs)

	return Stats{Total: len(c.entries), Languages: langs}
}

func (c *PriceCache) fresh(e Entry) bool {
	return c.clock.Now().Sub(e.CachedAt) < c.ttl
}

// Save writes a JSON snapshot of all entries to path.
func (c *PriceCache) Save(path string) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create cache dir: %w", err)
		}
	}

	c.mu.RLock()
	data, err := json.MarshalIndent(c.entries, "", "  ")
	c.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal cache: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write cache: %w", err)
	}
	return os.Rename(tmp, path)
}

// Load merges a snapshot written by Save. A missing file is not an error.
// Corrupt entries are dropped and counted; a corrupt file loads nothing.
func (c *PriceCache) Load(path string) (loaded, dropped int, err error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("read cache: %w", err)
	}
	if len(data) == 0 {
		return 0, 0, nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		// Ignore corrupt cache, start fresh
		log.Printf("PriceCache: ignoring unreadable snapshot %s: %v", path, err)
		return 0, 0, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for key, msg := range raw {
		var entry Entry
		if err := json.Unmarshal(msg, &entry); err != nil || validEntry(key, entry) != nil {
			dropped++
			continue
		}
		c.entries[key] = entry
		loaded++
	}
	if dropped > 0 {
		log.Printf("PriceCache: dropped %d corrupt entries from %s", dropped, path)
	}
	return loaded, dropped, nil
}

func validEntry(key string, e Entry) error {
	if e.CachedAt.IsZero() {
		return fmt.Errorf("missing timestamp")
	}
	if !e.Language.Supported() {
		return fmt.Errorf("unsupported language %q", e.Language)
	}
	if key != PriceKey(e.Card, e.Language) {
		return fmt.Errorf("key mismatch")
	}
	for _, q := range e.Quotes {
		if err := q.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func cloneQuotes(in []model.PriceQuote) []model.PriceQuote {
	if in == nil {
		return nil
	}
	out := make([]model.PriceQuote, len(in))
	copy(out, in)
	return out
}

// BuildKey creates semantic cache keys
func BuildKey(parts ...string) string {
	return strings.Join(parts, "|")
}

// PriceKey is the bucket key. Name and set are case-folded and escaped so a
// "|" inside a name cannot reach into the set field; a card without a set
// lands in its own bucket rather than matching every set.
func PriceKey(card model.CardKey, lang model.Language) string {
	return BuildKey("price", keyPart(card.Name), keyPart(card.SetName), string(lang))
}

var keyEscaper = strings.NewReplacer(`\`, `\\`, "|", `\|`)

func keyPart(s string) string {
	return keyEscaper.Replace(fold(s))
}

func fold(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
