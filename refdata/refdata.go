// Package refdata is the static trade-method / lot-status ID→name lookup
// table used to render "Не указан"-style fallbacks for upstream responses
// that only carry numeric reference IDs. Bundled with the binary and
// overridable from a JSON file for updates without a rebuild.
package refdata

import (
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"sync"
)

//go:embed data/lookups.json
var embeddedFS embed.FS

// Entry is one row of a reference table.
type Entry struct {
	ID     int    `json:"id"`
	NameRu string `json:"name_ru"`
	NameKz string `json:"name_kz"`
	Code   string `json:"code"`
}

type tables struct {
	TradeMethods map[string]Entry `json:"trade_methods"`
	LotStatuses  map[string]Entry `json:"lot_statuses"`
}

// Registry is a concurrency-safe lookup table, reloadable at runtime.
type Registry struct {
	mu     sync.RWMutex
	tables tables
}

// defaultRegistry is loaded from the embedded table at package init; most
// callers use the package-level functions backed by it.
var defaultRegistry = mustLoadEmbedded()

func mustLoadEmbedded() *Registry {
	data, err := embeddedFS.ReadFile("data/lookups.json")
	if err != nil {
		panic(fmt.Sprintf("refdata: embedded lookup table missing: %v", err))
	}
	r := &Registry{}
	if err := r.loadJSON(data); err != nil {
		panic(fmt.Sprintf("refdata: embedded lookup table invalid: %v", err))
	}
	return r
}

// New returns a registry preloaded from the embedded default table.
func New() *Registry {
	r := &Registry{}
	r.mu.Lock()
	r.tables = defaultRegistry.snapshot()
	r.mu.Unlock()
	return r
}

func (r *Registry) snapshot() tables {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tables
}

func (r *Registry) loadJSON(data []byte) error {
	var t tables
	if err := json.Unmarshal(data, &t); err != nil {
		return err
	}
	r.mu.Lock()
	r.tables = t
	r.mu.Unlock()
	return nil
}

// LoadFromFile replaces the registry's tables with the contents of a JSON
// file matching the embedded table's shape. Used to pick up reference-data
// updates without rebuilding the binary.
func (r *Registry) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read refdata file: %w", err)
	}
	return r.loadJSON(data)
}

// TradeMethodName returns the Russian name for a trade method ID, or a
// "Неизвестный способ (N)" placeholder if unknown.
func (r *Registry) TradeMethodName(id int) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.tables.TradeMethods[strconv.Itoa(id)]; ok {
		return e.NameRu
	}
	return fmt.Sprintf("Неизвестный способ (%d)", id)
}

// LotStatusName returns the Russian name for a lot status ID, or a
// "Неизвестный статус (N)" placeholder if unknown.
func (r *Registry) LotStatusName(id int) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.tables.LotStatuses[strconv.Itoa(id)]; ok {
		return e.NameRu
	}
	return fmt.Sprintf("Неизвестный статус (%d)", id)
}

// TradeMethod returns the full entry and whether it was found.
func (r *Registry) TradeMethod(id int) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tables.TradeMethods[strconv.Itoa(id)]
	return e, ok
}

// LotStatus returns the full entry and whether it was found.
func (r *Registry) LotStatus(id int) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tables.LotStatuses[strconv.Itoa(id)]
	return e, ok
}

// TradeMethodName uses the package-level default registry.
func TradeMethodName(id int) string { return defaultRegistry.TradeMethodName(id) }

// LotStatusName uses the package-level default registry.
func LotStatusName(id int) string { return defaultRegistry.LotStatusName(id) }
