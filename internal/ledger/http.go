// ABOUTME: HTTP handlers exposing access statistics and recent decisions as JSON
// ABOUTME: Mounted by the gated server at GET /access/stats and /access/recent

package ledger

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// maxRecentLimit caps the limit query parameter of RecentHandler.
const maxRecentLimit = 500

// StatsHandler serves Stats as JSON. Query parameters tool, wallet, since and
// until (RFC3339) map onto Filter.
func (l *Ledger) StatsHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		filter, err := parseFilter(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		stats, err := l.Stats(r.Context(), filter)
		if err != nil {
			l.logger.Error("failed to load access stats", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(stats); err != nil {
			l.logger.Warn("failed to write access stats", "error", err)
		}
	})
}

// RecentHandler serves the newest entries as a JSON array. The optional limit
// query parameter defaults to 50 and may not exceed 500.
func (l *Ledger) RecentHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 || n > maxRecentLimit {
				http.Error(w, fmt.Sprintf("limit must be an integer between 1 and %d", maxRecentLimit), http.StatusBadRequest)
				return
			}
			limit = n
		}

		entries, err := l.Recent(r.Context(), limit)
		if err != nil {
			l.logger.Error("failed to load recent access entries", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if entries == nil {
			entries = []*Entry{}
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(entries); err != nil {
			l.logger.Warn("failed to write recent access entries", "error", err)
		}
	})
}

func parseFilter(r *http.Request) (Filter, error) {
	q := r.URL.Query()
	var f Filter

	if v := q.Get("tool"); v != "" {
		f.Tool = &v
	}
	if v := q.Get("wallet"); v != "" {
		f.Wallet = &v
	}
	for name, dst := range map[string]**time.Time{"since": &f.Since, "until": &f.Until} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return Filter{}, fmt.Errorf("invalid %s timestamp %q, want RFC3339", name, v)
		}
		*dst = &t
	}
	return f, nil
}
