package steppercache

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
)

// ClearAll deletes every partition of this cache, whatever its version.
// The cache keeps working afterwards, partitions are recreated when responses are stored.
func (s *StepperCache) ClearAll(ctx context.Context) ([]string, error) {
	partitions, err := s.ownPartitions(ctx)
	if err != nil {
		return nil, err
	}
	deleted := make([]string, 0, len(partitions))
	for _, partition := range partitions {
		ok, err := s.store.Delete(ctx, partition)
		if err != nil {
			return deleted, err
		}
		if ok {
			deleted = append(deleted, partition)
		}
	}
	s.log.Info().Strs("partitions", deleted).Msg("Cleared cache")
	return deleted, nil
}

// PartitionStats returns the number of entries in every partition of this cache.
func (s *StepperCache) PartitionStats(ctx context.Context) (map[string]int, error) {
	partitions, err := s.ownPartitions(ctx)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int, len(partitions))
	for _, partition := range partitions {
		n, err := s.store.Count(ctx, partition)
		if err != nil {
			return nil, err
		}
		counts[partition] = n
	}
	return counts, nil
}

func (s *StepperCache) ownPartitions(ctx context.Context) ([]string, error) {
	all, err := s.store.Partitions(ctx)
	if err != nil {
		return nil, err
	}
	own := make([]string, 0, len(all))
	for _, partition := range all {
		if strings.HasPrefix(partition, s.prefix) {
			own = append(own, partition)
		}
	}
	return own, nil
}

// AdminRouter returns the routes for inspecting and managing the cache.
// If secret is not empty, requests must carry it as a bearer token.
func (s *StepperCache) AdminRouter(secret string) http.Handler {
	r := chi.NewRouter()
	if secret != "" {
		r.Use(requireSecret(secret))
	}
	r.Get("/stats", s.handleStats)
	r.Post("/clear", s.handleClear)
	r.Post("/refresh", s.handleRefresh)
	return r
}

func requireSecret(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") ||
				subtle.ConstantTimeCompare([]byte(strings.TrimPrefix(auth, "Bearer ")), []byte(secret)) != 1 {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *StepperCache) handleStats(w http.ResponseWriter, r *http.Request) {
	partitions, err := s.PartitionStats(r.Context())
	if err != nil {
		s.sendError(w, "Failed to get partition stats", err)
		return
	}
	s.sendJSON(w, map[string]interface{}{
		"partitions": partitions,
		"counters":   s.GetStats(),
		"queued":     s.prefetcher.QueueLen(),
		"installed":  s.Installed(),
	})
}

func (s *StepperCache) handleClear(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.ClearAll(r.Context())
	if err != nil {
		s.sendError(w, "Failed to clear cache", err)
		return
	}
	s.sendJSON(w, map[string]interface{}{
		"success": true,
		"deleted": deleted,
	})
}

func (s *StepperCache) handleRefresh(w http.ResponseWriter, r *http.Request) {
	queued, err := s.RefreshAll(r.Context())
	if err != nil {
		s.sendError(w, "Failed to refresh cache", err)
		return
	}
	s.sendJSON(w, map[string]interface{}{
		"success": true,
		"queued":  queued,
	})
}

func (s *StepperCache) sendError(w http.ResponseWriter, msg string, err error) {
	s.log.Error().Err(err).Msg(msg)
	http.Error(w, msg+": "+err.Error(), http.StatusInternalServerError)
}

func (s *StepperCache) sendJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("Could not write JSON response")
	}
}

// ScriptHandler serves the client script at path verbatim.
// The file is read on every request, so a rebuilt script is served without restart.
func ScriptHandler(path string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		script, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			http.NotFound(w, r)
			return
		} else if err != nil {
			http.Error(w, "Could not read script", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/javascript")
		w.Write(script)
	})
}
