package steppercache

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	assetextractor "github.com/always-cache/stepper-cache/pkg/asset-extractor"
	"github.com/always-cache/stepper-cache/pkg/worker"

	"github.com/rs/zerolog"
)

// refreshInBackground re-fetches the request and overwrites the stored entry,
// without the caller waiting for it. Overlapping refreshes of the same entry share one fetch.
func (s *StepperCache) refreshInBackground(req *http.Request, partition, key string) {
	refreshReq, err := detachedRequest(req)
	if err != nil {
		s.log.Error().Err(err).Str("key", key).Msg("Could not create request for refresh")
		return
	}
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		_, err, shared := s.refreshes.Do(partition+" "+key, func() (interface{}, error) {
			return nil, s.saveRequest(refreshReq, partition, key)
		})
		if err != nil {
			s.log.Warn().Err(err).Str("key", key).Bool("shared", shared).Msg("Could not refresh cache entry")
			return
		}
		s.log.Trace().Str("key", key).Bool("shared", shared).Msg("Refreshed cache entry")
	}()
}

// detachedRequest copies the request for use after the original request has completed.
func detachedRequest(req *http.Request) (*http.Request, error) {
	r, err := http.NewRequestWithContext(context.Background(), http.MethodGet, req.URL.String(), nil)
	if err != nil {
		return nil, err
	}
	r.Header = req.Header.Clone()
	r.Header.Del("Accept-Encoding")
	r.Host = req.Host
	return r, nil
}

// saveRequest fetches the request and stores the response under the key.
// Only OK responses replace the stored entry.
func (s *StepperCache) saveRequest(req *http.Request, partition, key string) error {
	s.log.Debug().
		Str("method", req.Method).
		Str("url", req.URL.String()).
		Str("key", key).
		Msg("Requesting content from origin")

	res, err := s.transport.RoundTrip(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("origin responded with status %d", res.StatusCode)
	}
	log := s.log.With().Str("key", key).Str("partition", partition).Logger()
	if !s.save(req.Context(), partition, key, res, log) {
		return fmt.Errorf("could not store response")
	}
	return nil
}

// prefetchAssets queues a fetch of every static asset referenced by an HTML document.
func (s *StepperCache) prefetchAssets(document *url.URL, body []byte, log zerolog.Logger) {
	urls := assetextractor.Extract(body, s.documentOrigin(document))
	if len(urls) == 0 {
		return
	}
	log.Debug().Int("assets", len(urls)).Msg("Prefetching static assets")
	for _, u := range urls {
		assetURL := u
		s.prefetcher.Enqueue(worker.Job{
			Name: assetURL,
			Run: func() error {
				return s.prefetch(assetURL)
			},
		})
	}
}

// documentOrigin returns the URL relative references of a document are resolved against.
func (s *StepperCache) documentOrigin(document *url.URL) *url.URL {
	if document.Host == "" && s.keyer.Origin != nil {
		return s.keyer.Origin
	}
	return document
}

// prefetch fetches a static asset and stores it in the static partition on success.
func (s *StepperCache) prefetch(assetURL string) error {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, assetURL, nil)
	if err != nil {
		return err
	}
	if s.originHost != "" && req.URL.Host == s.originURL.Host {
		req.Host = s.originHost
	}
	res, err := s.transport.RoundTrip(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return fmt.Errorf("origin responded with status %d", res.StatusCode)
	}
	key := s.keyer.GetKey(req)
	log := s.log.With().Str("key", key).Str("partition", s.staticPartition).Logger()
	if !s.save(context.Background(), s.staticPartition, key, res, log) {
		return fmt.Errorf("could not store response")
	}
	s.stats.incrementPrefetches()
	return nil
}

// RefreshAll re-fetches every entry of the current partitions in the background.
// It returns the number of entries queued for refresh.
func (s *StepperCache) RefreshAll(ctx context.Context) (int, error) {
	queued := 0
	for _, partition := range []string{s.staticPartition, s.dynamicPartition} {
		keys := make([]string, 0)
		if err := s.store.Keys(ctx, partition, func(key string) {
			keys = append(keys, key)
		}); err != nil {
			return queued, err
		}
		for _, key := range keys {
			req, err := s.keyer.GetRequestFromKey(key)
			if err != nil {
				s.log.Error().Err(err).Str("key", key).Msg("Could not get request from key")
				continue
			}
			if s.originHost != "" && req.URL.Host == s.originURL.Host {
				req.Host = s.originHost
			}
			s.refreshInBackground(req, partition, key)
			queued++
		}
	}
	s.log.Info().Int("entries", queued).Msg("Refreshing all cache entries")
	return queued, nil
}
