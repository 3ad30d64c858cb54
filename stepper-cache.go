package steppercache

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/always-cache/stepper-cache/cache"
	cachekey "github.com/always-cache/stepper-cache/pkg/cache-key"
	cachestatus "github.com/always-cache/stepper-cache/pkg/cache-status"
	"github.com/always-cache/stepper-cache/pkg/freshness"
	requestgate "github.com/always-cache/stepper-cache/pkg/request-gate"
	resourceclass "github.com/always-cache/stepper-cache/pkg/resource-class"
	serializer "github.com/always-cache/stepper-cache/pkg/response-serializer"
	"github.com/always-cache/stepper-cache/pkg/worker"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// ErrCacheStore is returned by RoundTrip when the cache storage could not be read.
var ErrCacheStore = errors.New("cache storage failure")

const (
	DefaultPrefix  = "stepper-"
	DefaultVersion = "v1"
)

type Config struct {
	// Storage for cached responses.
	Store cache.Store
	// Transport used for network requests. http.DefaultTransport if nil.
	Transport http.RoundTripper
	// URL of the origin server. Only used when serving as a proxy (ServeHTTP).
	// Origins with paths are not supported.
	OriginURL url.URL
	// Hostname to use for HTTP requests and TLS negotiation.
	// Use if needed if e.g. the origin URL is just an IP address.
	OriginHost string
	// Logger to use. A console logger is used if nil.
	Logger *zerolog.Logger
	// Prefix shared by all partitions of this cache. Defaults to DefaultPrefix.
	Prefix string
	// Version of the partitions. Partitions of other versions are deleted on Activate.
	Version string
	// Number of background workers for asset prefetching.
	Workers int
	// Size of the prefetch queue. Prefetches are dropped when the queue is full.
	QueueSize int
	// Clock, time.Now if nil.
	Now func() time.Time
}

type StepperCache struct {
	store      cache.Store
	keyer      cachekey.CacheKeyer
	transport  http.RoundTripper
	originURL  url.URL
	originHost string
	log        zerolog.Logger
	now        func() time.Time

	prefix           string
	version          string
	staticPartition  string
	dynamicPartition string
	installed        atomic.Bool

	prefetcher *worker.Worker
	refreshes  singleflight.Group
	background sync.WaitGroup
	stats      *Stats
}

// CreateCache initializes the stepper-cache instance and starts the prefetch workers.
// The cache does not serve from storage until Install has been called.
func CreateCache(config Config) *StepperCache {
	// use console logger if not specified in config
	var logger zerolog.Logger
	if config.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		logger = *config.Logger
	}
	if config.Prefix == "" {
		config.Prefix = DefaultPrefix
	}
	if config.Version == "" {
		config.Version = DefaultVersion
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	// create a child logger and add defaults
	logger = logger.With().
		Str("version", config.Version).
		Logger()
	if config.OriginURL.Host != "" {
		logger = logger.With().Str("origin", config.OriginURL.String()).Logger()
	}

	transport := config.Transport
	if transport == nil {
		transport = http.DefaultTransport
		if config.OriginHost != "" {
			transport = &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				TLSClientConfig: &tls.Config{
					ServerName: config.OriginHost,
				},
			}
		}
	}

	var origin *url.URL
	if config.OriginURL.Host != "" {
		o := config.OriginURL
		origin = &o
	}

	s := &StepperCache{
		store:            config.Store,
		keyer:            cachekey.NewCacheKeyer(origin),
		transport:        transport,
		originURL:        config.OriginURL,
		originHost:       config.OriginHost,
		log:              logger,
		now:              config.Now,
		prefix:           config.Prefix,
		version:          config.Version,
		staticPartition:  partitionName(config.Prefix, "static", config.Version),
		dynamicPartition: partitionName(config.Prefix, "response", config.Version),
		stats:            &Stats{},
	}

	workerConfig := worker.DefaultConfig()
	if config.Workers > 0 {
		workerConfig.WorkerCount = config.Workers
	}
	if config.QueueSize > 0 {
		workerConfig.QueueSize = config.QueueSize
	}
	workerConfig.Logger = logger.With().Str("component", "prefetch").Logger()
	s.prefetcher = worker.NewWorker(workerConfig)
	s.prefetcher.Start()

	return s
}

// RoundTrip implements http.RoundTripper.
// Write requests and requests arriving before Install are sent to the network untouched.
// GET requests are answered from the cache when possible (stale entries are refreshed
// in the background), otherwise fetched and stored.
func (s *StepperCache) RoundTrip(req *http.Request) (*http.Response, error) {
	if !s.installed.Load() {
		return s.transport.RoundTrip(req)
	}
	if !requestgate.Accepts(req.Method) {
		s.stats.incrementBypasses()
		s.log.Trace().Str("method", req.Method).Str("url", req.URL.String()).Msg("Write request, bypassing cache")
		return s.transport.RoundTrip(req)
	}
	if !s.keyer.Cacheable(req) {
		return s.transport.RoundTrip(req)
	}

	key := s.keyer.GetKey(req)
	partition := s.partitionFor(req.URL.Path)
	log := s.log.With().Str("key", key).Str("partition", partition).Logger()

	cached, err := s.lookup(req.Context(), partition, key, req)
	if err != nil {
		s.stats.incrementErrors()
		return nil, fmt.Errorf("%w: %v", ErrCacheStore, err)
	}
	if cached != nil {
		return s.serveCached(req, cached, partition, key, log), nil
	}

	s.stats.incrementMisses()
	res, body, err := s.fetch(req)
	if err != nil {
		// a background refresh or a prefetch may have stored the entry meanwhile
		if fallback, lerr := s.lookup(context.Background(), partition, key, req); lerr == nil && fallback != nil {
			log.Warn().Err(err).Msg("Network request failed, serving stored response")
			fallback.Header.Set(cachestatus.HeaderName, cachestatus.NewHit(freshness.TimeToLive(fallback.Header, s.now())).String())
			return fallback, nil
		}
		log.Debug().Err(err).Msg("Network request failed")
		return nil, err
	}
	if res.StatusCode != http.StatusOK {
		log.Trace().Int("status", res.StatusCode).Msg("Not storing non-OK response")
		return res, nil
	}

	stored := s.save(context.Background(), partition, key, res, log)
	if isHTML(res) {
		s.prefetchAssets(req.URL, body, log)
	}
	res.Header.Set(cachestatus.HeaderName, cachestatus.NewForward(cachestatus.FwdReasonUriMiss, stored).String())
	return res, nil
}

func (s *StepperCache) serveCached(req *http.Request, res *http.Response, partition, key string, log zerolog.Logger) *http.Response {
	now := s.now()
	ttl := freshness.TimeToLive(res.Header, now)
	if freshness.IsExpired(res.Header, now) {
		s.stats.incrementStale()
		log.Debug().Int("ttl", ttl).Msg("Serving stale response, refreshing in background")
		s.refreshInBackground(req, partition, key)
	} else {
		s.stats.incrementHits()
		log.Trace().Int("ttl", ttl).Msg("Serving fresh response")
	}
	res.Header.Set(cachestatus.HeaderName, cachestatus.NewHit(ttl).String())
	return res
}

// lookup returns the stored response for the key, or nil if there is none.
// Entries that cannot be parsed are treated as missing and will be overwritten.
func (s *StepperCache) lookup(ctx context.Context, partition, key string, req *http.Request) (*http.Response, error) {
	bts, ok, err := s.store.Lookup(ctx, partition, key)
	if err != nil || !ok {
		return nil, err
	}
	res, err := serializer.BytesToResponse(bts, req)
	if err != nil {
		s.log.Error().Err(err).Str("key", key).Str("partition", partition).Msg("Could not parse stored response")
		return nil, nil
	}
	return res, nil
}

// fetch sends the request to the network.
// For OK responses the body is read in full and returned as well.
func (s *StepperCache) fetch(req *http.Request) (*http.Response, []byte, error) {
	s.log.Trace().Str("method", req.Method).Str("url", req.URL.String()).Msg("Requesting content from network")
	res, err := s.transport.RoundTrip(withoutAcceptEncoding(req))
	if err != nil {
		return nil, nil, err
	}
	if res.StatusCode != http.StatusOK {
		return res, nil, nil
	}
	body, err := serializer.DuplicateBody(res)
	if err != nil {
		return nil, nil, err
	}
	return res, body, nil
}

// withoutAcceptEncoding returns the request without a caller-set Accept-Encoding header.
// The transport then negotiates compression itself and returns decoded bodies,
// so stored entries and scanned documents are never compressed.
func withoutAcceptEncoding(req *http.Request) *http.Request {
	if _, ok := req.Header["Accept-Encoding"]; !ok {
		return req
	}
	r := req.Clone(req.Context())
	r.Header.Del("Accept-Encoding")
	return r
}

// save stores a duplicate of the response. The response can still be sent afterwards.
// Failures are logged only.
func (s *StepperCache) save(ctx context.Context, partition, key string, res *http.Response, log zerolog.Logger) bool {
	if res.Header.Get("Date") == "" {
		res.Header.Set("Date", s.now().UTC().Format(http.TimeFormat))
	}
	bts, err := serializer.ResponseToBytes(res)
	if err != nil {
		s.stats.incrementErrors()
		log.Error().Err(err).Msg("Could not serialize response")
		return false
	}
	if err := s.store.Put(ctx, partition, key, bts); err != nil {
		s.stats.incrementErrors()
		log.Error().Err(err).Msg("Could not write to cache")
		return false
	}
	s.stats.incrementStores()
	log.Trace().Int("bytes", len(bts)).Msg("Stored response")
	return true
}

// partitionFor returns the partition for responses to the given request path.
func (s *StepperCache) partitionFor(path string) string {
	if resourceclass.Classify(path) == resourceclass.Static {
		return s.staticPartition
	}
	return s.dynamicPartition
}

func isHTML(res *http.Response) bool {
	return strings.Contains(res.Header.Get("Content-Type"), "text/html")
}

// Wait blocks until the background refreshes and prefetches started so far are done.
func (s *StepperCache) Wait() {
	s.background.Wait()
	s.prefetcher.Wait()
}

// Close waits for background work and stops the prefetch workers.
// The store is not closed.
func (s *StepperCache) Close() {
	s.background.Wait()
	s.prefetcher.Stop()
}

// ServeHTTP implements the http.Handler interface.
// It forwards the request to the origin through the cache.
func (s *StepperCache) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if err := recover(); err != nil {
			s.log.Error().Interface("error", err).Msg("Panic, using escape hatch")
			s.escapeHatch(w, r)
		}
	}()
	s.handle(w, r)
}

func (s *StepperCache) handle(w http.ResponseWriter, r *http.Request) {
	req, err := s.forwardRequest(r)
	if err != nil {
		s.log.Error().Err(err).Msg("Could not create origin request")
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	res, err := s.RoundTrip(req)
	if errors.Is(err, ErrCacheStore) {
		s.log.Error().Err(err).Msg("Cache failure, using escape hatch")
		s.escapeHatch(w, r)
		return
	}
	if err != nil {
		s.log.Warn().Err(err).Str("url", req.URL.String()).Msg("Error contacting origin")
		http.Error(w, "Error contacting origin", http.StatusBadGateway)
		return
	}
	s.send(w, r, res)
}

// escapeHatch forwards the request to the origin without touching the cache.
func (s *StepperCache) escapeHatch(w http.ResponseWriter, r *http.Request) {
	req, err := s.forwardRequest(r)
	if err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	res, err := s.transport.RoundTrip(req)
	if err != nil {
		s.log.Error().Err(err).Msg("Escape hatch failed")
		http.Error(w, "Error contacting origin", http.StatusBadGateway)
		return
	}
	s.send(w, r, res)
}

// forwardRequest creates the request to send to the origin for an incoming request.
func (s *StepperCache) forwardRequest(r *http.Request) (*http.Request, error) {
	var body io.Reader
	if r.Body != nil && r.ContentLength != 0 {
		body = r.Body
	}
	uri := s.originURL.Scheme + "://" + s.originURL.Host + r.URL.RequestURI()
	req, err := http.NewRequestWithContext(r.Context(), r.Method, uri, body)
	if err != nil {
		return nil, err
	}
	req.ContentLength = r.ContentLength
	copyHeader(req.Header, r.Header)
	req.Header.Del("Connection")
	// left to the transport, which decodes what it negotiated
	req.Header.Del("Accept-Encoding")
	if s.originHost != "" {
		req.Host = s.originHost
	}
	return req, nil
}

func (s *StepperCache) send(w http.ResponseWriter, r *http.Request, res *http.Response) {
	defer res.Body.Close()
	copyHeader(w.Header(), res.Header)
	w.WriteHeader(res.StatusCode)
	bytesWritten, err := io.Copy(w, res.Body)
	if err != nil {
		s.log.Error().Err(err).Msg("Could not write response body to client")
	}
	s.log.Debug().
		Str("method", r.Method).
		Str("url", r.URL.String()).
		Int("status", res.StatusCode).
		Str("cacheStatus", res.Header.Get(cachestatus.HeaderName)).
		Int64("bytes", bytesWritten).
		Msg("Sent response to client")
}

func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		// this is a workaround to remove default headers sent by an upstream proxy
		// some servers do not like the presence of these headers in the downstream request
		if k != "X-Forwarded-For" && k != "X-Forwarded-Proto" && k != "X-Forwarded-Host" {
			for _, v := range vv {
				dst.Add(k, v)
			}
		}
	}
}
