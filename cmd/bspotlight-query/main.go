// Package main is the entry point for the query service process (C5a/C5b).
// It hosts the query-service core and the learning core behind one IPC
// server and is spawned and supervised by the bspotlight daemon (C3).
package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/betterspotlight/bspotlight/internal/embed"
	"github.com/betterspotlight/bspotlight/internal/errors"
	"github.com/betterspotlight/bspotlight/internal/inference"
	"github.com/betterspotlight/bspotlight/internal/ipc"
	"github.com/betterspotlight/bspotlight/internal/learning"
	"github.com/betterspotlight/bspotlight/internal/logging"
	"github.com/betterspotlight/bspotlight/internal/metrics"
	"github.com/betterspotlight/bspotlight/internal/pipeline"
	"github.com/betterspotlight/bspotlight/internal/query"
	"github.com/betterspotlight/bspotlight/internal/runtimeenv"
	"github.com/betterspotlight/bspotlight/internal/store"
	"github.com/betterspotlight/bspotlight/pkg/version"
)

// defaultCacheCapacity and defaultCacheTTL size the query-result cache in
// front of Engine.Search (spec.md §4.5.4), mirroring the embed package's
// DefaultEmbeddingCacheSize as a similarly small, process-local cache.
const (
	defaultCacheCapacity = 500
	defaultCacheTTL      = 2 * time.Minute
)

// learningAdapter narrows internal/learning.Core to the query.Personalizer
// interface, keeping internal/query free of a direct dependency on the
// learning package's full surface.
type learningAdapter struct{ core *learning.Core }

func (a learningAdapter) RolloutMode() string {
	return string(a.core.RolloutMode())
}

func (a learningAdapter) Decide() (servingAllowed, applied, fallbackMissingModel bool) {
	d := a.core.Decide()
	return d.ServingAllowed, d.Applied, d.FallbackMissingModel
}

func (a learningAdapter) Blend(base float64, features map[string]float64, alpha float64) (float64, float64) {
	return a.core.Blend(base, features, alpha)
}

func main() {
	log, cleanup, err := logging.Setup(logging.DefaultConfig())
	if err != nil {
		os.Exit(1)
	}
	defer cleanup()

	layout, err := runtimeenv.Resolve(version.Version)
	if err != nil {
		log.Error("resolve runtime environment", "error", err)
		os.Exit(1)
	}
	if err := runtimeenv.WritePid(layout.PidDir, "query", os.Getpid()); err != nil {
		log.Error("write pid file", "error", err)
		os.Exit(1)
	}

	storePath, err := runtimeenv.StorePath()
	if err != nil {
		log.Error("resolve store path", "error", err)
		os.Exit(1)
	}
	db, err := store.Open(storePath)
	if err != nil {
		log.Error("open store", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// The static embedder needs no running model-serving sidecar, so
	// semantic retrieval degrades gracefully to a lexical-only service
	// when Ollama/MLX aren't configured, rather than failing to start.
	embedder, err := embed.NewEmbedder(context.Background(), embed.ProviderStatic, "")
	if err != nil {
		log.Warn("semantic retrieval disabled: no embedder available", "error", err)
		embedder = nil
	}

	var vectorIndex *store.VectorIndex
	if embedder != nil {
		vecPath, err := runtimeenv.VectorIndexPath("active")
		if err != nil {
			log.Warn("resolve vector index path", "error", err)
		} else if vi, loadErr := store.LoadVectorIndex(vecPath, embedder.Dimensions()); loadErr == nil {
			vectorIndex = vi
		} else if !stderrors.Is(loadErr, fs.ErrNotExist) {
			log.Warn("load vector index", "error", loadErr, "path", filepath.Clean(vecPath))
		}
	}

	learningCore := learning.NewCore(learning.DefaultConfig())
	scheduler := learningCore.AttachScheduler(5 * time.Minute)
	scheduler.Start()
	defer scheduler.Stop()

	engine := query.NewEngine()
	engine.Personalizer = learningAdapter{core: learningCore}
	engine.LexicalRetriever = newLexicalRetriever(db)
	engine.SemanticRetriever = newSemanticRetriever(db, embedder, vectorIndex)

	cache := query.NewCache(defaultCacheCapacity, defaultCacheTTL)

	var indexerClient, inferenceClient atomic.Pointer[ipc.Client]
	go connectSibling(runtimeenv.SocketPath(layout.SocketDir, "indexer"), &indexerClient, log)
	go connectSibling(runtimeenv.SocketPath(layout.SocketDir, "inference"), &inferenceClient, log)

	health := &healthGatherer{db: db, indexer: &indexerClient, inference: &inferenceClient}

	if addr, disabled := runtimeenv.MetricsAddr("query"); !disabled {
		reg := metrics.Registry(metrics.NewQueryCacheCollector(cache))
		if shutdownMetrics, err := metrics.Serve(addr, reg, log); err != nil {
			log.Warn("metrics endpoint disabled", "error", err)
		} else {
			defer shutdownMetrics(context.Background())
		}
	}

	router := ipc.NewRouter(log)
	router.HandleFunc("query.search", func(method string, params json.RawMessage) (any, error) {
		var req query.Request
		if err := json.Unmarshal(params, &req); err != nil {
			return nil, errors.NewIPCError(errors.CodeInvalidParams, "decode query.search params: %v", err)
		}
		now := time.Now()
		cacheKey := query.Normalize(req.Query) + "\x00" + string(req.Mode)
		if cached, ok := cache.Get(cacheKey, now); ok {
			return cached, nil
		}
		resp, err := engine.Search(req)
		if err != nil {
			return nil, err
		}
		cache.Put(cacheKey, resp, now)
		return resp, nil
	})
	router.HandleFunc("query.getHealth", func(method string, params json.RawMessage) (any, error) {
		return health.getHealth(), nil
	})
	router.HandleFunc("query.getHealthDetails", func(method string, params json.RawMessage) (any, error) {
		var body struct {
			Limit  int `json:"limit"`
			Offset int `json:"offset"`
		}
		if len(params) > 0 {
			if err := json.Unmarshal(params, &body); err != nil {
				return nil, errors.NewIPCError(errors.CodeInvalidParams, "decode query.getHealthDetails params: %v", err)
			}
		}
		all, err := db.ListFailures()
		if err != nil {
			return nil, errors.NewIPCError(errors.CodeInternalError, "list failures: %v", err)
		}
		details := make([]query.FailureDetail, len(all))
		for i, f := range all {
			details[i] = query.FailureDetail{ItemPath: f.ItemPath, Reason: f.Reason, Severity: f.Severity, Expected: f.Expected}
		}
		return query.GetHealthDetails(details, body.Limit, body.Offset), nil
	})
	router.HandleFunc("query.setRolloutMode", func(method string, params json.RawMessage) (any, error) {
		var body struct {
			Mode string `json:"mode"`
		}
		if err := json.Unmarshal(params, &body); err != nil {
			return nil, errors.NewIPCError(errors.CodeInvalidParams, "decode query.setRolloutMode params: %v", err)
		}
		if err := learningCore.SetRolloutMode(learning.RolloutMode(body.Mode)); err != nil {
			return nil, errors.NewIPCError(errors.CodeInvalidParams, "%v", err)
		}
		return nil, nil
	})
	router.HandleFunc("query.recordBehaviorEvent", func(method string, params json.RawMessage) (any, error) {
		var ev learning.BehaviorEvent
		if err := json.Unmarshal(params, &ev); err != nil {
			return nil, errors.NewIPCError(errors.CodeInvalidParams, "decode query.recordBehaviorEvent params: %v", err)
		}
		return learningCore.RecordBehaviorEvent(ev), nil
	})

	socketPath := runtimeenv.SocketPath(layout.SocketDir, "query")
	server := ipc.NewServer(socketPath, router, log)
	defer server.Close()

	log.Info("query service starting", "socket", socketPath)
	if err := server.Serve(); err != nil {
		log.Error("query service exited", "error", err)
		os.Exit(1)
	}
}

// healthGatherer assembles query.HealthInputs from the store's own failure
// table plus the indexer's and inference service's own IPC health/stats
// routes, sitting between internal/query (which stays free of cross-service
// dependencies, per health.go's doc comment) and the running system.
type healthGatherer struct {
	db        *store.Store
	indexer   *atomic.Pointer[ipc.Client]
	inference *atomic.Pointer[ipc.Client]

	group singleflight.Group
}

const healthRequestTimeoutMs = 2000

// getHealth coalesces concurrent callers onto a single in-flight
// computation via singleflight: getHealth fans out to two sibling services
// over IPC, so a burst of simultaneous UI polls (e.g. several windows open)
// shouldn't each pay that round-trip independently.
func (h *healthGatherer) getHealth() query.Health {
	v, _, _ := h.group.Do("getHealth", func() (any, error) {
		return h.computeHealth(), nil
	})
	return v.(query.Health)
}

func (h *healthGatherer) computeHealth() query.Health {
	in := query.HealthInputs{QueueSource: "indexer"}

	if client := h.indexer.Load(); client != nil {
		if env, ok := client.SendRequest("indexer.stats", nil, healthRequestTimeoutMs); ok && env.Error == nil {
			var snap pipeline.Snapshot
			if err := json.Unmarshal(env.Result, &snap); err == nil {
				in.QueueDepths = query.IndexQueueDepths{Live: snap.LiveDepth, Rebuild: snap.RebuildDepth}
			}
		}
	}

	if client := h.inference.Load(); client != nil {
		if env, ok := client.SendRequest("inference.health", nil, healthRequestTimeoutMs); ok && env.Error == nil {
			var snap inference.HealthSnapshot
			if err := json.Unmarshal(env.Result, &snap); err == nil {
				for role, status := range snap.RoleStatusByModel {
					in.InferenceRoles = append(in.InferenceRoles, query.InferenceRoleHealth{
						Role:       string(role),
						Status:     string(status),
						QueueDepth: snap.QueueDepthByRole[role],
					})
				}
			}
		}
	}

	if total, critical, expectedGap, err := h.db.TotalFailures(); err == nil {
		in.CriticalFailures = critical
		in.ExpectedGapFailures = expectedGap
		_ = total
	}

	return query.GetHealth(in)
}

// connectSibling dials a sibling service's socket with backoff, running in
// its own goroutine so a slow-to-start sibling never delays this service's
// own socket coming up; a nil slot value degrades getHealth gracefully
// rather than blocking on it.
func connectSibling(socketPath string, slot *atomic.Pointer[ipc.Client], log *slog.Logger) {
	delay := 200 * time.Millisecond
	const maxAttempts = 25
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		client, err := ipc.NewClient(socketPath, nil, log)
		if err == nil {
			slot.Store(client)
			return
		}
		if attempt == maxAttempts {
			log.Warn("sibling service never became reachable", "socket", socketPath, "attempts", attempt)
			return
		}
		time.Sleep(delay)
		if delay < 3*time.Second {
			delay *= 2
		}
	}
}

// toStoreFilters adapts the query pipeline's caller-facing filter set to
// the store's server-side pushdown filters (spec.md §4.5.1 filter merge
// feeding §4.1 searchFtsJoined).
func toStoreFilters(f query.Filters) store.Filters {
	out := store.Filters{
		Extensions:   f.FileTypes,
		IncludePaths: f.IncludePaths,
		ExcludePaths: f.ExcludePaths,
	}
	if f.ModifiedAfter > 0 {
		t := time.Unix(f.ModifiedAfter, 0)
		out.ModifiedAfter = &t
	}
	if f.ModifiedBefore > 0 {
		t := time.Unix(f.ModifiedBefore, 0)
		out.ModifiedBefore = &t
	}
	if f.MinSize > 0 {
		out.MinSize = &f.MinSize
	}
	if f.MaxSize > 0 {
		out.MaxSize = &f.MaxSize
	}
	return out
}

// newLexicalRetriever adapts the store's FTS5/BM25 search to the query
// pipeline's Retriever shape (spec.md §4.5.1 stage 5).
func newLexicalRetriever(db *store.Store) query.Retriever {
	return func(q string, filters query.Filters, limit int) ([]query.Candidate, error) {
		hits, err := db.SearchFTSJoined(q, limit, false, toStoreFilters(filters))
		if err != nil {
			return nil, err
		}
		out := make([]query.Candidate, 0, len(hits))
		for i, h := range hits {
			out = append(out, query.Candidate{
				ItemID:       h.ItemID,
				Path:         h.Path,
				Name:         h.Name,
				LexicalScore: h.Score,
				LexicalRank:  i + 1,
				Snippet:      h.Snippet,
			})
		}
		return out, nil
	}
}

// newSemanticRetriever adapts the HNSW vector index to the query
// pipeline's Retriever shape (spec.md §4.5.1 stage 6). It returns nil, not
// a function, when the embedder or index failed to load at startup: a
// nil Retriever makes Engine.Search treat semantic retrieval as
// unconfigured rather than failing every request on a cold or disabled
// dense index.
func newSemanticRetriever(db *store.Store, embedder embed.Embedder, idx *store.VectorIndex) query.Retriever {
	if embedder == nil || idx == nil {
		return nil
	}
	return func(q string, filters query.Filters, limit int) ([]query.Candidate, error) {
		ctx, cancel := context.WithTimeout(context.Background(), embed.DefaultWarmTimeout)
		defer cancel()
		vec, err := embedder.Embed(ctx, q)
		if err != nil {
			return nil, err
		}
		hits, err := idx.Search(vec, limit)
		if err != nil {
			return nil, err
		}
		out := make([]query.Candidate, 0, len(hits))
		for _, h := range hits {
			item, err := db.GetItemByID(h.ItemID)
			if err != nil {
				return nil, err
			}
			if item == nil || !matchesFilters(*item, filters) {
				continue
			}
			out = append(out, query.Candidate{
				ItemID:        h.ItemID,
				Path:          item.Path,
				Name:          item.Name,
				SemanticScore: h.Score,
				SemanticRank:  len(out) + 1,
			})
		}
		return out, nil
	}
}

// matchesFilters mirrors the store's server-side filter pushdown so
// semantic-only candidates (which never pass through searchFtsJoined)
// honor the same caller-supplied constraints as lexical ones.
func matchesFilters(item store.Item, f query.Filters) bool {
	if len(f.FileTypes) > 0 {
		ok := false
		for _, ext := range f.FileTypes {
			if strings.EqualFold(ext, item.Extension) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	for _, prefix := range f.ExcludePaths {
		if prefix != "" && strings.HasPrefix(item.Path, prefix) {
			return false
		}
	}
	if len(f.IncludePaths) > 0 {
		ok := false
		for _, prefix := range f.IncludePaths {
			if strings.HasPrefix(item.Path, prefix) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.ModifiedAfter > 0 && item.ModifiedAt.Unix() < f.ModifiedAfter {
		return false
	}
	if f.ModifiedBefore > 0 && item.ModifiedAt.Unix() > f.ModifiedBefore {
		return false
	}
	if f.MinSize > 0 && item.Size < f.MinSize {
		return false
	}
	if f.MaxSize > 0 && item.Size > f.MaxSize {
		return false
	}
	return true
}
