// Package main is the entry point for the indexing service process (C4).
// It owns the dual-lane (live/rebuild) work-queue scheduler, dispatches
// enqueued work to the extraction service, and persists the results
// through the store layer (C1). Spawned and supervised by the bspotlight
// daemon (C3).
package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/betterspotlight/bspotlight/internal/errors"
	"github.com/betterspotlight/bspotlight/internal/ipc"
	"github.com/betterspotlight/bspotlight/internal/logging"
	"github.com/betterspotlight/bspotlight/internal/metrics"
	"github.com/betterspotlight/bspotlight/internal/pipeline"
	"github.com/betterspotlight/bspotlight/internal/runtimeenv"
	"github.com/betterspotlight/bspotlight/internal/store"
	"github.com/betterspotlight/bspotlight/pkg/version"
)

// extractRequest/extractResponse mirror bspotlight-extractor's wire
// contract for the extractor.extract method. Each service owns its DTOs
// independently; only the JSON shape is shared.
type extractRequest struct {
	Path string `json:"path"`
}

type extractedChunk struct {
	Index       int    `json:"index"`
	Text        string `json:"text"`
	ContentHash string `json:"content_hash"`
}

type extractResponse struct {
	Kind        string           `json:"kind"`
	Size        int64            `json:"size"`
	ModifiedAt  int64            `json:"modified_at"`
	ContentHash string           `json:"content_hash"`
	Chunks      []extractedChunk `json:"chunks"`
	FailureMsg  string           `json:"failure_message,omitempty"`
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
	if err := runtimeenv.WritePid(layout.PidDir, "indexer", os.Getpid()); err != nil {
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

	var extractor atomic.Pointer[ipc.Client]
	extractorSocket := runtimeenv.SocketPath(layout.SocketDir, "extractor")
	go connectExtractor(extractorSocket, &extractor, log)

	scheduler := pipeline.New(pipeline.DefaultConfig())
	go dispatchLoop(scheduler, db, &extractor, log)

	if addr, disabled := runtimeenv.MetricsAddr("indexer"); !disabled {
		reg := metrics.Registry(metrics.NewPipelineCollector(scheduler))
		if shutdownMetrics, err := metrics.Serve(addr, reg, log); err != nil {
			log.Warn("metrics endpoint disabled", "error", err)
		} else {
			defer shutdownMetrics(context.Background())
		}
	}

	router := ipc.NewRouter(log)
	router.HandleFunc("indexer.enqueue", func(method string, params json.RawMessage) (any, error) {
		var body struct {
			Key  string          `json:"key"`
			Lane string          `json:"lane"`
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(params, &body); err != nil {
			return nil, errors.NewIPCError(errors.CodeInvalidParams, "decode indexer.enqueue params: %v", err)
		}
		lane := pipeline.LaneLive
		if body.Lane == "rebuild" {
			lane = pipeline.LaneRebuild
		}
		ok := scheduler.Enqueue(pipeline.WorkItem{Key: body.Key, Data: body.Data}, lane)
		return map[string]bool{"accepted": ok}, nil
	})
	router.HandleFunc("indexer.stats", func(method string, params json.RawMessage) (any, error) {
		return scheduler.Snapshot(), nil
	})

	socketPath := runtimeenv.SocketPath(layout.SocketDir, "indexer")
	server := ipc.NewServer(socketPath, router, log)
	defer server.Close()

	log.Info("indexer service starting", "socket", socketPath)
	if err := server.Serve(); err != nil {
		log.Error("indexer service exited", "error", err)
		os.Exit(1)
	}
}

// connectExtractor dials the extractor's socket with backoff, running in
// its own goroutine so a slow-to-start extractor never delays the
// indexer's own socket coming up. The supervisor spawns every service
// concurrently, so the extractor may not have bound its socket yet.
func connectExtractor(socketPath string, slot *atomic.Pointer[ipc.Client], log *slog.Logger) {
	delay := 200 * time.Millisecond
	const maxAttempts = 25
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		client, err := ipc.NewClient(socketPath, nil, log)
		if err == nil {
			slot.Store(client)
			return
		}
		if attempt == maxAttempts {
			log.Error("extractor never became reachable", "socket", socketPath, "attempts", attempt)
			return
		}
		time.Sleep(delay)
		if delay < 3*time.Second {
			delay *= 2
		}
	}
}

// dispatchLoop drains the scheduler, handing each dispatched item to the
// extraction service and persisting the result through the store.
func dispatchLoop(scheduler *pipeline.Scheduler, db *store.Store, extractor *atomic.Pointer[ipc.Client], log *slog.Logger) {
	for {
		item, ok := scheduler.DequeueBlocking(func() bool { return false }, func() bool { return false })
		if !ok {
			return
		}
		processItem(item.Item, db, extractor.Load(), log)
	}
}

func processItem(item pipeline.WorkItem, db *store.Store, extractor *ipc.Client, log *slog.Logger) {
	path := item.Key
	if extractor == nil {
		log.Warn("extractor unavailable, skipping item", "path", path)
		return
	}

	env, ok := extractor.SendRequest("extractor.extract", extractRequest{Path: path}, 30_000)
	if !ok {
		log.Warn("extractor.extract timed out or disconnected", "path", path)
		return
	}
	if env.Error != nil {
		log.Warn("extractor.extract failed", "path", path, "error", env.Error.Message)
		return
	}
	var resp extractResponse
	if err := json.Unmarshal(env.Result, &resp); err != nil {
		log.Error("decode extractor.extract response", "path", path, "error", err)
		return
	}

	itemID, err := db.UpsertItem(store.Item{
		Path:        path,
		Name:        filepath.Base(path),
		Extension:   filepath.Ext(path),
		Kind:        store.ItemKind(resp.Kind),
		Size:        resp.Size,
		ModifiedAt:  time.Unix(resp.ModifiedAt, 0),
		LastIndexed: time.Now(),
		ContentHash: resp.ContentHash,
		ParentPath:  filepath.Dir(path),
	})
	if err != nil {
		log.Error("upsert item", "path", path, "error", err)
		return
	}

	if resp.FailureMsg != "" {
		if err := db.RecordFailure(itemID, "extract", resp.FailureMsg); err != nil {
			log.Error("record failure", "path", path, "error", err)
		}
		return
	}
	if len(resp.Chunks) == 0 {
		return
	}

	chunks := make([]store.ItemChunk, len(resp.Chunks))
	for i, c := range resp.Chunks {
		chunks[i] = store.ItemChunk{
			ID:          chunkID(path, c.Index),
			ChunkIndex:  c.Index,
			Text:        c.Text,
			ContentHash: c.ContentHash,
		}
	}
	if err := db.InsertChunks(itemID, filepath.Base(path), path, chunks); err != nil {
		log.Error("insert chunks", "path", path, "error", err)
	}
}

// chunkID derives a deterministic chunk id from the item path and chunk
// index so re-extracting unchanged content produces the same chunk rows.
func chunkID(path string, index int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d", path, index)))
	return hex.EncodeToString(sum[:])[:16]
}
