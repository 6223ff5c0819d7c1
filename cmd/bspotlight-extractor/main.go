// Package main is the entry point for the content-extraction service
// process. It consumes extraction requests dispatched by bspotlight-indexer
// (C4), reads each item's file, classifies its kind, chunks its content
// with the appropriate chunker, and returns the chunks over IPC for the
// indexer to persist through the store layer (C1). Spawned and supervised
// by the bspotlight daemon (C3).
package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/betterspotlight/bspotlight/internal/chunk"
	"github.com/betterspotlight/bspotlight/internal/errors"
	"github.com/betterspotlight/bspotlight/internal/ipc"
	"github.com/betterspotlight/bspotlight/internal/logging"
	"github.com/betterspotlight/bspotlight/internal/runtimeenv"
	"github.com/betterspotlight/bspotlight/pkg/version"
)

// extractRequest is the extractor.extract method's params (one path per
// call; the indexer dispatches one request per dispatched work item).
type extractRequest struct {
	Path string `json:"path"`
}

// extractedChunk is one chunk as returned over IPC, trimmed to what the
// store's InsertChunks needs.
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

// classifyExtension maps a file extension to a chunk kind and chunker.
// Grounded on internal/scanner's DetectLanguage/DetectContentType table,
// generalized from the code-search content-type set to the item kinds
// indexing covers (text/markdown/pdf/code; image/binary are never
// extracted -- they carry metadata only).
func classifyExtension(ext string) (kind string, chunker chunk.Chunker) {
	ext = strings.ToLower(ext)
	switch ext {
	case ".md", ".markdown", ".mdx":
		return "markdown", chunk.NewMarkdownChunker()
	case ".pdf":
		return "pdf", chunk.NewTextChunker()
	case ".go", ".ts", ".tsx", ".js", ".jsx", ".py":
		return "code", chunk.NewCodeChunker()
	case ".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tiff", ".heic":
		return "image", nil
	case ".exe", ".bin", ".dylib", ".so", ".dll":
		return "binary", nil
	default:
		return "text", chunk.NewTextChunker()
	}
}

const maxExtractableSize = 100 * 1024 * 1024 // 100MB, matches spec.md's oversized-file gap

func extract(path string) extractResponse {
	info, err := os.Stat(path)
	if err != nil {
		return extractResponse{FailureMsg: "unreadable: " + err.Error()}
	}
	ext := filepath.Ext(path)
	kind, chunker := classifyExtension(ext)

	resp := extractResponse{Kind: kind, Size: info.Size(), ModifiedAt: info.ModTime().Unix()}

	if kind == "image" || kind == "binary" {
		return resp
	}
	if info.Size() > maxExtractableSize {
		resp.FailureMsg = "oversized file: exceeds extraction limit"
		return resp
	}

	content, err := os.ReadFile(path)
	if err != nil {
		resp.FailureMsg = "unreadable: " + err.Error()
		return resp
	}
	sum := sha256.Sum256(content)
	resp.ContentHash = hex.EncodeToString(sum[:])

	if closer, ok := chunker.(interface{ Close() }); ok {
		defer closer.Close()
	}
	lang := kind
	if cfg, ok := chunk.DefaultRegistry().GetByExtension(strings.ToLower(ext)); ok {
		lang = cfg.Name
	}
	chunks, err := chunker.Chunk(context.Background(), &chunk.FileInput{
		Path:     path,
		Content:  content,
		Language: lang,
	})
	if err != nil {
		resp.FailureMsg = err.Error()
		return resp
	}

	for i, c := range chunks {
		h := sha256.Sum256([]byte(c.Content))
		resp.Chunks = append(resp.Chunks, extractedChunk{
			Index:       i,
			Text:        c.Content,
			ContentHash: hex.EncodeToString(h[:]),
		})
	}
	return resp
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
	if err := runtimeenv.WritePid(layout.PidDir, "extractor", os.Getpid()); err != nil {
		log.Error("write pid file", "error", err)
		os.Exit(1)
	}

	router := ipc.NewRouter(log)
	router.HandleFunc("extractor.health", func(method string, params json.RawMessage) (any, error) {
		return map[string]string{"status": "ok"}, nil
	})
	router.HandleFunc("extractor.extract", func(method string, params json.RawMessage) (any, error) {
		var req extractRequest
		if err := json.Unmarshal(params, &req); err != nil {
			return nil, errors.NewIPCError(errors.CodeInvalidParams, "decode extractor.extract params: %v", err)
		}
		return extract(req.Path), nil
	})

	socketPath := runtimeenv.SocketPath(layout.SocketDir, "extractor")
	server := ipc.NewServer(socketPath, router, log)
	defer server.Close()

	log.Info("extractor service starting", "socket", socketPath)
	if err := server.Serve(); err != nil {
		log.Error("extractor service exited", "error", err)
		os.Exit(1)
	}
}
