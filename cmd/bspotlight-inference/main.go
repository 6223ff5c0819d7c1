// Package main is the entry point for the inference service process (C6).
// It hosts the per-role worker lanes behind the IPC server and is spawned
// and supervised by the bspotlight daemon (C3).
package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/betterspotlight/bspotlight/internal/inference"
	"github.com/betterspotlight/bspotlight/internal/ipc"
	"github.com/betterspotlight/bspotlight/internal/logging"
	"github.com/betterspotlight/bspotlight/internal/metrics"
	"github.com/betterspotlight/bspotlight/internal/runtimeenv"
	"github.com/betterspotlight/bspotlight/pkg/version"
)

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
	if err := runtimeenv.WritePid(layout.PidDir, "inference", os.Getpid()); err != nil {
		log.Error("write pid file", "error", err)
		os.Exit(1)
	}

	svc := inference.NewService(nil, inference.GlobalCaps{LiveCap: 256, RebuildCap: 1024})

	if addr, disabled := runtimeenv.MetricsAddr("inference"); !disabled {
		reg := metrics.Registry(metrics.NewInferenceCollector(svc))
		if shutdownMetrics, err := metrics.Serve(addr, reg, log); err != nil {
			log.Warn("metrics endpoint disabled", "error", err)
		} else {
			defer shutdownMetrics(context.Background())
		}
	}

	router := ipc.NewRouter(log)
	router.HandleFunc("inference.health", func(method string, params json.RawMessage) (any, error) {
		return svc.GetInferenceHealth(), nil
	})

	socketPath := runtimeenv.SocketPath(layout.SocketDir, "inference")
	server := ipc.NewServer(socketPath, router, log)
	defer server.Close()

	log.Info("inference service starting", "socket", socketPath)
	if err := server.Serve(); err != nil {
		log.Error("inference service exited", "error", err)
		os.Exit(1)
	}
}
