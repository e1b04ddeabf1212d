// Command canvas assembles a small retrieval-augmented workflow against a
// running backend, saves and builds it, then streams one chat turn.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/avi3tal/flowcanvas/internal/app"
	"github.com/avi3tal/flowcanvas/internal/chat"
	"github.com/avi3tal/flowcanvas/internal/client"
	"github.com/avi3tal/flowcanvas/internal/config"
	"github.com/avi3tal/flowcanvas/internal/configedit"
	"github.com/avi3tal/flowcanvas/internal/ingest"
	"github.com/avi3tal/flowcanvas/internal/store"
	"github.com/avi3tal/flowcanvas/internal/surface"
	"github.com/avi3tal/flowcanvas/internal/types"
)

// printSurface is a stand-in editing surface that just reports derivations.
type printSurface struct{}

func (printSurface) ApplyElements(nodes []surface.NodeElement, edges []types.Edge) {
	fmt.Printf("surface: %d nodes, %d edges\n", len(nodes), len(edges))
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := cfg.NewLogger()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	backend := client.New(cfg.BaseURL,
		client.WithLogger(logger),
		client.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
	)

	st := store.New(store.WithLogger(logger))
	registry := configedit.NewRegistry()
	facade := app.New(st, backend, registry, app.WithLogger(logger))

	bridge := surface.NewBridge(st, printSurface{}, surface.WithLogger(logger))
	defer bridge.Close()

	// Assemble userQuery -> knowledgeBase -> llmEngine -> output.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	query, _ := facade.NewNodeAt(types.KindUserQuery, types.Position{X: 0, Y: 0})
	kb, _ := facade.NewNodeAt(types.KindKnowledgeBase, types.Position{X: 220, Y: 0})
	llm, _ := facade.NewNodeAt(types.KindLLMEngine, types.Position{X: 440, Y: 0})
	out, _ := facade.NewNodeAt(types.KindOutput, types.Position{X: 660, Y: 0})

	bridge.Connected(query.ID, kb.ID)
	bridge.Connected(kb.ID, llm.ID)
	bridge.Connected(llm.ID, out.ID)

	// Tune the retrieval node through the config panel.
	editor := configedit.NewEditor(st, registry)
	defer editor.Close()
	st.SelectNode(kb.ID)
	if err := editor.SetField("topK", 3); err != nil {
		log.Fatalf("set topK: %v", err)
	}

	wf, err := facade.Save(ctx, "demo workflow")
	if err != nil {
		log.Fatalf("save: %v", err)
	}
	fmt.Printf("saved workflow %s\n", wf.ID)

	if err := facade.Build(ctx); err != nil {
		log.Fatalf("build: %v", err)
	}

	// Optionally seed the knowledge base from a local PDF.
	if path := os.Getenv("FLOWCANVAS_SEED_PDF"); path != "" {
		f, err := os.Open(path)
		if err != nil {
			log.Fatalf("open %s: %v", path, err)
		}
		controller := ingest.NewController(st, backend, ingest.WithLogger(logger))
		doc, err := controller.Upload(ctx, kb.ID, f, path, "default")
		_ = f.Close()
		if err != nil {
			log.Printf("upload/ingest: %v", err)
		} else {
			fmt.Printf("ingested document %s\n", doc.ID)
		}
	}

	session := chat.NewSession(app.ChatAPI(backend), st)
	if err := session.Open(ctx, wf.ID); err != nil {
		log.Fatalf("open chat: %v", err)
	}
	defer session.Close()

	if err := session.Send(ctx, "What does the knowledge base say?"); err != nil {
		log.Fatalf("send: %v", err)
	}
	for _, m := range session.Messages() {
		fmt.Printf("[%s] %s\n", m.Role, m.Content)
	}
}
