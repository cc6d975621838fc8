// Command simulator serves a scripted canvas event stream over WebSocket
// for manual testing of the ingestion bridge: a document node is created,
// its content streams in chunks, then a component and an edge appear, and
// finally a second document version supersedes the first.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"canvas-engine/domain/core/entities"
	"canvas-engine/domain/core/valueobjects"
	"canvas-engine/domain/events"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func main() {
	addr := flag.String("addr", ":8000", "listen address")
	interval := flag.Duration("interval", 400*time.Millisecond, "delay between streamed events")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET"},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Get("/ws/canvas/{projectID}", func(w http.ResponseWriter, req *http.Request) {
		serveStream(w, req, logger, *interval)
	})

	srv := &http.Server{
		Addr:         *addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // streaming
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Starting simulator", zap.String("address", *addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down simulator...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", zap.Error(err))
	}
}

func serveStream(w http.ResponseWriter, req *http.Request, logger *zap.Logger, interval time.Duration) {
	projectID := valueobjects.ProjectID(chi.URLParam(req, "projectID"))
	logger = logger.With(zap.String("projectID", projectID.String()))

	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	logger.Info("Client connected", zap.String("remote", conn.RemoteAddr().String()))

	// Drain control frames so close and pong handling works.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	frames, err := scenario(projectID)
	if err != nil {
		logger.Error("Failed to build scenario", zap.Error(err))
		return
	}

	for i, frame := range frames {
		select {
		case <-done:
			logger.Info("Client disconnected mid-scenario", zap.Int("sent", i))
			return
		case <-time.After(interval):
		}
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			logger.Warn("Write failed", zap.Error(err))
			return
		}
	}

	logger.Info("Scenario complete", zap.Int("frames", len(frames)))
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "scenario complete"))
	<-done
}

// scenario builds the scripted frame sequence for one project.
func scenario(projectID valueobjects.ProjectID) ([][]byte, error) {
	doc, err := entities.NewVisualNode(entities.NodeTypeDocument, "Architecture Overview",
		valueobjects.NewPosition(120, 240, 0), &entities.DocumentData{
			DocumentID:   valueobjects.NewDocumentID(),
			Title:        "Architecture Overview",
			DocType:      "architecture",
			Format:       "markdown",
			Version:      1,
			IsLatest:     true,
			IsGenerating: true,
		})
	if err != nil {
		return nil, err
	}
	doc.ProjectID = projectID
	docID := doc.Document().DocumentID

	repo, err := entities.NewVisualNode(entities.NodeTypeGitHubRepo, "Repositories",
		valueobjects.NewPosition(480, 240, 0), &entities.ComponentData{
			Component: entities.NodeTypeGitHubRepo,
			ItemCount: 3,
		})
	if err != nil {
		return nil, err
	}
	repo.ProjectID = projectID

	edge := entities.NewVisualEdge(doc.ID, repo.ID, entities.EdgeTypeReferences)

	v2 := doc.Clone()
	v2.ID = valueobjects.NewNodeID()
	v2.Label = "Architecture Overview v2"
	v2.Position = doc.Position.Translate(0, -20).Raise(1)
	v2.ParentID = doc.ID
	v2Doc := v2.Document()
	v2Doc.DocumentID = valueobjects.NewDocumentID()
	v2Doc.Content = "# Architecture Overview\n\nRevised for the new ingestion path.\n"
	v2Doc.Version = 2
	v2Doc.ParentVersionID = docID
	v2Doc.IsGenerating = false
	v2Doc.GenerationProgress = 1

	type frameSpec struct {
		kind    events.Kind
		payload interface{}
	}
	specs := []frameSpec{
		{events.KindNodeCreated, map[string]interface{}{
			"layer": "documentation", "node": doc,
		}},
		{events.KindContentChunk, map[string]interface{}{
			"document_id": docID, "chunk": "# Architecture Overview\n\n", "progress": 0.2,
		}},
		{events.KindContentChunk, map[string]interface{}{
			"document_id": docID, "chunk": "The engine keeps three canvas layers ", "progress": 0.5,
		}},
		{events.KindContentChunk, map[string]interface{}{
			"document_id": docID, "chunk": "synchronized over a WebSocket stream.\n", "progress": 0.9,
		}},
		{events.KindGenerationComplete, map[string]interface{}{
			"document_id": docID,
		}},
		{events.KindNodeCreated, map[string]interface{}{
			"layer": "documentation", "node": repo,
		}},
		{events.KindEdgeCreated, map[string]interface{}{
			"layer": "documentation", "edge": edge,
		}},
		{events.KindNodeUpdate, map[string]interface{}{
			"node_id":   repo.ID,
			"node_data": map[string]interface{}{"item_count": 4},
		}},
		{events.KindVersionCreated, map[string]interface{}{
			"document_id": v2Doc.DocumentID, "version": 2, "node": v2,
		}},
	}

	frames := make([][]byte, 0, len(specs))
	for _, spec := range specs {
		frame, err := events.EncodeEnvelope(spec.kind, spec.payload)
		if err != nil {
			return nil, err
		}
		frames = append(frames, frame)
	}
	return frames, nil
}
