package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"canvas-engine/application/store"
	"canvas-engine/domain/core/entities"
	"canvas-engine/domain/core/valueobjects"
	pkgerrors "canvas-engine/pkg/errors"
)

const serviceName = "project-api"

// Project is the collaborator's project resource.
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Status      string    `json:"status,omitempty"`
	GitHubOrg   string    `json:"github_org,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

// CreateProjectRequest is the payload for creating a project.
type CreateProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	GitHubOrg   string `json:"github_org,omitempty"`
}

// DocumentSummary lists a document without its content.
type DocumentSummary struct {
	DocumentID string    `json:"document_id"`
	ProjectID  string    `json:"project_id"`
	Title      string    `json:"title"`
	DocType    string    `json:"doc_type"`
	Version    int       `json:"version"`
	IsLatest   bool      `json:"is_latest"`
	UpdatedAt  time.Time `json:"updated_at,omitempty"`
}

// DocumentDetail is a full document version.
type DocumentDetail struct {
	DocumentSummary
	Content         string   `json:"content"`
	Format          string   `json:"format,omitempty"`
	ParentVersionID string   `json:"parent_version_id,omitempty"`
	Tags            []string `json:"tags,omitempty"`
}

// Template describes an available document template.
type Template struct {
	Name        string `json:"name"`
	DocType     string `json:"doc_type"`
	Description string `json:"description,omitempty"`
}

// VersionDiff is the result of comparing two document versions.
type VersionDiff struct {
	DocumentID  string `json:"document_id"`
	FromVersion int    `json:"from_version"`
	ToVersion   int    `json:"to_version"`
	Diff        string `json:"diff"`
}

// LayerSnapshot is one layer's node and edge collections as served by the
// collaborator.
type LayerSnapshot struct {
	Nodes []*entities.VisualNode `json:"nodes"`
	Edges []*entities.VisualEdge `json:"edges"`
}

// GraphSnapshot is a project's full canvas state, keyed by layer name.
type GraphSnapshot struct {
	ProjectID string                   `json:"project_id"`
	Layers    map[string]LayerSnapshot `json:"layers"`
}

// Client talks to the project-management server over JSON/HTTP. Every
// request runs through a circuit breaker; when the breaker is open the
// call fails fast with an unavailable error instead of hitting the wire.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// ClientConfig holds the client's connection parameters.
type ClientConfig struct {
	BaseURL string
	Timeout time.Duration

	// Breaker tuning; zero values take the defaults below.
	BreakerMaxRequests      uint32
	BreakerInterval         time.Duration
	BreakerTimeout          time.Duration
	BreakerFailureThreshold float64
	BreakerMinRequests      uint32
}

// NewClient creates a collaborator client.
func NewClient(cfg ClientConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.BreakerMaxRequests == 0 {
		cfg.BreakerMaxRequests = 5
	}
	if cfg.BreakerInterval <= 0 {
		cfg.BreakerInterval = 30 * time.Second
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 60 * time.Second
	}
	if cfg.BreakerFailureThreshold <= 0 {
		cfg.BreakerFailureThreshold = 0.8
	}
	if cfg.BreakerMinRequests == 0 {
		cfg.BreakerMinRequests = 5
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        serviceName,
		MaxRequests: cfg.BreakerMaxRequests,
		Interval:    cfg.BreakerInterval,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.BreakerMinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.BreakerFailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		// Client-side faults (not found, validation, duplicates) are
		// answers, not outages; only transport and server failures trip
		// the breaker.
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			appErr := pkgerrors.GetAppError(err)
			if appErr == nil {
				return false
			}
			switch appErr.Type {
			case pkgerrors.ErrorTypeNotFound,
				pkgerrors.ErrorTypeValidation,
				pkgerrors.ErrorTypeDuplicateID:
				return true
			default:
				return false
			}
		},
	})

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: cb,
		logger:  logger,
	}
}

// ListProjects fetches every project.
func (c *Client) ListProjects(ctx context.Context) ([]Project, error) {
	var out []Project
	err := c.do(ctx, http.MethodGet, "/api/projects", nil, &out)
	return out, err
}

// GetProject fetches one project by id.
func (c *Client) GetProject(ctx context.Context, id valueobjects.ProjectID) (*Project, error) {
	var out Project
	if err := c.do(ctx, http.MethodGet, "/api/projects/"+id.String(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateProject creates a project.
func (c *Client) CreateProject(ctx context.Context, req CreateProjectRequest) (*Project, error) {
	var out Project
	if err := c.do(ctx, http.MethodPost, "/api/projects", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteProject deletes a project.
func (c *Client) DeleteProject(ctx context.Context, id valueobjects.ProjectID) error {
	return c.do(ctx, http.MethodDelete, "/api/projects/"+id.String(), nil, nil)
}

// ListDocuments lists a project's documents.
func (c *Client) ListDocuments(ctx context.Context, projectID valueobjects.ProjectID) ([]DocumentSummary, error) {
	var out []DocumentSummary
	err := c.do(ctx, http.MethodGet, "/api/projects/"+projectID.String()+"/documents", nil, &out)
	return out, err
}

// GetDocument fetches one document version with its content.
func (c *Client) GetDocument(ctx context.Context, docID valueobjects.DocumentID) (*DocumentDetail, error) {
	var out DocumentDetail
	if err := c.do(ctx, http.MethodGet, "/api/documents/"+docID.String(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListTemplates fetches the available document templates.
func (c *Client) ListTemplates(ctx context.Context) ([]Template, error) {
	var out []Template
	err := c.do(ctx, http.MethodGet, "/api/documents/templates", nil, &out)
	return out, err
}

// CreateVersion asks the server to supersede a document with new content.
func (c *Client) CreateVersion(ctx context.Context, docID valueobjects.DocumentID, content string, tags []string) (*DocumentDetail, error) {
	body := map[string]interface{}{"content": content}
	if len(tags) > 0 {
		body["tags"] = tags
	}
	var out DocumentDetail
	if err := c.do(ctx, http.MethodPost, "/api/documents/"+docID.String()+"/versions", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RevertDocument asks the server to create a new latest version carrying
// a historical version's content.
func (c *Client) RevertDocument(ctx context.Context, docID valueobjects.DocumentID, version int) (*DocumentDetail, error) {
	body := map[string]int{"version": version}
	var out DocumentDetail
	if err := c.do(ctx, http.MethodPost, "/api/documents/"+docID.String()+"/revert", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CompareVersions fetches the diff between two versions of a document.
func (c *Client) CompareVersions(ctx context.Context, docID valueobjects.DocumentID, from, to int) (*VersionDiff, error) {
	path := fmt.Sprintf("/api/documents/%s/compare?from=%d&to=%d", docID.String(), from, to)
	var out VersionDiff
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchGraph fetches a project's full canvas state.
func (c *Client) FetchGraph(ctx context.Context, projectID valueobjects.ProjectID) (*GraphSnapshot, error) {
	var out GraphSnapshot
	if err := c.do(ctx, http.MethodGet, "/api/projects/"+projectID.String()+"/graph", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateNode persists a node on the server.
func (c *Client) CreateNode(ctx context.Context, projectID valueobjects.ProjectID, node *entities.VisualNode) (*entities.VisualNode, error) {
	var out entities.VisualNode
	if err := c.do(ctx, http.MethodPost, "/api/projects/"+projectID.String()+"/nodes", node, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateNodePosition persists a node position change.
func (c *Client) UpdateNodePosition(ctx context.Context, nodeID valueobjects.NodeID, pos valueobjects.Position) error {
	return c.do(ctx, http.MethodPatch, "/api/nodes/"+nodeID.String()+"/position", pos, nil)
}

// DeleteNode deletes a node on the server.
func (c *Client) DeleteNode(ctx context.Context, nodeID valueobjects.NodeID) error {
	return c.do(ctx, http.MethodDelete, "/api/nodes/"+nodeID.String(), nil, nil)
}

// CreateEdge persists an edge on the server.
func (c *Client) CreateEdge(ctx context.Context, projectID valueobjects.ProjectID, edge *entities.VisualEdge) (*entities.VisualEdge, error) {
	var out entities.VisualEdge
	if err := c.do(ctx, http.MethodPost, "/api/projects/"+projectID.String()+"/edges", edge, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteEdge deletes an edge on the server.
func (c *Client) DeleteEdge(ctx context.Context, edgeID valueobjects.EdgeID) error {
	return c.do(ctx, http.MethodDelete, "/api/edges/"+edgeID.String(), nil, nil)
}

// SyncStore fetches a project's graph and replaces every layer's state in
// the store. Used for the initial load and as the bridge's resync hook.
func (c *Client) SyncStore(ctx context.Context, canvas *store.CanvasStore, projectID valueobjects.ProjectID) error {
	snapshot, err := c.FetchGraph(ctx, projectID)
	if err != nil {
		return err
	}
	for _, layer := range valueobjects.Layers() {
		ls := snapshot.Layers[layer.String()]
		if err := canvas.SetNodes(layer, ls.Nodes); err != nil {
			return err
		}
		if err := canvas.SetEdges(layer, ls.Edges); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.doOnce(ctx, method, path, body, out)
	})
	switch err {
	case nil:
		return nil
	case gobreaker.ErrOpenState, gobreaker.ErrTooManyRequests:
		return pkgerrors.NewUnavailableError(serviceName, err)
	default:
		return err
	}
}

func (c *Client) doOnce(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.NewInternalError("encode request body: " + err.Error())
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return pkgerrors.NewInternalError("build request: " + err.Error())
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return pkgerrors.NewExternalError(serviceName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.statusError(resp, method, path)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return pkgerrors.NewExternalError(serviceName, fmt.Errorf("decode %s %s response: %w", method, path, err))
	}
	return nil
}

func (c *Client) statusError(resp *http.Response, method, path string) error {
	// The server's error body is {"detail": "..."} when present.
	detail := resp.Status
	var payload struct {
		Detail string `json:"detail"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if json.Unmarshal(raw, &payload) == nil && payload.Detail != "" {
		detail = payload.Detail
	}

	c.logger.Debug("request failed",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
	)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return pkgerrors.NewNotFoundError("resource", path)
	case resp.StatusCode == http.StatusConflict:
		return pkgerrors.NewDuplicateIDError("resource", path)
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		return pkgerrors.NewValidationError(detail)
	case resp.StatusCode == http.StatusServiceUnavailable:
		return pkgerrors.NewUnavailableError(serviceName, fmt.Errorf("%s", detail))
	default:
		return pkgerrors.NewExternalError(serviceName, fmt.Errorf("%s %s: %s", method, path, detail))
	}
}
