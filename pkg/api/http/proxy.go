package http

import (
	"io"
	"net/http"
	"net/textproto"

	"github.com/aescanero/routerd/internal/application/orchestrator"
	"github.com/aescanero/routerd/internal/graph"
	"github.com/aescanero/routerd/pkg/message"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// proxyHandler glues one configured route to its compiled graph: it binds
// the incoming request to a fresh RequestState, starts the orchestrator,
// and writes the aggregated multipart response. It holds no state beyond
// the graph and orchestrator references.
type proxyHandler struct {
	graph        *graph.CompiledGraph
	orchestrator *orchestrator.Orchestrator
	allowNested  bool
	logger       *zap.Logger
}

// aggregated is the finished multipart response handed to the waiting
// handler goroutine.
type aggregated struct {
	contentType string
	body        []byte
}

func newProxyHandler(g *graph.CompiledGraph, orch *orchestrator.Orchestrator, allowNested bool, logger *zap.Logger) *proxyHandler {
	return &proxyHandler{
		graph:        g,
		orchestrator: orch,
		allowNested:  allowNested,
		logger:       logger,
	}
}

func (h *proxyHandler) handle(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.String(http.StatusBadRequest, "failed to read request body")
		return
	}

	// The responder channel is buffered so a completion racing a client
	// disconnect is dropped, never blocked on.
	done := make(chan aggregated, 1)
	st := orchestrator.NewRequestState(
		h.graph,
		c.Request.Method,
		c.Request.URL.Path,
		h.clientParts(c.ContentType(), body),
		func(contentType string, body []byte) {
			done <- aggregated{contentType: contentType, body: body}
		},
	)

	h.orchestrator.Run(st)

	select {
	case resp := <-done:
		c.Data(http.StatusOK, resp.contentType, resp.body)
	case <-c.Request.Context().Done():
		h.logger.Debug("client disconnected before completion",
			zap.String("request_id", st.ID),
			zap.String("graph", h.graph.Name))
	}
}

// clientParts derives the client body's contribution to every outgoing
// downstream request. With nested requests enabled a multipart body is
// propagated part by part; otherwise the body is opaque and becomes one
// default-named part.
func (h *proxyHandler) clientParts(contentType string, body []byte) []message.Part {
	if h.allowNested {
		if parts, ok := message.Decode(contentType, body); ok {
			return parts
		}
	}

	if len(body) == 0 {
		return nil
	}

	header := make(textproto.MIMEHeader)
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	return []message.Part{{Name: message.DefaultChunkName, Header: header, Body: body}}
}
