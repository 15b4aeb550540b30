package server

import (
	"io"
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/Inferara/web3-canvas-sub000/internal/engine"
	"github.com/Inferara/web3-canvas-sub000/internal/flowfile"
	"github.com/Inferara/web3-canvas-sub000/internal/graph"
	"github.com/Inferara/web3-canvas-sub000/internal/persist"
)

// classify maps a domain error onto an HTTP status and a stable code
func classify(err error) (int, string) {
	var rejected *graph.ConnectionRejected
	switch {
	case errors.As(err, &rejected):
		return http.StatusConflict, strings.ToUpper(string(rejected.Reason))
	case errors.Is(err, graph.ErrNodeNotFound),
		errors.Is(err, graph.ErrEdgeNotFound),
		errors.Is(err, persist.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, graph.ErrUnknownKind):
		return http.StatusBadRequest, "UNKNOWN_KIND"
	case errors.Is(err, graph.ErrReservedField):
		return http.StatusBadRequest, "RESERVED_FIELD"
	case errors.Is(err, flowfile.ErrSerialization):
		return http.StatusBadRequest, "SERIALIZATION"
	case errors.Is(err, engine.ErrClosed), errors.Is(err, persist.ErrClosed):
		return http.StatusServiceUnavailable, "CLOSED"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "route", c.FullPath(), "error", err)
	} else {
		s.logger.Debug("request rejected", "route", c.FullPath(), "code", code, "error", err)
	}
	c.AbortWithStatusJSON(status, ErrorResponse{Error: err.Error(), Code: code})
}

func (s *Server) badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_REQUEST"})
}

// node writes the current state of id
func (s *Server) node(c *gin.Context, status int, id string) {
	n, ok := s.session.Store().Node(id)
	if !ok {
		s.fail(c, errors.Wrapf(graph.ErrNodeNotFound, "%q", id))
		return
	}
	c.JSON(status, n)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "ok",
		GraphID: s.session.Store().ID(),
		Nodes:   s.session.Store().Len(),
	})
}

func (s *Server) palette(c *gin.Context) {
	c.JSON(http.StatusOK, s.session.Palette())
}

func (s *Server) getGraph(c *gin.Context) {
	c.JSON(http.StatusOK, s.session.Graph())
}

// putGraph replaces the graph with an exported file
func (s *Server) putGraph(c *gin.Context) {
	data, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, flowfile.MaxFileSize))
	if err != nil {
		s.badRequest(c, err)
		return
	}
	if err := s.session.Import(c.Request.Context(), data); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, GraphResponse{Graph: s.session.Graph()})
}

func (s *Server) export(c *gin.Context) {
	data, name, err := s.session.Export()
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, "application/json", data)
}

func (s *Server) share(c *gin.Context) {
	link, err := s.session.ShareURL()
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ShareResponse{URL: link})
}

func (s *Server) loadShare(c *gin.Context) {
	var req ShareLoadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	if err := s.session.LoadShareURL(c.Request.Context(), req.URL); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, GraphResponse{Graph: s.session.Graph()})
}

func (s *Server) save(c *gin.Context) {
	var req SaveRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			s.badRequest(c, err)
			return
		}
	}
	snap, err := s.session.Save(c.Request.Context(), req.Label)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, snap)
}

func (s *Server) snapshots(c *gin.Context) {
	list, err := s.session.Snapshots(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	if list == nil {
		list = []persist.Snapshot{}
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) restore(c *gin.Context) {
	if err := s.session.Restore(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, GraphResponse{Graph: s.session.Graph()})
}

// addNode drops a node and applies its initial fields. A node whose fields
// cannot be applied is removed again.
func (s *Server) addNode(c *gin.Context) {
	var req AddNodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	eng := s.session.Engine()
	n, err := eng.AddNode(ctx, req.Kind, req.Position)
	if err != nil {
		s.fail(c, err)
		return
	}
	if err := s.apply(c, n.ID, req.Fields); err != nil {
		if rmErr := eng.RemoveNode(ctx, n.ID); rmErr != nil {
			s.logger.Warn("could not roll back node", "id", n.ID, "error", rmErr)
		}
		s.fail(c, err)
		return
	}
	s.node(c, http.StatusCreated, n.ID)
}

func (s *Server) apply(c *gin.Context, id string, fields map[string]string) error {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if err := s.session.Engine().SetField(c.Request.Context(), id, k, fields[k]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) removeNode(c *gin.Context) {
	if err := s.session.Engine().RemoveNode(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) setFields(c *gin.Context) {
	var req SetFieldsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	id := c.Param("id")
	if err := s.apply(c, id, req.Fields); err != nil {
		s.fail(c, err)
		return
	}
	s.node(c, http.StatusOK, id)
}

func (s *Server) moveNode(c *gin.Context) {
	var req MoveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	id := c.Param("id")
	eng := s.session.Engine()
	if err := eng.MoveNode(id, req.Position); err != nil {
		s.fail(c, err)
		return
	}
	if req.Size != nil {
		if err := eng.ResizeNode(id, req.Size); err != nil {
			s.fail(c, err)
			return
		}
	}
	s.node(c, http.StatusOK, id)
}

// refresh re-triggers a node. I/O results arrive later on the stream.
func (s *Server) refresh(c *gin.Context) {
	id := c.Param("id")
	if err := s.session.Engine().Refresh(c.Request.Context(), id); err != nil {
		s.fail(c, err)
		return
	}
	s.node(c, http.StatusAccepted, id)
}

func (s *Server) connect(c *gin.Context) {
	var req ConnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	edge, err := s.session.Engine().Connect(c.Request.Context(), graph.EdgeCandidate{
		Source:       req.Source,
		SourceHandle: req.SourceHandle,
		Target:       req.Target,
		TargetHandle: req.TargetHandle,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, edge)
}

func (s *Server) disconnect(c *gin.Context) {
	if err := s.session.Engine().Disconnect(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
