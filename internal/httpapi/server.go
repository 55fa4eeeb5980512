// Package httpapi exposes the mutation ledger over HTTP and provides the
// matching sync.Transport client. The API carries intents and authoritative
// results only; authentication and session handling live in front of it.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/alexanderramin/treeline/internal/cache"
	"github.com/alexanderramin/treeline/internal/domain"
	"github.com/alexanderramin/treeline/internal/ledger"
	"github.com/alexanderramin/treeline/internal/repository"
)

// Server wires ledger operations to echo handlers.
type Server struct {
	ledger  *ledger.Ledger
	cache   *cache.Children // optional
	logger  *log.Logger
	timeout time.Duration
}

// Register wires up the API endpoints on the given Echo instance. cache may
// be nil, in which case reads always hit the store.
func Register(e *echo.Echo, ld *ledger.Ledger, ch *cache.Children, logger *log.Logger, timeout time.Duration) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	s := &Server{ledger: ld, cache: ch, logger: logger, timeout: timeout}

	e.POST("/projects/:projectID/mutations", s.handleMutation)
	e.GET("/projects/:projectID/children", s.handleChildren)
	e.GET("/projects/:projectID/tree", s.handleTree)
	e.GET("/projects/:projectID/history", s.handleHistory)
}

func (s *Server) handleMutation(c echo.Context) error {
	projectID := c.Param("projectID")

	var req MutationRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "malformed mutation request"})
	}
	intent := req.Intent(projectID)

	ctx, cancel := context.WithTimeout(c.Request().Context(), s.timeout)
	defer cancel()

	// Remember the groups a move or delete leaves behind, for cache
	// invalidation after commit. Best effort: a miss just means the read
	// path refills from the store.
	var oldParent *string
	var hadOldParent bool
	if s.cache != nil && intent.ItemID != "" && intent.Kind != domain.MutationInsert {
		if before, err := s.ledger.Item(ctx, intent.ItemID); err == nil {
			oldParent = before.ParentID
			hadOldParent = true
		}
	}

	res, err := s.ledger.Apply(ctx, intent)
	if err != nil {
		return s.writeError(c, err)
	}

	if s.cache != nil {
		groups := []*string{intent.NewParentID}
		if hadOldParent {
			groups = append(groups, oldParent)
		}
		for i := range res.Promoted {
			groups = append(groups, res.Promoted[i].ParentID)
		}
		s.cache.Invalidate(ctx, projectID, groups...)
	}

	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleChildren(c echo.Context) error {
	projectID := c.Param("projectID")
	var parentID *string
	if parent := c.QueryParam("parent"); parent != "" {
		parentID = &parent
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), s.timeout)
	defer cancel()

	if s.cache != nil {
		if items, ok := s.cache.Get(ctx, projectID, parentID); ok {
			return c.JSON(http.StatusOK, toItems(items))
		}
	}

	items, err := s.ledger.Children(ctx, projectID, parentID)
	if err != nil {
		return s.writeError(c, err)
	}
	if s.cache != nil {
		s.cache.Set(ctx, projectID, parentID, items)
	}
	return c.JSON(http.StatusOK, toItems(items))
}

func (s *Server) handleTree(c echo.Context) error {
	projectID := c.Param("projectID")

	ctx, cancel := context.WithTimeout(c.Request().Context(), s.timeout)
	defer cancel()

	items, err := s.ledger.Snapshot(ctx, projectID)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, toItems(items))
}

func (s *Server) handleHistory(c echo.Context) error {
	projectID := c.Param("projectID")
	limit := 50
	if v := c.QueryParam("limit"); v != "" {
		if err := echo.QueryParamsBinder(c).Int("limit", &limit).BindError(); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "malformed limit"})
		}
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), s.timeout)
	defer cancel()

	entries, err := s.ledger.History(ctx, projectID, limit)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, entries)
}

// writeError maps ledger errors onto status codes: conflicts are 409 with a
// structured reason, missing rows 404, timeouts 504. Everything else is a
// 500 logged server-side and kept opaque to the caller.
func (s *Server) writeError(c echo.Context, err error) error {
	var conflictErr *domain.ConflictError
	if errors.As(err, &conflictErr) {
		return c.JSON(http.StatusConflict, ConflictResponse{
			Reason: string(conflictErr.Reason),
			ItemID: conflictErr.ItemID,
			Detail: conflictErr.Detail,
		})
	}
	if errors.Is(err, repository.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	}
	if errors.Is(err, ledger.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return c.JSON(http.StatusGatewayTimeout, map[string]string{"error": "mutation timed out"})
	}
	s.logger.WithError(err).Error("mutation ledger failure")
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
}
