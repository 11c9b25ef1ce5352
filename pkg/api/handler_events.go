package api

import (
	"context"
	"net/http"
	"regexp"
	"strconv"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/hiveobs/hive/pkg/contentstore"
	"github.com/hiveobs/hive/pkg/models"
)

// ingestEventsHandler handles POST /v1/control/events: normalize, persist
// to the tiered store, hand summaries to the batcher, then recompute
// budget alerts in the background.
func (s *Server) ingestEventsHandler(c *echo.Context) error {
	var req ingestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.Events) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "events array is required")
	}

	team := teamID(c)
	batch := s.normalizer.Normalize(c.Request().Context(), team, req.Events)

	if _, err := s.eventStore.Upsert(c.Request().Context(), team, batch.Events, batch.Refs, batch.Blobs); err != nil {
		// Ingestion is not retried locally; the SDK retries.
		return s.mapServiceError(err)
	}

	s.batcher.Add(team, batch.Events)
	go s.recomputeBudgets(team)

	return c.JSON(http.StatusOK, ingestResponse{
		Success:   true,
		Processed: len(batch.Events),
		Skipped:   batch.Skipped,
	})
}

// recomputeBudgets rehydrates the default policy (which recomputes budget
// spend) and runs the alert pipeline over it.
func (s *Server) recomputeBudgets(team string) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	p, err := s.policyStore.Get(ctx, team, "")
	if err != nil {
		return
	}
	s.alerts.Evaluate(ctx, team, p)
}

// listEventsHandler handles GET /v1/control/events: raw rows, or grouped
// aggregations when group_by is present.
func (s *Server) listEventsHandler(c *echo.Context) error {
	start, err := parseTimeParam(c, "start")
	if err != nil {
		return err
	}
	end, err := parseTimeParam(c, "end")
	if err != nil {
		return err
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))

	if groupBy := c.QueryParam("group_by"); groupBy != "" {
		groups, err := s.analytics.GroupedLogs(c.Request().Context(), teamID(c), groupBy, start, end, limit, offset)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return c.JSON(http.StatusOK, map[string]any{"groups": groups})
	}

	rows, err := s.eventStore.ListEvents(c.Request().Context(), teamID(c), start, end, limit, offset)
	if err != nil {
		return s.mapServiceError(err)
	}
	if rows == nil {
		rows = []models.LLMEvent{}
	}
	return c.JSON(http.StatusOK, map[string]any{"events": rows})
}

// eventContentHandler handles GET /v1/control/events/:trace_id/:call_seq/content.
func (s *Server) eventContentHandler(c *echo.Context) error {
	callSeq, err := strconv.Atoi(c.Param("call_seq"))
	if err != nil || callSeq < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "call_seq must be a non-negative integer")
	}

	contents, err := s.eventStore.FetchEventContent(c.Request().Context(), teamID(c), c.Param("trace_id"), callSeq)
	if err != nil {
		return s.mapServiceError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"content": contents})
}

// storeContentHandler handles POST /v1/control/content.
func (s *Server) storeContentHandler(c *echo.Context) error {
	var req storeContentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.Items) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "items array is required")
	}

	team := teamID(c)
	for _, item := range req.Items {
		if item.ContentID == "" || item.ContentHash == "" || item.Content == "" {
			return echo.NewHTTPError(http.StatusBadRequest,
				"content_id, content_hash, and content are required on every item")
		}
		byteSize := item.ByteSize
		if byteSize == 0 {
			byteSize = len(item.Content)
		}
		err := s.contentStore.Put(c.Request().Context(), contentstore.Item{
			TeamID:      team,
			ContentID:   item.ContentID,
			ContentHash: item.ContentHash,
			Content:     item.Content,
			ByteSize:    byteSize,
		})
		if err != nil {
			return s.mapServiceError(err)
		}
	}

	return c.JSON(http.StatusOK, map[string]any{"success": true, "stored": len(req.Items)})
}

// getContentHandler handles GET /v1/control/content/:id.
func (s *Server) getContentHandler(c *echo.Context) error {
	item, err := s.contentStore.GetByID(c.Request().Context(), teamID(c), c.Param("id"))
	if err != nil {
		return s.mapServiceError(err)
	}
	return c.JSON(http.StatusOK, item)
}

// sha256Pattern validates the hash path parameter.
var sha256Pattern = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)

// getContentByHashHandler handles GET /v1/control/content/hash/:sha256.
// SDK-uploaded items are checked first, then the cold event store.
func (s *Server) getContentByHashHandler(c *echo.Context) error {
	hash := c.Param("sha256")
	if !sha256Pattern.MatchString(hash) {
		return echo.NewHTTPError(http.StatusBadRequest, "hash must be 64 hex characters")
	}

	item, err := s.contentStore.GetByHash(c.Request().Context(), teamID(c), hash)
	if err == nil {
		return c.JSON(http.StatusOK, item)
	}

	blob, err := s.eventStore.FetchContentByHash(c.Request().Context(), teamID(c), hash)
	if err != nil {
		return s.mapServiceError(err)
	}
	return c.JSON(http.StatusOK, blob)
}

// parseTimeParam parses an optional RFC3339 query parameter.
func parseTimeParam(c *echo.Context, name string) (*time.Time, error) {
	v := c.QueryParam(name)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, name+" must be RFC3339")
	}
	return &t, nil
}
