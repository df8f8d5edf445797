package api

import (
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/MahyudeenShahid/trade-analysis/internal/engine"
	"github.com/MahyudeenShahid/trade-analysis/internal/state"
	"github.com/MahyudeenShahid/trade-analysis/pkg/cache"
	"github.com/MahyudeenShahid/trade-analysis/pkg/db"
)

type ingestForm struct {
	WindowID  string `form:"window_id" binding:"required"`
	Price     string `form:"price" binding:"required"`
	Trend     string `form:"trend"`
	Ticker    string `form:"ticker"`
	Name      string `form:"name"`
	Meta      string `form:"meta"`
	Timestamp string `form:"timestamp"`
}

type listTradesQuery struct {
	WindowID  string `form:"window_id"`
	Ticker    string `form:"ticker"`
	Side      string `form:"side"`
	WinReason string `form:"win_reason"`
	Days      int    `form:"days"`
	StartTS   string `form:"start_ts"`
	EndTS     string `form:"end_ts"`
	Limit     int    `form:"limit"`
	Offset    int    `form:"offset"`
}

type listObservationsQuery struct {
	WindowID string `form:"window_id"`
	Ticker   string `form:"ticker"`
	Trend    string `form:"trend"`
	Days     int    `form:"days"`
	Limit    int    `form:"limit"`
	Offset   int    `form:"offset"`
}

type manualTradeRequest struct {
	WindowID string  `json:"window_id" binding:"required"`
	Price    float64 `json:"price"`
}

type updateConfigRequest struct {
	Name   string `json:"name"`
	Ticker string `json:"ticker"`
	state.ConfigPatch
}

type observationView struct {
	ID       string    `json:"id"`
	WindowID string    `json:"window_id"`
	Ticker   string    `json:"ticker,omitempty"`
	Name     string    `json:"name,omitempty"`
	Price    float64   `json:"price"`
	Trend    string    `json:"trend"`
	ImageURL string    `json:"image_url,omitempty"`
	Meta     string    `json:"meta,omitempty"`
	TS       time.Time `json:"ts"`
}

func (q *listTradesQuery) normalize() {
	if q.Limit <= 0 {
		q.Limit = 100
	}
	if q.Limit > 500 {
		q.Limit = 500
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	if q.Days < 0 {
		q.Days = 0
	}
}

func (q *listObservationsQuery) normalize() {
	if q.Limit <= 0 {
		q.Limit = 100
	}
	if q.Limit > 500 {
		q.Limit = 500
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	if q.Days < 0 {
		q.Days = 0
	}
}

func respondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, gin.H{
		"code":  code,
		"error": msg,
	})
}

// ingest accepts one observation from a capture worker: price and trend for
// a window, plus an optional screenshot. The tick runs through the engine
// synchronously so the caller sees the decision it produced.
func (s *Server) ingest(c *gin.Context) {
	var form ingestForm
	if err := c.ShouldBind(&form); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "window_id and price are required")
		return
	}

	price, err := state.ParsePrice(form.Price)
	if err != nil || price <= 0 {
		respondError(c, http.StatusBadRequest, "INVALID_PRICE", "price must be a positive number")
		return
	}

	trend, known := state.ParseTrend(form.Trend)
	if !known {
		s.Log.Warn().
			Str("window_id", form.WindowID).
			Str("trend", form.Trend).
			Msg("unknown trend value, treating as FLAT")
	}

	ts := time.Now().UTC()
	if form.Timestamp != "" {
		parsed, err := time.Parse(time.RFC3339, form.Timestamp)
		if err != nil {
			respondError(c, http.StatusBadRequest, "INVALID_TIMESTAMP", "timestamp must be RFC3339")
			return
		}
		ts = parsed.UTC()
	}

	ticker := strings.ToUpper(strings.TrimSpace(form.Ticker))

	var imagePath, imageURL string
	if fh, err := c.FormFile("file"); err == nil && fh != nil {
		name := uuid.NewString() + imageExt(fh.Filename)
		if err := c.SaveUploadedFile(fh, filepath.Join(s.Cfg.UploadsDir, name)); err != nil {
			s.Log.Error().Err(err).Str("window_id", form.WindowID).Msg("failed to store screenshot")
			respondError(c, http.StatusInternalServerError, "UPLOAD_FAILED", "failed to store screenshot")
			return
		}
		imagePath = name
		imageURL = "/uploads/" + name
	}

	ctx := c.Request.Context()
	if err := s.DB.TouchBot(ctx, form.WindowID, form.Name, ticker, form.Meta); err != nil {
		s.Log.Error().Err(err).Str("window_id", form.WindowID).Msg("failed to refresh bot row")
	}

	if s.Cache != nil {
		s.Cache.Set(cache.Entry{
			WindowID:  form.WindowID,
			Ticker:    ticker,
			Name:      form.Name,
			Price:     price,
			Trend:     string(trend),
			ImagePath: imagePath,
			TS:        ts,
		})
	}

	obsID := uuid.NewString()
	if s.Recorder != nil {
		s.Recorder.RecordObservation(db.Observation{
			ID:        obsID,
			WindowID:  form.WindowID,
			Ticker:    ticker,
			Name:      form.Name,
			Price:     price,
			Trend:     string(trend),
			ImagePath: imagePath,
			Meta:      form.Meta,
			TS:        ts,
		})
	}

	out := s.Engine.ProcessTick(engine.Tick{
		WindowID: form.WindowID,
		Ticker:   ticker,
		Name:     form.Name,
		Price:    price,
		Trend:    trend,
		TS:       ts,
	})

	c.JSON(http.StatusOK, gin.H{
		"id":        obsID,
		"window_id": form.WindowID,
		"action":    out.Decision.Action,
		"decision":  out.Decision,
		"records":   out.Records,
		"snapshot":  out.Snapshot,
		"image_url": imageURL,
	})
}

func imageExt(filename string) string {
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp":
		return ext
	default:
		return ".png"
	}
}

// listBots returns every tracked window: live snapshot, trade aggregates
// and the rule config in effect.
func (s *Server) listBots(c *gin.Context) {
	ids := s.Store.WindowIDs()
	out := make([]gin.H, 0, len(ids))
	for _, id := range ids {
		view, err := s.botView(id)
		if err != nil {
			// Removed between listing and lookup.
			continue
		}
		out = append(out, view)
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) botView(windowID string) (gin.H, error) {
	snap, err := s.Store.Snapshot(windowID)
	if err != nil {
		return nil, err
	}
	sum, err := s.Store.Summary(windowID)
	if err != nil {
		return nil, err
	}
	cfg, err := s.Store.Config(windowID)
	if err != nil {
		return nil, err
	}
	return gin.H{
		"window_id": windowID,
		"snapshot":  snap,
		"summary":   sum,
		"config":    cfg,
	}, nil
}

func (s *Server) getBot(c *gin.Context) {
	view, err := s.botView(c.Param("window_id"))
	if err != nil {
		respondError(c, http.StatusNotFound, "UNKNOWN_WINDOW", "window not tracked")
		return
	}
	c.JSON(http.StatusOK, view)
}

// deleteBot force-closes any open position, then drops the window from the
// store and the bots table. Trade history is kept.
func (s *Server) deleteBot(c *gin.Context) {
	windowID := c.Param("window_id")
	records, err := s.Engine.RemoveWindow(c.Request.Context(), windowID)
	if err != nil {
		if errors.Is(err, state.ErrUnknownWindow) {
			respondError(c, http.StatusNotFound, "UNKNOWN_WINDOW", "window not tracked")
			return
		}
		respondError(c, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "removed",
		"window_id": windowID,
		"records":   records,
	})
}

func (s *Server) getBotConfig(c *gin.Context) {
	cfg, err := s.Store.Config(c.Param("window_id"))
	if err != nil {
		respondError(c, http.StatusNotFound, "UNKNOWN_WINDOW", "window not tracked")
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// updateBotConfig applies a rule-config update for a window, creating the
// window if it is not tracked yet. Invalid values are rejected and the
// window keeps trading on its prior config; valid updates take effect on
// the next tick.
func (s *Server) updateBotConfig(c *gin.Context) {
	windowID := c.Param("window_id")

	var req updateConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request payload")
		return
	}

	ticker := strings.ToUpper(strings.TrimSpace(req.Ticker))
	cfg, err := s.Engine.ApplyConfig(c.Request.Context(), windowID, req.Name, ticker, req.ConfigPatch)
	if err != nil {
		if errors.Is(err, state.ErrInvalidConfig) {
			respondError(c, http.StatusBadRequest, "INVALID_CONFIG", err.Error())
			return
		}
		respondError(c, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"window_id": windowID,
		"config":    cfg,
	})
}

// listTrades returns persisted trade legs, newest first. The total match
// count goes out in X-Total-Count for pagination.
func (s *Server) listTrades(c *gin.Context) {
	var q listTradesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_QUERY", "invalid query parameters")
		return
	}
	q.normalize()

	f := db.TradeFilter{
		WindowID:  q.WindowID,
		Ticker:    q.Ticker,
		Side:      q.Side,
		WinReason: q.WinReason,
		Days:      q.Days,
		Limit:     q.Limit,
		Offset:    q.Offset,
	}
	var err error
	if f.StartTS, err = parseQueryTS(q.StartTS); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_QUERY", "start_ts must be RFC3339")
		return
	}
	if f.EndTS, err = parseQueryTS(q.EndTS); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_QUERY", "end_ts must be RFC3339")
		return
	}

	trades, total, err := s.DB.ListTrades(c.Request.Context(), f)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}

	out := make([]state.TradeRecord, 0, len(trades))
	for _, t := range trades {
		out = append(out, state.RecordFromTrade(t))
	}

	c.Header("X-Total-Count", strconv.Itoa(total))
	c.JSON(http.StatusOK, out)
}

func parseQueryTS(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// tradeSummary reports per-window aggregates from live state.
func (s *Server) tradeSummary(c *gin.Context) {
	c.JSON(http.StatusOK, s.Store.Summaries())
}

// manualTrade toggles a window's position by hand: flat buys, holding
// sells. With no price in the payload, the last observed price is used.
func (s *Server) manualTrade(c *gin.Context) {
	var req manualTradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "window_id is required")
		return
	}

	out, err := s.Engine.ManualTrade(req.WindowID, req.Price)
	if err != nil {
		switch {
		case errors.Is(err, state.ErrUnknownWindow):
			respondError(c, http.StatusNotFound, "UNKNOWN_WINDOW", "window not tracked")
		case errors.Is(err, engine.ErrNoPrice):
			respondError(c, http.StatusConflict, "NO_PRICE", "window has no observed price yet")
		default:
			respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		}
		return
	}
	c.JSON(http.StatusOK, out)
}

// closeAllTrades force-sells every open position at its entry price so no
// buy leg is left without a matching sell.
func (s *Server) closeAllTrades(c *gin.Context) {
	records := s.Engine.CloseAll()
	c.JSON(http.StatusOK, gin.H{
		"closed":  len(records),
		"records": records,
	})
}

// latestTicks returns the most recent observation per window, straight from
// the cache.
func (s *Server) latestTicks(c *gin.Context) {
	if s.Cache == nil {
		c.JSON(http.StatusOK, []cache.Entry{})
		return
	}
	entries := s.Cache.All()
	if entries == nil {
		entries = []cache.Entry{}
	}
	c.JSON(http.StatusOK, entries)
}

// listObservations returns persisted observation rows, newest first.
func (s *Server) listObservations(c *gin.Context) {
	var q listObservationsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_QUERY", "invalid query parameters")
		return
	}
	q.normalize()

	obs, total, err := s.DB.ListObservations(c.Request.Context(), db.ObservationFilter{
		WindowID: q.WindowID,
		Ticker:   q.Ticker,
		Trend:    q.Trend,
		Days:     q.Days,
		Limit:    q.Limit,
		Offset:   q.Offset,
	})
	if err != nil {
		respondError(c, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}

	out := make([]observationView, 0, len(obs))
	for _, o := range obs {
		v := observationView{
			ID:       o.ID,
			WindowID: o.WindowID,
			Ticker:   o.Ticker,
			Name:     o.Name,
			Price:    o.Price,
			Trend:    o.Trend,
			Meta:     o.Meta,
			TS:       o.TS,
		}
		if o.ImagePath != "" {
			v.ImageURL = "/uploads/" + o.ImagePath
		}
		out = append(out, v)
	}

	c.Header("X-Total-Count", strconv.Itoa(total))
	c.JSON(http.StatusOK, out)
}

// getMetrics returns engine and system performance metrics.
func (s *Server) getMetrics(c *gin.Context) {
	if s.Metrics == nil {
		respondError(c, http.StatusServiceUnavailable, "METRICS_UNAVAILABLE", "metrics not available")
		return
	}

	out := gin.H{
		"system":  s.Metrics.GetSnapshot(),
		"windows": s.Store.Len(),
	}
	if s.Recorder != nil {
		out["writer"] = s.Recorder.WriterMetrics()
		out["write_queue_pending"] = s.Recorder.QueueLen()
	}
	if s.Bus != nil {
		out["bus_dropped"] = s.Bus.Dropped()
	}
	if s.Cache != nil {
		out["cache_entries"] = s.Cache.Len()
	}
	c.JSON(http.StatusOK, out)
}
