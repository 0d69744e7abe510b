package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-lensmon/pkg/hub"
	"github.com/teslashibe/go-lensmon/pkg/store"
)

// reserved payload keys that are not copied into a reading's context
var reservedKeys = map[string]bool{"timestamp": true, "frame": true, "device": true}

// isoLocal is the timestamp format of clients that send naive local times.
const isoLocal = "2006-01-02T15:04:05.999999"

func errorBody(msg string) fiber.Map {
	return fiber.Map{"status": "error", "message": msg}
}

// Ingest validates and records one reading. It backs both the HTTP and
// websocket ingest paths and returns the HTTP status and response body.
func (s *Server) Ingest(ctx context.Context, metric string, body []byte) (int, fiber.Map) {
	m, ok := LookupMetric(metric)
	if !ok {
		return fiber.StatusNotFound, errorBody(fmt.Sprintf("Unknown metric %q", metric))
	}
	// metric may alias a request buffer that fiber reuses; keep the registry's copy
	metric = m.Name

	var data map[string]any
	if err := json.Unmarshal(body, &data); err != nil || data == nil {
		s.metrics.rejected.WithLabelValues(metric, "malformed").Inc()
		return fiber.StatusBadRequest, errorBody("Request body must be a JSON object")
	}

	raw, ok := data[metric]
	if !ok {
		s.metrics.rejected.WithLabelValues(metric, "missing").Inc()
		return fiber.StatusBadRequest, errorBody(fmt.Sprintf("Missing %s field", metric))
	}
	value, err := toFloat(raw)
	if err != nil {
		s.metrics.rejected.WithLabelValues(metric, "invalid").Inc()
		return fiber.StatusBadRequest, errorBody(fmt.Sprintf("Invalid %s value: %v", metric, err))
	}
	if !m.Contains(value) {
		s.metrics.rejected.WithLabelValues(metric, "range").Inc()
		return fiber.StatusBadRequest, errorBody(fmt.Sprintf("%s must be between %g and %g", metric, m.Min, m.Max))
	}

	r := readingFrom(metric, value, data)

	var predictions map[string]any
	if s.predictor != nil {
		predictions = s.predict(ctx, metric, value, r.Context)
	}

	if s.store != nil {
		if _, err := s.store.Insert(ctx, r); err != nil {
			s.metrics.storeErrors.Inc()
			s.logger.Warn("reading not persisted", "metric", metric, "error", err)
		}
	}

	an := s.analyzer.Add(r)
	an.MLPredictions = predictions

	s.metrics.received.WithLabelValues(metric).Inc()
	s.metrics.value.WithLabelValues(metric).Set(value)
	s.logger.Debug("reading accepted", "metric", metric, "value", value, "device", r.Device, "frame", r.Frame)

	s.live.Publish(hub.KindReading, metric, fiber.Map{"reading": r, "analysis": an})
	if active, _ := r.Context[m.AlertKey].(bool); active {
		s.live.Publish(hub.KindAlert, metric, r)
	}

	return fiber.StatusOK, fiber.Map{
		"status":   "success",
		"received": value,
		"analysis": an,
	}
}

func (s *Server) predict(ctx context.Context, metric string, value float64, input map[string]any) map[string]any {
	preds, err := s.predictor.Predict(ctx, metric, value, input)
	switch {
	case err != nil:
		s.metrics.predictions.WithLabelValues("error").Inc()
		s.logger.Warn("prediction failed", "metric", metric, "error", err)
		return nil
	case preds == nil:
		s.metrics.predictions.WithLabelValues("empty").Inc()
	default:
		s.metrics.predictions.WithLabelValues("ok").Inc()
	}
	return preds
}

func readingFrom(metric string, value float64, data map[string]any) store.Reading {
	now := time.Now().UTC()
	r := store.Reading{
		ID:        uuid.NewString(),
		Metric:    metric,
		Value:     value,
		Device:    "unknown",
		Timestamp: now,
		Received:  now,
		Context:   make(map[string]any),
	}

	if d, ok := data["device"].(string); ok && d != "" {
		r.Device = d
	}
	if f, err := toFloat(data["frame"]); err == nil {
		r.Frame = int(f)
	}
	if ts, ok := data["timestamp"].(string); ok {
		if t, err := parseTimestamp(ts); err == nil {
			r.Timestamp = t
		}
	}
	for k, v := range data {
		if k != metric && !reservedKeys[k] {
			r.Context[k] = v
		}
	}
	return r
}

func parseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.ParseInLocation(isoLocal, s, time.Local)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func toFloat(v any) (float64, error) {
	switch val := v.(type) {
	case float64:
		return val, nil
	case json.Number:
		return val.Float64()
	case string:
		return strconv.ParseFloat(val, 64)
	case nil:
		return 0, errors.New("missing")
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}

// handleReceive accepts a reading: POST /api/:metric
func (s *Server) handleReceive(c *fiber.Ctx) error {
	status, body := s.Ingest(c.UserContext(), c.Params("metric"), c.Body())
	return c.Status(status).JSON(body)
}

// handleLatest returns the newest reading's analysis
func (s *Server) handleLatest(c *fiber.Ctx) error {
	m, ok := LookupMetric(c.Params("metric"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Unknown metric"})
	}
	metric := m.Name
	r, ok := s.analyzer.Latest(metric)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": fmt.Sprintf("No %s data available", metric)})
	}
	return c.JSON(fiber.Map{
		"reading":  r,
		"analysis": s.analyzer.Analyze(r),
	})
}

// handleHistory returns recent readings
func (s *Server) handleHistory(c *fiber.Ctx) error {
	m, ok := LookupMetric(c.Params("metric"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Unknown metric"})
	}
	metric := m.Name

	limit := c.QueryInt("limit", s.cfg.HistoryLimit)
	if limit <= 0 {
		limit = s.cfg.HistoryLimit
	}
	if limit > s.cfg.HistoryCap {
		limit = s.cfg.HistoryCap
	}

	history := s.analyzer.History(metric, limit)
	return c.JSON(fiber.Map{
		"history":       history,
		"count":         len(history),
		"total_samples": s.analyzer.Len(metric),
	})
}

// handleStats returns summary statistics
func (s *Server) handleStats(c *fiber.Ctx) error {
	m, ok := LookupMetric(c.Params("metric"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Unknown metric"})
	}
	metric := m.Name
	st, ok := s.analyzer.Stats(metric)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "No data available"})
	}
	latest, _ := s.analyzer.Latest(metric)
	return c.JSON(fiber.Map{
		"average":  st.Average,
		"min":      st.Min,
		"max":      st.Max,
		"std":      st.Std,
		"samples":  st.Samples,
		"current":  latest.Value,
		"category": m.Categorize(latest.Value),
	})
}

// PredictRequest is the body of POST /api/ml/predict. The value is read
// from the key named by Metric.
type PredictRequest struct {
	Metric  string         `json:"metric"`
	Context map[string]any `json:"context"`
}

// handlePredict runs the predictor on an ad-hoc value
func (s *Server) handlePredict(c *fiber.Ctx) error {
	if s.predictor == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(errorBody("ML model not enabled"))
	}

	var req PredictRequest
	var data map[string]any
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorBody(err.Error()))
	}
	json.Unmarshal(c.Body(), &data)
	if req.Metric == "" {
		req.Metric = "brightness"
	}
	value := 0.0
	if raw, ok := data[req.Metric]; ok {
		v, err := toFloat(raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(errorBody(fmt.Sprintf("Invalid %s value: %v", req.Metric, err)))
		}
		value = v
	}

	preds, err := s.predictor.Predict(c.UserContext(), req.Metric, value, req.Context)
	switch {
	case errors.Is(err, ErrNotImplemented) || (err == nil && preds == nil):
		s.metrics.predictions.WithLabelValues("empty").Inc()
		return c.Status(fiber.StatusNotImplemented).JSON(errorBody("ML prediction not implemented"))
	case err != nil:
		s.metrics.predictions.WithLabelValues("error").Inc()
		return c.Status(fiber.StatusInternalServerError).JSON(errorBody(err.Error()))
	}
	s.metrics.predictions.WithLabelValues("ok").Inc()
	return c.JSON(fiber.Map{"status": "success", "predictions": preds})
}

// handleLoadModel asks the predictor to load weights from disk
func (s *Server) handleLoadModel(c *fiber.Ctx) error {
	if s.predictor == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(errorBody("ML model not enabled"))
	}
	var req struct {
		ModelPath string `json:"model_path"`
	}
	if err := c.BodyParser(&req); err != nil || req.ModelPath == "" {
		return c.Status(fiber.StatusBadRequest).JSON(errorBody("Missing model_path"))
	}
	loader, ok := s.predictor.(ModelLoader)
	if !ok {
		return c.Status(fiber.StatusNotImplemented).JSON(errorBody("Predictor does not load models"))
	}
	if err := loader.LoadModel(req.ModelPath); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(errorBody(err.Error()))
	}
	s.logger.Info("model loaded", "path", req.ModelPath)
	return c.JSON(fiber.Map{"status": "success", "message": "Model loaded successfully"})
}

// handleHealth reports liveness
func (s *Server) handleHealth(c *fiber.Ctx) error {
	body := fiber.Map{
		"status":           "healthy",
		"version":          s.cfg.Version,
		"timestamp":        time.Now().UTC().Format(time.RFC3339),
		"uptime_seconds":   time.Since(s.started).Seconds(),
		"ml_enabled":       s.predictor != nil,
		"store_enabled":    s.store != nil,
		"samples_received": s.analyzer.Total(),
		"live_clients":     s.live.ClientCount(),
	}
	if s.store != nil {
		stored, err := s.Stored(c.UserContext())
		if err != nil {
			s.logger.Warn("store count failed", "error", err)
		} else {
			body["stored_samples"] = stored
		}
	}
	return c.JSON(body)
}

// handleLiveWS streams accepted readings to the client
func (s *Server) handleLiveWS(c *websocket.Conn) {
	hub.NewClient(s.live, c).Run()
}
