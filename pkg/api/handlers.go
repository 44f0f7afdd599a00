package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/ethpandaops/reportoor/pkg/engine"
	"github.com/ethpandaops/reportoor/pkg/events"
	"github.com/ethpandaops/reportoor/pkg/pipeline"
	"github.com/ethpandaops/reportoor/pkg/summary"
	"github.com/sirupsen/logrus"
)

// errorResponse is a JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON encodes v as JSON and writes it to w.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encoding response", http.StatusInternalServerError)
	}
}

// handleHealth returns server health status.
func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type eventsResponse struct {
	Accepted int      `json:"accepted"`
	Rejected int      `json:"rejected"`
	Errors   []string `json:"errors,omitempty"`
	RunEnded bool     `json:"run_ended"`
}

// handleEvents dispatches one event or a JSON array of events, in order.
// Rejected events do not stop the batch. The request fails with 409 when
// nothing in it was accepted.
func (s *server) handleEvents(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	batch, err := decodeEvents(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	var resp eventsResponse

	for i, ev := range batch {
		err := events.Dispatch(s.receiver, ev, s.now)

		if s.metrics != nil {
			s.metrics.EventObserved(string(ev.Type), err == nil)
		}

		if err != nil {
			resp.Rejected++
			resp.Errors = append(resp.Errors, fmt.Sprintf("event %d: %v", i, err))

			s.log.WithFields(logrus.Fields{
				"index": i,
				"type":  ev.Type,
			}).WithError(err).Warn("Event rejected")

			continue
		}

		resp.Accepted++

		if ev.Type == events.TypeRunEnd {
			resp.RunEnded = true

			s.markRunEnded()
		}
	}

	status := http.StatusOK
	if resp.Accepted == 0 {
		status = http.StatusConflict
	}

	writeJSON(w, status, resp)
}

// decodeEvents reads a single event object or an array of events.
func decodeEvents(body io.Reader) ([]*events.Event, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.New("empty body")
	}

	if data[0] != '[' {
		var ev events.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decoding event: %w", err)
		}

		return []*events.Event{&ev}, nil
	}

	var batch []*events.Event
	if err := json.Unmarshal(data, &batch); err != nil {
		return nil, fmt.Errorf("decoding events: %w", err)
	}

	if len(batch) == 0 {
		return nil, errors.New("no events")
	}

	for i, ev := range batch {
		if ev == nil {
			return nil, fmt.Errorf("event %d is null", i)
		}
	}

	return batch, nil
}

type statusResponse struct {
	Phase  engine.Phase `json:"phase"`
	Tests  int          `json:"tests"`
	Result *resultView  `json:"result,omitempty"`
}

type resultView struct {
	engine.Decision

	Metrics    *summary.Metrics    `json:"metrics,omitempty"`
	Failed     []string            `json:"failed,omitempty"`
	Comparison *summary.Comparison `json:"comparison,omitempty"`
	Pipeline   *pipeline.Report    `json:"pipeline,omitempty"`
}

// handleStatus reports the run phase and, once finalized, its outcome.
func (s *server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{
		Phase: s.receiver.Phase(),
		Tests: s.receiver.Tests(),
	}

	if res := s.receiver.Result(); res != nil {
		view := &resultView{
			Decision:   res.Decision,
			Comparison: res.Comparison,
			Pipeline:   res.Pipeline,
		}

		if res.Summary != nil {
			view.Metrics = &res.Summary.Metrics
			view.Failed = res.Summary.FailedIDs()
		}

		resp.Result = view
	}

	writeJSON(w, http.StatusOK, resp)
}
