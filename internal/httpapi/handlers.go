package httpapi

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/tempwallets/txrelay/internal/pipeline"
	"github.com/tempwallets/txrelay/internal/rpc"
	"github.com/tempwallets/txrelay/internal/sequencer"
	"github.com/tempwallets/txrelay/internal/storage"
)

type submitRequest struct {
	Address string          `json:"address"`
	Network string          `json:"network"`
	Payload json.RawMessage `json:"payload"`
	// Wait blocks until a terminal status or the configured timeout.
	Wait bool `json:"wait,omitempty"`
}

type submitResponse struct {
	SubmissionID string `json:"submission_id"`
	ReceiptID    string `json:"receipt_id"`
	TxHash       string `json:"tx_hash,omitempty"`
	Sequence     uint64 `json:"sequence"`
	Status       string `json:"status"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":           "ok",
		"tracked_accounts": s.sequencer.Tracked(),
		"time":             time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Address == "" || req.Network == "" {
		writeError(w, http.StatusBadRequest, stderrors.New("address and network are required"))
		return
	}
	if len(req.Payload) == 0 {
		writeError(w, http.StatusBadRequest, stderrors.New("payload is required"))
		return
	}

	pipeReq := pipeline.Request{
		Address: req.Address,
		Network: req.Network,
		Payload: req.Payload,
	}

	if req.Wait {
		result, status, err := s.pipeline.SubmitAndWait(r.Context(), pipeReq, s.cfg.ConfirmationTimeout)
		if err != nil {
			var timeoutErr *pipeline.ConfirmationTimeoutError
			if stderrors.As(err, &timeoutErr) {
				// Broadcast succeeded; confirmation is still open.
				writeJSON(w, http.StatusAccepted, submitResponse{
					SubmissionID: result.SubmissionID,
					ReceiptID:    result.Receipt.ID,
					TxHash:       result.Receipt.TxHash,
					Sequence:     result.Sequence,
					Status:       string(status),
				})
				return
			}
			s.writeSubmitError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, submitResponse{
			SubmissionID: result.SubmissionID,
			ReceiptID:    result.Receipt.ID,
			TxHash:       result.Receipt.TxHash,
			Sequence:     result.Sequence,
			Status:       string(status),
		})
		return
	}

	result, err := s.pipeline.Submit(r.Context(), pipeReq)
	if err != nil {
		s.writeSubmitError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, submitResponse{
		SubmissionID: result.SubmissionID,
		ReceiptID:    result.Receipt.ID,
		TxHash:       result.Receipt.TxHash,
		Sequence:     result.Sequence,
		Status:       string(result.Status),
	})
}

func (s *Server) handleGetSubmission(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotImplemented, stderrors.New("submission store not configured"))
		return
	}

	id := mux.Vars(r)["id"]
	rec, err := s.store.GetSubmission(r.Context(), id)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	resp := map[string]interface{}{"submission": rec}
	if s.poller != nil && rec.TxHash != "" && !pipeline.Status(rec.Status).Terminal() {
		if live, err := s.poller.PollStatus(r.Context(), rec.TxHash); err == nil {
			resp["live_status"] = string(live)
		} else {
			s.log.WithContext(r.Context()).WithError(err).WithField("submission", id).Warn("live status poll failed")
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	type providerStatus struct {
		Name     string `json:"name"`
		Priority int    `json:"priority"`
	}
	providers := make([]providerStatus, 0, len(s.providers))
	for _, p := range s.providers {
		providers = append(providers, providerStatus{Name: p.Name, Priority: p.Priority})
	}

	var breakers []rpc.BreakerState
	if s.breakers != nil {
		breakers = s.breakers.Snapshot()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"providers": providers,
		"breakers":  breakers,
	})
}

func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := s.sequencer.InvalidateCache(vars["address"], vars["network"]); err != nil {
		var invalidErr *sequencer.InvalidAccountError
		if stderrors.As(err, &invalidErr) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.log.WithContext(r.Context()).WithFields(map[string]interface{}{
		"address": vars["address"],
		"network": vars["network"],
	}).Info("sequence cache invalidated")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeSubmitError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError

	var invalidErr *sequencer.InvalidAccountError
	var limitedErr *pipeline.RateLimitedError
	var fetchErr *sequencer.SequenceFetchError
	var attemptsErr *rpc.AllAttemptsFailedError
	var circuitErr *rpc.CircuitOpenError
	switch {
	case stderrors.As(err, &invalidErr):
		status = http.StatusBadRequest
	case stderrors.As(err, &limitedErr):
		status = http.StatusTooManyRequests
	case stderrors.As(err, &circuitErr):
		status = http.StatusServiceUnavailable
	case stderrors.As(err, &fetchErr), stderrors.As(err, &attemptsErr):
		status = http.StatusBadGateway
	}

	s.log.WithContext(r.Context()).WithError(err).WithField("status", status).Warn("submission failed")
	writeError(w, status, err)
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
