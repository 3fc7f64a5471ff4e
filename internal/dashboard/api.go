package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aqademiq/aqsync/internal/db"
	"github.com/aqademiq/aqsync/internal/ics"
	"github.com/aqademiq/aqsync/internal/schema"
	"github.com/aqademiq/aqsync/internal/sync"
)

// statusResponse is the /api/status payload.
type statusResponse struct {
	Online bool         `json:"online"`
	Users  []userStatus `json:"users"`
}

type userStatus struct {
	UserID        string      `json:"user_id"`
	OpenConflicts int         `json:"open_conflicts"`
	LastRun       *runSummary `json:"last_run,omitempty"`
}

type runSummary struct {
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	Status       string    `json:"status"`
	Created      int       `json:"created"`
	UpdatedLocal int       `json:"updated_local"`
	Pushed       int       `json:"pushed"`
	Conflicts    int       `json:"conflicts"`
	Skipped      int       `json:"skipped"`
	Failed       int       `json:"failed"`
}

// resolveRequest is the /api/conflicts/{id}/resolve body.
type resolveRequest struct {
	Strategy string               `json:"strategy" validate:"required,oneof=prefer_local prefer_remote merge"`
	Merge    *schema.MergePayload `json:"merge,omitempty"`
}

func (s *Server) statusSnapshot(ctx context.Context) (*statusResponse, error) {
	resp := &statusResponse{Online: s.daemon.Online()}
	for _, userID := range s.daemon.Users() {
		us := userStatus{UserID: userID}

		count, err := s.store.CountOpenConflicts(ctx, userID)
		if err != nil {
			return nil, err
		}
		us.OpenConflicts = count

		runs, err := s.store.ListSyncRuns(ctx, userID, 1)
		if err != nil {
			return nil, err
		}
		if len(runs) > 0 {
			r := runs[0]
			us.LastRun = &runSummary{
				StartedAt:    r.StartedAt,
				FinishedAt:   r.FinishedAt,
				Status:       r.Status,
				Created:      r.Created,
				UpdatedLocal: r.UpdatedLocal,
				Pushed:       r.Pushed,
				Conflicts:    r.Conflicts,
				Skipped:      r.Skipped,
				Failed:       r.Failed,
			}
		}
		resp.Users = append(resp.Users, us)
	}
	return resp, nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.statusSnapshot(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleListConflicts(w http.ResponseWriter, r *http.Request) {
	filter := db.ConflictFilter{
		UserID:          r.URL.Query().Get("user"),
		IncludeResolved: r.URL.Query().Get("include_resolved") == "true",
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = limit
	}

	conflicts, err := s.store.ListConflicts(r.Context(), filter)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"conflicts": conflicts})
}

func (s *Server) handleGetConflict(w http.ResponseWriter, r *http.Request) {
	c, err := s.store.GetConflictByID(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "conflict not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleResolveConflict(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "strategy must be prefer_local, prefer_remote, or merge")
		return
	}
	strategy, err := schema.ParseResolutionStrategy(req.Strategy)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	c, err := s.store.GetConflictByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "conflict not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	eng, ok := s.daemon.EngineFor(c.UserID)
	if !ok {
		s.writeError(w, http.StatusConflict, "no enabled account for this conflict's user")
		return
	}

	if err := eng.Resolve(r.Context(), id, strategy, req.Merge); err != nil {
		switch {
		case errors.Is(err, sync.ErrConflictClosed):
			s.writeError(w, http.StatusConflict, "conflict already resolved")
		case errors.Is(err, sync.ErrMergePayloadRequired):
			s.writeError(w, http.StatusBadRequest, "merge strategy requires a non-empty merge payload")
		default:
			s.writeError(w, http.StatusBadGateway, err.Error())
		}
		return
	}

	resolved, err := s.store.GetConflictByID(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, resolved)
}

func (s *Server) handleManualSync(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user")
	eng, ok := s.daemon.EngineFor(userID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown or disabled account")
		return
	}

	run, err := eng.SyncUser(r.Context(), userID)
	if err != nil && run == nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	status := http.StatusOK
	if err != nil {
		// Partial result: the run aborted but its counters are still useful.
		status = http.StatusBadGateway
	}
	s.writeJSON(w, status, run)
}

// handleWebhook receives Google Calendar push notifications. The channel id
// carries our user id; the channel token must match the account's webhook
// token when one is configured.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-Goog-Channel-ID")
	if userID == "" {
		s.writeError(w, http.StatusBadRequest, "missing X-Goog-Channel-ID header")
		return
	}

	account, ok := s.daemon.AccountFor(userID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown channel")
		return
	}
	if account.WebhookToken != "" && r.Header.Get("X-Goog-Channel-Token") != account.WebhookToken {
		s.writeError(w, http.StatusForbidden, "channel token mismatch")
		return
	}

	// The initial handshake message confirms the channel; nothing changed.
	if r.Header.Get("X-Goog-Resource-State") == "sync" {
		w.WriteHeader(http.StatusOK)
		return
	}

	s.daemon.Trigger(userID)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSuffix(r.PathValue("user"), ".ics")
	if userID == "" {
		s.writeError(w, http.StatusBadRequest, "missing user")
		return
	}

	feed, err := ics.ExportFeed(r.Context(), s.store, userID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	_, _ = w.Write([]byte(feed))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Printf("Failed to encode response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
