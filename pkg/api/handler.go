// Package api exposes the entitlement store to external renderers over HTTP.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mihaimyh/storefront/pkg/storefront"
)

const eventSnapshot = "snapshot"

// Handler provides HTTP endpoints for snapshot inspection
type Handler struct {
	config Config
	logger storefront.Logger
}

// Routes returns a router serving GET /snapshot, /view and /events.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/snapshot", h.GetSnapshot)
	r.Get("/view", h.GetView)
	r.Get("/events", h.StreamEvents)
	return r
}

// GetSnapshot returns the current store snapshot
func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, newSnapshotResponse(h.config.Store.Current()))
}

// GetView returns the rendered UI state for the current snapshot
func (h *Handler) GetView(w http.ResponseWriter, r *http.Request) {
	snap := h.config.Store.Current()
	h.writeJSON(w, r, ViewResponse{Version: snap.Version, View: storefront.BuildView(snap)})
}

// StreamEvents sends one "snapshot" event immediately and one per store
// notification until the client goes away. Notifications arriving while a
// write is in progress are coalesced into the latest snapshot.
func (h *Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.handleError(w, r, fmt.Errorf("streaming unsupported"), http.StatusInternalServerError)
		return
	}

	updates := make(chan storefront.Snapshot, 1)
	unsubscribe := h.config.Store.Subscribe(func(s storefront.Snapshot) {
		select {
		case updates <- s:
		default:
			// drop the pending one, keep the newest
			select {
			case <-updates:
			default:
			}
			select {
			case updates <- s:
			default:
			}
		}
	})
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	last := h.config.Store.Current()
	if err := writeEvent(w, last); err != nil {
		return
	}
	flusher.Flush()

	keepAlive := time.NewTicker(h.config.KeepAlive)
	defer keepAlive.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case snap := <-updates:
			if snap.Version <= last.Version {
				continue
			}
			last = snap
			if err := writeEvent(w, snap); err != nil {
				h.logger.Debug("event stream closed", storefront.Field{Key: "error", Value: err})
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, snap storefront.Snapshot) error {
	data, err := json.Marshal(newSnapshotResponse(snap))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", snap.Version, eventSnapshot, data)
	return err
}

func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		h.handleError(w, r, fmt.Errorf("encode response: %w", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// handleError handles errors with appropriate HTTP status codes
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	if h.config.OnError != nil {
		h.config.OnError(w, r, err)
		return
	}

	h.logger.Error("renderer API error",
		storefront.Field{Key: "path", Value: r.URL.Path},
		storefront.Field{Key: "error", Value: err},
	)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	errorResponse := map[string]string{
		"error": err.Error(),
	}
	if encodeErr := json.NewEncoder(w).Encode(errorResponse); encodeErr != nil {
		h.logger.Debug("writing error response failed", storefront.Field{Key: "error", Value: encodeErr})
	}
}
