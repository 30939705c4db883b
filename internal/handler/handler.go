// Package handler implements the worker's minimal admin/health HTTP
// surface (C15): a liveness probe, a language-registry listing, and a
// websocket stream of judge progress updates, fronting the judge worker
// rather than a code-execution API.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/coderunr/judgeworker/internal/languages"
	"github.com/coderunr/judgeworker/internal/queue"
)

// Handler holds the dependencies the admin surface's handlers read from.
type Handler struct {
	languages *languages.Registry
	queue     *queue.Client
	log       *logrus.Entry
}

// New builds a Handler.
func New(registry *languages.Registry, queueClient *queue.Client, log *logrus.Entry) *Handler {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Handler{languages: registry, queue: queueClient, log: log}
}

// Healthz reports process liveness; a 200 means the HTTP surface itself is
// up, not that the worker has an active lease (readiness is out of scope).
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	h.sendJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

// runtimeInfo is one entry of the GET /runtimes response.
type runtimeInfo struct {
	Language string   `json:"language"`
	Version  string   `json:"version"`
	Aliases  []string `json:"aliases"`
	Compiled bool     `json:"compiled"`
}

// Runtimes lists every language the compiler/judger pipeline can dispatch
// to, read from the embedded language registry (C3).
func (h *Handler) Runtimes(w http.ResponseWriter, r *http.Request) {
	names := h.languages.Names()
	infos := make([]runtimeInfo, 0, len(names))
	for _, name := range names {
		descriptor, ok := h.languages.Get(name)
		if !ok {
			continue
		}
		version := ""
		if descriptor.Version != nil {
			version = descriptor.Version.String()
		}
		infos = append(infos, runtimeInfo{
			Language: descriptor.Name,
			Version:  version,
			Aliases:  descriptor.Aliases,
			Compiled: len(descriptor.CompileCommand) > 0,
		})
	}
	h.sendJSON(w, infos, http.StatusOK)
}

var progressUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ProgressStream upgrades to a websocket and forwards every progress update
// published to the optional progress channel until the client
// disconnects; this is a read-only fan-out, not per-submission filtering.
func (h *Handler) ProgressStream(w http.ResponseWriter, r *http.Request) {
	conn, err := progressUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("progress websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx := r.Context()
	sub := h.queue.SubscribeProgress(ctx)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg.Payload)); err != nil {
				return
			}
		}
	}
}

func (h *Handler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.WithError(err).Error("failed to encode JSON response")
	}
}
