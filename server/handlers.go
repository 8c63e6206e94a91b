package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"wa_listings/extraction"
	"wa_listings/httputil"
	"wa_listings/models"
	"wa_listings/services"
	"wa_listings/session"
)

const maxWebhookBody = 80 << 20 // base64 media inflates by a third

type handlers struct {
	opts        Options
	logger      *slog.Logger
	media       mediaPolicy
	mediaClient *http.Client
}

type messagePayload struct {
	ConversationID   string        `json:"conversationId"`
	IsGroup          bool          `json:"isGroup"`
	ConversationName string        `json:"conversationName"`
	Body             string        `json:"body"`
	HasMedia         bool          `json:"hasMedia"`
	Media            *mediaPayload `json:"media,omitempty"`
}

type mediaPayload struct {
	MimeType string `json:"mimetype"`
	Data     string `json:"data,omitempty"` // base64
	URL      string `json:"url,omitempty"`
	Filename string `json:"filename,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	pending := 0
	if h.opts.Health != nil {
		pending = h.opts.Health.PendingTasks()
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "pending_tasks": pending})
}

// message accepts one chat event. All pipeline work happens after the
// response is written.
func (h *handlers) message(w http.ResponseWriter, r *http.Request) {
	var p messagePayload
	if err := decodeJSON(w, r, maxWebhookBody, &p); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if p.ConversationID == "" {
		writeError(w, http.StatusBadRequest, "conversationId is required")
		return
	}

	ev := models.MessageEvent{
		ConversationID:   p.ConversationID,
		IsGroup:          p.IsGroup,
		ConversationName: p.ConversationName,
		Body:             p.Body,
		HasMedia:         p.HasMedia || p.Media != nil,
	}
	if p.Media != nil && p.Media.Data == "" && p.Media.URL != "" {
		if err := h.media.checkString(p.Media.URL); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if ev.HasMedia {
		ev.MediaFetcher = h.mediaFetcher(p.Media)
	}

	h.opts.Messages.HandleMessage(ev)
	writeJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})
}

func (h *handlers) mediaFetcher(m *mediaPayload) models.MediaFetcher {
	return models.MediaFetcherFunc(func(ctx context.Context) (*models.Media, error) {
		switch {
		case m == nil:
			return nil, errors.New("media payload missing")
		case m.Data != "":
			data, err := base64.StdEncoding.DecodeString(m.Data)
			if err != nil {
				return nil, fmt.Errorf("decode media: %w", err)
			}
			return &models.Media{MimeType: m.MimeType, Filename: m.Filename, Data: data}, nil
		case m.URL != "":
			if err := h.media.checkString(m.URL); err != nil {
				return nil, err
			}
			data, contentType, name, err := httputil.Download(ctx, h.mediaClient, m.URL, services.MaxMediaBytes)
			if err != nil {
				return nil, err
			}
			media := &models.Media{MimeType: m.MimeType, Filename: m.Filename, Data: data}
			if media.MimeType == "" {
				media.MimeType = contentType
			}
			if media.Filename == "" {
				media.Filename = name
			}
			return media, nil
		default:
			return nil, errors.New("media has neither data nor url")
		}
	})
}

func (h *handlers) sessionUpdate(w http.ResponseWriter, r *http.Request) {
	var u session.Update
	if err := decodeJSON(w, r, 1<<20, &u); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.opts.Session.Apply(u); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.opts.Session.Snapshot())
}

func (h *handlers) sessionSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.opts.Session.Snapshot())
}

func (h *handlers) listListings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.ListingFilter{
		Page:     queryInt(q.Get("page"), 1),
		Limit:    queryInt(q.Get("limit"), 20),
		Search:   strings.TrimSpace(q.Get("search")),
		Location: strings.TrimSpace(q.Get("location")),
	}
	if lt := strings.ToLower(strings.TrimSpace(q.Get("listing_type"))); lt != "" && lt != "all" {
		filter.ListingType = models.ListingType(lt)
		if !filter.ListingType.Valid() {
			writeError(w, http.StatusBadRequest, "listing_type must be sale or rent")
			return
		}
	}

	page, err := h.opts.Listings.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list listings", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to fetch listings")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *handlers) stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.opts.Listings.Stats(r.Context())
	if err != nil {
		h.logger.Error("listing stats", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to fetch stats")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type extractPayload struct {
	Prompt   string `json:"prompt"`
	ChatName string `json:"chatName"`
}

// extract serves the in-process model to other instances using the
// {success, result} envelope.
func (h *handlers) extract(w http.ResponseWriter, r *http.Request) {
	var p extractPayload
	if err := decodeJSON(w, r, 1<<20, &p); err != nil || strings.TrimSpace(p.Prompt) == "" {
		writeJSON(w, http.StatusBadRequest, extraction.Envelope{Success: false, Error: "prompt is required"})
		return
	}

	out, err := h.opts.Extract.Generate(r.Context(), p.Prompt, p.ChatName)
	if err != nil {
		h.logger.Warn("extract endpoint failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, extraction.Envelope{Success: false, Error: err.Error()})
		return
	}

	obj, err := extraction.IsolateJSON(out)
	if err == nil && !json.Valid([]byte(obj)) {
		err = fmt.Errorf("%w: model output is not valid JSON", extraction.ErrExtractionFailed)
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, extraction.Envelope{Success: false, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, extraction.Envelope{Success: true, Result: obj})
}

func queryInt(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return def
	}
	return n
}
