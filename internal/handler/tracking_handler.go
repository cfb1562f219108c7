// internal/handler/tracking_handler.go
package handler

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/unclebandit/phishdrill-backend/internal/model"
	"github.com/unclebandit/phishdrill-backend/internal/pkg/httputil"
)

// 1x1 transparent GIF
var pixelGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00,
	0x80, 0x00, 0x00, 0xff, 0xff, 0xff, 0x00, 0x00, 0x00, 0x2c,
	0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0x02,
	0x02, 0x44, 0x01, 0x00, 0x3b,
}

// Tracker is the recipient-facing side of the tracking service.
type Tracker interface {
	Open(ctx context.Context, token, origin string)
	Click(ctx context.Context, token, origin string) *model.CampaignTarget
	Landing(ctx context.Context, token string) *model.CampaignTarget
	Submit(ctx context.Context, token, origin string) *model.CampaignTarget
}

// TrackingHandler serves the pixel, click redirect and landing pages that
// simulation emails link to. Recipients never see an error from here.
type TrackingHandler struct {
	Tracker    Tracker
	DebriefURL string
	Log        logrus.FieldLogger
}

func NewTrackingHandler(tracker Tracker, debriefURL string, log logrus.FieldLogger) *TrackingHandler {
	return &TrackingHandler{
		Tracker:    tracker,
		DebriefURL: debriefURL,
		Log:        log,
	}
}

// Mount registers the tracking and landing routes on r.
func (h *TrackingHandler) Mount(r chi.Router) {
	r.Get("/track/open/{pixel}", h.Open)
	r.Get("/track/click/{token}", h.Click)
	r.Get("/landing/{token}", h.Landing)
	r.Post("/landing/{token}/submit", h.Submit)
}

// Open records an open and always answers with the pixel.
func (h *TrackingHandler) Open(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSuffix(chi.URLParam(r, "pixel"), ".gif")
	h.Tracker.Open(r.Context(), token, httputil.ClientIP(r))
	servePixel(w)
}

// Click records a click and sends the recipient to the landing page.
func (h *TrackingHandler) Click(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if t := h.Tracker.Click(r.Context(), token, httputil.ClientIP(r)); t != nil {
		http.Redirect(w, r, "/landing/"+url.PathEscape(t.Token), http.StatusFound)
		return
	}
	http.Redirect(w, r, "/landing/invalid", http.StatusFound)
}

// Landing renders the simulated sign-in form. ?debug=true adds a disclosure
// banner for operators previewing the page.
func (h *TrackingHandler) Landing(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	t := h.Tracker.Landing(r.Context(), token)
	if t == nil {
		h.render(w, "landing_inactive", nil)
		return
	}
	h.render(w, "landing", landingPage{
		Token: t.Token,
		Email: t.Email,
		Debug: r.URL.Query().Get("debug") == "true",
	})
}

// Submit records a simulated entry. Posted form values are never read.
func (h *TrackingHandler) Submit(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if t := h.Tracker.Submit(r.Context(), token, httputil.ClientIP(r)); t == nil {
		h.render(w, "submit_inactive", nil)
		return
	}
	h.render(w, "submitted", submittedPage{DebriefURL: h.DebriefURL})
}

func (h *TrackingHandler) render(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := pages.ExecuteTemplate(w, name, data); err != nil {
		h.Log.WithField("page", name).WithError(err).Error("render failed")
	}
}

func servePixel(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.Write(pixelGIF)
}
