package controller

import (
	"bytes"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/unclebandit/phishdrill-backend/internal/model"
	"github.com/unclebandit/phishdrill-backend/internal/pkg/httputil"
	"github.com/unclebandit/phishdrill-backend/internal/service"
)

const maxUploadBytes = 5 << 20

// AllowlistController manages the employees a campaign may target.
type AllowlistController struct {
	Allowlist *service.AllowlistService
	Log       logrus.FieldLogger
}

type upsertAllowlistRequest struct {
	Employees []model.Employee `json:"employees"`
}

func (c *AllowlistController) List(w http.ResponseWriter, r *http.Request) {
	employees, err := c.Allowlist.List(r.Context())
	if err != nil {
		httputil.WriteError(w, c.Log, err)
		return
	}
	if employees == nil {
		employees = []model.Employee{}
	}

	httputil.OK(w, map[string]interface{}{
		"employees":        employees,
		"doNotSendDomains": c.Allowlist.DenyDomains,
	})
}

// Upsert saves a JSON batch and returns the full allowlist afterwards along
// with any addresses that were refused.
func (c *AllowlistController) Upsert(w http.ResponseWriter, r *http.Request) {
	var body upsertAllowlistRequest
	if !httputil.Decode(w, r, &body) {
		return
	}
	if body.Employees == nil {
		httputil.BadRequest(w, "employees array required")
		return
	}

	res, err := c.Allowlist.Upsert(r.Context(), body.Employees)
	if err != nil {
		httputil.WriteError(w, c.Log, err)
		return
	}
	saved, err := c.Allowlist.List(r.Context())
	if err != nil {
		httputil.WriteError(w, c.Log, err)
		return
	}
	if saved == nil {
		saved = []model.Employee{}
	}

	httputil.OK(w, map[string]interface{}{
		"employees": saved,
		"rejected":  res.Rejected,
	})
}

// Upload imports a text/csv body of email,name,department lines.
func (c *AllowlistController) Upload(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadBytes))
	if err != nil {
		httputil.Error(w, http.StatusRequestEntityTooLarge, "CSV body too large")
		return
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		httputil.BadRequest(w, "CSV body required")
		return
	}

	res, err := c.Allowlist.ImportCSV(r.Context(), bytes.NewReader(raw))
	if err != nil {
		httputil.WriteError(w, c.Log, err)
		return
	}

	httputil.OK(w, map[string]interface{}{
		"imported": res.Imported,
		"rejected": res.Rejected,
	})
}

