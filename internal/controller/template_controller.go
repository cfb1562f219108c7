package controller

import (
	"net/http"

	"github.com/unclebandit/phishdrill-backend/internal/pkg/httputil"
	"github.com/unclebandit/phishdrill-backend/internal/service"
)

type TemplateController struct {
	Templates *service.TemplateCatalog
}

func (c *TemplateController) ListTemplates(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, c.Templates.List())
}

func Health(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]string{"status": "ok"})
}
