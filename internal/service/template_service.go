// internal/service/template_service.go
package service

import (
    "strings"

    "github.com/unclebandit/phishdrill-backend/internal/model"
)

const (
    defaultRecipientName       = "Colleague"
    defaultRecipientDepartment = "your team"
)

var builtinTemplates = []model.Template{
    {
        Key:     "login-mimic",
        Name:    "Login Verification Notice",
        Subject: "Action Required: Verify Your Account Access",
        Body: "Hello {{name}},\n\nWe noticed a login attempt to your {{department}} tools from a new device. " +
            "Please confirm your identity by visiting the secure verification page.\n\n" +
            "If you did not make this request, confirm immediately to avoid access interruption.\n\n" +
            "Thank you,\nSecurity Team",
    },
    {
        Key:     "urgent-policy",
        Name:    "Updated Security Policy Acknowledgement",
        Subject: "Immediate Acknowledgement Required: Updated Security Policy",
        Body: "Hi {{name}},\n\nWe have refreshed our company-wide security policy. To maintain compliance for the " +
            "{{department}} team, review and acknowledge the update by the end of the day.\n\n" +
            "Click the link below to review the summary and confirm your acknowledgement.\n\n" +
            "Regards,\nCorporate Security",
    },
    {
        Key:     "package-delivery",
        Name:    "Package Delivery Confirmation",
        Subject: "Package Arrival Confirmation Needed",
        Body: "Hello {{name}},\n\nA package addressed to the {{department}} department requires your confirmation " +
            "before it can be delivered.\n\nProvide confirmation using the secure link below.\n\n" +
            "Thanks,\nMail Services",
    },
}

// TemplateCatalog is the fixed set of simulation templates.
type TemplateCatalog struct {
    templates []model.Template
}

func NewTemplateCatalog() *TemplateCatalog {
    return &TemplateCatalog{templates: builtinTemplates}
}

// List returns a copy of every template.
func (c *TemplateCatalog) List() []model.Template {
    return append([]model.Template(nil), c.templates...)
}

func (c *TemplateCatalog) FindByKey(key string) (model.Template, bool) {
    for _, t := range c.templates {
        if t.Key == key {
            return t, true
        }
    }
    return model.Template{}, false
}

// RenderTemplate fills {{name}} and {{department}}, falling back to generic
// wording when the allowlist has no value.
func RenderTemplate(body, name, department string) string {
    if strings.TrimSpace(name) == "" {
        name = defaultRecipientName
    }
    if strings.TrimSpace(department) == "" {
        department = defaultRecipientDepartment
    }
    return strings.NewReplacer("{{name}}", name, "{{department}}", department).Replace(body)
}
