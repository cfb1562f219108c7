// internal/model/template.go
package model

type Template struct {
    Key     string `json:"key"`
    Name    string `json:"name"`
    Subject string `json:"subject"`
    Body    string `json:"body"`
}
