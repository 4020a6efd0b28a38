// Package render compiles the HTML shells sent by the pipeline. Rendering is
// pure: templates are embedded at build time and no I/O happens per call.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
	"time"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// UserNamePlaceholder is the token left in a compiled shell where each
// recipient's name is substituted at send time. The shell itself is rendered
// exactly once per job.
const UserNamePlaceholder = "{{userName}}"

type Renderer struct {
	templates *template.Template
}

func New() (*Renderer, error) {
	t, err := template.ParseFS(templateFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &Renderer{templates: t}, nil
}

// Newsletter renders the bulk-send shell. The admin-authored body is trusted
// HTML; the recipient name stays a placeholder.
func (r *Renderer) Newsletter(body, adminName string) (string, error) {
	return r.render("newsletter.tmpl", map[string]any{
		"Body":      template.HTML(body),
		"AdminName": adminName,
		"UserName":  UserNamePlaceholder,
		"Year":      time.Now().Year(),
	})
}

// DelistData feeds the product-delist template.
type DelistData struct {
	UserName     string
	ProductName  string
	ProductBrand string
	ProductPrice string
	DelistReason string
	AdminName    string
}

func (r *Renderer) ProductDelist(data DelistData) (string, error) {
	return r.render("product_delist.tmpl", map[string]any{
		"UserName":     data.UserName,
		"ProductName":  data.ProductName,
		"ProductBrand": data.ProductBrand,
		"ProductPrice": data.ProductPrice,
		"DelistReason": data.DelistReason,
		"AdminName":    data.AdminName,
		"Year":         time.Now().Year(),
	})
}

func (r *Renderer) CustomOutreach(body, adminName string) (string, error) {
	return r.render("custom_outreach.tmpl", map[string]any{
		"Body":      template.HTML(body),
		"AdminName": adminName,
		"Year":      time.Now().Year(),
	})
}

func (r *Renderer) render(name string, data map[string]any) (string, error) {
	var buf bytes.Buffer
	if err := r.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

// Personalize substitutes one recipient's name into a compiled shell.
func Personalize(shell, fullName string) string {
	if fullName == "" {
		fullName = "there"
	}
	return strings.ReplaceAll(shell, UserNamePlaceholder, fullName)
}
