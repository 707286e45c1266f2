// Package web holds the dashboard and tarot templates and their static
// assets, compiled into the binary.
package web

import "embed"

//go:embed templates/*.html
var TemplatesFS embed.FS

// StaticFS holds style.css and the chart script.
//
//go:embed static/*
var StaticFS embed.FS
