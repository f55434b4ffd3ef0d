// Package observability provides the service's metrics and their attributes.
package observability

import (
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys
const (
	attrMethod    = "method"
	attrPath      = "path"
	attrStatus    = "status"
	attrNamespace = "namespace"
	attrReason    = "reason"
	attrScheme    = "scheme"
	attrSuccess   = "success"
)

func methodAttr(method string) attribute.KeyValue {
	return attribute.String(attrMethod, method)
}

func pathAttr(path string) attribute.KeyValue {
	return attribute.String(attrPath, normalizePath(path))
}

func statusAttr(code int) attribute.KeyValue {
	// 200-299 -> 2xx, 400-499 -> 4xx, 500-599 -> 5xx
	return attribute.String(attrStatus, fmt.Sprintf("%dxx", code/100))
}

func namespaceAttr(ns string) attribute.KeyValue {
	return attribute.String(attrNamespace, ns)
}

func reasonAttr(reason string) attribute.KeyValue {
	return attribute.String(attrReason, reason)
}

func schemeAttr(scheme string) attribute.KeyValue {
	return attribute.String(attrScheme, scheme)
}

func successAttr(success bool) attribute.KeyValue {
	return attribute.Bool(attrSuccess, success)
}

// knownPaths are reported verbatim; every other path is reported as "other".
var knownPaths = map[string]bool{
	"/":                             true,
	"/health":                       true,
	"/metrics":                      true,
	"/api/v1/operator/compute":      true,
	"/api/v1/operator/runningjobs":  true,
	"/api/v1/operator/getResult":    true,
	"/api/v1/operator/environments": true,
	"/api/v1/operator/pgsqlinit":    true,
	"/api/v1/operator/info":         true,
	"/api/v1/operator/list":         true,
	"/api/v1/operator/logs":         true,
	"/api/v1/operator/announce":     true,
}

func normalizePath(path string) string {
	path = strings.TrimSuffix(path, "/")
	if path == "" {
		path = "/"
	}
	if knownPaths[path] {
		return path
	}
	return "other"
}
