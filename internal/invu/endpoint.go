package invu

import (
	"strconv"
	"strings"

	"invusync/backend/internal/bizdate"
)

const (
	placeholderStart = "{F_INI}"
	placeholderEnd   = "{F_FIN}"
)

// Endpoint is an upstream query endpoint. PathTemplate carries the {F_INI}
// and {F_FIN} placeholders, so API version changes are a config change.
type Endpoint struct {
	Name         string
	BaseURL      string
	PathTemplate string
}

func (e Endpoint) URL(r bizdate.Range) string {
	path := strings.NewReplacer(
		placeholderStart, strconv.FormatInt(r.FIni, 10),
		placeholderEnd, strconv.FormatInt(r.FFin, 10),
	).Replace(e.PathTemplate)

	base := e.BaseURL
	switch {
	case path == "":
	case strings.HasSuffix(base, "/") && strings.HasPrefix(path, "/"):
		path = path[1:]
	case !strings.HasSuffix(base, "/") && !strings.HasPrefix(path, "/") && !strings.HasSuffix(base, "="):
		// base ending in "=" is a query-routed API such as index.php?r=
		path = "/" + path
	}
	return base + path
}

func (e Endpoint) label() string {
	if e.Name == "" {
		return "custom"
	}
	return e.Name
}
