package proxy

import (
	"net/http"

	"github.com/angeloszaimis/querygate/internal/guard"
)

// RequestKey identifies the logical query behind r: its method, path and
// query parameters. Parameter order does not matter; the body is ignored.
func RequestKey(r *http.Request) guard.Key {
	params := make(map[string]any)
	for name, values := range r.URL.Query() {
		params[name] = values
	}

	return guard.Key{r.Method, r.URL.Path, params}
}
