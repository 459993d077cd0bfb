package api

import (
	"fmt"
	"strings"

	"github.com/danielgtaylor/huma/v2"
)

// links maps operation paths to their RFC 8288 Link header values.
// Enables restish hypermedia navigation via `restish links <url>`.
var links = map[string][]string{
	"/health": {
		`</api/v1/info>; rel="info"`,
		`</api/v1/layers>; rel="layers"`,
		`</api/v1/sources>; rel="sources"`,
		`</api/v1/weights>; rel="weights"`,
	},
	"/api/v1/info": {
		`</health>; rel="health"`,
		`</api/v1/layers>; rel="layers"`,
	},
	"/api/v1/layers": {
		`</api/v1/sources>; rel="sources"`,
		`</api/v1/coverage>; rel="coverage"`,
	},
	"/api/v1/layers/{id}": {
		`</api/v1/layers>; rel="collection"`,
	},
	"/api/v1/sources": {
		`</api/v1/weights>; rel="weights"`,
		`</api/v1/layers>; rel="layers"`,
	},
	"/api/v1/weights": {
		`</api/v1/sources>; rel="sources"`,
		`</tiles/composite/{z}/{x}/{y}.png>; rel="tiles"`,
	},
	"/api/v1/coverage": {
		`</api/v1/layers>; rel="layers"`,
	},
	"/api/v1/coverage/{layer}": {
		`</api/v1/coverage>; rel="collection"`,
	},
	"/api/v1/overlays/coverage": {
		`</api/v1/overlays/stations>; rel="stations"`,
	},
	"/api/v1/overlays/stations": {
		`</api/v1/overlays/coverage>; rel="coverage"`,
	},
}

// LinkTransformer returns a Huma Transformer that injects RFC 8288 Link headers.
func LinkTransformer() huma.Transformer {
	return func(ctx huma.Context, status string, v any) (any, error) {
		op := ctx.Operation()
		if op == nil {
			return v, nil
		}

		for _, link := range links[op.Path] {
			ctx.AppendHeader("Link", link)
		}

		// Item endpoints get a self link
		if strings.Contains(op.Path, "{") && !strings.HasPrefix(op.Path, "/tiles/") {
			ctx.AppendHeader("Link", fmt.Sprintf(`<%s>; rel="self"`, ctx.URL().Path))
		}

		return v, nil
	}
}
