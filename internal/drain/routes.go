package drain

import "strings"

const actionPathPrefix = "/ifttt/actions/"

type bodyBuilder func(fields map[string]any) map[string]any

type actionRoute struct {
	path  string
	build bodyBuilder
}

// Known action slugs with their local routes and request-body shapes. The
// builders pick out the fields the local service expects; unknown slugs get
// a derived route with the fields passed through unchanged.
var actionRoutes = map[string]actionRoute{
	"budget_to": {
		path: actionPathPrefix + "budget-to",
		build: func(fields map[string]any) map[string]any {
			return map[string]any{
				"category": fields["category"],
				"amount":   fields["amount"],
			}
		},
	},
	"add_to_budget": {
		path: actionPathPrefix + "add-to-budget",
		build: func(fields map[string]any) map[string]any {
			return map[string]any{
				"category": fields["category"],
				"amount":   fields["amount"],
			}
		},
	},
	"move_between_categories": {
		path: actionPathPrefix + "move-between-categories",
		build: func(fields map[string]any) map[string]any {
			return map[string]any{
				"from_category": fields["from_category"],
				"to_category":   fields["to_category"],
				"amount":        fields["amount"],
			}
		},
	},
}

func routeFor(slug string) actionRoute {
	if r, ok := actionRoutes[slug]; ok {
		return r
	}
	return actionRoute{
		path:  actionPathPrefix + strings.ReplaceAll(slug, "_", "-"),
		build: func(fields map[string]any) map[string]any { return fields },
	}
}
