package ragstream

import "context"

// FacetValue is one selectable facet value.
type FacetValue struct {
	Name string `json:"name"`
	ID   int    `json:"id"`
}

// Facets returns the facet vocabulary keyed by category.
func (c *Client) Facets(ctx context.Context) (map[string][]FacetValue, error) {
	var resp struct {
		Data map[string][]FacetValue `json:"data"`
	}
	if err := c.getJSON(ctx, "facets", "/api/facets", &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}
