package models

// OperatorFilters narrows the operator list on the admin surface. Decoded
// from query parameters with gorilla/schema.
type OperatorFilters struct {
	Role   string `schema:"role"`
	Status string `schema:"status"`
	Search string `schema:"search"`
}

// SiteFilters narrows the site list on the admin surface.
type SiteFilters struct {
	District string `schema:"district"`
	Village  string `schema:"village"`
	Search   string `schema:"search"`
}
