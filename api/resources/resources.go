// FilePath: api/resources/resources.go
package resources

import (
	"github.com/hydroguard/hydroguard/internal/app"
)

// Resources holds all HTTP resource handlers
type Resources struct {
	Auth      *AuthHandlers
	Control   *ControlHandlers
	Operators *OperatorHandlers
	Sites     *SiteHandlers
	Feed      *FeedHandlers
}

// NewResources creates a new Resources instance
func NewResources(svc *app.Service) *Resources {
	return &Resources{
		Auth:      &AuthHandlers{app: svc},
		Control:   &ControlHandlers{app: svc},
		Operators: &OperatorHandlers{app: svc},
		Sites:     &SiteHandlers{app: svc},
		Feed:      &FeedHandlers{app: svc},
	}
}
