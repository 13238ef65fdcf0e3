// internal/writer/builder.go
package writer

import (
	"errors"
	"fmt"

	cfg "github.com/tamzrod/plcpoll/internal/config"
	"github.com/tamzrod/plcpoll/internal/poller"
)

// BuildPlan converts one endpoint config into a writer Plan.
// Assumes config has already passed validation.
func BuildPlan(e cfg.EndpointConfig) (Plan, error) {
	if e.ID == "" {
		return Plan{}, errors.New("writer: endpoint.id required")
	}

	plan := Plan{EndpointID: e.ID}

	for i, it := range e.Items {
		if it.Mirror == nil {
			continue
		}
		key, err := it.Key()
		if err != nil {
			return Plan{}, fmt.Errorf("writer: endpoint %q item %d: %w", e.ID, i, err)
		}
		area, err := poller.ParseArea(it.Mirror.Area)
		if err != nil {
			return Plan{}, fmt.Errorf("writer: endpoint %q item %d mirror: %w", e.ID, i, err)
		}

		dst := it.Mirror.Endpoint
		if dst == "" {
			dst = e.ID
		}

		plan.Routes = append(plan.Routes, Route{
			Name: it.Name,
			Item: key,
			Dests: []MirrorDest{{
				Endpoint:   dst,
				Area:       area,
				AreaNumber: it.Mirror.AreaNumber,
				Offset:     it.Mirror.Offset,
			}},
		})
	}

	if e.Status != nil {
		plan.Status = &StatusPlan{
			Endpoint:   e.ID,
			AreaNumber: e.Status.AreaNumber,
			Offset:     e.Status.Offset,
		}
	}

	return plan, nil
}
