package mutation

import (
	"github.com/roach88/meshroom/internal/ir"
	"github.com/roach88/meshroom/internal/queryir"
)

func msgSelect(id string) *queryir.Select {
	return &queryir.Select{
		From:   "chat.Message",
		Filter: queryir.Equals{Field: "id", Value: ir.VString(id)},
		Limit:  intPtr(1),
		Projections: []queryir.Projection{
			queryir.FieldProjection{Source: "id", Alias: "id"},
			queryir.FieldProjection{Source: "body", Alias: "body"},
			queryir.FieldProjection{Source: "sender", Alias: "sender"},
		},
	}
}

func intPtr(n int) *int { return &n }
