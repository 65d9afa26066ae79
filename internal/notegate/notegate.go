// Package notegate implements the tag-driven per-phase documentation gate:
// given an item and a target phase set, it reports which required notes
// are missing or unfilled and produces the expectedNotes status report
// every response surface includes.
package notegate

import (
	"context"
	"strings"

	"github.com/taskgraph/orchestrator/internal/config"
	"github.com/taskgraph/orchestrator/internal/store"
	"github.com/taskgraph/orchestrator/internal/types"
)

type Gate struct {
	store store.Store
}

func New(s store.Store) *Gate {
	return &Gate{store: s}
}

// Missing returns the required NoteSpecs in phases whose Note is absent
// or empty/whitespace-only. An item whose tags match no schema always
// passes (nil, nil).
func (g *Gate) Missing(ctx context.Context, item *types.WorkItem, cfg *config.WorkflowConfig, phases []types.Role) ([]types.NoteSpec, error) {
	specs := cfg.NoteSchemaForTags(item.Tags)
	if len(specs) == 0 {
		return nil, nil
	}

	notes, err := g.store.ListNotes(ctx, item.ID, nil)
	if err != nil {
		return nil, types.WrapError(types.ErrDatabase, "failed to list notes", err)
	}
	byKey := make(map[string]*types.Note, len(notes))
	for _, n := range notes {
		byKey[strings.ToLower(n.Key)] = n
	}

	inScope := make(map[types.Role]struct{}, len(phases))
	for _, p := range phases {
		inScope[p] = struct{}{}
	}

	var missing []types.NoteSpec
	for _, spec := range specs {
		if !spec.Required {
			continue
		}
		if _, ok := inScope[spec.Role]; !ok {
			continue
		}
		n, exists := byKey[strings.ToLower(spec.Key)]
		if !exists || !n.Filled() {
			missing = append(missing, spec)
		}
	}
	return missing, nil
}

// ExpectedNotes produces the full status report for every schema spec,
// regardless of phase scope, for inclusion in API responses.
func (g *Gate) ExpectedNotes(ctx context.Context, item *types.WorkItem, cfg *config.WorkflowConfig) ([]types.ExpectedNote, error) {
	specs := cfg.NoteSchemaForTags(item.Tags)
	if len(specs) == 0 {
		return nil, nil
	}

	notes, err := g.store.ListNotes(ctx, item.ID, nil)
	if err != nil {
		return nil, types.WrapError(types.ErrDatabase, "failed to list notes", err)
	}
	byKey := make(map[string]*types.Note, len(notes))
	for _, n := range notes {
		byKey[strings.ToLower(n.Key)] = n
	}

	out := make([]types.ExpectedNote, 0, len(specs))
	for _, spec := range specs {
		n, exists := byKey[strings.ToLower(spec.Key)]
		out = append(out, types.ExpectedNote{
			Key:         spec.Key,
			Role:        spec.Role,
			Required:    spec.Required,
			Description: spec.Description,
			Exists:      exists,
			Filled:      exists && n.Filled(),
		})
	}
	return out, nil
}
