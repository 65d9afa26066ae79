package rolemachine

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/taskgraph/orchestrator/internal/store"
	"github.com/taskgraph/orchestrator/internal/types"
)

// verificationCriterion is one entry of the JSON array a Verification
// note's body must parse as.
type verificationCriterion struct {
	Criteria string `json:"criteria"`
	Pass     bool   `json:"pass"`
}

// checkVerification implements §4.4's verification policy: when
// item.RequiresVerification, a Note keyed "Verification" (case
// insensitive) must exist whose body is a non-empty JSON array of
// {criteria, pass} where every entry has pass == true.
func checkVerification(ctx context.Context, s store.Store, item *types.WorkItem) *types.AppError {
	if !item.RequiresVerification {
		return nil
	}

	notes, err := s.ListNotes(ctx, item.ID, nil)
	if err != nil {
		return types.WrapError(types.ErrDatabase, "failed to list notes", err)
	}

	var verificationNote *types.Note
	for _, n := range notes {
		if strings.EqualFold(n.Key, "verification") {
			verificationNote = n
			break
		}
	}
	if verificationNote == nil || !verificationNote.Filled() {
		return types.NewError(types.ErrGateFailure, "verification note is required").
			WithDetail("missingNote", "Verification")
	}

	var criteria []verificationCriterion
	if err := json.Unmarshal([]byte(verificationNote.Body), &criteria); err != nil {
		return types.NewError(types.ErrGateFailure, "verification note body must be a JSON array of criteria").
			WithDetail("parseError", err.Error())
	}
	if len(criteria) == 0 {
		return types.NewError(types.ErrGateFailure, "verification requires at least one criterion")
	}
	var failing []string
	for _, c := range criteria {
		if !c.Pass {
			failing = append(failing, c.Criteria)
		}
	}
	if len(failing) > 0 {
		return types.NewError(types.ErrGateFailure, "verification criteria not satisfied").
			WithDetail("failingCriteria", failing)
	}
	return nil
}
