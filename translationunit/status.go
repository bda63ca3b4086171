/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package translationunit

import (
	"context"
	"slices"

	"chainguard.dev/translationflow/internal/steps"
	"go.opentelemetry.io/otel/attribute"
)

// Stage is the workflow position of a unit, derived from its labels.
// Approval is reported separately on Unit.Approved because approving does
// not change labels.
type Stage string

const (
	StageDraft     Stage = "draft"
	StageInReview  Stage = "in-review"
	StageApproved  Stage = "approved"
	StageUnlabeled Stage = "unlabeled"
)

// Unit describes the current state of a translation unit.
type Unit struct {
	Branch         string   `json:"branch"`
	Number         int      `json:"number"`
	Title          string   `json:"title"`
	URL            string   `json:"url"`
	Labels         []string `json:"labels"`
	ReviewDecision string   `json:"reviewDecision,omitempty"`
	Approvals      int      `json:"approvals"`
	Approved       bool     `json:"approved"`
	Stage          Stage    `json:"stage"`
}

// Status reports the stage of the unit on branch. It returns a *LookupError
// when the branch has no open pull request into the main branch.
func (l *Lifecycle) Status(ctx context.Context, branch string) (*Unit, error) {
	p, ctx := steps.Start(ctx, "unit-status", attribute.String("branch", branch))
	defer p.End()

	var unit *Unit
	if err := p.Run(StepReadStatus, func(ctx context.Context) error {
		st, err := l.remote.PullRequestStatus(ctx, branch, l.cfg.MainBranch)
		if err != nil {
			return err
		}
		if st == nil {
			return &LookupError{Branch: branch}
		}
		unit = &Unit{
			Branch:         branch,
			Number:         st.Number,
			Title:          st.Title,
			URL:            st.URL,
			Labels:         st.Labels,
			ReviewDecision: st.ReviewDecision,
			Approvals:      st.Approvals,
			Approved:       st.Approvals > 0 || st.ReviewDecision == "APPROVED",
		}
		unit.Stage = l.stage(unit)
		return nil
	}); err != nil {
		return nil, err
	}
	return unit, nil
}

func (l *Lifecycle) stage(u *Unit) Stage {
	switch {
	case slices.Contains(u.Labels, l.cfg.Labels.WIP):
		return StageDraft
	case slices.Contains(u.Labels, l.cfg.Labels.Review):
		return StageInReview
	case u.Approved:
		return StageApproved
	default:
		return StageUnlabeled
	}
}
