/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package translationunit

import (
	"context"
	"errors"

	"chainguard.dev/translationflow/gitremote"
	"github.com/chainguard-dev/clog"
)

// LabelSetup reports the outcome of EnsureLabels.
type LabelSetup struct {
	CreatedLabels []string `json:"createdLabels"`
	Message       string   `json:"message"`
}

// Definitions returns the label set the workflow relies on.
func (l *Lifecycle) Definitions() []gitremote.Label {
	return []gitremote.Label{
		{Name: l.cfg.Labels.Translation, Color: "0075ca", Description: "Pull request de traduction"},
		{Name: l.cfg.Labels.WIP, Color: "d73a4a", Description: "Traduction en cours de développement"},
		{Name: l.cfg.Labels.Review, Color: "a2eeef", Description: "Traduction prête pour révision"},
	}
}

// EnsureLabels creates any workflow label the repository is missing. Labels
// that already exist are left alone. Other failures are logged and do not
// stop the remaining labels from being attempted; an error is returned only
// if the context is done.
func (l *Lifecycle) EnsureLabels(ctx context.Context) (*LabelSetup, error) {
	log := clog.FromContext(ctx)
	res := &LabelSetup{CreatedLabels: []string{}, Message: "Labels setup completed"}
	for _, label := range l.Definitions() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		err := l.remote.CreateLabel(ctx, label)
		switch {
		case err == nil:
			log.Infof("Created label %s", label.Name)
			res.CreatedLabels = append(res.CreatedLabels, label.Name)
		case gitremote.IsAlreadyExists(err):
			log.Infof("Label %s already exists", label.Name)
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil, err
		default:
			log.Warnf("Failed to create label %s: %v", label.Name, err)
		}
	}
	return res, nil
}
