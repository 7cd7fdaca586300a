// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agent

import "log/slog"

// learnWindow is how many recent successful actions each learning pass
// folds into the patterns.
const learnWindow = 5

// Learn runs one pattern-learning pass.
//
// # Description
//
// Folds the most recent learnWindow successful actions into the learned
// patterns: each fold increments the success and attempt counters for the
// action's issue type and overwrites the best action with the success
// detail, last success winning. Failed actions are never folded, so the
// confidence metric only grows from evidence of things that worked.
//
// # Outputs
//
//   - int: Number of successful actions folded this pass.
func Learn(state *State) int {
	successes := state.RecentSuccesses(learnWindow)
	for _, rec := range successes {
		state.RecordPatternSuccess(rec.IssueType, rec.Result.Detail())
	}
	if len(successes) > 0 {
		slog.Debug("Pattern learning pass completed", "folded", len(successes))
	}
	return len(successes)
}
