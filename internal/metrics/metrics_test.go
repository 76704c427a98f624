// Copyright (C) 2026 The Notebook Engine Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestObserveSetsPerNotebookGauges(t *testing.T) {
	Observe("nb-test-observe", Counts{
		Pending:          3,
		Processing:       1,
		Completed24h:     42,
		Failed24h:        2,
		Superseded24h:    5,
		BroadcastDropped: 7,
	})
	t.Cleanup(func() { Forget("nb-test-observe") })

	require.Equal(t, float64(3), testutil.ToFloat64(Pending.WithLabelValues("nb-test-observe")))
	require.Equal(t, float64(42), testutil.ToFloat64(Completed24h.WithLabelValues("nb-test-observe")))
	require.Equal(t, float64(7), testutil.ToFloat64(BroadcastDropped.WithLabelValues("nb-test-observe")))
}

func TestForgetRemovesLabelSet(t *testing.T) {
	Observe("nb-test-forget", Counts{Pending: 1})
	Forget("nb-test-forget")

	require.Equal(t, float64(0), testutil.ToFloat64(Pending.WithLabelValues("nb-test-forget")))
	Forget("nb-test-forget")
}
