package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func impression(episode string, plays, visitors, finishes int, subtables ...string) ViewImpression {
	return ViewImpression{
		EpisodeID:      episode,
		OrganizationID: "org1",
		Plays:          plays,
		Visitors:       visitors,
		Finishes:       finishes,
		Date:           time.Date(2026, time.August, 1, 0, 0, 0, 0, time.UTC),
		Subtables:      subtables,
	}
}

func TestReconcileMergesSameIdentity(t *testing.T) {
	t.Parallel()

	acc := Reconcile(nil, impression("e1", 3, 2, 1, "sub1"))
	acc = Reconcile(acc, impression("e1", 2, 1, 1, "sub2"))

	require.Len(t, acc, 1)
	assert.Equal(t, 5, acc[0].Plays)
	assert.Equal(t, 3, acc[0].Visitors)
	assert.Equal(t, 2, acc[0].Finishes)
	assert.Equal(t, []string{"sub1", "sub2"}, acc[0].Subtables)
}

func TestReconcileKeepsDistinctIdentities(t *testing.T) {
	t.Parallel()

	acc := Reconcile(nil, impression("e1", 1, 1, 0, "sub1"))
	acc = Reconcile(acc, impression("e2", 2, 2, 1, "sub2"))

	require.Len(t, acc, 2)
	assert.Equal(t, "e1", acc[0].EpisodeID)
	assert.Equal(t, "e2", acc[1].EpisodeID)
}

func TestReconcileDistinguishesOrganizations(t *testing.T) {
	t.Parallel()

	first := impression("e1", 1, 1, 0, "sub1")
	second := impression("e1", 2, 2, 1, "sub2")
	second.OrganizationID = "org2"

	acc := Reconcile(Reconcile(nil, first), second)
	require.Len(t, acc, 2)
}

func TestReconcilePreservesPositionOnMerge(t *testing.T) {
	t.Parallel()

	acc := Reconcile(nil, impression("e1", 1, 0, 0, "sub1"))
	acc = Reconcile(acc, impression("e2", 1, 0, 0, "sub2"))
	acc = Reconcile(acc, impression("e3", 1, 0, 0, "sub3"))
	acc = Reconcile(acc, impression("e2", 4, 0, 0, "sub4"))

	require.Len(t, acc, 3)
	assert.Equal(t, "e2", acc[1].EpisodeID)
	assert.Equal(t, 5, acc[1].Plays)
	assert.Equal(t, []string{"sub2", "sub4"}, acc[1].Subtables)
}

func TestReconcileCountersSumRegardlessOfOrder(t *testing.T) {
	t.Parallel()

	inputs := []ViewImpression{
		impression("e1", 3, 5, 1, "a"),
		impression("e1", 7, 2, 0, "b"),
		impression("e1", 1, 1, 1, "c"),
	}

	permutations := [][]int{
		{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0},
	}
	for _, perm := range permutations {
		var acc []ViewImpression
		for _, idx := range perm {
			acc = Reconcile(acc, inputs[idx])
		}
		require.Len(t, acc, 1)
		assert.Equal(t, 11, acc[0].Plays)
		assert.Equal(t, 8, acc[0].Visitors)
		assert.Equal(t, 2, acc[0].Finishes)
		assert.ElementsMatch(t, []string{"a", "b", "c"}, acc[0].Subtables)
	}
}

func TestMergeDoesNotAliasSubtableSlices(t *testing.T) {
	t.Parallel()

	first := impression("e1", 1, 0, 0, "a")
	merged := first.Merge(impression("e1", 1, 0, 0, "b"))

	merged.Subtables[0] = "mutated"
	assert.Equal(t, []string{"a"}, first.Subtables)
}
