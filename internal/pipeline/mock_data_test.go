package pipeline_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/couchcryptid/storm-data-runoff/internal/domain"
	"github.com/couchcryptid/storm-data-runoff/internal/mockdata"
	"github.com/couchcryptid/storm-data-runoff/internal/observability"
	"github.com/couchcryptid/storm-data-runoff/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadFixtures(t *testing.T) []mockdata.Case {
	t.Helper()
	cases, err := mockdata.Load(filepath.Join("..", "..", mockdata.DefaultPath))
	require.NoError(t, err)
	require.NotEmpty(t, cases)
	return cases
}

func TestRunoffTransformer_WithMockFixtures(t *testing.T) {
	freezeClock(t)
	transformer := pipeline.NewTransformer(nil, nil, 7, domain.BasisTotal, discardLogger(), observability.NewMetricsForTesting())

	for _, tc := range loadFixtures(t) {
		t.Run(tc.Name, func(t *testing.T) {
			out, err := transformer.Transform(context.Background(), tc.RawEvent())

			var est domain.SiteEstimate
			if err == nil {
				require.NoError(t, json.Unmarshal(out.Value, &est))
				assert.Equal(t, est.ID, string(out.Key))
				assert.Equal(t, est.SiteID, out.Headers["site_id"])
				assert.Equal(t, est.Mode, out.Headers["mode"])
			}
			assert.Empty(t, tc.Expected.Check(est, err))
		})
	}
}

func TestRunoffTransformer_FixtureIDsAreDeterministic(t *testing.T) {
	freezeClock(t)
	transformer := pipeline.NewTransformer(nil, nil, 7, domain.BasisTotal, discardLogger(), observability.NewMetricsForTesting())

	seen := map[string]string{}
	for _, tc := range loadFixtures(t) {
		if tc.Expected.Error != "" {
			continue
		}
		first, err := transformer.Transform(context.Background(), tc.RawEvent())
		require.NoError(t, err)
		second, err := transformer.Transform(context.Background(), tc.RawEvent())
		require.NoError(t, err)

		assert.Equal(t, first.Key, second.Key, "replays of %q must share an ID", tc.Name)
		prev, dup := seen[string(first.Key)]
		assert.False(t, dup, "%q and %q share an ID", tc.Name, prev)
		seen[string(first.Key)] = tc.Name
	}
}
