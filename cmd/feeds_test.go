//go:build !integration

package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ncov-ph/ncov-cli/internal/config"
	"github.com/ncov-ph/ncov-cli/internal/dataset"
)

func TestFormatFeeds_DefaultTable(t *testing.T) {
	var buf bytes.Buffer
	formatFeeds(&buf, dataset.Default().All())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 7)
	assert.Contains(t, lines[0], "DATASET")
	assert.Contains(t, lines[0], "LAYER")
	assert.True(t, strings.HasPrefix(lines[1], "foreign"))
	assert.Contains(t, lines[2], "confirmed")
	assert.True(t, strings.HasPrefix(lines[6], "commodities"))
	assert.Contains(t, lines[6], "no")
	assert.Contains(t, lines[6], "/commodities/FeatureServer/0")
}

func TestFeedsCmd_JSON(t *testing.T) {
	cfg = &config.Config{}

	var buf bytes.Buffer
	feedsCmd.SetOut(&buf)
	require.NoError(t, feedsCmd.Flags().Set("json", "true"))
	defer func() {
		feedsCmd.SetOut(nil)
		_ = feedsCmd.Flags().Set("json", "false")
	}()

	require.NoError(t, feedsCmd.RunE(feedsCmd, nil))

	var got []dataset.Dataset
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 6)
	assert.Equal(t, "cases_overseas_worker", got[2].Collection)
	assert.Equal(t, []string{"date_confi", "date_repor"}, got[2].DateFields)
}
