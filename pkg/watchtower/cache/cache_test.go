package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmaforge/forge/pkg/model"
)

func newTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisWithClient(client), mr
}

func sampleItems() []model.FeedItem {
	url := "https://example.org/item"
	vendor := "Contoso Pharmaceuticals"
	published := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	return []model.FeedItem{
		{
			Source:      "fda_recalls",
			ExternalID:  "D-0042-2026",
			Title:       "[Class II] Recall: Amoxicillin 500mg Capsules",
			URL:         &url,
			PublishedAt: &published,
			Category:    model.CategoryRecall,
			VendorName:  &vendor,
			IngestedAt:  published,
		},
	}
}

func TestRoundTrip(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	payload, err := EncodeItems(sampleItems())
	require.NoError(t, err)

	c.SetEx(ctx, "watchtower:cache:fda_recalls", payload, 900*time.Second)

	got, hit := c.Get(ctx, "watchtower:cache:fda_recalls")
	require.True(t, hit)

	items, ok := DecodeItems(got)
	require.True(t, ok)
	require.Len(t, items, 1)
	assert.Equal(t, "D-0042-2026", items[0].ExternalID)
	require.NotNil(t, items[0].VendorName)
	assert.Equal(t, "Contoso Pharmaceuticals", *items[0].VendorName)
}

func TestMissOnAbsentKey(t *testing.T) {
	c, _ := newTestCache(t)
	_, hit := c.Get(context.Background(), "watchtower:cache:fda_shortages")
	assert.False(t, hit)
}

func TestTTLExpiry(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	c.SetEx(ctx, "k", []byte("[]"), time.Second)
	mr.FastForward(2 * time.Second)

	_, hit := c.Get(ctx, "k")
	assert.False(t, hit)
}

func TestSilentDegradeWhenBackendDown(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	mr.Close()

	// Neither call may panic or surface an error.
	c.SetEx(ctx, "k", []byte("[]"), time.Minute)
	_, hit := c.Get(ctx, "k")
	assert.False(t, hit)
}

func TestDecodeRejectsCorruptPayloads(t *testing.T) {
	cases := map[string]string{
		"not json":          `{{{`,
		"not an array":      `{"source":"fda_recalls"}`,
		"missing source":    `[{"external_id":"x","title":"t","category":"recall"}]`,
		"empty external_id": `[{"source":"s","external_id":"","title":"t","category":"recall"}]`,
		"bad category":      `[{"source":"s","external_id":"x","title":"t","category":"bulletin"}]`,
	}
	for name, payload := range cases {
		_, ok := DecodeItems([]byte(payload))
		assert.False(t, ok, "case %q should be rejected", name)
	}

	items, ok := DecodeItems([]byte(`[]`))
	assert.True(t, ok)
	assert.Empty(t, items)
}

func TestNoop(t *testing.T) {
	var c Cache = Noop{}
	c.SetEx(context.Background(), "k", []byte("v"), time.Minute)
	_, hit := c.Get(context.Background(), "k")
	assert.False(t, hit)
}
