package vectorindex

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFlattenMetadataDropsNullAndEmpty(t *testing.T) {
	flat := FlattenMetadata(map[string]interface{}{
		"keep":  "value",
		"null":  nil,
		"empty": []string{},
	})
	assert.Equal(t, "value", flat["keep"])
	_, hasNull := flat["null"]
	assert.False(t, hasNull)
	_, hasEmpty := flat["empty"]
	assert.False(t, hasEmpty)
}

func TestFlattenMetadataJoinsPrimitiveSequences(t *testing.T) {
	flat := FlattenMetadata(map[string]interface{}{
		"hierarchy": []string{"Top", "Child", "Grandchild"},
	})
	assert.Equal(t, "Top > Child > Grandchild", flat["hierarchy"])
}

func TestFlattenMetadataStringifiesTimestamps(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	flat := FlattenMetadata(map[string]interface{}{"last_synced": ts})
	assert.Equal(t, "2026-01-02T03:04:05Z", flat["last_synced"])
}

func TestFlattenMetadataKeepsPrimitives(t *testing.T) {
	flat := FlattenMetadata(map[string]interface{}{
		"count":   3,
		"score":   0.9,
		"enabled": true,
	})
	assert.Equal(t, 3, flat["count"])
	assert.Equal(t, 0.9, flat["score"])
	assert.Equal(t, true, flat["enabled"])
}
