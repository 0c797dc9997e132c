package syncstate

import (
	"gopkg.in/yaml.v3"

	"mdvec-core/internal/errors"
	"mdvec-core/pkg/types"
)

// Statistics is the get_sync_statistics-style aggregate supplemented from
// original_source's intelligent_sync_manager.py, computed over
// list_sync_statuses()'s result rather than exposed as its own operation.
type Statistics struct {
	TotalCollections int            `yaml:"total_collections"`
	TotalFiles       int            `yaml:"total_files"`
	TotalChunks      int            `yaml:"total_chunks"`
	ByStatus         map[string]int `yaml:"by_status"`
}

// AggregateStatistics summarizes a set of sync statuses, typically the
// result of ListSyncStatuses.
func AggregateStatistics(statuses []types.CollectionSyncStatus) Statistics {
	stats := Statistics{ByStatus: make(map[string]int)}
	for _, st := range statuses {
		stats.TotalCollections++
		stats.TotalFiles += st.TotalFiles
		stats.TotalChunks += st.TotalChunks
		stats.ByStatus[string(st.Status)]++
	}
	return stats
}

// DumpYAML renders Statistics as YAML for operator-facing debug output,
// per §6.3's list_sync_statuses() debug dump support.
func (s Statistics) DumpYAML() (string, error) {
	data, err := yaml.Marshal(s)
	if err != nil {
		return "", errors.Wrap(errors.KindInternal, "failed to marshal statistics", err)
	}
	return string(data), nil
}
