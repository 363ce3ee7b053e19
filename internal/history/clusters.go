package history

import (
	"errors"
	"fmt"
	"sort"
)

// ClusterGroup holds the records of one cluster.
type ClusterGroup struct {
	ClusterID int64
	Records   []Record
}

// GroupByCluster splits records by the ClusterId carried in each ad. Ads
// without one join the only cluster present, or fallback when no ad names a
// cluster. Groups are ordered by cluster id.
func GroupByCluster(records []Record, fallback int64) ([]ClusterGroup, error) {
	byID := map[int64][]Record{}
	var orphans []Record
	for _, rec := range records {
		if rec.ClusterID > 0 {
			byID[rec.ClusterID] = append(byID[rec.ClusterID], rec)
			continue
		}
		orphans = append(orphans, rec)
	}

	if len(orphans) > 0 || len(byID) == 0 {
		var target int64
		switch {
		case len(byID) == 1:
			for id := range byID {
				target = id
			}
		case len(byID) == 0 && fallback > 0:
			target = fallback
		case len(byID) == 0:
			return nil, errors.New("job ads carry no ClusterId and no cluster id was given")
		default:
			return nil, fmt.Errorf("%d job ad(s) carry no ClusterId in a history of %d clusters", len(orphans), len(byID))
		}
		for _, rec := range orphans {
			rec.ClusterID = target
			byID[target] = append(byID[target], rec)
		}
		if _, ok := byID[target]; !ok {
			byID[target] = nil
		}
	}

	groups := make([]ClusterGroup, 0, len(byID))
	for id, recs := range byID {
		groups = append(groups, ClusterGroup{ClusterID: id, Records: recs})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].ClusterID < groups[j].ClusterID })
	return groups, nil
}
