package batch

import "github.com/chtzvt/bundleslurp/internal/record"

// Group is the slice of a batch bound for one partition.
type Group struct {
	Key     record.PartitionKey
	Records []record.FlatRecord
}

// Route splits a batch by the partition key already stamped on each record.
// Groups come out in order of first appearance and keep arrival order inside.
func Route(b *Batch) []Group {
	if b == nil || len(b.Records) == 0 {
		return nil
	}
	idx := make(map[record.PartitionKey]int)
	var groups []Group
	for _, r := range b.Records {
		k := r.Key()
		i, ok := idx[k]
		if !ok {
			i = len(groups)
			idx[k] = i
			groups = append(groups, Group{Key: k})
		}
		groups[i].Records = append(groups[i].Records, r)
	}
	return groups
}
