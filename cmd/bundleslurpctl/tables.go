package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/chtzvt/bundleslurp/internal/api"
	"github.com/chtzvt/bundleslurp/internal/checkpoint"
	"github.com/chtzvt/bundleslurp/internal/record"
	"github.com/chtzvt/bundleslurp/internal/warehouse"
)

func printStatusTable(data any) {
	st, ok := data.(*api.StatusResponse)
	if !ok || st == nil {
		fmt.Println("No status")
		return
	}
	fmt.Printf("Node: %s\n", st.Node)
	if len(st.Shards) == 0 {
		fmt.Println("No shards")
		return
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Shard", "Documents", "Records", "Rejected", "Skipped", "Batches", "Retries", "Offset", "State", "Committed"})
	for _, s := range st.Shards {
		table.Append([]string{
			strconv.Itoa(s.Shard),
			strconv.FormatInt(s.Documents, 10),
			strconv.FormatInt(s.Records, 10),
			strconv.FormatInt(s.Rejected, 10),
			strconv.FormatInt(s.SkippedSubEntries, 10),
			strconv.FormatInt(s.Batches, 10),
			strconv.FormatInt(s.Retries, 10),
			strconv.FormatInt(s.CheckpointOffset, 10),
			s.CommitState,
			valOrDash(s.CommittedAt),
		})
	}
	table.Render()
}

func printUploadTable(files []string) func(any) {
	return func(data any) {
		results, ok := data.([]*api.UploadResponse)
		if !ok || len(results) == 0 {
			fmt.Println("Nothing uploaded")
			return
		}
		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"File", "Shard", "Documents", "First Offset", "Request"})
		for i, r := range results {
			first := "-"
			if len(r.Offsets) > 0 {
				first = strconv.FormatInt(r.Offsets[0], 10)
			}
			table.Append([]string{files[i], strconv.Itoa(r.Shard), strconv.Itoa(len(r.Offsets)), first, r.RequestID})
		}
		table.Render()
	}
}

func printCheckpointsTable(data any) {
	cps, ok := data.([]checkpoint.Checkpoint)
	if !ok || len(cps) == 0 {
		fmt.Println("No shards configured")
		return
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Shard", "Offset", "Token", "Committed"})
	for _, cp := range cps {
		offset := "-"
		if cp.Offset >= 0 {
			offset = strconv.FormatInt(cp.Offset, 10)
		}
		table.Append([]string{strconv.Itoa(cp.Shard), offset, strOrDash(cp.Token), valOrDash(cp.CommittedAt)})
	}
	table.Render()
}

func printPartitionsTable(t *warehouse.Table) func(any) {
	return func(data any) {
		keys, ok := data.([]record.PartitionKey)
		if !ok || len(keys) == 0 {
			fmt.Println("No partitions in range")
			return
		}
		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Date", "Path"})
		for _, k := range keys {
			table.Append([]string{k.Date(), t.Name() + "/" + k.String()})
		}
		table.Render()
	}
}

func printRecordsTable(data any) {
	recs, ok := data.([]record.FlatRecord)
	if !ok || len(recs) == 0 {
		fmt.Println("No rows")
		return
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader(record.Columns)
	for i := range recs {
		r := &recs[i]
		row := make([]string, len(record.Columns))
		for j, col := range record.Columns {
			row[j] = cell(r, col)
		}
		table.Append(row)
	}
	table.Render()
}

func cell(r *record.FlatRecord, col string) string {
	switch {
	case col == record.FieldBundleID:
		return r.BundleID
	case record.IsIntColumn(col):
		if v, ok := r.Int(col); ok {
			return strconv.Itoa(v)
		}
	case record.IsListColumn(col):
		return strings.Join(r.List(col), ", ")
	default:
		if v := r.String(col); v != nil {
			return *v
		}
	}
	return "-"
}
