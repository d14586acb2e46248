package main

import (
	"testing"

	dto "github.com/prometheus/client_model/go"
)

func TestSortedMetricsOrdersByJoinedLabelValues(t *testing.T) {
	str := func(s string) *string { return &s }
	fam := &dto.MetricFamily{
		Metric: []*dto.Metric{
			{Label: []*dto.LabelPair{{Name: str("role"), Value: str("target")}, {Name: str("backend"), Value: str("tcp")}}},
			{Label: []*dto.LabelPair{{Name: str("role"), Value: str("initiator")}, {Name: str("backend"), Value: str("shm")}}},
		},
	}
	rows := sortedMetrics(fam, []string{"role", "backend"})
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].label != "initiator/shm" || rows[1].label != "target/tcp" {
		t.Fatalf("unexpected order: %+v", rows)
	}
}
