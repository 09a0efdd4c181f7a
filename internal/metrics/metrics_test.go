// Patrolmap - Real-Time Patrol and Incident Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/patrolmap

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordAPIRequest(t *testing.T) {
	before := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/api/v1/entities/{kind}", "200"))

	RecordAPIRequest("GET", "/api/v1/entities/{kind}", 200, 15*time.Millisecond)

	after := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/api/v1/entities/{kind}", "200"))
	if after-before != 1 {
		t.Errorf("api_requests_total delta = %v, want 1", after-before)
	}
}

func TestTrackActiveRequest(t *testing.T) {
	before := testutil.ToFloat64(APIActiveRequests)
	TrackActiveRequest(true)
	if got := testutil.ToFloat64(APIActiveRequests); got != before+1 {
		t.Errorf("active requests = %v, want %v", got, before+1)
	}
	TrackActiveRequest(false)
	if got := testutil.ToFloat64(APIActiveRequests); got != before {
		t.Errorf("active requests = %v, want %v", got, before)
	}
}

func TestRecordFetch(t *testing.T) {
	tests := []struct {
		name         string
		result       string
		wantDegraded float64
	}{
		{"success clears degraded", "success", 0},
		{"empty sets degraded", "empty", 1},
		{"transport error sets degraded", "transport_error", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := testutil.ToFloat64(SyncFetchTotal.WithLabelValues("test_kind", tt.result))
			RecordFetch("test_kind", tt.result, 100*time.Millisecond, 12)

			if d := testutil.ToFloat64(SyncFetchTotal.WithLabelValues("test_kind", tt.result)) - before; d != 1 {
				t.Errorf("sync_fetch_total delta = %v, want 1", d)
			}
			if got := testutil.ToFloat64(SyncDegraded.WithLabelValues("test_kind")); got != tt.wantDegraded {
				t.Errorf("sync_degraded = %v, want %v", got, tt.wantDegraded)
			}
		})
	}
}

func TestRecordStoreWrite(t *testing.T) {
	before := testutil.ToFloat64(StoreWrites.WithLabelValues("OFFICER", "merge", "stale"))

	RecordStoreWrite("OFFICER", "merge", "stale", 2)
	RecordStoreWrite("OFFICER", "merge", "stale", 0)

	if d := testutil.ToFloat64(StoreWrites.WithLabelValues("OFFICER", "merge", "stale")) - before; d != 2 {
		t.Errorf("store_writes_total delta = %v, want 2", d)
	}
}

func TestUpdateStoreGauges(t *testing.T) {
	UpdateStoreGauges("ROUTE", 7, 2, 41)

	if got := testutil.ToFloat64(StoreEntities.WithLabelValues("ROUTE")); got != 7 {
		t.Errorf("store_entities = %v, want 7", got)
	}
	if got := testutil.ToFloat64(StoreUnlocatable.WithLabelValues("ROUTE")); got != 2 {
		t.Errorf("store_unlocatable_entities = %v, want 2", got)
	}
	if got := testutil.ToFloat64(StoreVersion.WithLabelValues("ROUTE")); got != 41 {
		t.Errorf("store_version = %v, want 41", got)
	}
}

func TestRecordPush(t *testing.T) {
	received := testutil.ToFloat64(PushMessagesReceived.WithLabelValues("INCIDENT"))
	failed := testutil.ToFloat64(PushMessagesFailed.WithLabelValues("INCIDENT", "missing_id"))

	RecordPush("INCIDENT", "")
	RecordPush("INCIDENT", "missing_id")

	if d := testutil.ToFloat64(PushMessagesReceived.WithLabelValues("INCIDENT")) - received; d != 2 {
		t.Errorf("received delta = %v, want 2", d)
	}
	if d := testutil.ToFloat64(PushMessagesFailed.WithLabelValues("INCIDENT", "missing_id")) - failed; d != 1 {
		t.Errorf("failed delta = %v, want 1", d)
	}
}

func TestSetBrokerConnected(t *testing.T) {
	SetBrokerConnected(true)
	if testutil.ToFloat64(BrokerConnected) != 1 {
		t.Error("expected broker connected gauge to be 1")
	}
	SetBrokerConnected(false)
	if testutil.ToFloat64(BrokerConnected) != 0 {
		t.Error("expected broker connected gauge to be 0")
	}
}

func TestRecordCacheLookup(t *testing.T) {
	hits := testutil.ToFloat64(CacheHits.WithLabelValues("filter"))
	misses := testutil.ToFloat64(CacheMisses.WithLabelValues("filter"))

	RecordCacheLookup("filter", true)
	RecordCacheLookup("filter", false)
	RecordCacheLookup("filter", false)

	if d := testutil.ToFloat64(CacheHits.WithLabelValues("filter")) - hits; d != 1 {
		t.Errorf("hits delta = %v, want 1", d)
	}
	if d := testutil.ToFloat64(CacheMisses.WithLabelValues("filter")) - misses; d != 2 {
		t.Errorf("misses delta = %v, want 2", d)
	}
}

// TestMetricGathering lints every registered collector.
func TestMetricGathering(t *testing.T) {
	RecordMarkerOp("create")
	RecordSkipped("OFFICER", "unlocatable", 1)

	problems, err := testutil.GatherAndLint(prometheus.DefaultGatherer)
	if err != nil {
		t.Fatalf("GatherAndLint() error = %v", err)
	}
	for _, p := range problems {
		t.Errorf("metric lint problem: %s: %s", p.Metric, p.Text)
	}
}
