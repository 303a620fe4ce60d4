package prommetrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/gonzalop/soundftp"
)

var _ soundftp.MetricsCollector = (*Collector)(nil)

func TestCollector(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.RecordOperation("download", true, 120*time.Millisecond)
	c.RecordOperation("download", false, 30*time.Millisecond)
	c.RecordOperation("mkdir", true, time.Millisecond)
	c.RecordTransfer("download", 4096, 100*time.Millisecond)
	c.RecordTransfer("download", 1024, 20*time.Millisecond)
	c.RecordTransfer("upload", 10, time.Millisecond)

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"download ok", testutil.ToFloat64(c.operationsTotal.WithLabelValues("download", "true")), 1},
		{"download failed", testutil.ToFloat64(c.operationsTotal.WithLabelValues("download", "false")), 1},
		{"mkdir ok", testutil.ToFloat64(c.operationsTotal.WithLabelValues("mkdir", "true")), 1},
		{"bytes down", testutil.ToFloat64(c.transferBytes.WithLabelValues("download")), 5120},
		{"bytes up", testutil.ToFloat64(c.transferBytes.WithLabelValues("upload")), 10},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}

	if n := testutil.CollectAndCount(c.operationDuration); n != 2 {
		t.Errorf("operation duration series = %d, want 2", n)
	}
}

func TestHandler(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	c := New(reg)
	c.RecordOperation("connect", true, time.Second)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `soundftp_operations_total{op="connect",success="true"} 1`) {
		t.Errorf("metrics output missing the connect counter:\n%s", body)
	}
}

func TestCollector_WithSession(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	s := soundftp.New(soundftp.WithMetrics(New(reg)))
	_ = s.MakeDirectory("x")

	want := `
# HELP soundftp_operations_total Total number of session operations
# TYPE soundftp_operations_total counter
soundftp_operations_total{op="mkdir",success="false"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(want), "soundftp_operations_total"); err != nil {
		t.Error(err)
	}
}
