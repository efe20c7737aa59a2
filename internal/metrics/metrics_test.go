package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordAnswer(t *testing.T) {
	before := testutil.ToFloat64(AnswersTotal.WithLabelValues("openai", StatusError))
	RecordAnswer("openai", time.Second, errors.New("boom"))
	after := testutil.ToFloat64(AnswersTotal.WithLabelValues("openai", StatusError))
	if after != before+1 {
		t.Errorf("error counter = %v, want %v", after, before+1)
	}
}

func TestRecordDocument_SkipsHistogramsOnError(t *testing.T) {
	before := testutil.CollectAndCount(IndexBuildDuration)
	RecordDocument("gemini", 0, time.Second, errors.New("boom"))
	if got := testutil.CollectAndCount(IndexBuildDuration); got != before {
		t.Errorf("build duration series = %d, want %d", got, before)
	}
	RecordDocument("gemini", 12, time.Second, nil)
	if got := testutil.ToFloat64(DocumentsProcessed.WithLabelValues("gemini", StatusSuccess)); got < 1 {
		t.Errorf("success counter = %v", got)
	}
}

func TestStatusClass(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, "2xx"},
		{302, "3xx"},
		{409, "4xx"},
		{502, "5xx"},
	}
	for _, tt := range tests {
		if got := statusClass(tt.code); got != tt.want {
			t.Errorf("statusClass(%d) = %s, want %s", tt.code, got, tt.want)
		}
	}
}
