package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCaptureWriterTruncatesBufferButCountsFullSize(t *testing.T) {
	rec := httptest.NewRecorder()
	cw := &captureWriter{ResponseWriter: rec, status: http.StatusOK, limit: 10}

	n, err := cw.Write([]byte("0123456789ABCDEF"))
	require.NoError(t, err)
	assert.Equal(t, 16, n)

	// The client receives the full body; the capture buffer stops at the
	// limit while size keeps counting so the store decision can detect
	// the truncation.
	assert.Equal(t, "0123456789ABCDEF", rec.Body.String())
	assert.Equal(t, "0123456789", cw.buf.String())
	assert.Equal(t, int64(16), cw.size)
}

func TestStorableRejectsTruncatedAndNonOKResponses(t *testing.T) {
	cases := []struct {
		name   string
		status int
		size   int64
		limit  int64
		want   bool
	}{
		{"small 200 body", http.StatusOK, 100, 1024, true},
		{"body exactly at limit", http.StatusOK, 1024, 1024, true},
		{"body past limit was truncated", http.StatusOK, 2048, 1024, false},
		{"no limit configured", http.StatusOK, 1 << 30, 0, true},
		{"non-200 never cached", http.StatusConflict, 100, 1024, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, storable(tc.status, tc.size, tc.limit))
		})
	}
}
