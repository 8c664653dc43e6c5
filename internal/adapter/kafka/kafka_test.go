package kafka

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sayantanonfire/era5-export/internal/pipeline"
)

func TestSerializeToMessage(t *testing.T) {
	done := time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC)
	notice := pipeline.ExportNotice{
		StorePath: "/data/era5.zarr",
		Variables: []pipeline.VariableSummary{
			{Name: "t2m", Shape: []int{720, 4, 9, 18}, Units: "°C", LongName: "2 metre temperature"},
			{Name: "tp_sum", Shape: []int{720, 9, 18}, Units: "mm"},
		},
		CompletedAt: done,
	}

	msg, err := serializeToMessage(notice)
	require.NoError(t, err)

	assert.Equal(t, []byte("/data/era5.zarr"), msg.Key)
	assert.Contains(t, string(msg.Value), `"store_path":"/data/era5.zarr"`)
	assert.Contains(t, string(msg.Value), `"name":"tp_sum"`)
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "variable_count", msg.Headers[0].Key)
	assert.Equal(t, []byte("2"), msg.Headers[0].Value)
	assert.Equal(t, "completed_at", msg.Headers[1].Key)
	assert.Equal(t, []byte(done.Format(time.RFC3339)), msg.Headers[1].Value)
}
