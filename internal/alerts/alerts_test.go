package alerts

import (
	"encoding/csv"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendWritesDailyCSV(t *testing.T) {
	l, err := NewLog(t.TempDir())
	require.NoError(t, err)

	ts := time.Date(2025, 7, 4, 10, 0, 0, 0, time.UTC)
	require.NoError(t, l.Append(Delivery{Timestamp: ts, Batch: "b1", Kind: "stock", Recipient: "a@x.com", Subject: "In stock now: Carrot"}))
	require.NoError(t, l.Append(Delivery{Timestamp: ts, Batch: "b1", Kind: "stock", Recipient: "b@x.com", Err: errors.New("550 mailbox unavailable")}))

	f, err := os.Open(l.FileFor(ts))
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, rows, 2)
	assert.Equal(t, []string{"2025-07-04T10:00:00Z", "b1", "stock", "a@x.com", "In stock now: Carrot", "sent", ""}, rows[0])
	assert.Equal(t, "failed", rows[1][5])
	assert.Equal(t, "550 mailbox unavailable", rows[1][6])
	assert.Contains(t, l.FileFor(ts), "deliveries_20250704.csv")
}

func TestNilLogDiscards(t *testing.T) {
	l, err := NewLog("")
	require.NoError(t, err)
	assert.Nil(t, l)
	assert.NoError(t, l.Append(Delivery{Timestamp: time.Now()}))
}
