// File: internal/alerts/alerts.go
package alerts

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Delivery is the outcome of one notification send.
type Delivery struct {
	Timestamp time.Time
	Batch     string
	Kind      string
	Recipient string
	Subject   string
	Err       error
}

// Log appends deliveries to deliveries_YYYYMMDD.csv under a directory.
// A nil *Log discards everything.
type Log struct {
	dir string
	mu  sync.Mutex
}

// NewLog returns nil when dir is empty.
func NewLog(dir string) (*Log, error) {
	if dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audit dir %s: %w", dir, err)
	}
	return &Log{dir: dir}, nil
}

// FileFor is the CSV file that holds rows for day t.
func (l *Log) FileFor(t time.Time) string {
	return filepath.Join(l.dir, fmt.Sprintf("deliveries_%s.csv", t.Format("20060102")))
}

// Append writes a single row.
func (l *Log) Append(d Delivery) error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.FileFor(d.Timestamp), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	status, detail := "sent", ""
	if d.Err != nil {
		status, detail = "failed", d.Err.Error()
	}
	row := []string{
		d.Timestamp.Format(time.RFC3339),
		d.Batch,
		d.Kind,
		d.Recipient,
		d.Subject,
		status,
		detail,
	}
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}
