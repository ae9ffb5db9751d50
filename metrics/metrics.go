// The MIT License (MIT)
//
// # Copyright (c) 2016 xtaci
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Package metrics accumulates connection-lifetime counters and periodically
// dumps them to a rotated CSV file, in the same shape kcptun's SNMP logger
// produces for its own KCP counters.
package metrics

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"
)

// Counters is a process-wide set of atomic connection counters. The zero
// value is ready to use.
type Counters struct {
	PacketsSent     atomic.Uint64
	PacketsReceived atomic.Uint64
	BytesSent       atomic.Uint64
	BytesReceived   atomic.Uint64
	Rekeys          atomic.Uint64
	ChannelsOpened  atomic.Uint64
	ChannelsClosed  atomic.Uint64
	ProtocolErrors  atomic.Uint64
}

// Header names Snapshot's fields, in order, for a CSV header row.
func (c *Counters) Header() []string {
	return []string{
		"PacketsSent", "PacketsReceived", "BytesSent", "BytesReceived",
		"Rekeys", "ChannelsOpened", "ChannelsClosed", "ProtocolErrors",
	}
}

// Snapshot renders the current counter values as strings, in Header order.
func (c *Counters) Snapshot() []string {
	u := func(v uint64) string { return strconv.FormatUint(v, 10) }
	return []string{
		u(c.PacketsSent.Load()),
		u(c.PacketsReceived.Load()),
		u(c.BytesSent.Load()),
		u(c.BytesReceived.Load()),
		u(c.Rekeys.Load()),
		u(c.ChannelsOpened.Load()),
		u(c.ChannelsClosed.Load()),
		u(c.ProtocolErrors.Load()),
	}
}

// Log periodically appends one row of c's snapshot to path, interpreting
// path as a time.Format layout (e.g. "metrics-20060102.csv" rotates
// daily), writing a header row to a newly created file. It blocks until ctx
// is cancelled, except that it returns at once when path is empty or
// interval is not positive.
func Log(ctx context.Context, path string, interval time.Duration, c *Counters) {
	if path == "" || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logOnce(path, c)
		}
	}
}

func logOnce(path string, c *Counters) {
	dir, file := filepath.Split(path)
	f, err := os.OpenFile(dir+time.Now().Format(file), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666)
	if err != nil {
		return
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if stat, err := f.Stat(); err == nil && stat.Size() == 0 {
		_ = w.Write(append([]string{"Unix"}, c.Header()...))
	}
	_ = w.Write(append([]string{fmt.Sprint(time.Now().Unix())}, c.Snapshot()...))
	w.Flush()
}
