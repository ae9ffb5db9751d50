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

// Package listenaddr parses a single listen-address spec that may name a
// contiguous range of ports, so an sshd binary can bind one socket per port
// in the range with one flag.
package listenaddr

import (
	"regexp"
	"strconv"

	"github.com/pkg/errors"
)

var rangeMatcher = regexp.MustCompile(`(.*):([0-9]{1,5})-?([0-9]{1,5})?`)

// Range is a host with an inclusive port range (MinPort == MaxPort for a
// single port).
type Range struct {
	Host    string
	MinPort uint64
	MaxPort uint64
}

// Parse reads "host:port" or "host:minport-maxport".
func Parse(addr string) (*Range, error) {
	matches := rangeMatcher.FindStringSubmatch(addr)
	if len(matches) < 4 {
		return nil, errors.Errorf("listenaddr: malformed address %q", addr)
	}

	minPort, err := strconv.Atoi(matches[2])
	if err != nil {
		return nil, errors.Wrap(err, "listenaddr: parsing min port")
	}
	maxPort := minPort
	if matches[3] != "" {
		maxPort, err = strconv.Atoi(matches[3])
		if err != nil {
			return nil, errors.Wrap(err, "listenaddr: parsing max port")
		}
	}

	if minPort > maxPort || minPort == 0 || maxPort > 65535 {
		return nil, errors.Errorf("listenaddr: invalid port range %d-%d", minPort, maxPort)
	}

	return &Range{Host: matches[1], MinPort: uint64(minPort), MaxPort: uint64(maxPort)}, nil
}

// Ports expands the range into individual "host:port" strings.
func (r *Range) Ports() []string {
	out := make([]string, 0, r.MaxPort-r.MinPort+1)
	for p := r.MinPort; p <= r.MaxPort; p++ {
		out = append(out, r.Host+":"+strconv.FormatUint(p, 10))
	}
	return out
}
