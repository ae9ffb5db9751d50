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

// Package config describes cmd/sshd's on-disk JSON configuration, which a
// command-line flag may point at to override flag defaults (cmd/sshd
// applies flags first, then any JSON file named by -c last, matching the
// teacher's own flag-then-JSON-override order).
package config

import (
	"encoding/json"
	"os"
)

// Config is cmd/sshd's full configuration surface.
type Config struct {
	Listen     string `json:"listen"`
	Key        string `json:"key"`
	Crypt      string `json:"crypt"`
	NoComp     bool   `json:"nocomp"`
	WindowSize int    `json:"window"`
	MaxPacket  int    `json:"maxpacket"`
	Timeout    int    `json:"timeout"`
	RekeyBytes int64  `json:"rekeybytes"`
	Log        string `json:"log"`
	MetricsLog string `json:"metricslog"`
	MetricsFreq int   `json:"metricsfreq"`
	Quiet      bool   `json:"quiet"`
}

// Load decodes a JSON document at path into cfg, overwriting any field the
// document sets.
func Load(cfg *Config, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return json.NewDecoder(f).Decode(cfg)
}
