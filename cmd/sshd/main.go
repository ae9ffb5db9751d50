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

package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli"

	"github.com/xtaci/sshmux/ciphers"
	"github.com/xtaci/sshmux/config"
	"github.com/xtaci/sshmux/listenaddr"
	"github.com/xtaci/sshmux/metrics"
	"github.com/xtaci/sshmux/pipeio"
	"github.com/xtaci/sshmux/sshmux"
	"github.com/xtaci/sshmux/wirebuf"
)

// VERSION is populated via build flags when packaging official binaries.
var VERSION = "SELFBUILD"

// reasonUnknownChannelType is SSH_OPEN_UNKNOWN_CHANNEL_TYPE (RFC 4254 §5.1).
const reasonUnknownChannelType = 3

func main() {
	if VERSION == "SELFBUILD" {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	myApp := cli.NewApp()
	myApp.Name = "sshd"
	myApp.Usage = "server (SSH channel multiplexer over sshmux)"
	myApp.Version = VERSION
	myApp.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "listen,l",
			Value: ":2200",
			Usage: `listen address, eg: "IP:2200" for a single port, "IP:minport-maxport" for port range`,
		},
		cli.StringFlag{
			Name:   "key",
			Value:  "it's a secrect",
			Usage:  "pre-shared secret between client and server",
			EnvVar: "SSHMUX_KEY",
		},
		cli.StringFlag{
			Name:  "crypt",
			Value: "aead",
			Usage: "aead, none, null",
		},
		cli.BoolFlag{
			Name:  "nocomp",
			Usage: "disable snappy compression",
		},
		cli.IntFlag{
			Name:  "window",
			Value: 2 * 1024 * 1024,
			Usage: "per-channel flow-control window size in bytes",
		},
		cli.IntFlag{
			Name:  "maxpacket",
			Value: 32 * 1024,
			Usage: "maximum CHANNEL_DATA payload size in bytes",
		},
		cli.IntFlag{
			Name:  "timeout",
			Value: 120,
			Usage: "seconds a single read may block before the connection is considered dead",
		},
		cli.Int64Flag{
			Name:  "rekeybytes",
			Value: 1 << 30,
			Usage: "bytes transferred in one direction before a rekey is initiated",
		},
		cli.StringFlag{
			Name:  "log",
			Value: "",
			Usage: "specify a log file to output, default goes to stderr",
		},
		cli.StringFlag{
			Name:  "metricslog",
			Value: "",
			Usage: "collect connection metrics to file, aware of timeformat in golang, like: ./metrics-20060102.log",
		},
		cli.IntFlag{
			Name:  "metricsfreq",
			Value: 60,
			Usage: "metrics collect period, in seconds",
		},
		cli.BoolFlag{
			Name:  "quiet",
			Usage: "to suppress the 'channel open/close' messages",
		},
		cli.StringFlag{
			Name:  "c",
			Value: "", // when set, the JSON file must exist on disk
			Usage: "config from json file, which will override the command from shell",
		},
	}
	myApp.Action = func(c *cli.Context) error {
		cfg := config.Config{}
		cfg.Listen = c.String("listen")
		cfg.Key = c.String("key")
		cfg.Crypt = c.String("crypt")
		cfg.NoComp = c.Bool("nocomp")
		cfg.WindowSize = c.Int("window")
		cfg.MaxPacket = c.Int("maxpacket")
		cfg.Timeout = c.Int("timeout")
		cfg.RekeyBytes = c.Int64("rekeybytes")
		cfg.Log = c.String("log")
		cfg.MetricsLog = c.String("metricslog")
		cfg.MetricsFreq = c.Int("metricsfreq")
		cfg.Quiet = c.Bool("quiet")

		if c.String("c") != "" {
			// Only JSON configuration files are supported at the moment.
			err := config.Load(&cfg, c.String("c"))
			checkError(err)
		}

		if cfg.Log != "" {
			f, err := os.OpenFile(cfg.Log, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666)
			checkError(err)
			defer f.Close()
			log.SetOutput(f)
		}

		log.Println("version:", VERSION)
		log.Println("listening on:", cfg.Listen)
		log.Println("encryption:", cfg.Crypt)
		log.Println("compression:", !cfg.NoComp)
		log.Println("window:", cfg.WindowSize, "maxpacket:", cfg.MaxPacket)
		log.Println("timeout:", cfg.Timeout)
		log.Println("rekeybytes:", cfg.RekeyBytes)
		log.Println("metricslog:", cfg.MetricsLog)
		log.Println("quiet:", cfg.Quiet)

		if len(cfg.Key) < 8 {
			color.Red("warning: 'key' is short (%d bytes); prefer a longer pre-shared secret", len(cfg.Key))
		}

		log.Println("initiating key derivation")
		pass := ciphers.DeriveKey([]byte(cfg.Key), 32)
		log.Println("key derivation done")

		counters := &metrics.Counters{}
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go metrics.Log(ctx, cfg.MetricsLog, time.Duration(cfg.MetricsFreq)*time.Second, counters)

		sessCfg := sshmux.DefaultConfig()
		sessCfg.WindowSize = uint32(cfg.WindowSize)
		sessCfg.MaximumPacketSize = uint32(cfg.MaxPacket)
		sessCfg.ConnectionTimeout = time.Duration(cfg.Timeout) * time.Second
		sessCfg.RekeyLimits = wirebuf.RekeyLimits{Bytes: uint64(cfg.RekeyBytes), Packets: 1 << 31}
		sessCfg.Identification = "SSH-2.0-sshmux_" + VERSION
		sessCfg.Logger = log.Default()
		sessCfg.Metrics = counters

		var wg sync.WaitGroup
		loop := func(lis net.Listener) {
			defer wg.Done()
			for {
				conn, err := lis.Accept()
				if err != nil {
					log.Println(err)
					return
				}
				log.Println("remote address:", conn.RemoteAddr())
				go handleConn(conn, pass, cfg, sessCfg, counters)
			}
		}

		addrs, err := listenaddr.Parse(cfg.Listen)
		checkError(err)

		for _, addr := range addrs.Ports() {
			lis, err := net.Listen("tcp", addr)
			checkError(err)
			log.Printf("listening on: %v/tcp", addr)
			wg.Add(1)
			go loop(lis)
		}

		wg.Wait()
		return nil
	}
	myApp.Run(os.Args)
}

// handleConn exchanges identification, stands up a sshmux.Session over
// conn, and runs it until the peer disconnects or the connection dies.
func handleConn(conn net.Conn, key []byte, cfg config.Config, sessCfg sshmux.Config, counters *metrics.Counters) {
	defer conn.Close()

	peerID, reader, err := sshmux.ExchangeIdentification(conn, conn, wirebuf.Standard(sessCfg.Identification))
	if err != nil {
		log.Println("identification exchange:", err)
		return
	}
	log.Println("peer identification:", peerID.String())

	var seal wirebuf.SealingCipher
	var open wirebuf.OpeningCipher
	switch cfg.Crypt {
	case "none", "null":
		seal, open = ciphers.Null{}, ciphers.Null{}
	default:
		aeadSeal, err := ciphers.NewAEAD(key)
		if err != nil {
			log.Println("cipher init:", err)
			return
		}
		aeadOpen, err := ciphers.NewAEAD(key)
		if err != nil {
			log.Println("cipher init:", err)
			return
		}
		seal, open = aeadSeal, aeadOpen
	}

	handler := &echoHandler{
		windowSize: sessCfg.WindowSize,
		maxPacket:  sessCfg.MaximumPacketSize,
		quiet:      cfg.Quiet,
		counters:   counters,
	}
	sess := sshmux.NewSession(conn, reader, sessCfg, handler, seal, open)
	if !cfg.NoComp {
		sess.SetCompressor(ciphers.Snappy{})
	} else {
		sess.SetCompressor(sshmux.NullCompressor{})
	}

	if err := sess.Run(context.Background()); err != nil {
		log.Printf("%+v", err)
	}
}

// echoHandler answers "session" channels by echoing whatever the peer
// sends, and answers "direct-tcpip" channels by dialing the requested
// onward address and piping the two ends together, demonstrating the two
// channel shapes spec.md names without pulling in a real shell/pty.
type echoHandler struct {
	windowSize uint32
	maxPacket  uint32
	quiet      bool
	counters   *metrics.Counters
}

func (h *echoHandler) logln(v ...any) {
	if !h.quiet {
		log.Println(v...)
	}
}

func (h *echoHandler) HandleChannelOpen(s *sshmux.Session, msg sshmux.ChannelMsg, accept func(window, maxPacket uint32) *sshmux.ChannelHandle, reject func(reasonCode uint32, description string)) {
	switch msg.OpenType {
	case "session":
		handle := accept(h.windowSize, h.maxPacket)
		h.counters.ChannelsOpened.Add(1)
		go h.serveEcho(handle)

	case "direct-tcpip":
		target := fmt.Sprintf("%s:%d", msg.HostToConnect, msg.PortToConnect)
		upstream, err := net.Dial("tcp", target)
		if err != nil {
			reject(2, "connect failed: "+err.Error()) // SSH_OPEN_CONNECT_FAILED
			return
		}
		handle := accept(h.windowSize, h.maxPacket)
		h.counters.ChannelsOpened.Add(1)
		go h.serveForward(handle, upstream, target)

	default:
		reject(reasonUnknownChannelType, "unsupported channel type "+msg.OpenType)
	}
}

func (h *echoHandler) serveEcho(handle *sshmux.ChannelHandle) {
	ctx := context.Background()
	stream := handle.IntoStream(ctx)
	defer func() {
		stream.Close()
		h.counters.ChannelsClosed.Add(1)
	}()

	h.logln("channel opened (echo):", handle.ID())
	defer h.logln("channel closed (echo):", handle.ID())

	buf := make([]byte, h.maxPacket)
	for {
		n, err := stream.Read(buf)
		if n > 0 {
			h.counters.BytesReceived.Add(uint64(n))
			if _, werr := stream.Write(buf[:n]); werr != nil {
				return
			}
			h.counters.BytesSent.Add(uint64(n))
		}
		if err != nil {
			return
		}
	}
}

func (h *echoHandler) serveForward(handle *sshmux.ChannelHandle, upstream net.Conn, target string) {
	ctx := context.Background()
	stream := handle.IntoStream(ctx)
	defer func() {
		h.counters.ChannelsClosed.Add(1)
	}()

	h.logln("channel opened (direct-tcpip):", handle.ID(), "->", target)
	defer h.logln("channel closed (direct-tcpip):", handle.ID(), "->", target)

	errA, errB := pipeio.Pipe(stream, upstream)
	if errA != nil {
		h.counters.ProtocolErrors.Add(1)
	}
	if errB != nil {
		h.counters.ProtocolErrors.Add(1)
	}
}

func (h *echoHandler) HandleChannelMsg(s *sshmux.Session, msg sshmux.ChannelMsg) {
	h.logln("unhandled channel message:", msg.ChannelID, msg.Kind)
}

func (h *echoHandler) HandleGlobalRequest(s *sshmux.Session, reqType string, wantReply bool, payload []byte, accept func(response []byte), reject func()) {
	h.logln("rejecting global request:", reqType)
	reject()
}

func checkError(err error) {
	if err != nil {
		log.Printf("%+v\n", err)
		os.Exit(-1)
	}
}
