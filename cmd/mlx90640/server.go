// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"html/template"
	"image/png"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/maruel/go-mlx90640/mlx90640"
	"github.com/maruel/interrupt"
	"golang.org/x/net/websocket"
)

// heatScale is the size in pixels of one sensor pixel in the rendered
// images.
const heatScale = 10

// Metadata is the information sent along each frame.
type Metadata struct {
	Index   int
	Time    time.Time
	Ambient float64
	Min     mlx90640.NotablePixel
	Max     mlx90640.NotablePixel
	Center  mlx90640.NotablePixel
	Text    string
}

func newMetadata(f *Frame) *Metadata {
	return &Metadata{
		Index:   f.Index,
		Time:    f.Time,
		Ambient: 25 + f.State.DTa,
		Min:     f.Notable.Min,
		Max:     f.Notable.Max,
		Center:  f.Notable.Center,
		Text:    f.Notable.String(),
	}
}

type WebServer struct {
	cond      sync.Cond
	frames    [4 * 10]*Frame // 10 seconds worth of frames at 4Hz.
	lastIndex int            // Index of the most recent frame.
	mux       *http.ServeMux
}

// AddFrame makes f the most recent frame and wakes up the streams.
func (s *WebServer) AddFrame(f *Frame) {
	s.cond.L.Lock()
	defer s.cond.L.Unlock()
	s.lastIndex = (s.lastIndex + 1) % len(s.frames)
	s.frames[s.lastIndex] = f
	s.cond.Broadcast()
}

func newWebServer() *WebServer {
	w := &WebServer{
		cond:      *sync.NewCond(&sync.Mutex{}),
		lastIndex: -1,
		mux:       http.NewServeMux(),
	}
	w.mux.HandleFunc("/", w.root)
	w.mux.HandleFunc("/favicon.ico", w.still)
	w.mux.HandleFunc("/still.png", w.still)
	w.mux.HandleFunc("/still16.png", w.still16)
	w.mux.HandleFunc("/meta", w.meta)
	w.mux.Handle("/stream", websocket.Handler(w.stream))
	return w
}

func StartWebServer(port int) *WebServer {
	w := newWebServer()
	fmt.Printf("Listening on %d\n", port)
	go func() {
		if err := http.ListenAndServe(fmt.Sprintf(":%d", port), loggingHandler{w.mux}); err != nil {
			log.Printf("http: %s", err)
		}
	}()
	go func() {
		<-interrupt.Channel
		w.cond.Broadcast()
	}()
	return w
}

// last returns the most recent frame, if any.
func (s *WebServer) last() *Frame {
	s.cond.L.Lock()
	defer s.cond.L.Unlock()
	if s.lastIndex < 0 {
		return nil
	}
	return s.frames[s.lastIndex]
}

var rootTmpl = template.Must(template.New("root").Parse(`<!DOCTYPE html>
<html>
<head>
	<title>mlx90640</title>
	<style>
		img.large {
			width: {{.Width}}px;
			height: auto;
			image-rendering: pixelated;
		}
		pre {
			font-size: 150%;
		}
	</style>
</head>
<body>
	<img class="large" id="img" src="/still.png"></img>
	<pre id="text"></pre>
	<script>
	function connect() {
		var ws = new WebSocket(location.origin.replace(/^http/, "ws") + "/stream");
		ws.onmessage = function(e) {
			if (e.data[0] == "I") {
				document.getElementById("img").src = "data:image/png;base64," + e.data.substring(1);
			} else if (e.data[0] == "M") {
				var m = JSON.parse(e.data.substring(1));
				document.getElementById("text").textContent = "#" + m.Index + " ambient " + m.Ambient.toFixed(2) + "\n" + m.Text;
			}
		};
		ws.onclose = function() {
			setTimeout(connect, 1000);
		};
	}
	connect();
	</script>
</body>
</html>`))

func (s *WebServer) root(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html")
	data := struct{ Width int }{mlx90640.Width * heatScale * 2}
	if err := rootTmpl.Execute(w, data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *WebServer) still(w http.ResponseWriter, r *http.Request) {
	f := s.last()
	if f == nil {
		http.Error(w, "No frame yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	if err := png.Encode(w, f.Img.Heat(heatScale)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *WebServer) still16(w http.ResponseWriter, r *http.Request) {
	f := s.last()
	if f == nil {
		http.Error(w, "No frame yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	if err := png.Encode(w, f.Img); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *WebServer) meta(w http.ResponseWriter, r *http.Request) {
	f := s.last()
	if f == nil {
		http.Error(w, "No frame yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(newMetadata(f)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// stream sends all frames as heat palette PNG and metadata as WebSocket
// frames.
func (s *WebServer) stream(w *websocket.Conn) {
	log.Printf("websocket from %s", w.Request().RemoteAddr)
	defer w.Close()
	buf := &bytes.Buffer{}
	s.cond.L.Lock()
	defer s.cond.L.Unlock()
	lastIndex := s.lastIndex
	for !interrupt.IsSet() {
		s.cond.Wait()
		for !interrupt.IsSet() && lastIndex != s.lastIndex {
			lastIndex = (lastIndex + 1) % len(s.frames)
			f := s.frames[lastIndex]
			s.cond.L.Unlock()
			// Do the actual I/O without the lock.
			err := sendFrame(w, buf, f)
			s.cond.L.Lock()
			// To break out of the loop, the lock must be held.
			if err != nil {
				log.Printf("websocket err: %s", err)
				return
			}
		}
	}
}

// sendFrame writes frame I for Image then frame M for Metadata.
func sendFrame(w *websocket.Conn, buf *bytes.Buffer, f *Frame) error {
	defer buf.Reset()
	buf.WriteString("I")
	encoder := base64.NewEncoder(base64.StdEncoding, buf)
	if err := png.Encode(encoder, f.Img.Heat(heatScale)); err != nil {
		return err
	}
	encoder.Close()
	if _, err := w.Write(buf.Bytes()); err != nil {
		return err
	}
	buf.Reset()
	buf.WriteString("M")
	if err := json.NewEncoder(buf).Encode(newMetadata(f)); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// Private details.

type loggingHandler struct {
	handler http.Handler
}

type loggingResponseWriter struct {
	http.ResponseWriter
	length int
	status int
}

func (l *loggingResponseWriter) Write(data []byte) (size int, err error) {
	size, err = l.ResponseWriter.Write(data)
	l.length += size
	return
}

func (l *loggingResponseWriter) WriteHeader(status int) {
	l.ResponseWriter.WriteHeader(status)
	l.status = status
}

// Hijack is needed for websocket.
func (l *loggingResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h := l.ResponseWriter.(http.Hijacker)
	return h.Hijack()
}

// ServeHTTP logs each HTTP request if -v is passed.
func (l loggingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	lrw := &loggingResponseWriter{ResponseWriter: w, status: http.StatusOK}
	l.handler.ServeHTTP(lrw, r)
	log.Printf("%s - %3d %6db %4s %s\n", r.RemoteAddr, lrw.status, lrw.length, r.Method, r.RequestURI)
}
