package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/xhad/annotscan/internal/models"
	"github.com/xhad/annotscan/pkg/fsutil"
	"github.com/xhad/annotscan/pkg/pdfdoc"
	"github.com/xhad/annotscan/pkg/pipeline"
	"github.com/xhad/annotscan/pkg/processor"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Be careful with this in production
	},
}

type Message struct {
	Type    string      `json:"type"`
	Content string      `json:"content"`
	Data    interface{} `json:"data,omitempty"`
}

// ProgressData is sent with every "progress" message.
type ProgressData struct {
	File       string `json:"file"`
	State      string `json:"state"`
	Highlights int    `json:"highlights"`
	Index      int    `json:"index"`
	Total      int    `json:"total"`
}

// ResultData is sent with the final "result" message of a scan.
type ResultData struct {
	ScanID    string   `json:"scan_id"`
	Files     []string `json:"files"`
	OutputDir string   `json:"output_dir"`
}

type Config struct {
	Addr          string
	FS            billy.Filesystem
	DefaultFolder string
	OutputBase    string
	Highlight     pdfdoc.HighlightStyle
	// RateLimit is the number of scans per second a connection may start.
	RateLimit float64
	Burst     int
}

type WSServer struct {
	config Config
	// osPaths is set when scans run on the host filesystem and folder
	// arguments must be made absolute.
	osPaths bool

	// runs serializes scans across connections.
	runs sync.Mutex
}

func NewWSServer(config Config) (*WSServer, error) {
	s := &WSServer{}
	if config.FS == nil {
		config.FS = fsutil.NewOS()
		s.osPaths = true
	}
	if config.Addr == "" {
		config.Addr = ":8080"
	}
	if config.OutputBase == "" {
		config.OutputBase = pipeline.DefaultOutputBase
	}
	if config.RateLimit <= 0 {
		config.RateLimit = 1
	}
	if config.Burst < 1 {
		config.Burst = 1
	}
	if s.osPaths {
		base, err := fsutil.Resolve(config.OutputBase)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize server: %v", err)
		}
		config.OutputBase = base
	}
	s.config = config
	return s, nil
}

// client is one websocket connection. gorilla/websocket allows a single
// concurrent writer, so writes go through mu.
type client struct {
	conn    *websocket.Conn
	mu      sync.Mutex
	limiter *rate.Limiter
}

func (s *WSServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	return mux
}

// ListenAndServe serves until ctx is cancelled.
func (s *WSServer) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting WebSocket server on %s", s.config.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *WSServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	c := &client{
		conn:    conn,
		limiter: rate.NewLimiter(rate.Limit(s.config.RateLimit), s.config.Burst),
	}

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("Error reading message: %v", err)
			}
			break
		}

		var msg Message
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("Error unmarshaling message: %v", err)
			s.sendMessage(c, "error", "invalid message", nil)
			continue
		}

		if msg.Type != "scan" {
			s.sendMessage(c, "error", fmt.Sprintf("unknown message type %q", msg.Type), nil)
			continue
		}
		if !c.limiter.Allow() {
			s.sendMessage(c, "error", "rate limit exceeded, try again later", nil)
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleScan(c, msg)
		}()
	}
}

func (s *WSServer) handleScan(c *client, msg Message) {
	term := msg.Content
	if strings.ReplaceAll(term, " ", "") == "" {
		s.sendMessage(c, "error", "search term is required", nil)
		return
	}
	if err := processor.ValidateTerm(term); err != nil {
		s.sendMessage(c, "error", err.Error(), nil)
		return
	}

	folder := s.config.DefaultFolder
	if data, ok := msg.Data.(map[string]interface{}); ok {
		if f, ok := data["folder"].(string); ok && f != "" {
			folder = f
		}
	}
	if folder == "" {
		s.sendMessage(c, "error", "input folder is required", nil)
		return
	}
	if s.osPaths {
		abs, err := fsutil.Resolve(folder)
		if err != nil {
			s.sendMessage(c, "error", err.Error(), nil)
			return
		}
		folder = abs
	}

	scanID := uuid.New().String()
	s.sendMessage(c, "status", fmt.Sprintf("Queued scan %s of %s", scanID, folder), nil)

	s.runs.Lock()
	defer s.runs.Unlock()

	var total, index int
	p := pipeline.New(pipeline.Config{
		FS:         s.config.FS,
		OutputBase: s.config.OutputBase,
		Highlight:  s.config.Highlight,
		OnDiscover: func(files []string) {
			total = len(files)
			s.sendMessage(c, "status", fmt.Sprintf("Scanning %d PDF files", total), nil)
		},
		OnOutcome: func(o models.Outcome) {
			index++
			if o.Err != nil {
				s.sendMessage(c, "error", o.Err.Error(), map[string]string{"file": o.File})
			}
			s.sendMessage(c, "progress", o.File, ProgressData{
				File:       o.File,
				State:      string(o.State),
				Highlights: o.Highlights,
				Index:      index,
				Total:      total,
			})
		},
	})

	result, err := p.Run(folder, term)
	if err != nil {
		s.sendMessage(c, "error", err.Error(), nil)
		return
	}

	outDir := p.OutputDir(processor.NewSearchTerm(term))
	log.Printf("Scan %s finished: %d of %d files matched", scanID, result.Len(), total)
	s.sendMessage(c, "result", fmt.Sprintf("%d matching files", result.Len()), ResultData{
		ScanID:    scanID,
		Files:     result.Files(),
		OutputDir: outDir,
	})
}

func (s *WSServer) sendMessage(c *client, msgType string, content string, data interface{}) {
	msg := Message{
		Type:    msgType,
		Content: content,
		Data:    data,
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.WriteJSON(msg); err != nil {
		log.Printf("Error sending message: %v", err)
	}
}
