package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/vadiminshakov/pvsra/internal/domain"
	"github.com/vadiminshakov/pvsra/internal/services/pvsra"
	"github.com/vadiminshakov/pvsra/internal/storage/journal"
	"go.uber.org/zap"
)

const (
	journalPollInterval = 2 * time.Second
	heartbeatInterval   = 30 * time.Second
)

type journalReader interface {
	EventsAfter(index uint64) ([]journal.Record, error)
}

// AlertFeed is satisfied by events.AlertStream.
type AlertFeed interface {
	SubscribeChan() (<-chan domain.Alert, func())
}

type barReader interface {
	Closed(symbol string, n int) []domain.Bar
}

// SymbolView is the bar window and classifier settings of one symbol.
type SymbolView struct {
	Bars   barReader
	Params pvsra.Params
}

// Server exposes Prometheus metrics, SSE streams of alerts and journal
// records, and a JSON view of each symbol's classified window.
type Server struct {
	Addr     string
	Journal  journalReader
	Alerts   []AlertFeed
	Symbols  map[string]SymbolView
	Metrics  http.Handler
	Logger   *zap.Logger
	PollTick time.Duration
}

// Handler builds the HTTP routes.
func (s *Server) Handler() http.Handler {
	if s.Logger == nil {
		s.Logger = zap.NewNop()
	}
	if s.PollTick <= 0 {
		s.PollTick = journalPollInterval
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "ok")
	})
	if s.Metrics != nil {
		mux.Handle("GET /metrics", s.Metrics)
	}
	mux.HandleFunc("GET /alerts/stream", s.handleAlertStream)
	mux.HandleFunc("GET /journal/stream", s.handleJournalStream)
	mux.HandleFunc("GET /bars/{symbol}", s.handleBars)
	return mux
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, indexHTML)
}

type sse struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func startSSE(w http.ResponseWriter) (*sse, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return nil, false
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &sse{w: w, flusher: flusher}, true
}

func (s *sse) send(event string, id uint64, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if id > 0 {
		fmt.Fprintf(s.w, "id: %d\n", id)
	}
	fmt.Fprintf(s.w, "event: %s\n", event)
	fmt.Fprintf(s.w, "data: %s\n\n", payload)
	s.flusher.Flush()
	return nil
}

func (s *sse) ping() {
	fmt.Fprint(s.w, ": ping\n\n")
	s.flusher.Flush()
}

// handleAlertStream pushes alerts of every symbol as they are published.
// Slow clients miss alerts rather than delaying ingestion.
func (s *Server) handleAlertStream(w http.ResponseWriter, r *http.Request) {
	if len(s.Alerts) == 0 {
		http.Error(w, "alert stream not available", http.StatusServiceUnavailable)
		return
	}
	symbol := strings.ToUpper(r.URL.Query().Get("symbol"))

	cases := make([]reflect.SelectCase, 0, len(s.Alerts)+2)
	for _, feed := range s.Alerts {
		ch, unsubscribe := feed.SubscribeChan()
		defer unsubscribe()
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ch)})
	}

	stream, ok := startSSE(w)
	if !ok {
		return
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	doneIdx := len(cases)
	cases = append(cases,
		reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(r.Context().Done())},
		reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(heartbeat.C)},
	)

	open := len(s.Alerts)
	for open > 0 {
		chosen, v, ok := reflect.Select(cases)
		switch {
		case chosen == doneIdx:
			return
		case chosen == doneIdx+1:
			stream.ping()
		case !ok:
			cases[chosen].Chan = reflect.Value{}
			open--
		default:
			alert := v.Interface().(domain.Alert)
			if symbol != "" && alert.Symbol != symbol {
				continue
			}
			if err := stream.send("alert", 0, alert); err != nil {
				s.Logger.Warn("alert stream encode failed", zap.Error(err))
			}
		}
	}
}

// handleJournalStream replays journal records after ?after= and then polls for new ones.
func (s *Server) handleJournalStream(w http.ResponseWriter, r *http.Request) {
	if s.Journal == nil {
		http.Error(w, "journal not available", http.StatusServiceUnavailable)
		return
	}

	lastIndex := uint64(0)
	if after := r.URL.Query().Get("after"); after != "" {
		parsed, err := strconv.ParseUint(after, 10, 64)
		if err != nil {
			http.Error(w, "invalid after index", http.StatusBadRequest)
			return
		}
		lastIndex = parsed
	}
	if id := r.Header.Get("Last-Event-ID"); id != "" {
		if parsed, err := strconv.ParseUint(id, 10, 64); err == nil {
			lastIndex = parsed
		}
	}

	records, err := s.Journal.EventsAfter(lastIndex)
	if err != nil {
		s.Logger.Error("journal stream initial load", zap.Error(err))
		http.Error(w, "failed to load journal", http.StatusInternalServerError)
		return
	}

	stream, ok := startSSE(w)
	if !ok {
		return
	}

	sendRecords := func(records []journal.Record) {
		for _, rec := range records {
			var payload any
			switch rec.Kind {
			case journal.KindAlert:
				payload = rec.Alert
			case journal.KindDecision:
				payload = rec.Decision
			case journal.KindOrder:
				payload = rec.Order
			}
			if err := stream.send(string(rec.Kind), rec.Index, payload); err != nil {
				s.Logger.Warn("journal stream encode failed", zap.Error(err))
			}
			lastIndex = rec.Index
		}
	}
	sendRecords(records)

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()
	poll := time.NewTicker(s.PollTick)
	defer poll.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			stream.ping()
		case <-poll.C:
			records, err := s.Journal.EventsAfter(lastIndex)
			if err != nil {
				s.Logger.Warn("journal stream poll", zap.Error(err))
				continue
			}
			sendRecords(records)
		}
	}
}

type barsResponse struct {
	Symbol     string              `json:"symbol"`
	Bars       []classifiedBarView `json:"bars"`
	Statistics pvsra.Statistics    `json:"statistics"`
	Patterns   pvsra.PatternScan   `json:"patterns"`
}

type classifiedBarView struct {
	OpenTime    time.Time          `json:"open_time"`
	Open        string             `json:"open"`
	High        string             `json:"high"`
	Low         string             `json:"low"`
	Close       string             `json:"close"`
	Volume      string             `json:"volume"`
	VolumeRatio string             `json:"volume_ratio,omitempty"`
	Condition   domain.Condition   `json:"condition,omitempty"`
	Direction   domain.Direction   `json:"direction"`
	Color       domain.CandleColor `json:"color"`
	Alert       string             `json:"alert,omitempty"`
}

// handleBars returns the classified closed window of a symbol with its statistics.
func (s *Server) handleBars(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(r.PathValue("symbol"))
	view, ok := s.Symbols[symbol]
	if !ok || view.Bars == nil {
		http.Error(w, "unknown symbol "+symbol, http.StatusNotFound)
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	bars := view.Bars.Closed(symbol, 0)
	if len(bars) == 0 {
		http.Error(w, "no closed bars for "+symbol, http.StatusNotFound)
		return
	}

	classified := pvsra.Classify(bars, view.Params)
	resp := barsResponse{
		Symbol:     symbol,
		Statistics: pvsra.ComputeStatistics(classified),
		Patterns:   pvsra.ScanPatterns(classified, pvsra.DefaultScanLookback),
	}

	window := classified
	if limit > 0 && limit < len(window) {
		window = window[len(window)-limit:]
	}
	resp.Bars = make([]classifiedBarView, 0, len(window))
	for _, cb := range window {
		v := classifiedBarView{
			OpenTime:  cb.OpenTime,
			Open:      cb.Open.String(),
			High:      cb.High.String(),
			Low:       cb.Low.String(),
			Close:     cb.Close.String(),
			Volume:    cb.Volume.String(),
			Direction: cb.Direction,
			Color:     cb.Color,
			Alert:     cb.Alert,
		}
		if cb.Classifiable {
			v.VolumeRatio = cb.VolumeRatio.StringFixed(4)
			v.Condition = cb.Condition
		}
		resp.Bars = append(resp.Bars, v)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.Logger.Warn("bars encode failed", zap.Error(err))
	}
}
