package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/krati1611/smallhappinessclub/internal/config"
	"github.com/krati1611/smallhappinessclub/internal/ledger"
	"github.com/krati1611/smallhappinessclub/internal/observability"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	server      string
	users       int
	totalReq    int
	conc        int
	duration    time.Duration
	rate        float64
	gclidRate   float64
	fullRate    float64
	botRate     float64
	stats       bool
	resetLedger bool
	debug       bool
	label       string
	jitter      float64
)

var logger *zap.Logger

// HTTP client with proper resource limits
var httpClient *http.Client

var (
	userAgents = []string{
		// Mobile
		"Mozilla/5.0 (iPhone; CPU iPhone OS 16_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.0 Mobile/15E148 Safari/604.1",
		"Mozilla/5.0 (Linux; Android 12; Pixel 6 Pro) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/114.0.5735.196 Mobile Safari/537.36",

		// Desktop
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 13_3_1) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.1 Safari/605.1.15",
		"Mozilla/5.0 (X11; Ubuntu; Linux x86_64; rv:111.0) Gecko/20100101 Firefox/111.0",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36 Edg/122.0.2365.66",
	}
	botAgents = []string{
		"Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)",
		"Mozilla/5.0 (compatible; bingbot/2.0; +http://www.bing.com/bingbot.htm)",
		"Mozilla/5.0 (compatible; Yahoo! Slurp; http://help.yahoo.com/help/us/ysearch/slurp)",
	}
	networks   = []string{"g", "s", "d", "x"}
	placements = []string{"www.example.com", "news.example.org", ""}
)

const statsInterval = 5 * time.Second

var (
	countSent    uint64
	countSuccess uint64
	countErrors  uint64

	// Visits by the kind of traffic sent. The page never reveals how a visit
	// was classified; use tools/query_visits for per-route counts.
	kindsMu sync.Mutex
	kinds   = map[string]uint64{}
)

func main() {
	flag.StringVar(&server, "server", "http://localhost:8080", "landing server base URL")
	flag.IntVar(&users, "users", 100, "number of unique client addresses")
	flag.IntVar(&totalReq, "requests", 1000, "total requests to send")
	flag.IntVar(&conc, "concurrency", 20, "concurrent requests")
	flag.DurationVar(&duration, "duration", 0, "how long to run traffic (0 to disable)")
	flag.Float64Var(&rate, "rate", 0, "requests per second (0 for unlimited)")
	flag.Float64Var(&gclidRate, "gclid-rate", 0.3, "probability a visit carries a gclid")
	flag.Float64Var(&fullRate, "full-params-rate", 0.8, "probability a gclid visit carries every campaign parameter")
	flag.Float64Var(&botRate, "bot-rate", 0.05, "probability a visit uses a crawler user agent")
	flag.BoolVar(&stats, "stats", false, "print aggregated stats periodically")
	flag.BoolVar(&resetLedger, "reset-ledger", false, "empty the configured ledger backend before sending traffic")
	flag.BoolVar(&debug, "debug", false, "enable verbose debug logs")
	flag.StringVar(&label, "label", "", "label to identify this run")
	flag.Float64Var(&jitter, "jitter", 0.0, "random jitter factor for request spacing")
	flag.Parse()

	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}
	var err error
	logger, err = observability.InitLoggerWithLevel(level, "traffic-simulator")
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	httpClient = &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			ResponseHeaderTimeout: 10 * time.Second,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			MaxConnsPerHost:       50,
			IdleConnTimeout:       90 * time.Second,
		},
	}

	if label == "" {
		label = time.Now().Format(time.RFC3339)
	}

	if resetLedger {
		// The server keeps its own copy in memory; restart it after a reset.
		cfg := config.Load()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		backend, err := ledger.NewBackend(ctx, cfg)
		if err != nil {
			cancel()
			logger.Fatal("ledger backend", zap.Error(err))
		}
		if err := backend.Save(ctx, nil); err != nil {
			logger.Error("ledger reset failed", zap.Error(err))
		}
		_ = backend.Close()
		cancel()
		logger.Info("ledger reset", zap.String("backend", backend.Name()))
	}

	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	var rMu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, conc)
	done := make(chan struct{})

	var baseInterval time.Duration
	if rate > 0 {
		baseInterval = time.Duration(float64(time.Second) / rate)
	} else if duration > 0 && totalReq > 0 {
		baseInterval = duration / time.Duration(totalReq)
	}

	start := time.Now()
	next := start

	if stats {
		go func() {
			ticker := time.NewTicker(statsInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					printStats()
				case <-done:
					printStats()
					return
				}
			}
		}()
	}
	for i := 0; ; i++ {
		if totalReq > 0 && i >= totalReq {
			break
		}
		if duration > 0 && time.Since(start) >= duration {
			break
		}
		if baseInterval > 0 {
			effective := baseInterval
			if jitter > 0 {
				rMu.Lock()
				jf := 1 + (r.Float64()*2-1)*jitter
				rMu.Unlock()
				if jf < 0.1 {
					jf = 0.1
				}
				effective = time.Duration(float64(effective) * jf)
			}
			now := time.Now()
			if now.Before(next) {
				time.Sleep(next.Sub(now))
			}
			next = next.Add(effective)
		}

		rMu.Lock()
		v := randomVisit(r)
		rMu.Unlock()

		wg.Add(1)
		sem <- struct{}{}
		go func(v visit) {
			defer wg.Done()
			defer func() { <-sem }()
			atomic.AddUint64(&countSent, 1)
			if err := send(v); err != nil {
				atomic.AddUint64(&countErrors, 1)
				logger.Error("visit failed", zap.String("ip", v.ip), zap.Error(err))
				return
			}
			atomic.AddUint64(&countSuccess, 1)
			kindsMu.Lock()
			kinds[v.kind]++
			kindsMu.Unlock()
			logger.Debug("visit", zap.String("ip", v.ip), zap.String("kind", v.kind), zap.String("query", v.query.Encode()))
		}(v)
	}
	wg.Wait()
	close(done)
	if !stats {
		printStats()
	}
}

type visit struct {
	kind  string
	ip    string
	ua    string
	query url.Values
}

func randomVisit(r *rand.Rand) visit {
	v := visit{
		kind:  "organic",
		ip:    fmt.Sprintf("198.51.100.%d", r.Intn(users)%254+1),
		ua:    userAgents[r.Intn(len(userAgents))],
		query: url.Values{},
	}
	if users > 254 {
		n := r.Intn(users)
		v.ip = fmt.Sprintf("10.%d.%d.%d", n>>16&0xff, n>>8&0xff, n&0xff)
	}
	if r.Float64() < gclidRate {
		v.kind = "campaign_partial"
		v.query.Set("gclid", "sim_"+strconv.FormatUint(r.Uint64(), 36))
		if r.Float64() < fullRate {
			v.kind = "campaign_full"
			v.query.Set("campaignid", strconv.Itoa(1000+r.Intn(50)))
			v.query.Set("placement", placements[r.Intn(len(placements))])
			v.query.Set("network", networks[r.Intn(len(networks))])
			v.query.Set("random", strconv.FormatUint(r.Uint64(), 36))
		}
	}
	if r.Float64() < botRate {
		v.ua = botAgents[r.Intn(len(botAgents))]
		v.kind = "bot"
	}
	return v
}

// send issues GET / and checks the page was served.
func send(v visit) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	u := server + "/"
	if len(v.query) > 0 {
		u += "?" + v.query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", v.ua)
	req.Header.Set("X-Forwarded-For", v.ip)

	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if len(body) == 0 {
		return fmt.Errorf("empty page")
	}
	return nil
}

func printStats() {
	sent := atomic.LoadUint64(&countSent)
	succ := atomic.LoadUint64(&countSuccess)
	errs := atomic.LoadUint64(&countErrors)
	kindsMu.Lock()
	byKind := make(map[string]uint64, len(kinds))
	for k, v := range kinds {
		byKind[k] = v
	}
	kindsMu.Unlock()
	logger.Info("stats", zap.String("run", label), zap.Uint64("sent", sent), zap.Uint64("success", succ), zap.Uint64("errors", errs), zap.Any("kinds", byKind))
}
