package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strings"
	"sync/atomic"
	"text/tabwriter"
	"time"

	"golang.org/x/sync/errgroup"
)

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	Queries     [][]string
}

// sample is the outcome of one rank request.
type sample struct {
	latency  time.Duration
	status   int
	cacheHit bool
	err      error
}

type rankResponse struct {
	TotalHits int  `json:"total_hits"`
	CacheHit  bool `json:"cache_hit"`
}

type Latency struct {
	Min  time.Duration `json:"min"`
	Mean time.Duration `json:"mean"`
	P50  time.Duration `json:"p50"`
	P95  time.Duration `json:"p95"`
	P99  time.Duration `json:"p99"`
	Max  time.Duration `json:"max"`
}

// Report summarises a run. Latency covers requests that got a response;
// transport errors only count towards Failed.
type Report struct {
	Elapsed     time.Duration `json:"elapsed"`
	Total       int           `json:"total"`
	Succeeded   int           `json:"succeeded"`
	Failed      int           `json:"failed"`
	CacheHits   int           `json:"cache_hits"`
	PerSecond   float64       `json:"per_second"`
	StatusCodes map[int]int   `json:"status_codes"`
	Latency     Latency       `json:"latency"`
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the tag search service")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	queryList := flag.String("queries", "sports,music;sports;music,art;art,film,sports;coding",
		"semicolon-separated tag sets, tags within a set comma-separated")
	asJSON := flag.Bool("json", false, "print the report as JSON")
	flag.Parse()

	queries := parseQueries(*queryList)
	if len(queries) == 0 {
		fmt.Fprintln(os.Stderr, "no queries given")
		os.Exit(2)
	}
	cfg := Config{
		BaseURL:     strings.TrimRight(*baseURL, "/"),
		Concurrency: max(*concurrency, 1),
		Duration:    *duration,
		Queries:     queries,
	}

	fmt.Fprintf(os.Stderr, "ranking against %s: %d workers, %s, %d tag sets\n",
		cfg.BaseURL, cfg.Concurrency, cfg.Duration, len(cfg.Queries))
	start := time.Now()
	samples := run(cfg)
	report := summarize(samples, time.Since(start))

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(report)
	} else {
		report.WriteText(os.Stdout)
	}
	if report.Total == 0 {
		fmt.Fprintln(os.Stderr, "no requests completed; is the service running?")
		os.Exit(1)
	}
}

func parseQueries(raw string) [][]string {
	var out [][]string
	for _, set := range strings.Split(raw, ";") {
		var tags []string
		for _, tag := range strings.Split(set, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				tags = append(tags, tag)
			}
		}
		if len(tags) > 0 {
			out = append(out, tags)
		}
	}
	return out
}

func rankURL(base string, tags []string) string {
	return base + "/api/v1/rank?tags=" + url.QueryEscape(strings.Join(tags, ","))
}

// run drives cfg.Concurrency workers until cfg.Duration elapses. Each worker
// keeps its own samples, merged once all have stopped.
func run(cfg Config) []sample {
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	var done atomic.Int64
	go progress(ctx, &done)

	perWorker := make([][]sample, cfg.Concurrency)
	var g errgroup.Group
	for w := range cfg.Concurrency {
		g.Go(func() error {
			for next := w; ctx.Err() == nil; next++ {
				s := rankOnce(ctx, client, rankURL(cfg.BaseURL, cfg.Queries[next%len(cfg.Queries)]))
				if ctx.Err() != nil && s.err != nil {
					break
				}
				perWorker[w] = append(perWorker[w], s)
				done.Add(1)
			}
			return nil
		})
	}
	g.Wait()
	return slices.Concat(perWorker...)
}

func progress(ctx context.Context, done *atomic.Int64) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fmt.Fprintf(os.Stderr, "  %d requests\n", done.Load())
		}
	}
}

func rankOnce(ctx context.Context, client *http.Client, rawURL string) sample {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return sample{err: err}
	}
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return sample{latency: time.Since(start), err: err}
	}
	defer resp.Body.Close()
	var body rankResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&body)
	s := sample{latency: time.Since(start), status: resp.StatusCode, cacheHit: body.CacheHit}
	if resp.StatusCode == http.StatusOK && decodeErr != nil {
		s.err = fmt.Errorf("decoding rank response: %w", decodeErr)
	}
	return s
}

func summarize(samples []sample, elapsed time.Duration) Report {
	r := Report{Elapsed: elapsed, Total: len(samples), StatusCodes: make(map[int]int)}
	var latencies []time.Duration
	for _, s := range samples {
		if s.status != 0 {
			r.StatusCodes[s.status]++
			latencies = append(latencies, s.latency)
		}
		if s.err != nil || s.status < 200 || s.status > 299 {
			r.Failed++
			continue
		}
		r.Succeeded++
		if s.cacheHit {
			r.CacheHits++
		}
	}
	if elapsed > 0 {
		r.PerSecond = float64(r.Total) / elapsed.Seconds()
	}
	if len(latencies) == 0 {
		return r
	}
	slices.Sort(latencies)
	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	r.Latency = Latency{
		Min:  latencies[0],
		Mean: sum / time.Duration(len(latencies)),
		P50:  percentile(latencies, 50),
		P95:  percentile(latencies, 95),
		P99:  percentile(latencies, 99),
		Max:  latencies[len(latencies)-1],
	}
	return r
}

// percentile uses the nearest-rank method on an ascending slice.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	return sorted[min(max(rank, 1), len(sorted))-1]
}

func ratio(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}

func (r Report) WriteText(w io.Writer) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "requests\t%d\t(%.1f/s over %s)\n", r.Total, r.PerSecond, r.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(tw, "succeeded\t%d\n", r.Succeeded)
	fmt.Fprintf(tw, "failed\t%d\t(%.2f%%)\n", r.Failed, ratio(r.Failed, r.Total))
	fmt.Fprintf(tw, "cache hits\t%d\t(%.2f%% of successes)\n", r.CacheHits, ratio(r.CacheHits, r.Succeeded))
	if r.Latency.Max > 0 {
		l := r.Latency
		fmt.Fprintf(tw, "latency\tmin %s\tmean %s\tp50 %s\tp95 %s\tp99 %s\tmax %s\n",
			l.Min, l.Mean, l.P50, l.P95, l.P99, l.Max)
	}
	codes := make([]int, 0, len(r.StatusCodes))
	for code := range r.StatusCodes {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	for _, code := range codes {
		fmt.Fprintf(tw, "status %d\t%d\n", code, r.StatusCodes[code])
	}
	tw.Flush()
}
