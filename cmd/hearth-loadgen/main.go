// Command hearth-loadgen is a closed-loop load generator for the
// hearthd HTTP API: each worker sends a request, waits for the
// response, then sends the next.
//
// Workloads:
//
//	putall     - store-heavy alternating put/delete over the keyspace
//	getall     - store-heavy unique gets (use -seed to populate first)
//	mix        - get/put/delete mix controlled by -read-pct/-write-pct/-delete-pct
//	getpopular - small hot set hammered by all workers (cache-hit heavy)
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
)

type config struct {
	target    string
	workload  string
	duration  time.Duration
	workers   int
	keyspace  int
	valueSize int
	readPct   int
	writePct  int
	deletePct int
	hotset    int
	seed      bool
	csvOut    string
}

// counters are shared across workers; everything is atomic.
type counters struct {
	reqs    atomic.Uint64
	success atomic.Uint64
	fail    atomic.Uint64

	gets      atomic.Uint64
	getOK     atomic.Uint64
	posts     atomic.Uint64
	postOK    atomic.Uint64
	deletes   atomic.Uint64
	deleteOK  atomic.Uint64
	latSumNS  atomic.Uint64
	latCount  atomic.Uint64
	putSerial atomic.Uint64
	getSerial atomic.Uint64
}

func main() {
	var cfg config
	flag.StringVar(&cfg.target, "target", "http://127.0.0.1:8080", "base URL of hearthd")
	flag.StringVar(&cfg.workload, "workload", "mix", "putall | getall | mix | getpopular")
	flag.DurationVar(&cfg.duration, "duration", 30*time.Second, "run length")
	flag.IntVar(&cfg.workers, "workers", 4, "number of closed-loop workers")
	flag.IntVar(&cfg.keyspace, "keyspace", 1000, "number of distinct keys")
	flag.IntVar(&cfg.valueSize, "value-size", 100, "value payload size in bytes")
	flag.IntVar(&cfg.readPct, "read-pct", 80, "mix workload: percentage of gets")
	flag.IntVar(&cfg.writePct, "write-pct", 15, "mix workload: percentage of puts")
	flag.IntVar(&cfg.deletePct, "delete-pct", 5, "mix workload: percentage of deletes")
	flag.IntVar(&cfg.hotset, "hotset-size", 10, "getpopular workload: hot set size")
	flag.BoolVar(&cfg.seed, "seed", false, "populate the keyspace before the run")
	flag.StringVar(&cfg.csvOut, "csv", "", "append a result line to this CSV file")
	flag.Parse()

	switch cfg.workload {
	case "putall", "getall", "mix", "getpopular":
	default:
		fmt.Fprintf(os.Stderr, "unknown workload %q\n", cfg.workload)
		os.Exit(2)
	}
	if cfg.workload == "mix" && cfg.readPct+cfg.writePct+cfg.deletePct != 100 {
		fmt.Fprintln(os.Stderr, "read/write/delete percentages must sum to 100")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	req := &requester{
		client: &http.Client{Timeout: 10 * time.Second},
		target: strings.TrimRight(cfg.target, "/"),
	}

	if cfg.seed {
		fmt.Fprintf(os.Stderr, "seeding %d keys...\n", cfg.keyspace)
		if err := seedKeyspace(ctx, req, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
			os.Exit(1)
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, cfg.duration)
	defer cancel()

	var c counters
	start := time.Now()

	g, runCtx := errgroup.WithContext(runCtx)
	for i := 0; i < cfg.workers; i++ {
		id := i
		g.Go(func() error {
			runWorker(runCtx, id, cfg, req, &c)
			return nil
		})
	}
	_ = g.Wait()
	elapsed := time.Since(start)

	report(cfg, &c, elapsed)
}

type requester struct {
	client *http.Client
	target string
}

func (r *requester) do(ctx context.Context, method, path string, body string) (bool, error) {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.target+path, reader)
	if err != nil {
		return false, err
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return false, err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300, nil
}

func (r *requester) get(ctx context.Context, key string) (bool, error) {
	return r.do(ctx, http.MethodGet, "/kv/"+url.PathEscape(key), "")
}

func (r *requester) put(ctx context.Context, key, value string) (bool, error) {
	body, err := json.Marshal(map[string]string{"key": key, "value": value})
	if err != nil {
		return false, err
	}
	return r.do(ctx, http.MethodPost, "/kv", string(body))
}

func (r *requester) del(ctx context.Context, key string) (bool, error) {
	return r.do(ctx, http.MethodDelete, "/kv/"+url.PathEscape(key), "")
}

func seedKeyspace(ctx context.Context, req *requester, cfg config) error {
	for i := 0; i < cfg.keyspace; i++ {
		key := keyName(i)
		ok, err := req.put(ctx, key, buildValue(0, i, cfg.valueSize))
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("seed put rejected for %s", key)
		}
	}
	return nil
}

func runWorker(ctx context.Context, id int, cfg config, req *requester, c *counters) {
	rng := rand.New(rand.NewPCG(uint64(id)+1, uint64(time.Now().UnixNano())))
	seq := 0

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		seq++

		var (
			verb string
			key  string
		)
		switch cfg.workload {
		case "putall":
			n := c.putSerial.Inc()
			key = keyName(int(n) % cfg.keyspace)
			if n%2 == 0 {
				verb = "delete"
			} else {
				verb = "put"
			}
		case "getall":
			n := c.getSerial.Inc()
			key = keyName(int(n) % cfg.keyspace)
			verb = "get"
		case "getpopular":
			key = keyName(rng.IntN(cfg.hotset))
			verb = "get"
		case "mix":
			key = keyName(rng.IntN(cfg.keyspace))
			switch p := rng.IntN(100); {
			case p < cfg.readPct:
				verb = "get"
			case p < cfg.readPct+cfg.writePct:
				verb = "put"
			default:
				verb = "delete"
			}
		}

		start := time.Now()
		var (
			ok  bool
			err error
		)
		switch verb {
		case "get":
			c.gets.Inc()
			ok, err = req.get(ctx, key)
			if ok {
				c.getOK.Inc()
			}
		case "put":
			c.posts.Inc()
			ok, err = req.put(ctx, key, buildValue(id, seq, cfg.valueSize))
			if ok {
				c.postOK.Inc()
			}
		case "delete":
			c.deletes.Inc()
			ok, err = req.del(ctx, key)
			if ok {
				c.deleteOK.Inc()
			}
		}
		lat := time.Since(start)

		c.reqs.Inc()
		c.latSumNS.Add(uint64(lat.Nanoseconds()))
		c.latCount.Inc()
		if err == nil && ok {
			c.success.Inc()
		} else {
			c.fail.Inc()
		}
	}
}

func keyName(i int) string {
	return fmt.Sprintf("key-%06d", i)
}

// buildValue produces a deterministic payload of roughly size bytes,
// prefixed so failures can be traced back to a worker.
func buildValue(workerID, seq, size int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "w%d_s%d:", workerID, seq)
	for b.Len() < size {
		fmt.Fprintf(&b, "%02x", b.Len()&0xff)
	}
	return b.String()
}

func report(cfg config, c *counters, elapsed time.Duration) {
	total := c.reqs.Load()
	rps := float64(total) / elapsed.Seconds()
	avgMS := 0.0
	if n := c.latCount.Load(); n > 0 {
		avgMS = float64(c.latSumNS.Load()) / float64(n) / 1e6
	}

	fmt.Printf("workload=%s workers=%d elapsed=%.1fs\n", cfg.workload, cfg.workers, elapsed.Seconds())
	fmt.Printf("requests=%d success=%d fail=%d rps=%.1f avg_latency_ms=%.3f\n",
		total, c.success.Load(), c.fail.Load(), rps, avgMS)
	fmt.Printf("get=%d/%d put=%d/%d delete=%d/%d (ok/total)\n",
		c.getOK.Load(), c.gets.Load(),
		c.postOK.Load(), c.posts.Load(),
		c.deleteOK.Load(), c.deletes.Load())

	if cfg.csvOut == "" {
		return
	}
	if err := appendCSV(cfg, c, elapsed, rps, avgMS); err != nil {
		fmt.Fprintf(os.Stderr, "csv write failed: %v\n", err)
	}
}

func appendCSV(cfg config, c *counters, elapsed time.Duration, rps, avgMS float64) error {
	_, statErr := os.Stat(cfg.csvOut)
	f, err := os.OpenFile(cfg.csvOut, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if os.IsNotExist(statErr) {
		if _, err := f.WriteString("workload,workers,elapsed_s,requests,success,fail,rps,avg_latency_ms\n"); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(f, "%s,%d,%.1f,%d,%d,%d,%.1f,%.3f\n",
		cfg.workload, cfg.workers, elapsed.Seconds(),
		c.reqs.Load(), c.success.Load(), c.fail.Load(), rps, avgMS)
	return err
}
