package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/punchamoorthee/goalledger/internal/models"
	"github.com/shopspring/decimal"
)

// Config holds the benchmark settings
var (
	targetURL   string
	concurrency int
	duration    time.Duration
	workload    string
	ownerID     int64
	seed        string
)

// Metrics
var (
	totalRequests uint64
	success201    uint64 // Created
	success200    uint64 // Deleted
	fail422       uint64 // Insufficient funds
	failOther     uint64
)

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.StringVar(&workload, "workload", "hotspot", "Workload type: hotspot | uniform")
	flag.Int64Var(&ownerID, "owner", 1, "Owner id sent as X-User-ID")
	flag.StringVar(&seed, "seed", "100.00", "Initial amount of every benchmark goal")
}

func main() {
	flag.Parse()
	log.Printf("Starting Benchmark: %s | Workers: %d | Duration: %s", workload, concurrency, duration)

	client := &http.Client{Timeout: 5 * time.Second}

	// hotspot: every worker hits one goal. uniform: one goal per worker.
	goals := make([]int64, concurrency)
	for i := range goals {
		if workload == "hotspot" && i > 0 {
			goals[i] = goals[0]
			continue
		}
		id, err := createGoal(client, fmt.Sprintf("bench-%d-%d", time.Now().Unix(), i))
		if err != nil {
			log.Fatalf("create goal: %v", err)
		}
		goals[i] = id
	}

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)

	for i := 0; i < concurrency; i++ {
		go worker(&wg, client, start, goals[i])
	}

	wg.Wait()
	elapsed := time.Since(start)

	mismatches := 0
	for _, id := range unique(goals) {
		if err := verify(client, id); err != nil {
			log.Printf("goal %d: %v", id, err)
			mismatches++
		}
	}
	printResults(elapsed, mismatches)
	if mismatches > 0 {
		os.Exit(1)
	}
}

// worker mixes entries, expenses and expense deletions against one goal.
// Only expenses are deleted: reversing one adds funds back and never clamps,
// so the balance invariant must hold exactly at the end.
func worker(wg *sync.WaitGroup, client *http.Client, start time.Time, goalID int64) {
	defer wg.Done()
	var expenses []int64

	for time.Since(start) < duration {
		var (
			status int
			id     int64
			err    error
		)
		switch r := rand.Float32(); {
		case r < 0.15 && len(expenses) > 0:
			i := rand.Intn(len(expenses))
			status, err = deleteTransaction(client, expenses[i])
			if status == http.StatusOK {
				expenses = append(expenses[:i], expenses[i+1:]...)
			}
		case r < 0.55:
			status, id, err = createTransaction(client, "expense", goalID)
			if status == http.StatusCreated {
				expenses = append(expenses, id)
			}
		default:
			status, _, err = createTransaction(client, "entry", goalID)
		}
		if err != nil {
			atomic.AddUint64(&failOther, 1)
			continue
		}

		atomic.AddUint64(&totalRequests, 1)
		switch status {
		case http.StatusCreated:
			atomic.AddUint64(&success201, 1)
		case http.StatusOK:
			atomic.AddUint64(&success200, 1)
		case http.StatusUnprocessableEntity:
			atomic.AddUint64(&fail422, 1)
		default:
			atomic.AddUint64(&failOther, 1)
		}
	}
}

func randomAmount() string {
	return decimal.New(rand.Int63n(5000)+1, -2).String()
}

func createGoal(client *http.Client, name string) (int64, error) {
	payload := map[string]any{
		"name":           name,
		"target_amount":  "1000000.00",
		"initial_amount": seed,
		"deadline":       time.Now().UTC().AddDate(1, 0, 0).Format(models.DateLayout),
	}
	var g models.GoalResponse
	status, err := call(client, http.MethodPost, "/api/v1/goals", "", payload, &g)
	if err != nil {
		return 0, err
	}
	if status != http.StatusCreated {
		return 0, fmt.Errorf("unexpected status %d", status)
	}
	return g.ID, nil
}

func createTransaction(client *http.Client, kind string, goalID int64) (int, int64, error) {
	payload := map[string]any{
		"kind":        kind,
		"amount":      randomAmount(),
		"occurred_on": time.Now().UTC().Format(models.DateLayout),
		"goal_id":     goalID,
		"description": "benchmark",
	}
	// a timed-out create is retried once under the same key, so it can
	// never be applied twice
	key := uuid.NewString()
	var resp models.TransactionMutationResponse
	status, err := call(client, http.MethodPost, "/api/v1/transactions", key, payload, &resp)
	if err != nil {
		status, err = call(client, http.MethodPost, "/api/v1/transactions", key, payload, &resp)
	}
	if err != nil || resp.Transaction == nil {
		return status, 0, err
	}
	return status, resp.Transaction.ID, nil
}

func deleteTransaction(client *http.Client, id int64) (int, error) {
	return call(client, http.MethodDelete, "/api/v1/transactions/"+strconv.FormatInt(id, 10), "", nil, nil)
}

// verify checks that the goal's stored amount equals its seed plus the
// signed sum of every transaction still linked to it.
func verify(client *http.Client, goalID int64) error {
	var g models.GoalDetailResponse
	if _, err := call(client, http.MethodGet, fmt.Sprintf("/api/v1/goals/%d", goalID), "", nil, &g); err != nil {
		return err
	}
	var txs []models.TransactionResponse
	if _, err := call(client, http.MethodGet, fmt.Sprintf("/api/v1/transactions?goal_id=%d", goalID), "", nil, &txs); err != nil {
		return err
	}

	want := decimal.RequireFromString(seed)
	for _, t := range txs {
		if t.Kind == "expense" {
			want = want.Sub(t.Amount)
		} else {
			want = want.Add(t.Amount)
		}
	}
	if !g.CurrentAmount.Equal(want) {
		return fmt.Errorf("current_amount %s, want %s over %d transactions", g.CurrentAmount, want, len(txs))
	}
	log.Printf("goal %d consistent: %s over %d transactions", goalID, g.CurrentAmount, len(txs))
	return nil
}

func call(client *http.Client, method, path, idempotencyKey string, payload, out any) (int, error) {
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			return 0, err
		}
	}
	req, err := http.NewRequest(method, targetURL+path, &body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", strconv.FormatInt(ownerID, 10))
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}

func unique(ids []int64) []int64 {
	seen := map[int64]bool{}
	var out []int64
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func printResults(d time.Duration, mismatches int) {
	total := atomic.LoadUint64(&totalRequests)
	s201 := atomic.LoadUint64(&success201)
	s200 := atomic.LoadUint64(&success200)
	f422 := atomic.LoadUint64(&fail422)
	fErr := atomic.LoadUint64(&failOther)

	tps := float64(total) / d.Seconds()
	rejectRate := 0.0
	if total > 0 {
		rejectRate = float64(f422) / float64(total) * 100
	}

	results := map[string]interface{}{
		"workload":           workload,
		"workers":            concurrency,
		"duration_sec":       d.Seconds(),
		"total_requests":     total,
		"throughput_tps":     tps,
		"success_created":    s201,
		"success_deleted":    s200,
		"insufficient_funds": f422,
		"reject_rate_pct":    rejectRate,
		"errors":             fErr,
		"balance_mismatches": mismatches,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(results)

	// Also save to file
	filename := fmt.Sprintf("results_%s.json", workload)
	file, err := os.Create(filename)
	if err != nil {
		log.Printf("write results: %v", err)
		return
	}
	defer file.Close()
	json.NewEncoder(file).Encode(results)
}
