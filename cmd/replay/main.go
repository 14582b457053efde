// Replay tool for measuring Kestrel's block decisions against labelled
// PaySim payments.
//
// Usage:
//
//	go run ./cmd/replay -csv /path/to/paysim.csv -url http://localhost:8080
//
// Each row is scored with POST /check and then recorded with
// POST /transactions so later rows see it in history. Blocked payments are
// recorded as failed, the rest as successful. A 403 from /check counts as
// a positive prediction and isFraud is the label.
package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Payment is one labelled PaySim row.
type Payment struct {
	Step           string
	Type           string
	Amount         decimal.Decimal
	NameOrig       string
	OldBalanceOrig decimal.Decimal
	NewBalanceOrig decimal.Decimal
	NameDest       string
	IsFraud        bool
}

// TransactionRequest mirrors the body accepted by /check and /transactions.
type TransactionRequest struct {
	ID            string          `json:"id"`
	MerchantID    string          `json:"merchantId"`
	PayerID       string          `json:"payerId"`
	Amount        decimal.Decimal `json:"amount"`
	Status        string          `json:"status,omitempty"`
	PaymentMethod string          `json:"paymentMethod,omitempty"`
	Metadata      map[string]any  `json:"metadata,omitempty"`
}

// Verdict is the part of a /check response the replay needs. Allowed and
// blocked responses share these fields.
type Verdict struct {
	RiskScore      int      `json:"riskScore"`
	RiskLevel      string   `json:"riskLevel"`
	RulesTriggered []string `json:"rulesTriggered"`
	Blocked        bool     `json:"-"`
}

// Tally accumulates the confusion matrix.
type Tally struct {
	TruePositives  atomic.Int64
	FalsePositives atomic.Int64
	TrueNegatives  atomic.Int64
	FalseNegatives atomic.Int64
	Errors         atomic.Int64
	LatencyMs      atomic.Int64

	mu       sync.Mutex
	ruleHits map[string]int
}

func (t *Tally) record(p Payment, v *Verdict, elapsed time.Duration) {
	t.LatencyMs.Add(elapsed.Milliseconds())

	switch {
	case v.Blocked && p.IsFraud:
		t.TruePositives.Add(1)
	case v.Blocked:
		t.FalsePositives.Add(1)
	case p.IsFraud:
		t.FalseNegatives.Add(1)
	default:
		t.TrueNegatives.Add(1)
	}

	t.mu.Lock()
	for _, r := range v.RulesTriggered {
		t.ruleHits[r]++
	}
	t.mu.Unlock()
}

func main() {
	csvPath := flag.String("csv", "", "Path to PaySim CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "Kestrel base URL")
	merchantID := flag.String("merchant", "replay-merchant", "Merchant ID for every payment")
	limit := flag.Int("limit", 10000, "Maximum payments to replay (0 = all)")
	workers := flag.Int("workers", 1, "Concurrent senders; above 1 history order is not preserved")
	verbose := flag.Bool("verbose", false, "Print every verdict")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: replay -csv /path/to/paysim.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("KESTREL REPLAY - labelled payment fraud check")
	fmt.Printf("\nCSV File:   %s\n", *csvPath)
	fmt.Printf("Kestrel:    %s\n", *baseURL)
	fmt.Printf("Merchant:   %s\n", *merchantID)
	fmt.Printf("Workers:    %d\n", *workers)
	fmt.Printf("Limit:      %d\n\n", *limit)

	client := &http.Client{Timeout: 10 * time.Second}
	if err := checkHealth(client, *baseURL); err != nil {
		fmt.Printf("ERROR: Kestrel not reachable at %s: %v\n", *baseURL, err)
		os.Exit(1)
	}

	payments, err := readPayments(*csvPath, *limit)
	if err != nil {
		fmt.Printf("ERROR: failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded %d payments\n", len(payments))

	start := time.Now()
	tally := replay(context.Background(), client, *baseURL, *merchantID, payments, *workers, *verbose)
	printResults(tally, len(payments), time.Since(start))
}

func checkHealth(client *http.Client, baseURL string) error {
	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func readPayments(path string, limit int) ([]Payment, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"step", "type", "amount", "nameorig", "namedest", "isfraud"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("missing column %q", required)
		}
	}

	field := func(record []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(record) {
			return ""
		}
		return record[i]
	}

	var payments []Payment
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			continue
		}

		amount, err := decimal.NewFromString(field(record, "amount"))
		if err != nil || !amount.IsPositive() {
			continue
		}
		oldBalance, _ := decimal.NewFromString(field(record, "oldbalanceorg"))
		newBalance, _ := decimal.NewFromString(field(record, "newbalanceorig"))

		payments = append(payments, Payment{
			Step:           field(record, "step"),
			Type:           field(record, "type"),
			Amount:         amount,
			NameOrig:       field(record, "nameorig"),
			OldBalanceOrig: oldBalance,
			NewBalanceOrig: newBalance,
			NameDest:       field(record, "namedest"),
			IsFraud:        field(record, "isfraud") == "1",
		})

		if limit > 0 && len(payments) >= limit {
			break
		}
	}

	return payments, nil
}

func replay(ctx context.Context, client *http.Client, baseURL, merchantID string, payments []Payment, workers int, verbose bool) *Tally {
	tally := &Tally{ruleHits: make(map[string]int)}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))

	for _, p := range payments {
		g.Go(func() error {
			req := TransactionRequest{
				ID:            uuid.New().String(),
				MerchantID:    merchantID,
				PayerID:       p.NameOrig,
				Amount:        p.Amount,
				PaymentMethod: strings.ToLower(p.Type),
				Metadata: map[string]any{
					"step":        p.Step,
					"payee":       p.NameDest,
					"old_balance": p.OldBalanceOrig.InexactFloat64(),
					"new_balance": p.NewBalanceOrig.InexactFloat64(),
				},
			}

			start := time.Now()
			verdict, err := check(gctx, client, baseURL, req)
			if err != nil {
				tally.Errors.Add(1)
				if verbose {
					fmt.Printf("ERROR %s: %v\n", p.NameOrig, err)
				}
				return nil
			}
			tally.record(p, verdict, time.Since(start))

			req.Status = "success"
			if verdict.Blocked {
				req.Status = "failed"
			}
			if err := post(gctx, client, baseURL+"/transactions", req, nil); err != nil {
				tally.Errors.Add(1)
				if verbose {
					fmt.Printf("ERROR recording %s: %v\n", req.ID, err)
				}
			}

			if verbose {
				mark := "ok "
				if verdict.Blocked != p.IsFraud {
					mark = "MISS"
				}
				fmt.Printf("%s %-12s | %-8s | %14s | fraud=%-5v | score=%3d %-8s | %s\n",
					mark, p.NameOrig, p.Type, p.Amount.StringFixed(2), p.IsFraud,
					verdict.RiskScore, verdict.RiskLevel, strings.Join(verdict.RulesTriggered, ","))
			}
			return nil
		})
	}

	_ = g.Wait()
	return tally
}

// check posts to /check. 403 is a block verdict, not an error.
func check(ctx context.Context, client *http.Client, baseURL string, req TransactionRequest) (*Verdict, error) {
	var v Verdict
	err := post(ctx, client, baseURL+"/check", req, &v)

	var se *statusError
	if errors.As(err, &se) && se.code == http.StatusForbidden {
		if jerr := json.Unmarshal(se.body, &v); jerr != nil {
			return nil, jerr
		}
		v.Blocked = true
		return &v, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

type statusError struct {
	code int
	body []byte
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.code, bytes.TrimSpace(e.body))
}

func post(ctx context.Context, client *http.Client, url string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return &statusError{code: resp.StatusCode, body: data}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

func printResults(t *Tally, total int, duration time.Duration) {
	tp, fp := t.TruePositives.Load(), t.FalsePositives.Load()
	tn, fn := t.TrueNegatives.Load(), t.FalseNegatives.Load()
	scored := tp + fp + tn + fn

	fmt.Println("\nRESULTS")
	fmt.Printf("   Payments:   %d\n", total)
	fmt.Printf("   Scored:     %d\n", scored)
	fmt.Printf("   Errors:     %d\n", t.Errors.Load())

	fmt.Println("\nCONFUSION MATRIX")
	fmt.Println("                    blocked     allowed")
	fmt.Printf("   fraud        %10d  %10d\n", tp, fn)
	fmt.Printf("   legitimate   %10d  %10d\n", fp, tn)

	precision := ratio(tp, tp+fp)
	recall := ratio(tp, tp+fn)
	f1 := 0.0
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}

	fmt.Println("\nBLOCK METRICS")
	fmt.Printf("   Precision:  %.4f\n", precision)
	fmt.Printf("   Recall:     %.4f\n", recall)
	fmt.Printf("   F1-Score:   %.4f\n", f1)
	fmt.Printf("   Accuracy:   %.4f\n", ratio(tp+tn, scored))

	t.mu.Lock()
	if len(t.ruleHits) > 0 {
		fmt.Println("\nRULE HITS")
		for rule, n := range t.ruleHits {
			fmt.Printf("   %-30s %d\n", rule, n)
		}
	}
	t.mu.Unlock()

	fmt.Println("\nPERFORMANCE")
	fmt.Printf("   Duration:   %v\n", duration.Round(time.Millisecond))
	if scored > 0 {
		fmt.Printf("   Avg check:  %.2f ms\n", float64(t.LatencyMs.Load())/float64(scored))
		fmt.Printf("   Throughput: %.2f payments/sec\n", float64(scored)/duration.Seconds())
	}
	fmt.Println()
}

func ratio(num, den int64) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
