// Replay tool for checking Compenso against historical invoice lines.
//
// Usage:
//
//	go run ./cmd/replay -csv /path/to/lines.csv -url http://localhost:8080 -tenant clinic-roma
//
// The CSV header names the columns: doctor, amount, vat_included, treatment,
// product, quantity and, optionally, expected (the compensation paid at the
// time). This tool:
//  1. Sends every line to POST /doctors/{doctor}/calculate
//  2. Compares the computed net compensation with the expected one
//  3. Prints per-doctor totals, mismatches and latency
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
	"math"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Line is one row of the replay file.
type Line struct {
	Row         int
	Doctor      string
	Amount      float64
	VATIncluded bool
	Treatment   string
	Product     string
	Quantity    float64
	Expected    *float64
}

// CalculateRequest is the Compenso API request format.
type CalculateRequest struct {
	InvoiceAmount float64 `json:"invoiceAmount"`
	VATIncluded   bool    `json:"vatIncluded"`
	Treatment     string  `json:"treatment"`
	Product       string  `json:"product,omitempty"`
	Quantity      float64 `json:"quantity,omitempty"`
}

// CalculateResponse is the subset of the Compenso API response the tool reads.
type CalculateResponse struct {
	ID     string `json:"id"`
	Result struct {
		NetCompensation float64 `json:"netCompensation"`
		RuleSource      string  `json:"ruleSource"`
		Explanation     string  `json:"explanation"`
	} `json:"result"`
}

// Metrics tracks replay results.
type Metrics struct {
	TotalProcessed   int64
	TotalErrors      int64
	Mismatches       int64
	ProcessingTimeMs int64

	mu       sync.Mutex
	byDoctor map[string]float64
	bySource map[string]int64
}

func (m *Metrics) record(line Line, resp *CalculateResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byDoctor[line.Doctor] += resp.Result.NetCompensation
	m.bySource[resp.Result.RuleSource]++
}

func main() {
	// Parse flags
	csvPath := flag.String("csv", "", "Path to the invoice lines CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "Compenso base URL")
	tenantID := flag.String("tenant", "replay", "Clinic (tenant) ID for requests")
	limit := flag.Int("limit", 0, "Maximum lines to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent requests")
	tolerance := flag.Float64("tolerance", 0.005, "Allowed difference from the expected compensation")
	verbose := flag.Bool("verbose", false, "Print each line result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: replay -csv /path/to/lines.csv [-url http://localhost:8080] [-tenant clinic]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("COMPENSO REPLAY")
	fmt.Printf("\nCSV File:    %s\n", *csvPath)
	fmt.Printf("URL:         %s\n", *baseURL)
	fmt.Printf("Tenant ID:   %s\n", *tenantID)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Compenso not reachable at %s: %v\n", *baseURL, err)
		os.Exit(1)
	}
	fmt.Println("Compenso is healthy")

	lines, err := readLines(*csvPath, *limit)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded %d lines\n", len(lines))

	fmt.Printf("\nReplaying with %d workers...\n", *workers)
	startTime := time.Now()
	metrics, err := replay(context.Background(), lines, *baseURL, *tenantID, *workers, *tolerance, *verbose)
	if err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}

	printResults(metrics, time.Since(startTime))

	if metrics.Mismatches > 0 || metrics.TotalErrors > 0 {
		os.Exit(2)
	}
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func readLines(path string, limit int) ([]Line, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return parseLines(file, limit)
}

func parseLines(r io.Reader, limit int) ([]Line, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, required := range []string{"doctor", "amount", "treatment"} {
		if _, ok := colIndex[required]; !ok {
			return nil, fmt.Errorf("missing column %q", required)
		}
	}

	field := func(record []string, name string) string {
		i, ok := colIndex[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var lines []Line
	row := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		row++
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}

		amount, err := strconv.ParseFloat(field(record, "amount"), 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid amount: %w", row, err)
		}

		line := Line{
			Row:         row,
			Doctor:      field(record, "doctor"),
			Amount:      amount,
			VATIncluded: parseBool(field(record, "vat_included")),
			Treatment:   field(record, "treatment"),
			Product:     field(record, "product"),
		}
		if q := field(record, "quantity"); q != "" {
			line.Quantity, _ = strconv.ParseFloat(q, 64)
		}
		if e := field(record, "expected"); e != "" {
			if v, err := strconv.ParseFloat(e, 64); err == nil {
				line.Expected = &v
			}
		}

		lines = append(lines, line)
		if limit > 0 && len(lines) >= limit {
			break
		}
	}

	return lines, nil
}

func parseBool(s string) bool {
	switch strings.ToLower(s) {
	case "1", "true", "yes", "y", "si":
		return true
	}
	return false
}

func replay(ctx context.Context, lines []Line, baseURL, tenantID string, numWorkers int, tolerance float64, verbose bool) (*Metrics, error) {
	metrics := &Metrics{
		byDoctor: make(map[string]float64),
		bySource: make(map[string]int64),
	}
	client := &http.Client{Timeout: 10 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(numWorkers)

	for _, line := range lines {
		g.Go(func() error {
			start := time.Now()
			resp, err := calculate(gctx, client, baseURL, tenantID, line)
			atomic.AddInt64(&metrics.ProcessingTimeMs, time.Since(start).Milliseconds())
			atomic.AddInt64(&metrics.TotalProcessed, 1)

			if err != nil {
				// A cancelled context means the whole replay is aborting.
				if errors.Is(err, context.Canceled) {
					return err
				}
				atomic.AddInt64(&metrics.TotalErrors, 1)
				if verbose {
					fmt.Printf("ERROR row %d (%s): %v\n", line.Row, line.Doctor, err)
				}
				return nil
			}

			metrics.record(line, resp)

			mismatch := line.Expected != nil && math.Abs(*line.Expected-resp.Result.NetCompensation) > tolerance
			if mismatch {
				atomic.AddInt64(&metrics.Mismatches, 1)
			}

			if verbose || mismatch {
				status := "ok"
				if mismatch {
					status = fmt.Sprintf("MISMATCH expected %.2f", *line.Expected)
				}
				fmt.Printf("row %-5d %-12s %-14s %-10s %10.2f -> %10.2f  %s\n",
					line.Row, line.Doctor, line.Treatment, line.Product,
					line.Amount, resp.Result.NetCompensation, status)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return metrics, err
	}
	return metrics, nil
}

func calculate(ctx context.Context, client *http.Client, baseURL, tenantID string, line Line) (*CalculateResponse, error) {
	body, err := json.Marshal(CalculateRequest{
		InvoiceAmount: line.Amount,
		VATIncluded:   line.VATIncluded,
		Treatment:     line.Treatment,
		Product:       line.Product,
		Quantity:      line.Quantity,
	})
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/doctors/%s/calculate", baseURL, line.Doctor)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var result CalculateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\nREPLAY RESULTS")

	fmt.Printf("\nLINES\n")
	fmt.Printf("   Processed:   %d\n", m.TotalProcessed)
	fmt.Printf("   Errors:      %d\n", m.TotalErrors)
	fmt.Printf("   Mismatches:  %d\n", m.Mismatches)

	fmt.Printf("\nRULE SOURCES\n")
	for _, source := range sortedKeys(m.bySource) {
		fmt.Printf("   %-20s %d\n", source, m.bySource[source])
	}

	fmt.Printf("\nNET COMPENSATION BY DOCTOR\n")
	for _, doctor := range sortedKeys(m.byDoctor) {
		fmt.Printf("   %-20s %12.2f\n", doctor, m.byDoctor[doctor])
	}

	fmt.Printf("\nPERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		lps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f lines/sec\n", lps)
	}

	fmt.Println()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
