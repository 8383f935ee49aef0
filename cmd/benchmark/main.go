// Benchmark tool for testing Kestrel against labeled invoice data.
//
// Usage:
//   go run cmd/benchmark/main.go -csv /path/to/invoices.csv -url http://localhost:8080
//
// This tool:
//   1. Reads invoice data with known compliance labels
//   2. Sends each document to Kestrel for validation
//   3. Compares Kestrel's verdict (NON_COMPLIANT vs COMPLIANT) with the labels
//   4. Calculates precision, recall, F1-score, and confusion matrix
//
// Expected CSV columns (header required, order free):
//   invoice_number,tin,registration_number,registration_status,amount,currency,is_violation
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// InvoiceRecord represents a row from the labeled invoice dataset.
type InvoiceRecord struct {
	InvoiceNumber      string
	TIN                string
	RegistrationNumber string
	RegistrationStatus string
	Amount             float64
	Currency           string
	IsViolation        bool
}

// ValidateRequest is the Kestrel API request format.
type ValidateRequest struct {
	RequestID    string         `json:"requestId,omitempty"`
	DocumentType string         `json:"documentType"`
	Document     map[string]any `json:"document"`
	Frameworks   []string       `json:"frameworks,omitempty"`
	Mode         string         `json:"mode,omitempty"`
	CacheEnabled bool           `json:"cacheEnabled,omitempty"`
}

// ValidateResponse is the subset of the Kestrel API response we score on.
type ValidateResponse struct {
	ResponseID    string  `json:"responseId"`
	OverallStatus string  `json:"overallStatus"`
	OverallScore  float64 `json:"overallScore"`
	ProcessMs     int64   `json:"processMs"`
}

// Metrics tracks benchmark results.
type Metrics struct {
	TruePositives  int64 // Violations flagged non-compliant
	FalsePositives int64 // Clean documents flagged non-compliant
	TrueNegatives  int64 // Clean documents passed
	FalseNegatives int64 // Violations passed (missed!)

	TotalProcessed int64
	TotalViolation int64
	TotalClean     int64
	TotalErrors    int64

	ProcessingTimeMs int64
}

func main() {
	// Parse flags
	csvPath := flag.String("csv", "", "Path to labeled invoice CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "Kestrel base URL")
	tenantID := flag.String("tenant", "benchmark-test", "Tenant ID for requests")
	limit := flag.Int("limit", 10000, "Maximum documents to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	violationsOnly := flag.Bool("violations-only", false, "Only test known violations")
	sampleRate := flag.Float64("sample", 1.0, "Sample rate for clean documents (0.0-1.0)")
	mode := flag.String("mode", "standard", "Validation mode: fast, standard, thorough")
	verbose := flag.Bool("verbose", false, "Print each document result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/invoices.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║        KESTREL BENCHMARK - Invoice Compliance Detection       ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nCSV File:    %s\n", *csvPath)
	fmt.Printf("Kestrel URL: %s\n", *baseURL)
	fmt.Printf("Tenant ID:   %s\n", *tenantID)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Limit:       %d\n", *limit)
	fmt.Printf("Mode:        %s\n", *mode)
	fmt.Printf("Sample Rate: %.2f\n", *sampleRate)
	fmt.Println()

	// Check Kestrel is running
	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Kestrel not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Kestrel is running:")
		fmt.Println("  go run cmd/kestrel/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Kestrel is healthy")

	// Read invoice data
	fmt.Printf("\nReading invoice data from %s...\n", *csvPath)
	records, err := readInvoiceCSV(*csvPath, *limit, *violationsOnly, *sampleRate)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Loaded %d documents\n", len(records))

	// Count violations vs clean
	violationCount := 0
	for _, rec := range records {
		if rec.IsViolation {
			violationCount++
		}
	}
	fmt.Printf("  - Violations: %d (%.2f%%)\n", violationCount, 100*float64(violationCount)/float64(len(records)))
	fmt.Printf("  - Clean:      %d (%.2f%%)\n", len(records)-violationCount, 100*float64(len(records)-violationCount)/float64(len(records)))

	// Run benchmark
	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(records, *baseURL, *tenantID, *mode, *workers, *verbose)
	duration := time.Since(startTime)

	// Print results
	printResults(metrics, duration)
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

func readInvoiceCSV(path string, limit int, violationsOnly bool, sampleRate float64) ([]InvoiceRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)

	// Read header
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	// Map column indices
	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}

	var records []InvoiceRecord
	sampleCounter := 0

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		isViolation := record[colIndex["is_violation"]] == "1"

		// Apply filters
		if violationsOnly && !isViolation {
			continue
		}

		// Sample clean documents
		if !isViolation && sampleRate < 1.0 {
			sampleCounter++
			if float64(sampleCounter%100)/100.0 >= sampleRate {
				continue
			}
		}

		amount, _ := strconv.ParseFloat(record[colIndex["amount"]], 64)

		rec := InvoiceRecord{
			InvoiceNumber:      record[colIndex["invoice_number"]],
			TIN:                record[colIndex["tin"]],
			RegistrationNumber: record[colIndex["registration_number"]],
			RegistrationStatus: record[colIndex["registration_status"]],
			Amount:             amount,
			Currency:           record[colIndex["currency"]],
			IsViolation:        isViolation,
		}

		records = append(records, rec)

		if limit > 0 && len(records) >= limit {
			break
		}
	}

	return records, nil
}

func runBenchmark(records []InvoiceRecord, baseURL, tenantID, mode string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	// Create work channel
	work := make(chan InvoiceRecord, 100)
	var wg sync.WaitGroup

	// Start workers
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for rec := range work {
				start := time.Now()
				result, err := validateDocument(client, baseURL, tenantID, mode, rec)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", rec.InvoiceNumber, err)
					}
					continue
				}

				// Track actual labels
				if rec.IsViolation {
					atomic.AddInt64(&metrics.TotalViolation, 1)
				} else {
					atomic.AddInt64(&metrics.TotalClean, 1)
				}

				// Calculate confusion matrix
				predicted := result.OverallStatus == "NON_COMPLIANT" || result.OverallStatus == "PARTIALLY_COMPLIANT"
				actual := rec.IsViolation

				if predicted && actual {
					atomic.AddInt64(&metrics.TruePositives, 1)
				} else if predicted && !actual {
					atomic.AddInt64(&metrics.FalsePositives, 1)
				} else if !predicted && !actual {
					atomic.AddInt64(&metrics.TrueNegatives, 1)
				} else { // !predicted && actual
					atomic.AddInt64(&metrics.FalseNegatives, 1)
				}

				if verbose {
					status := "✓"
					if (predicted && !actual) || (!predicted && actual) {
						status = "✗"
					}
					num := rec.InvoiceNumber
					if len(num) > 14 {
						num = num[:14]
					}
					fmt.Printf("%s %-14s | TIN: %-14s | Amount: %10.2f | Violation: %-5v | Kestrel: %-13s (%.1f)\n",
						status,
						num,
						rec.TIN,
						rec.Amount,
						rec.IsViolation,
						result.OverallStatus,
						result.OverallScore,
					)
				}
			}
		}()
	}

	// Send work
	for _, rec := range records {
		work <- rec
	}
	close(work)

	// Wait for completion
	wg.Wait()

	return metrics
}

func validateDocument(client *http.Client, baseURL, tenantID, mode string, rec InvoiceRecord) (*ValidateResponse, error) {
	// Build request matching Kestrel's expected format
	req := ValidateRequest{
		DocumentType: "invoice",
		Document: map[string]any{
			"invoice_number": rec.InvoiceNumber,
			"tin":            rec.TIN,
			"registration": map[string]any{
				"number": rec.RegistrationNumber,
				"status": rec.RegistrationStatus,
			},
			"amount":   rec.Amount,
			"currency": rec.Currency,
		},
		Mode: mode,
		// Caching would mask latency and let identical rows share one verdict
		CacheEnabled: false,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/validate", bytes.NewReader(body))
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
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result ValidateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 DATASET STATISTICS\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Total Violations: %d\n", m.TotalViolation)
	fmt.Printf("   Total Clean:      %d\n", m.TotalClean)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	fmt.Printf("\n📈 CONFUSION MATRIX\n")
	fmt.Println("                        Predicted")
	fmt.Println("                  FLAGGED      PASSED")
	fmt.Println("              ┌──────────┬──────────┐")
	fmt.Printf("   Actual  V  │ %8d │ %8d │  (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Println("              ├──────────┼──────────┤")
	fmt.Printf("           C  │ %8d │ %8d │  (FP, TN)\n", m.FalsePositives, m.TrueNegatives)
	fmt.Println("              └──────────┴──────────┘")

	// Calculate metrics
	precision := float64(0)
	if m.TruePositives+m.FalsePositives > 0 {
		precision = float64(m.TruePositives) / float64(m.TruePositives+m.FalsePositives)
	}

	recall := float64(0)
	if m.TruePositives+m.FalseNegatives > 0 {
		recall = float64(m.TruePositives) / float64(m.TruePositives+m.FalseNegatives)
	}

	f1 := float64(0)
	if precision+recall > 0 {
		f1 = 2 * (precision * recall) / (precision + recall)
	}

	accuracy := float64(0)
	total := m.TruePositives + m.TrueNegatives + m.FalsePositives + m.FalseNegatives
	if total > 0 {
		accuracy = float64(m.TruePositives+m.TrueNegatives) / float64(total)
	}

	fmt.Printf("\n🎯 DETECTION METRICS\n")
	fmt.Printf("   Precision:  %.4f  (of flagged documents, how many were real violations)\n", precision)
	fmt.Printf("   Recall:     %.4f  (of violations, how many did we catch)\n", recall)
	fmt.Printf("   F1-Score:   %.4f  (harmonic mean of precision & recall)\n", f1)
	fmt.Printf("   Accuracy:   %.4f  (overall correct verdicts)\n", accuracy)

	// Detection rate analysis
	fmt.Printf("\n🔍 DETECTION ANALYSIS\n")
	if m.TotalViolation > 0 {
		detectionRate := float64(m.TruePositives) / float64(m.TotalViolation) * 100
		missRate := float64(m.FalseNegatives) / float64(m.TotalViolation) * 100
		fmt.Printf("   Violations Caught: %d / %d (%.2f%%)\n", m.TruePositives, m.TotalViolation, detectionRate)
		fmt.Printf("   Violations Missed: %d / %d (%.2f%%) ⚠️\n", m.FalseNegatives, m.TotalViolation, missRate)
	}
	if m.TotalClean > 0 {
		falseAlarmRate := float64(m.FalsePositives) / float64(m.TotalClean) * 100
		fmt.Printf("   False Alarms:      %d / %d (%.2f%%)\n", m.FalsePositives, m.TotalClean, falseAlarmRate)
	}

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		dps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f docs/sec\n", dps)
	}

	// Interpretation
	fmt.Printf("\n💡 INTERPRETATION\n")
	if recall >= 0.9 {
		fmt.Println("   ✅ Excellent recall - catching most violations")
	} else if recall >= 0.7 {
		fmt.Println("   ⚠️  Good recall - but missing some violations")
	} else if recall >= 0.5 {
		fmt.Println("   ⚠️  Moderate recall - significant violations being missed")
	} else {
		fmt.Println("   ❌ Poor recall - most violations are being missed!")
	}

	if precision >= 0.5 {
		fmt.Println("   ✅ Good precision - flags are meaningful")
	} else if precision >= 0.2 {
		fmt.Println("   ⚠️  Low precision - many false alarms")
	} else {
		fmt.Println("   ❌ Very low precision - mostly false alarms")
	}

	fmt.Println()
}
