package main

import (
	"database/sql"
	"flag"
	"fmt"
	"math"
	"os"
	"time"

	_ "github.com/lib/pq"
	"github.com/vmihailenco/msgpack/v5"
	"gonum.org/v1/gonum/stat"
)

// CellReading is one observation of a single raster cell
type CellReading struct {
	Time     time.Time
	Scenario string
	Value    float64
}

// FitResult contains the diagnostics for one cell's trend fit
type FitResult struct {
	Intercept            float64
	Slope                float64
	RSquared             float64
	MeanAbsoluteError    float64
	RootMeanSquaredError float64
	SampleCount          int
	TimeRange            [2]float64
}

// secondsPerYear converts Unix seconds to fractional Julian years,
// matching the pipeline's time axis.
const secondsPerYear = 365.25 * 24 * 60 * 60

func main() {
	// Command line flags
	var (
		dbHost   = flag.String("db-host", "localhost", "Database host")
		dbPort   = flag.Int("db-port", 5432, "Database port")
		dbUser   = flag.String("db-user", "postgres", "Database user")
		dbPass   = flag.String("db-pass", "", "Database password")
		dbName   = flag.String("db-name", "climate", "Database name")
		table    = flag.String("table", "raster_observations", "Raster observations table")
		dataset  = flag.String("dataset", "", "Dataset ID to verify")
		band     = flag.String("band", "", "Band name to verify")
		scenario = flag.String("scenario", "", "Optional scenario tag filter")
		row      = flag.Int("row", 0, "Cell row (0-based)")
		col      = flag.Int("col", 0, "Cell column (0-based)")
		years    = flag.Int("years", 30, "Number of years of data to analyze")
	)
	flag.Parse()

	if *dataset == "" || *band == "" {
		fmt.Fprintln(os.Stderr, "Error: -dataset and -band are required")
		os.Exit(1)
	}

	// Connect to database
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		*dbHost, *dbPort, *dbUser, *dbPass, *dbName)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		fmt.Fprintf(os.Stderr, "Error pinging database: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Per-Cell Trend Verification\n")
	fmt.Printf("===========================\n\n")
	fmt.Printf("Configuration:\n")
	fmt.Printf("  Dataset:  %s\n", *dataset)
	fmt.Printf("  Band:     %s\n", *band)
	if *scenario != "" {
		fmt.Printf("  Scenario: %s\n", *scenario)
	}
	fmt.Printf("  Cell:     (%d, %d)\n", *row, *col)
	fmt.Printf("  Period:   last %d years\n\n", *years)

	readings := fetchCellReadings(db, *table, *dataset, *band, *scenario, *row, *col, *years)

	if len(readings) < 2 {
		fmt.Fprintf(os.Stderr, "Error: Not enough valid data points (%d). Need at least 2.\n", len(readings))
		os.Exit(1)
	}

	fmt.Printf("Collected %d valid data points\n\n", len(readings))

	result := fitCell(readings)
	displayResult(result)
}

// fetchCellReadings pulls the cell's value over time, decoding the
// msgpack cell payload of each row and dropping no-data (NaN) values.
func fetchCellReadings(db *sql.DB, table, dataset, band, scenario string, row, col, years int) []CellReading {
	since := time.Now().UTC().AddDate(-years, 0, 0)

	query := fmt.Sprintf(`
		SELECT timestamp, scenario, width, cells
		FROM %s
		WHERE dataset_id = $1 AND band = $2 AND timestamp >= $3
		ORDER BY timestamp`, table)

	rows, err := db.Query(query, dataset, band, since)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error querying raster rows: %v\n", err)
		os.Exit(1)
	}
	defer rows.Close()

	var readings []CellReading
	for rows.Next() {
		var (
			ts    time.Time
			tag   string
			width int
			blob  []byte
		)
		if err := rows.Scan(&ts, &tag, &width, &blob); err != nil {
			fmt.Fprintf(os.Stderr, "Error scanning row: %v\n", err)
			os.Exit(1)
		}
		if scenario != "" && tag != scenario {
			continue
		}

		var cells []float64
		if err := msgpack.Unmarshal(blob, &cells); err != nil {
			fmt.Fprintf(os.Stderr, "Error decoding cells at %s: %v\n", ts.Format("2006-01-02"), err)
			os.Exit(1)
		}

		idx := row*width + col
		if idx < 0 || idx >= len(cells) {
			fmt.Fprintf(os.Stderr, "Error: cell (%d, %d) outside raster of width %d\n", row, col, width)
			os.Exit(1)
		}
		if math.IsNaN(cells[idx]) {
			continue
		}

		readings = append(readings, CellReading{Time: ts, Scenario: tag, Value: cells[idx]})
	}
	if err := rows.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Error iterating rows: %v\n", err)
		os.Exit(1)
	}

	return readings
}

// fitCell runs the same closed-form OLS the pipeline applies per pixel
// and adds goodness-of-fit diagnostics.
func fitCell(readings []CellReading) FitResult {
	n := len(readings)
	ts := make([]float64, n)
	ys := make([]float64, n)
	for i, r := range readings {
		ts[i] = float64(r.Time.Unix()) / secondsPerYear
		ys[i] = r.Value
	}

	intercept, slope := stat.LinearRegression(ts, ys, nil, false)

	var sumAbs, sumSq float64
	for i := range ts {
		resid := ys[i] - (intercept + slope*ts[i])
		sumAbs += math.Abs(resid)
		sumSq += resid * resid
	}

	return FitResult{
		Intercept:            intercept,
		Slope:                slope,
		RSquared:             stat.RSquared(ts, ys, nil, intercept, slope),
		MeanAbsoluteError:    sumAbs / float64(n),
		RootMeanSquaredError: math.Sqrt(sumSq / float64(n)),
		SampleCount:          n,
		TimeRange:            [2]float64{ts[0], ts[n-1]},
	}
}

func displayResult(r FitResult) {
	fmt.Printf("Fit Results\n")
	fmt.Printf("-----------\n")
	fmt.Printf("  Intercept (constant): %12.6f\n", r.Intercept)
	fmt.Printf("  Slope (per year):     %12.6f\n", r.Slope)
	fmt.Printf("  R²:                   %12.6f\n", r.RSquared)
	fmt.Printf("  MAE:                  %12.6f\n", r.MeanAbsoluteError)
	fmt.Printf("  RMSE:                 %12.6f\n", r.RootMeanSquaredError)
	fmt.Printf("  Samples:              %12d\n", r.SampleCount)
	fmt.Printf("  Time axis range:      %.3f to %.3f (fractional years)\n",
		r.TimeRange[0], r.TimeRange[1])

	fmt.Printf("\nCompare these values against the exported constant_*/time_* bands at the same cell.\n")
}
