package cli

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/hupe1980/vectier/distance"
	"github.com/hupe1980/vectier/model"
	"github.com/hupe1980/vectier/testutil"
)

var (
	benchRecords  int
	benchQueries  int
	benchK        int
	benchSeed     int64
	benchClusters int
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Measure recall and latency on synthetic data",
	Long: `Insert synthetic clustered vectors, run queries against the graph index
and compare every result list with an exact scan.

Examples:
  vectier bench --records 20000 --queries 200 --k 10`,
	RunE: runBench,
}

func init() {
	benchCmd.Flags().IntVar(&benchRecords, "records", 10000, "number of records to insert")
	benchCmd.Flags().IntVar(&benchQueries, "queries", 100, "number of queries")
	benchCmd.Flags().IntVar(&benchK, "k", 10, "neighbors per query")
	benchCmd.Flags().Int64Var(&benchSeed, "seed", 4711, "random seed")
	benchCmd.Flags().IntVar(&benchClusters, "clusters", 32, "number of data clusters")
}

// BenchReport summarizes a benchmark run.
type BenchReport struct {
	Records    int
	Queries    int
	Recall     float64
	InsertTime time.Duration
	P50        time.Duration
	P99        time.Duration
}

func runBench(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	r, err := bench(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "records:  %d\n", r.Records)
	fmt.Fprintf(out, "queries:  %d\n", r.Queries)
	fmt.Fprintf(out, "insert:   %s (%.0f/s)\n", r.InsertTime.Round(time.Millisecond), float64(r.Records)/r.InsertTime.Seconds())
	fmt.Fprintf(out, "recall@%d: %.4f\n", benchK, r.Recall)
	fmt.Fprintf(out, "p50:      %s\n", r.P50)
	fmt.Fprintf(out, "p99:      %s\n", r.P99)
	return nil
}

func bench(ctx context.Context) (BenchReport, error) {
	metric, err := distance.ParseMetric(cfg.Metric)
	if err != nil {
		return BenchReport{}, err
	}

	db, closeDB, err := openDB(ctx, cfg)
	if err != nil {
		return BenchReport{}, err
	}
	defer closeDB()

	rng := testutil.NewRNG(benchSeed)
	recs := testutil.Records(
		rng.ClusteredVectors(benchRecords, cfg.Dimension, benchClusters, 0.1),
		1, time.Now().UTC(),
	)

	logger.Info("inserting records", "records", len(recs), "dimension", cfg.Dimension)
	start := time.Now()
	for _, r := range recs {
		if err := db.Insert(ctx, r.ID, r.Vector, r.CreatedAt); err != nil {
			return BenchReport{}, err
		}
	}
	report := BenchReport{Records: len(recs), Queries: benchQueries, InsertTime: time.Since(start)}

	latencies := make([]time.Duration, 0, benchQueries)
	var recall float64
	for i := range benchQueries {
		q := recs[rng.Intn(len(recs))].Vector

		start := time.Now()
		res, err := db.Search(ctx, q, benchK)
		if err != nil {
			return BenchReport{}, err
		}
		latencies = append(latencies, time.Since(start))

		approx := make([]model.Neighbor, len(res.Results))
		for j, r := range res.Results {
			approx[j] = model.Neighbor{ID: r.ID, Distance: r.Distance}
		}
		recall += testutil.ComputeRecall(testutil.BruteForce(recs, q, benchK, metric), approx)

		if res.Degraded {
			logger.Warn("query served by degraded index", "query", i)
		}
	}

	if benchQueries > 0 {
		report.Recall = recall / float64(benchQueries)
		slices.Sort(latencies)
		report.P50 = latencies[len(latencies)/2]
		report.P99 = latencies[len(latencies)*99/100]
	}
	return report, nil
}
