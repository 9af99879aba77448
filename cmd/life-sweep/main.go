// Command life-sweep runs many seeded simulations on the cpu device in
// parallel, cross-checks each one against the reference rule and reports
// where the populations settle.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"runtime"
	"sort"
	"sync"
	"time"

	"lifegpu/internal/app"
	"lifegpu/internal/device"
	"lifegpu/internal/pipeline"
	"lifegpu/pkg/core"
	"lifegpu/pkg/sims/life"
)

type scenario struct {
	seed      int64
	workgroup uint32
}

func (s scenario) String() string {
	return fmt.Sprintf("seed=%d workgroup=%d", s.seed, s.workgroup)
}

type scenarioResult struct {
	scenario
	initial    int
	final      int
	peak       int
	settledAt  int // generation at which the grid repeats with period 1 or 2; -1 if never
	period     int
	mismatchAt int // first generation that diverged from the reference rule; -1 if none
	err        error
}

func main() {
	steps := flag.Int("steps", 200, "generations per scenario")
	seeds := flag.Int("seeds", 16, "number of seeds, starting at -seed")
	firstSeed := flag.Int64("seed", 1, "first seed")
	width := flag.Int("w", 96, "grid width")
	height := flag.Int("h", 64, "grid height")
	workers := flag.Int("workers", runtime.NumCPU(), "number of worker goroutines")
	logLevel := flag.String("log-level", "warn", "log level")
	flag.Parse()

	if *width <= 0 || *height <= 0 || *workers <= 0 {
		log.Fatalf("invalid sweep: grid %dx%d, %d workers", *width, *height, *workers)
	}
	logCfg := app.NewConfig()
	logCfg.LogLevel = *logLevel
	core.SetLogger(logCfg.Logger(os.Stderr))
	cfg := pipeline.Config{Width: *width, Height: *height, Fill: core.FillSeeded}

	var sets []scenario
	for i := 0; i < *seeds; i++ {
		for _, wg := range []uint32{32, 64, 256} {
			sets = append(sets, scenario{seed: *firstSeed + int64(i), workgroup: wg})
		}
	}
	fmt.Printf("Sweeping %d scenarios (%d workers, %d steps, %dx%d)\n", len(sets), *workers, *steps, *width, *height)

	jobs := make(chan scenario)
	results := make(chan scenarioResult)
	var wg sync.WaitGroup
	for i := 0; i < *workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sc := range jobs {
				results <- runScenario(cfg, sc, *steps)
			}
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()
	go func() {
		for _, sc := range sets {
			jobs <- sc
		}
		close(jobs)
	}()

	start := time.Now()
	var all []scenarioResult
	failed := false
	for res := range results {
		all = append(all, res)
		switch {
		case res.err != nil:
			fmt.Printf("%s: %v\n", res.scenario, res.err)
			failed = true
		case res.mismatchAt >= 0:
			fmt.Printf("%s: diverged from the reference rule at generation %d\n", res.scenario, res.mismatchAt)
			failed = true
		}
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].final != all[j].final {
			return all[i].final > all[j].final
		}
		if all[i].seed != all[j].seed {
			return all[i].seed < all[j].seed
		}
		return all[i].workgroup < all[j].workgroup
	})
	fmt.Printf("\nResults (elapsed %s):\n", time.Since(start).Round(time.Millisecond))
	for _, res := range all {
		if res.err != nil {
			continue
		}
		settled := "still changing"
		if res.settledAt >= 0 {
			settled = fmt.Sprintf("settled at %d (period %d)", res.settledAt, res.period)
		}
		fmt.Printf("%-28s initial=%5d peak=%5d final=%5d %s\n", res.scenario, res.initial, res.peak, res.final, settled)
	}
	if failed {
		os.Exit(1)
	}
}

func runScenario(base pipeline.Config, sc scenario, steps int) scenarioResult {
	res := scenarioResult{scenario: sc, settledAt: -1, mismatchAt: -1}
	dev, err := device.NewCPU(device.Options{Workers: 1})
	if err != nil {
		res.err = err
		return res
	}
	defer dev.Release()

	cfg := base
	cfg.Seed = sc.seed
	cfg.WorkgroupSize = sc.workgroup
	sim, err := pipeline.New(dev, cfg)
	if err != nil {
		res.err = err
		return res
	}
	defer sim.Close()

	grid, err := sim.Snapshot()
	if err != nil {
		res.err = err
		return res
	}
	ref := life.New(grid)
	history := []*core.BitGrid{grid}
	res.initial = grid.Population()
	res.peak = res.initial
	for gen := 1; gen <= steps; gen++ {
		if err := sim.Tick(); err != nil {
			res.err = err
			return res
		}
		ref.Step()
		grid, err := sim.Snapshot()
		if err != nil {
			res.err = err
			return res
		}
		if res.mismatchAt < 0 && !grid.Equal(ref.Grid()) {
			res.mismatchAt = gen
		}
		pop := grid.Population()
		res.final = pop
		res.peak = max(res.peak, pop)
		if res.settledAt < 0 {
			for period := 1; period <= 2 && period <= len(history); period++ {
				if grid.Equal(history[len(history)-period]) {
					res.settledAt, res.period = gen-period, period
					break
				}
			}
		}
		history = append(history, grid)
		if len(history) > 2 {
			history = history[1:]
		}
	}
	return res
}
