package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"afmfusion/pkg/config"
	"afmfusion/pkg/pipeline"
)

func main() {
	// Parse command line arguments
	pifmPath := flag.String("pifm", "", "Anfatec parameter file of the PiFM hyperspectral scan")
	cafmPath := flag.String("cafm", "", "Anfatec parameter file of the cAFM scan (defaults to the PiFM file)")
	configPath := flag.String("config", "afmfusion.yaml", "Configuration file")
	components := flag.Int("components", 0, "Number of principal components (overrides config)")
	endmembers := flag.Int("endmembers", 0, "Number of endmembers for unmixing (overrides config)")
	seed := flag.Int64("seed", 0, "Seed for stochastic unmixing algorithms (overrides config)")
	flag.Parse()

	// Validate inputs
	if *pifmPath == "" {
		flag.Usage()
		os.Exit(1)
	}
	if *cafmPath == "" {
		*cafmPath = *pifmPath
	}

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if !cfg.Output.Verbose {
		log = log.Level(zerolog.WarnLevel)
	}
	if *components > 0 {
		cfg.Decomposition.Components = *components
	}
	if *endmembers > 0 {
		cfg.Unmixing.Endmembers = *endmembers
	}
	if *seed != 0 {
		cfg.Unmixing.Seed = *seed
	}

	regOpts, err := cfg.RegistrationOptions()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid registration configuration")
	}

	fmt.Println("================================")
	fmt.Println("MULTIMODAL PiFM / cAFM ANALYSIS PIPELINE")
	fmt.Println("Registration, PC regression and unmixing comparison")
	fmt.Println("================================")

	params := &pipeline.Params{
		PiFMParamFile:           *pifmPath,
		CAFMParamFile:           *cafmPath,
		CAFMChannel:             cfg.Input.CAFMChannel,
		FlattenScalar:           cfg.Input.FlattenScalar,
		LaserPower:              cfg.Input.LaserPower,
		Registration:            regOpts,
		Components:              cfg.Decomposition.Components,
		MaxPredictors:           cfg.Regression.MaxPredictors,
		Intercept:               cfg.Regression.Intercept,
		Endmembers:              cfg.Unmixing.Endmembers,
		Seed:                    cfg.Unmixing.Seed,
		SaveIntermediaryResults: cfg.Output.SaveIntermediaryResults,
		IntermediaryDir:         cfg.Output.IntermediaryDir,
	}

	p := pipeline.New(params, log)

	startTime := time.Now()
	if err := p.Process(); err != nil {
		log.Fatal().Err(err).Msg("Pipeline failed")
	}
	processingTime := time.Since(startTime)

	fmt.Printf("\nAnalysis completed in %.2f seconds\n\n", processingTime.Seconds())

	// Regression sweep table
	fmt.Println("PC regression sweep:")
	fmt.Println("====================")
	fmt.Printf("%-8s %-12s %-14s %-12s\n", "PCs", "R²", "RSS", "F")
	for _, trial := range p.Sweep() {
		if trial.Err != nil {
			fmt.Printf("%-8d failed: %v\n", trial.NumPCs, trial.Err)
			continue
		}
		fmt.Printf("%-8d %-12.6f %-14.6g %-12.4g\n",
			trial.NumPCs, trial.Metrics.R2, trial.Metrics.RSS, trial.Metrics.FStat)
	}

	// Unmixing comparison summary
	results, failures := p.UnmixingResults()
	fmt.Println("\nUnmixing comparison:")
	fmt.Println("====================")
	for name, result := range results {
		k, channels := result.Endmembers.Dims()
		fmt.Printf("%-10s %d endmembers x %d channels\n", name, k, channels)
	}
	for name, err := range failures {
		fmt.Printf("%-10s failed: %v\n", name, err)
	}

	if cfg.Output.SaveIntermediaryResults {
		fmt.Println("\nIntermediary results saved to:")
		fmt.Printf("%s\n", cfg.Output.IntermediaryDir)
		fmt.Println("The following stages were saved:")
		fmt.Println("- 01_registration: registered cAFM image")
		fmt.Println("- 02_score_maps: principal component score maps")
		fmt.Println("- 03_abundance_maps: per-algorithm abundance maps")
	}
}
