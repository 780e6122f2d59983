// Package pipeline ties the analysis stages together: loading the two
// modalities, registering them onto one grid, reducing the spectral
// dimensionality, sweeping principal component regressions against the
// conductivity channel, and comparing unmixing algorithms.
package pipeline

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"afmfusion/internal/models"
	"afmfusion/pkg/analysis"
	"afmfusion/pkg/decomposition"
	"afmfusion/pkg/loader"
	"afmfusion/pkg/registration"
	"afmfusion/pkg/unmixing"
)

// Params holds the pipeline configuration.
type Params struct {
	// PiFMParamFile is the Anfatec parameter file of the hyperspectral
	// scan.
	PiFMParamFile string

	// CAFMParamFile is the Anfatec parameter file of the scalar scan.
	// It may be the same file as PiFMParamFile when both modalities
	// were recorded in one pass.
	CAFMParamFile string

	// CAFMChannel selects the scalar channel by caption substring.
	CAFMChannel string

	// FlattenScalar removes the per-line linear background from the
	// scalar image after loading.
	FlattenScalar bool

	// LaserPower normalizes spectra between scans taken at different
	// power settings; <= 0 disables the correction.
	LaserPower float64

	// Registration configures transform estimation and resampling.
	Registration registration.Options

	// Components is the number of principal components to retain.
	Components int

	// MaxPredictors is the largest leading-PC subset in the regression
	// sweep.
	MaxPredictors int

	// Intercept includes a constant column in each design matrix.
	Intercept bool

	// Endmembers is the component count for the unmixing comparison.
	Endmembers int

	// Seed drives the stochastic unmixing algorithms.
	Seed int64

	// SaveIntermediaryResults writes score maps, abundance maps and the
	// registered scalar image as 16-bit grayscale PNGs.
	SaveIntermediaryResults bool

	// IntermediaryDir is where intermediary maps are written. Only used
	// when SaveIntermediaryResults is true.
	IntermediaryDir string
}

// Pipeline runs the multimodal analysis. Stages run strictly in order;
// each stage fully consumes its input and produces an immutable output
// before the next stage starts.
type Pipeline struct {
	params *Params
	log    zerolog.Logger

	hyper  *models.Cube
	scalar *models.Cube

	pair          *models.RegisteredPair
	pca           *decomposition.Result
	trials        []analysis.Trial
	unmixResults  map[string]*unmixing.Result
	unmixFailures map[string]error
}

// New creates a pipeline with the provided parameters.
func New(params *Params, log zerolog.Logger) *Pipeline {
	return &Pipeline{params: params, log: log}
}

// Process runs the complete analysis. Loader, registration and
// decomposition failures are fatal: no valid downstream data can be
// produced, so Process aborts with the specific error. Individual
// regression trials and unmixing algorithms fail locally and are
// recorded without aborting the batch.
func (p *Pipeline) Process() error {
	if p.params.SaveIntermediaryResults {
		if err := os.MkdirAll(p.params.IntermediaryDir, 0755); err != nil {
			return fmt.Errorf("failed to create intermediary directory: %v", err)
		}
	}

	p.log.Info().Msg("Step 1: Loading input scans...")
	if err := p.loadInputs(); err != nil {
		return fmt.Errorf("failed to load inputs: %w", err)
	}

	p.log.Info().Msg("Step 2: Registering cAFM image onto PiFM grid...")
	if err := p.register(); err != nil {
		return fmt.Errorf("failed to register modalities: %w", err)
	}

	p.log.Info().Msg("Step 3: Decomposing hyperspectral cube...")
	if err := p.decompose(); err != nil {
		return fmt.Errorf("failed to decompose cube: %w", err)
	}

	p.log.Info().Msg("Step 4: Sweeping principal component regressions...")
	p.regress()

	p.log.Info().Msg("Step 5: Comparing unmixing algorithms...")
	p.unmix()

	return nil
}

// loadInputs reads both modalities from disk and applies the configured
// preprocessing.
func (p *Pipeline) loadInputs() error {
	hyper, err := loader.LoadPiFM(p.params.PiFMParamFile)
	if err != nil {
		return err
	}
	loader.NormalizeLaserPower(hyper, p.params.LaserPower)
	p.hyper = hyper

	scalar, err := loader.LoadCAFM(p.params.CAFMParamFile, p.params.CAFMChannel)
	if err != nil {
		return err
	}
	if p.params.FlattenScalar {
		loader.DetrendChannel(scalar, 0)
	}
	p.scalar = scalar

	p.log.Info().
		Int("rows", hyper.Rows).
		Int("cols", hyper.Cols).
		Int("channels", hyper.Channels).
		Float64("pitchX", hyper.Grid.PitchX).
		Float64("pitchY", hyper.Grid.PitchY).
		Msg("Loaded PiFM cube")
	p.log.Info().
		Int("rows", scalar.Rows).
		Int("cols", scalar.Cols).
		Msg("Loaded cAFM image")

	return nil
}

// register estimates the cross-modal transform and resamples the scalar
// image onto the hyperspectral grid.
func (p *Pipeline) register() error {
	registrar := registration.NewAffineRegistrar()
	pair, err := registration.Register(registrar, p.hyper, p.scalar, p.params.Registration)
	if err != nil {
		return err
	}
	p.pair = pair

	if p.params.SaveIntermediaryResults {
		if err := p.saveMap("01_registration", "registered_scalar", pair.Scalar.Band(0), pair.Scalar.Rows, pair.Scalar.Cols); err != nil {
			p.log.Warn().Err(err).Msg("Failed to save registered scalar image")
		}
	}

	return nil
}

// decompose computes the PCA of the registered hyperspectral cube.
func (p *Pipeline) decompose() error {
	pca, err := decomposition.Decompose(p.pair.Hyper, p.params.Components)
	if err != nil {
		return err
	}
	p.pca = pca

	for i, ratio := range pca.VarianceRatios {
		p.log.Info().
			Int("component", i+1).
			Float64("varianceRatio", ratio).
			Msg("Principal component")
	}

	if p.params.SaveIntermediaryResults {
		for i := 0; i < pca.Components(); i++ {
			name := fmt.Sprintf("pc_%02d", i+1)
			if err := p.saveMap("02_score_maps", name, pca.ScoreMap(i), pca.Rows, pca.Cols); err != nil {
				p.log.Warn().Err(err).Int("component", i+1).Msg("Failed to save score map")
			}
		}
	}

	return nil
}

// regress sweeps nested regressions of the conductivity channel on the
// leading principal components. Per-trial failures are recorded on the
// trial rows.
func (p *Pipeline) regress() {
	target := p.pair.Scalar.Band(0)
	p.trials = analysis.Sweep(p.pca, target, p.params.MaxPredictors, p.params.Intercept)

	for _, trial := range p.trials {
		if trial.Err != nil {
			p.log.Warn().Int("numPCs", trial.NumPCs).Err(trial.Err).Msg("Regression trial failed")
			continue
		}
		p.log.Info().
			Int("numPCs", trial.NumPCs).
			Float64("r2", trial.Metrics.R2).
			Float64("rss", trial.Metrics.RSS).
			Float64("fStat", trial.Metrics.FStat).
			Msg("Regression trial")
	}
}

// unmix runs the algorithm comparison on the registered hyperspectral
// cube. One algorithm's failure does not prevent collection of the rest.
func (p *Pipeline) unmix() {
	comparator := unmixing.DefaultComparator(p.params.Seed)
	p.unmixResults, p.unmixFailures = comparator.Run(p.pair.Hyper, p.params.Endmembers)

	for name, err := range p.unmixFailures {
		p.log.Warn().Str("algorithm", name).Err(err).Msg("Unmixing algorithm failed")
	}
	for name, result := range p.unmixResults {
		k, _ := result.Endmembers.Dims()
		p.log.Info().Str("algorithm", name).Int("endmembers", k).Msg("Unmixing complete")
	}

	if p.params.SaveIntermediaryResults {
		for name, result := range p.unmixResults {
			for i := 0; i < result.Abundances.Channels; i++ {
				mapName := fmt.Sprintf("%s_endmember_%02d", name, i+1)
				if err := p.saveMap("03_abundance_maps", mapName, result.Abundances.Band(i),
					result.Abundances.Rows, result.Abundances.Cols); err != nil {
					p.log.Warn().Err(err).Str("algorithm", name).Msg("Failed to save abundance map")
				}
			}
		}
	}
}

// RegisteredPair returns the registered cubes. Nil before Process.
func (p *Pipeline) RegisteredPair() *models.RegisteredPair {
	return p.pair
}

// PCA returns the decomposition result. Nil before Process.
func (p *Pipeline) PCA() *decomposition.Result {
	return p.pca
}

// Sweep returns the regression sweep table.
func (p *Pipeline) Sweep() []analysis.Trial {
	return p.trials
}

// UnmixingResults returns the per-algorithm results and failures.
func (p *Pipeline) UnmixingResults() (map[string]*unmixing.Result, map[string]error) {
	return p.unmixResults, p.unmixFailures
}
