package testkit

import (
	"fmt"
	"math/rand"

	"goale/domain/core"
	"goale/domain/experiment"
)

// Fixture metadata levels, cycled deterministically across experiments
var (
	presentationModalities = []string{"visual", "auditory", "visual", "audiovisual", "visual"}
	responseModalities     = []string{"manual", "verbal", "none", "manual"}
	analysisSoftware       = []string{"SPM", "FSL", "SPM", "AFNI", "SPM", "GingerALE"}
)

// VisualIndices are the table positions carrying modality_pres == "visual"
// in ExperimentTable(20): exactly 8 of 20
var VisualIndices = []int{0, 2, 4, 5, 7, 9, 10, 12}

// ExperimentTable builds a deterministic table of n experiments. For n == 20
// exactly the positions in VisualIndices are visual; foci of visual
// experiments cluster around the left fusiform gyrus.
func ExperimentTable(n int) *experiment.Table {
	table, err := experiment.NewTable(Experiments(n), "modality_pres", "modality_resp", "software")
	if err != nil {
		panic(err)
	}
	return table
}

// Experiments returns the raw fixture experiments behind ExperimentTable
func Experiments(n int) []experiment.Experiment {
	visual := make(map[int]bool, len(VisualIndices))
	for _, i := range VisualIndices {
		visual[i] = true
	}

	rng := rand.New(rand.NewSource(20210701))
	exps := make([]experiment.Experiment, 0, n)
	for i := 0; i < n; i++ {
		pres := presentationModalities[i%len(presentationModalities)]
		if n == 20 {
			pres = nonVisualModality(i)
			if visual[i] {
				pres = "visual"
			}
		}
		fields := map[string]string{
			"modality_pres": pres,
			"modality_resp": responseModalities[i%len(responseModalities)],
			"software":      analysisSoftware[i%len(analysisSoftware)],
		}

		peaks := make([]experiment.Peak, 0, 6)
		if pres == "visual" {
			for j := 0; j < 3; j++ {
				peaks = append(peaks, experiment.Peak{
					X: -44 + rng.NormFloat64()*3,
					Y: -58 + rng.NormFloat64()*3,
					Z: -14 + rng.NormFloat64()*3,
				})
			}
		}
		for j := 0; j < 3; j++ {
			peaks = append(peaks, experiment.Peak{
				X: float64(rng.Intn(120) - 60),
				Y: float64(rng.Intn(140) - 90),
				Z: float64(rng.Intn(100) - 30),
			})
		}

		id := core.ExperimentID(fmt.Sprintf("exp%02d", i+1))
		exps = append(exps, experiment.New(id, fields, 10+rng.Intn(30), peaks))
	}
	return exps
}

func nonVisualModality(i int) string {
	if i%2 == 0 {
		return "auditory"
	}
	return "audiovisual"
}
