package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goale/internal/config"
	"goale/internal/testkit"
	"goale/ports"
)

func TestFigureRequestResolvesMapFiles(t *testing.T) {
	file := config.DefaultPlan()
	plan, err := file.Build(testkit.ExperimentTable(20))
	require.NoError(t, err)

	inMemory := figureRequest(file, plan, false)
	require.NotNil(t, inMemory)
	require.Len(t, inMemory.Panels, 3)
	assert.Equal(t, "visual_minus_nvisual", inMemory.Panels[0].Map)
	assert.Equal(t, ports.DefaultDisplayMode, inMemory.DisplayMode)

	fromFiles := figureRequest(file, plan, true)
	assert.Equal(t, filepath.Join(plan.Subtraction.OutputDir, "spm_minus_nspm_z.nii.gz"), fromFiles.Panels[2].Map)
	assert.Equal(t, "SPM > other analysis software", fromFiles.Panels[2].Title)
}

func TestFigureRequestWithoutFigure(t *testing.T) {
	file := config.DefaultPlan()
	file.Figure.Panels = nil
	plan, err := file.Build(testkit.ExperimentTable(20))
	require.NoError(t, err)

	assert.Nil(t, figureRequest(file, plan, false))
	assert.Nil(t, appRunRequest(file, plan, "", "", true).Figure)
}

func TestMapFileForGroup(t *testing.T) {
	file := config.DefaultPlan()
	plan, err := file.Build(testkit.ExperimentTable(20))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(plan.ALE.OutputDir, "visual_z.nii.gz"), mapFile(plan, "visual"))
}
