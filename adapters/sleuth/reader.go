package sleuth

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"goale/domain/core"
	"goale/domain/experiment"
)

// Reader implements ports.PeakReader
type Reader struct{}

// NewReader creates a Sleuth reader
func NewReader() *Reader { return &Reader{} }

type block struct {
	id       string
	subjects int
	peaks    []experiment.Peak
}

// ReadPeaks parses a Sleuth file into one experiment per block, in file
// order. Experiments carry no metadata fields.
func (r *Reader) ReadPeaks(ctx context.Context, path string) ([]experiment.Experiment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, core.NewIOError("open", path, err)
	}
	defer f.Close()

	var (
		blocks []*block
		cur    *block
		lineNo int
	)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			cur = nil
		case strings.HasPrefix(line, "//"):
			cur, err = header(line, cur, &blocks)
			if err != nil {
				return nil, core.NewIOError("parse", fmt.Sprintf("%s:%d", path, lineNo), err)
			}
		default:
			peak, err := parsePeak(line)
			if err != nil {
				return nil, core.NewIOError("parse", fmt.Sprintf("%s:%d", path, lineNo), err)
			}
			if cur == nil {
				cur = &block{id: fmt.Sprintf("block%03d", len(blocks)+1)}
				blocks = append(blocks, cur)
			}
			cur.peaks = append(cur.peaks, peak)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, core.NewIOError("read", path, err)
	}

	out := make([]experiment.Experiment, 0, len(blocks))
	for _, b := range blocks {
		out = append(out, experiment.New(core.ExperimentID(b.id), nil, b.subjects, b.peaks))
	}
	return out, nil
}

// header interprets a comment line: the reference space, a sample size for
// the current block, or the name opening a new block
func header(line string, cur *block, blocks *[]*block) (*block, error) {
	text := strings.TrimSpace(strings.TrimPrefix(line, "//"))
	switch {
	case strings.HasPrefix(text, "Reference="):
		return cur, nil
	case strings.HasPrefix(text, "Subjects="):
		n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(text, "Subjects=")))
		if err != nil || n < 0 {
			return cur, fmt.Errorf("bad subject count %q", text)
		}
		if cur == nil {
			cur = &block{id: fmt.Sprintf("block%03d", len(*blocks)+1)}
			*blocks = append(*blocks, cur)
		}
		cur.subjects = n
		return cur, nil
	}
	if cur != nil && len(cur.peaks) == 0 && cur.subjects == 0 {
		// consecutive name lines: keep the first as the identifier
		return cur, nil
	}
	b := &block{id: text}
	*blocks = append(*blocks, b)
	return b, nil
}

func parsePeak(line string) (experiment.Peak, error) {
	fields := strings.Fields(line)
	if len(fields) != 3 {
		return experiment.Peak{}, fmt.Errorf("expected 3 coordinates, got %d in %q", len(fields), line)
	}
	var xyz [3]float64
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return experiment.Peak{}, fmt.Errorf("bad coordinate %q", f)
		}
		xyz[i] = v
	}
	return experiment.Peak{X: xyz[0], Y: xyz[1], Z: xyz[2]}, nil
}
