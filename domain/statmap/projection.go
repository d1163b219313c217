package statmap

// View is one glass-brain projection
type View string

const (
	LeftSagittal  View = "l"
	Coronal       View = "y"
	RightSagittal View = "r"
	Axial         View = "z"
)

// ParseDisplayMode splits a display mode such as "lyrz" into views
func ParseDisplayMode(mode string) ([]View, bool) {
	views := make([]View, 0, len(mode))
	for _, r := range mode {
		switch View(r) {
		case LeftSagittal, Coronal, RightSagittal, Axial:
			views = append(views, View(r))
		default:
			return nil, false
		}
	}
	return views, len(views) > 0
}

// Plane is a 2D projection of a volume. Column c maps to MNI position X(c)
// on the horizontal axis, row r to Y(r) on the vertical axis.
type Plane struct {
	View View
	Cols int
	Rows int
	Data []float64
	x0   float64
	y0   float64
	step float64
}

// Dims implements gonum plotter.GridXYZ
func (p Plane) Dims() (int, int) { return p.Cols, p.Rows }

// Z implements gonum plotter.GridXYZ
func (p Plane) Z(c, r int) float64 { return p.Data[r*p.Cols+c] }

// X implements gonum plotter.GridXYZ
func (p Plane) X(c int) float64 { return p.x0 + float64(c)*p.step }

// Y implements gonum plotter.GridXYZ
func (p Plane) Y(r int) float64 { return p.y0 + float64(r)*p.step }

// Project computes a maximum-intensity projection. For signed maps the value
// with the largest magnitude wins and keeps its sign. Sagittal views only
// look through their own hemisphere; the left view is mirrored so anterior
// points left, as on a glass brain.
func Project(v Volume, view View, signed bool) Plane {
	g := v.Grid
	var p Plane
	p.View = view
	p.step = g.VoxelSize

	// (horizontal axis, vertical axis, projected axis)
	var h, vert, depth int
	switch view {
	case LeftSagittal, RightSagittal:
		h, vert, depth = 1, 2, 0
	case Coronal:
		h, vert, depth = 0, 2, 1
	default:
		h, vert, depth = 0, 1, 2
	}
	p.Cols, p.Rows = g.Dims[h], g.Dims[vert]
	p.x0, p.y0 = g.Origin[h], g.Origin[vert]
	p.Data = make([]float64, p.Cols*p.Rows)

	lo, hi := 0, g.Dims[depth]
	if view == LeftSagittal || view == RightSagittal {
		mid, _, _, _ := g.FromMNI(0, 0, 0)
		if view == LeftSagittal {
			hi = mid + 1
		} else {
			lo = mid
		}
	}

	var idx [3]int
	for r := 0; r < p.Rows; r++ {
		for c := 0; c < p.Cols; c++ {
			best := 0.0
			for d := lo; d < hi; d++ {
				idx[h], idx[vert], idx[depth] = c, r, d
				x := v.Data[g.Index(idx[0], idx[1], idx[2])]
				if signed {
					if abs(x) > abs(best) {
						best = x
					}
				} else if x > best {
					best = x
				}
			}
			p.Data[r*p.Cols+c] = best
		}
	}

	if view == LeftSagittal {
		flipped := make([]float64, len(p.Data))
		for r := 0; r < p.Rows; r++ {
			for c := 0; c < p.Cols; c++ {
				flipped[r*p.Cols+(p.Cols-1-c)] = p.Data[r*p.Cols+c]
			}
		}
		p.Data = flipped
		p.x0 = -(p.x0 + float64(p.Cols-1)*p.step)
	}
	return p
}
