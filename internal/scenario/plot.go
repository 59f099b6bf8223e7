package scenario

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/meridianav/fusiontrack/internal/track"
)

// WritePlots renders a truth-versus-tracked trajectory map and a per-step
// position error series into dir, returning the files written.
func WritePlots(sc *Scenario, outputs [][]track.TrackedObject, dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	var files []string
	f, err := writeTrajectoryPlot(sc, outputs, dir)
	if err != nil {
		return files, err
	}
	files = append(files, f)

	f, err = writeErrorPlot(sc, outputs, dir)
	if err != nil {
		return files, err
	}
	files = append(files, f)
	return files, nil
}

// writeTrajectoryPlot draws every target's true path as a solid line and
// every emitted track's path as a dashed line on the ground plane.
func writeTrajectoryPlot(sc *Scenario, outputs [][]track.TrackedObject, dir string) (string, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s - Truth vs Tracked", sc.Name)
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Y (m)"

	nTargets := 0
	if len(sc.Steps) > 0 {
		nTargets = len(sc.Steps[0].Truth)
	}
	truthColors := palette(nTargets)

	for ti := 0; ti < nTargets; ti++ {
		pts := make(plotter.XYs, 0, len(sc.Steps))
		for _, step := range sc.Steps {
			for _, tr := range step.Truth {
				if tr.Target == ti {
					pts = append(pts, plotter.XY{X: tr.Position.X, Y: tr.Position.Y})
				}
			}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return "", err
		}
		line.Color = truthColors[ti]
		line.Width = vg.Points(2)
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("truth %d", ti), line)
	}

	// Tracked paths keyed by identity, in first-seen order so colors and
	// legend entries are stable across runs of the same output.
	var order []string
	paths := make(map[string]plotter.XYs)
	for _, out := range outputs {
		for _, obj := range out {
			if obj.Background {
				continue
			}
			if _, ok := paths[obj.TrackID]; !ok {
				order = append(order, obj.TrackID)
			}
			paths[obj.TrackID] = append(paths[obj.TrackID], plotter.XY{X: obj.Position.X, Y: obj.Position.Y})
		}
	}

	trackColors := palette(len(order))
	for i, id := range order {
		line, err := plotter.NewLine(paths[id])
		if err != nil {
			return "", err
		}
		line.Color = trackColors[i]
		line.Width = vg.Points(1)
		line.Dashes = []vg.Length{vg.Points(3), vg.Points(2)}
		p.Add(line)

		label := id
		if len(label) > 12 {
			label = label[:12]
		}
		p.Legend.Add(label, line)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	file := filepath.Join(dir, "trajectories.png")
	if err := p.Save(8*vg.Inch, 8*vg.Inch, file); err != nil {
		return "", fmt.Errorf("save trajectory plot: %w", err)
	}
	return file, nil
}

// writeErrorPlot draws the per-step association RMSE over the run.
func writeErrorPlot(sc *Scenario, outputs [][]track.TrackedObject, dir string) (string, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s - Position Error", sc.Name)
	p.X.Label.Text = "Step"
	p.Y.Label.Text = "RMSE (m)"

	pts := make(plotter.XYs, 0, len(sc.Steps))
	for i, step := range sc.Steps {
		if i >= len(outputs) {
			break
		}
		var fg []track.TrackedObject
		for _, obj := range outputs[i] {
			if !obj.Background {
				fg = append(fg, obj)
			}
		}
		pairs := associate(step.Truth, fg)
		if len(pairs) == 0 {
			continue
		}
		var sq float64
		for _, pr := range pairs {
			sq += pr.dist * pr.dist
		}
		pts = append(pts, plotter.XY{X: float64(i), Y: math.Sqrt(sq / float64(len(pairs)))})
	}

	line, err := plotter.NewLine(pts)
	if err != nil {
		return "", err
	}
	line.Color = color.RGBA{R: 200, G: 60, B: 60, A: 255}
	line.Width = vg.Points(1)
	p.Add(line)

	file := filepath.Join(dir, "position_error.png")
	if err := p.Save(14*vg.Inch, 6*vg.Inch, file); err != nil {
		return "", fmt.Errorf("save error plot: %w", err)
	}
	return file, nil
}

// palette returns n visually distinct colors spread around the hue wheel.
func palette(n int) []color.Color {
	if n <= 0 {
		return nil
	}
	out := make([]color.Color, n)
	for i := 0; i < n; i++ {
		h := float64(i) / float64(n)
		r, g, b := hslToRGB(h, 0.7, 0.45)
		out[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return out
}

func hslToRGB(h, s, l float64) (r, g, b uint8) {
	var rf, gf, bf float64
	if s == 0 {
		rf, gf, bf = l, l, l
	} else {
		var q float64
		if l < 0.5 {
			q = l * (1 + s)
		} else {
			q = l + s - l*s
		}
		p := 2*l - q
		rf = hueToRGB(p, q, h+1.0/3.0)
		gf = hueToRGB(p, q, h)
		bf = hueToRGB(p, q, h-1.0/3.0)
	}
	return uint8(rf * 255), uint8(gf * 255), uint8(bf * 255)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t += 1
	}
	if t > 1 {
		t -= 1
	}
	if t < 1.0/6.0 {
		return p + (q-p)*6*t
	}
	if t < 1.0/2.0 {
		return q
	}
	if t < 2.0/3.0 {
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}
