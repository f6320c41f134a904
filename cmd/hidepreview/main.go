// Hiding spot preview tool - live simulation with trigger policy sliders.
//
// Usage: go run ./cmd/hidepreview [-config path] [-seed n]
//
// Mouse wheel zooms the scene view, right drag pans.
package main

import (
	"flag"
	"fmt"
	"image/color"
	"log/slog"
	"math"
	"os"

	gui "github.com/gen2brain/raylib-go/raygui"
	rl "github.com/gen2brain/raylib-go/raylib"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/hideout/camera"
	"github.com/pthm-cable/hideout/config"
	"github.com/pthm-cable/hideout/hiding"
	"github.com/pthm-cable/hideout/sim"
	"github.com/pthm-cable/hideout/telemetry"
)

const (
	windowHeight = 720
	panelWidth   = 340
	maxViewSize  = 960
)

var (
	colorOccluder    = rl.NewColor(70, 70, 80, 255)
	colorObserver    = rl.NewColor(220, 60, 50, 255)
	colorEvader      = rl.NewColor(40, 120, 220, 255)
	colorExposed     = rl.NewColor(250, 170, 30, 255)
	colorVisible     = rl.NewColor(220, 80, 80, 120)
	colorUnreachable = rl.NewColor(160, 160, 160, 160)
	colorReachable   = rl.NewColor(60, 190, 90, 200)
)

func main() {
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	seed := flag.Int64("seed", 0, "Scene seed (0 = use config)")
	flag.Parse()

	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg()
	if *seed != 0 {
		cfg.Scene.Seed = *seed
	}

	s, err := sim.New(cfg, sim.Options{})
	if err != nil {
		slog.Error("failed to create simulation", "error", err)
		os.Exit(1)
	}
	scene := s.Snapshot()

	ppu := float32(cfg.Viz.PixelsPerUnit)
	viewWidth := min(int32(float32(scene.Width)*ppu), maxViewSize)
	viewHeight := min(int32(float32(scene.Depth)*ppu), maxViewSize)
	cam := camera.New(float32(viewWidth), float32(viewHeight), float32(scene.Width), float32(scene.Depth), ppu)

	rl.InitWindow(viewWidth+panelWidth+30, max(windowHeight, viewHeight+100), "Hiding Spot Preview")
	defer rl.CloseWindow()
	rl.SetTargetFPS(int32(math.Round(1 / cfg.Sim.DT)))

	settings := cfg.Derived.Settings
	paused := false
	showCandidates := true

	for !rl.WindowShouldClose() {
		if rl.IsKeyPressed(rl.KeySpace) {
			paused = !paused
		}
		if rl.IsKeyPressed(rl.KeyR) {
			cam.Reset()
		}
		if !paused || rl.IsKeyPressed(rl.KeyN) {
			s.Step()
		}
		frame := s.Frame()

		origin := rl.Vector2{X: 10, Y: 10}
		mouse := rl.GetMousePosition()
		inView := mouse.X >= origin.X && mouse.X < origin.X+float32(viewWidth) &&
			mouse.Y >= origin.Y && mouse.Y < origin.Y+float32(viewHeight)
		if inView {
			if wheel := rl.GetMouseWheelMove(); wheel != 0 {
				cam.ZoomAt(float32(math.Pow(1.1, float64(wheel))), mouse.X-origin.X, mouse.Y-origin.Y)
			}
			if rl.IsMouseButtonDown(rl.MouseButtonRight) {
				delta := rl.GetMouseDelta()
				cam.Pan(-delta.X, -delta.Y)
			}
		}
		scale := cam.Scale()
		toScreen := func(x, z float64) rl.Vector2 {
			sx, sy := cam.WorldToScreen(float32(x), float32(z))
			return rl.Vector2{X: origin.X + sx, Y: origin.Y + sy}
		}

		rl.BeginDrawing()
		rl.ClearBackground(rl.RayWhite)
		rl.BeginScissorMode(int32(origin.X), int32(origin.Y), viewWidth, viewHeight)

		for _, o := range scene.Occluders {
			cx, cz := float32(o.MinX+o.MaxX)/2, float32(o.MinZ+o.MaxZ)/2
			if !cam.IsVisible(cx, cz, float32(max(o.MaxX-o.MinX, o.MaxZ-o.MinZ))) {
				continue
			}
			corner := toScreen(o.MinX, o.MinZ)
			rl.DrawRectangleRec(rl.Rectangle{
				X:      corner.X,
				Y:      corner.Y,
				Width:  float32(o.MaxX-o.MinX) * scale,
				Height: float32(o.MaxZ-o.MinZ) * scale,
			}, colorOccluder)
		}

		var observer rl.Vector2
		for _, e := range frame.Entities {
			if e.Role == telemetry.RoleObserver {
				observer = toScreen(e.X, e.Z)
			}
		}
		rl.DrawCircleLines(int32(observer.X), int32(observer.Y), float32(settings.TriggerRadius)*scale, colorObserver)
		rl.DrawCircleV(observer, 0.5*scale, colorObserver)

		for _, e := range frame.Entities {
			if e.Role != telemetry.RoleEvader {
				continue
			}
			pos := toScreen(e.X, e.Z)
			if showCandidates {
				for _, c := range e.Candidates {
					if cam.IsVisible(float32(c.X), float32(c.Z), 0.15) {
						rl.DrawCircleV(toScreen(c.X, c.Z), 0.15*scale, candidateColor(c.Class))
					}
				}
			}
			col := colorEvader
			if e.Exposed {
				col = colorExposed
				rl.DrawLineV(observer, pos, colorExposed)
			}
			if e.Moving {
				rl.DrawLineV(pos, toScreen(e.TargetX, e.TargetZ), colorReachable)
			}
			rl.DrawCircleV(pos, 0.4*scale, col)
		}
		rl.EndScissorMode()
		rl.DrawRectangleLines(int32(origin.X), int32(origin.Y), viewWidth, viewHeight, rl.DarkGray)

		var spacing telemetry.Spacing
		for _, e := range frame.Entities {
			if e.Role == telemetry.RoleEvader && len(e.Candidates) > 1 {
				pts := make([]r2.Vec, len(e.Candidates))
				for i, c := range e.Candidates {
					pts[i] = r2.Vec{X: c.X, Y: c.Z}
				}
				spacing = telemetry.SpacingStats(pts)
				break
			}
		}

		stats := s.LastStats()
		statsY := viewHeight + 20
		rl.DrawText(fmt.Sprintf("Tick: %d  Searches: %d  Found rate: %.2f", frame.Tick, stats.Searches, stats.FoundRate), 15, statsY, 16, rl.DarkGray)
		rl.DrawText(fmt.Sprintf("Hidden: %d  Exposed: %d  Search p90: %.0fus", stats.HiddenEvaders, stats.ExposedEvaders, stats.SearchP90US), 15, statsY+20, 16, rl.DarkGray)
		rl.DrawText(fmt.Sprintf("Candidate spacing: min %.2f  mean %.2f  sd %.2f", spacing.Min, spacing.Mean, spacing.StdDev), 15, statsY+40, 16, rl.DarkGray)

		// Control panel
		panelX := float32(viewWidth + 25)
		panelY := float32(10)

		rl.DrawText("Trigger Policy", int32(panelX), int32(panelY), 20, rl.DarkGray)
		panelY += 35

		next := settings
		next.TriggerRadius = slider("Trigger radius", &panelY, panelX, next.TriggerRadius, 0.5, 20)
		next.SamplingRadius = slider("Sampling radius", &panelY, panelX, next.SamplingRadius, 1, 30)
		next.PointSpacing = slider("Point spacing", &panelY, panelX, next.PointSpacing, 0.25, 5)
		next.StoppingTolerance = slider("Stopping tolerance", &panelY, panelX, next.StoppingTolerance, 0, 1)
		next.PointSpacing = min(next.PointSpacing, next.SamplingRadius)

		if next != settings {
			if err := s.SetSettings(next); err != nil {
				slog.Warn("settings rejected", "error", err)
			} else {
				settings = next
			}
		}

		showCandidates = gui.CheckBox(rl.Rectangle{X: panelX, Y: panelY, Width: 20, Height: 20}, "Show candidates", showCandidates)
		panelY += 35

		if gui.Button(rl.Rectangle{X: panelX, Y: panelY, Width: 120, Height: 30}, toggleText(paused, "Resume", "Pause")) {
			paused = !paused
		}
		if gui.Button(rl.Rectangle{X: panelX + 130, Y: panelY, Width: 120, Height: 30}, "Add Evader") {
			if _, err := s.SpawnEvader(); err != nil {
				slog.Warn("spawn failed", "error", err)
			}
		}
		panelY += 50

		rl.DrawText("Legend:", int32(panelX), int32(panelY), 16, rl.DarkGray)
		panelY += 22
		for _, l := range []struct {
			label string
			col   color.RGBA
		}{
			{"visible", colorVisible},
			{"hidden, unreachable", colorUnreachable},
			{"hidden, reachable", colorReachable},
			{"exposed evader", colorExposed},
		} {
			rl.DrawCircle(int32(panelX+6), int32(panelY+7), 5, l.col)
			rl.DrawText(l.label, int32(panelX+18), int32(panelY), 14, rl.Gray)
			panelY += 18
		}
		panelY += 20

		rl.DrawText("YAML Config:", int32(panelX), int32(panelY), 16, rl.DarkGray)
		panelY += 25
		for _, line := range yamlLines(settings) {
			rl.DrawText(line, int32(panelX), int32(panelY), 14, rl.Gray)
			panelY += 16
		}

		rl.DrawText("Space: pause  N: step  C: copy YAML  R: reset view", int32(panelX), int32(rl.GetScreenHeight()-30), 12, rl.LightGray)
		if rl.IsKeyPressed(rl.KeyC) {
			text := ""
			for _, line := range yamlLines(settings) {
				text += line + "\n"
			}
			rl.SetClipboardText(text)
		}

		rl.EndDrawing()
	}
}

// slider draws a labelled slider bar and advances the panel cursor.
func slider(label string, panelY *float32, panelX float32, value, lo, hi float64) float64 {
	rl.DrawText(label, int32(panelX), int32(*panelY), 14, rl.Gray)
	*panelY += 18
	v := gui.SliderBar(
		rl.Rectangle{X: panelX, Y: *panelY, Width: float32(panelWidth - 80), Height: 20},
		fmt.Sprintf("%.2g", lo), fmt.Sprintf("%.2g", hi),
		float32(value), float32(lo), float32(hi),
	)
	rl.DrawText(fmt.Sprintf("%.2f", v), int32(panelX+float32(panelWidth-70)), int32(*panelY+2), 16, rl.DarkGray)
	*panelY += 35
	if float64(v) == float64(float32(value)) {
		return value
	}
	return float64(v)
}

func candidateColor(class string) color.RGBA {
	switch class {
	case hiding.ClassHiddenReachable.String():
		return colorReachable
	case hiding.ClassHiddenUnreachable.String():
		return colorUnreachable
	default:
		return colorVisible
	}
}

func yamlLines(s hiding.Settings) []string {
	return []string{
		"avoider:",
		fmt.Sprintf("  trigger_radius: %.2f", s.TriggerRadius),
		fmt.Sprintf("  sampling_radius: %.2f", s.SamplingRadius),
		fmt.Sprintf("  point_spacing: %.2f", s.PointSpacing),
		fmt.Sprintf("  stopping_tolerance: %.2f", s.StoppingTolerance),
	}
}

func toggleText(cond bool, ifTrue, ifFalse string) string {
	if cond {
		return ifTrue
	}
	return ifFalse
}
