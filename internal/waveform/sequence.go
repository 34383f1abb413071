package waveform

import (
	"context"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// FramePattern is the ffmpeg image2 pattern matching FrameName.
const FramePattern = "frame_%06d.png"

// FrameName returns the file name of frame i.
func FrameName(i int) string {
	return fmt.Sprintf(FramePattern, i)
}

// Sequence writes a plan's frames as PNG files.
type Sequence struct {
	Renderer *Renderer
	// Workers bounds concurrent frame encoding. Zero means one per CPU.
	Workers int
	// OnFrame, if set, is called after each frame is written.
	OnFrame func()
}

// Write renders every frame of plan from pcm into dir and returns the
// number of frames written. Frames are numbered from zero without gaps.
// The first failure cancels the remaining work.
func (s *Sequence) Write(ctx context.Context, dir string, pcm []float64, plan Plan) (int, error) {
	workers := s.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	enc := &png.Encoder{CompressionLevel: png.BestSpeed}

	var written atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i := range plan.TotalFrames {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			start, end := plan.Bounds(i)
			img := s.Renderer.Render(pcm[start:end], plan.Progress(i))

			path := filepath.Join(dir, FrameName(i))
			f, err := os.Create(path)
			if err != nil {
				return fmt.Errorf("creating frame %d: %w", i, err)
			}
			if err := enc.Encode(f, img); err != nil {
				f.Close()
				return fmt.Errorf("encoding frame %d: %w", i, err)
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("closing frame %d: %w", i, err)
			}

			written.Add(1)
			if s.OnFrame != nil {
				s.OnFrame()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return int(written.Load()), err
	}
	if err := ctx.Err(); err != nil {
		return int(written.Load()), err
	}
	return int(written.Load()), nil
}
