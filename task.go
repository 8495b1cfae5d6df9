package main

import (
	"fmt"
	"time"

	"github.com/paulmach/orb/maptile"
	pb "gopkg.in/cheggaaa/pb.v1"

	"github.com/lajos93/canvas-tile-api/internal/job"
)

// RunTask renders the configured region once, with a progress bar, and
// returns when the job ends. A signal stops it after queued tiles finish.
func RunTask(a *App) error {
	start := time.Now()

	spec := job.Spec{
		Zooms:  conf.Zooms.Batch,
		Mode:   conf.Task.Mode,
		Stitch: conf.Task.Stitch,
		Sparse: conf.Task.Sparse,
	}
	if categoryID > 0 {
		id := categoryID
		spec.CategoryID = &id
	}

	bar := pb.New64(0).Postfix("\n")
	bar.SetRefreshRate(time.Second)
	j, err := a.Jobs.Start(spec, func(t maptile.Tile, res job.Result) {
		if f, ok := res.(job.Failure); ok {
			log.Warnf("tile %d/%d/%d failed (%s), details: %s", t.Z, t.X, t.Y, f.Reason, f.Err)
		}
		bar.Increment()
	})
	if err != nil {
		return err
	}
	bar.Total = j.TotalTiles()
	bar.Prefix(fmt.Sprintf("Job %s zooms %v : ", j.ID, spec.Zooms))
	bar.Start()

	<-j.Done()
	snap := j.Snapshot()
	bar.FinishPrint(fmt.Sprintf("Job %s %s ~", j.ID, snap.State))

	log.Infof("%d tiles completed, %d failed, %.3fs", snap.Completed, snap.Failed, time.Since(start).Seconds())
	if snap.State == job.Failed {
		return fmt.Errorf("job %s failed: %s", j.ID, snap.Error)
	}
	return nil
}
