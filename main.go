package main

import (
	"os"

	"github.com/gin-gonic/gin"

	"github.com/lajos93/canvas-tile-api/internal/server"
)

func main() {
	InitFlag()
	InitSafeExit()
	InitConf(configPath)
	InitLog()
	defer SafeExitInst.Close()

	ctx := SafeExitInst.Context()
	app, err := NewApp(ctx)
	if err != nil {
		log.Errorf("startup error, details: %s", err)
		os.Exit(1)
	}

	if runBatch {
		if err := RunTask(app); err != nil {
			log.Error(err)
			SafeExitInst.Close()
			os.Exit(1)
		}
		return
	}

	gin.SetMode(conf.Server.GinMode)
	srv := server.New(server.Components{
		Jobs:     app.Jobs,
		Pipeline: app.Pipeline,
		Appender: app.Appender,
		Workflow: app.Workflow,
		Species:  app.Catalog,
		Status:   app.Status,
	}, server.Defaults{
		Mode:        conf.Task.Mode,
		Stitch:      conf.Task.Stitch,
		Sparse:      conf.Task.Sparse,
		RegionZooms: conf.Zooms.Append,
	}, log)
	if err := srv.Run(ctx, conf.Server.Addr); err != nil {
		log.Errorf("server error, details: %s", err)
	}
	app.Jobs.Wait()
	log.Info("all jobs drained, bye")
}
