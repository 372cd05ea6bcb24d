// Package supervisor keeps a fixed number of copies of a command running.
//
// A Pool owns Config.Slots independent slots. Each Slot cycles through
//
//	starting -> running -> (exit) -> waiting -> (timer) -> starting -> ...
//
// A clean exit is respawned after Config.Interval, a failure exit (non-zero
// status or a signal) after Config.Interval+Config.Penalty. With
// RespawnOnFailure disabled a failure moves the slot to stopped instead.
// A respawn whose launch fails also stops the slot unless RetryFailedLaunch
// is set.
//
// All transitions for all slots run serially on one reactor goroutine, so
// the slots need no locking. Every slot that is not stopped has exactly one
// armed watcher: its exit watcher while running, its restart timer while
// waiting.
//
// Example usage:
//
//	cfg := supervisor.DefaultConfig()
//	cfg.Command = []string{"worker", "--queue", "jobs"}
//	pool, err := supervisor.NewPool(cfg, &supervisor.PoolOptions{
//	    OnStateChange: func(old supervisor.State, info supervisor.SlotInfo) {
//	        log.Printf("slot %d: %s -> %s", info.Index, old, info.State)
//	    },
//	})
//	if err != nil {
//	    return err
//	}
//	if err := pool.Start(); err != nil {
//	    return err
//	}
//	err = pool.Run(ctx)
//	pool.Shutdown(cfg.GracefulTimeout)
package supervisor
