package app

import (
	"context"
	"fmt"
)

func (a *App) RunQueueShow(jsonOut bool) (int, error) {
	q, err := a.queueStore().Load()
	if err != nil {
		return 2, err
	}
	if jsonOut {
		if err := a.writeJSON(q); err != nil {
			return 2, err
		}
		return 0, nil
	}
	a.renderQueue(q)
	return 0, nil
}

// RunQueueProcess retries queued pushes; any push that still fails is exit 1.
func (a *App) RunQueueProcess(ctx context.Context, opts PushOptions) (int, error) {
	return a.withLock("queue process", func() (int, error) {
		loaded, err := a.loadConfig(ctx)
		if err != nil {
			return 1, err
		}
		result, err := a.ProcessQueue(ctx, loaded.Config, ProcessQueueOptions{
			Remotes: opts.Remotes,
			Branch:  opts.Branch,
			Force:   opts.Force,
		})
		if err != nil {
			return 2, err
		}
		if len(result.PushResults) == 0 {
			q, err := a.queueStore().Load()
			if err != nil {
				return 2, err
			}
			if q.Len() > 0 {
				fmt.Fprintf(a.Stdout, "No queued pushes match the given filters (%d queued)\n", q.Len())
			} else {
				fmt.Fprintln(a.Stdout, "Offline queue is empty")
			}
			return 0, nil
		}
		a.renderPushResults(result)
		if !result.AllSucceeded() {
			return 1, nil
		}
		return 0, nil
	})
}

func (a *App) RunQueueClear() (int, error) {
	return a.withLock("queue clear", func() (int, error) {
		if err := a.queueStore().Clear(); err != nil {
			return 1, err
		}
		fmt.Fprintln(a.Stdout, "Offline queue cleared")
		return 0, nil
	})
}
