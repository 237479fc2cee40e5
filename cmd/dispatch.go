package cmd

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/liblib-tools/collector/internal/fetch"
	"github.com/liblib-tools/collector/internal/scheduler"
	"github.com/liblib-tools/collector/internal/state"
)

// newDispatch builds the scheduler's re-delivery function. Targets that are
// URLs are fetched directly; "page:N" targets are rebuilt from the page URL
// template the collection ran with.
func newDispatch(mw *fetch.Middleware, pageURL string) scheduler.Dispatch {
	return func(ctx context.Context, task state.FailedTask) error {
		url, err := targetURL(task, pageURL)
		if err != nil {
			return err
		}
		_, err = mw.Request(ctx, fetch.Request{Method: http.MethodGet, URL: url})
		return err
	}
}

func targetURL(task state.FailedTask, pageURL string) (string, error) {
	if strings.HasPrefix(task.Target, "http://") || strings.HasPrefix(task.Target, "https://") {
		return task.Target, nil
	}
	if rest, ok := strings.CutPrefix(task.Target, "page:"); ok {
		if pageURL == "" {
			return "", fmt.Errorf("task %s targets a page but collector.page_url is not set", task.TaskID)
		}
		page, err := strconv.Atoi(rest)
		if err != nil {
			return "", fmt.Errorf("task %s has malformed page target %q", task.TaskID, task.Target)
		}
		return fmt.Sprintf(pageURL, page), nil
	}
	return "", fmt.Errorf("task %s has unrecognized target %q", task.TaskID, task.Target)
}
