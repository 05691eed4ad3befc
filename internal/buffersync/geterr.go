package buffersync

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/dshills/tsbridge/internal/eventloop"
	"github.com/dshills/tsbridge/internal/logging"
	"github.com/dshills/tsbridge/internal/tsserver"
)

// getErrRequest is one outstanding diagnostics request. onDone runs on the
// loop at most once, whether the request completes, fails, or is cancelled.
// The request context is released before onDone runs.
type getErrRequest struct {
	files  *ResourceMap[struct{}]
	done   bool
	cancel context.CancelFunc
}

func executeGetErrRequest(
	client Client,
	scheduler eventloop.Scheduler,
	files *ResourceMap[struct{}],
	log *logrus.Entry,
	onDone func(),
) *getErrRequest {
	ctx, cancel := context.WithCancel(context.Background())
	r := &getErrRequest{files: files, cancel: cancel}

	finish := func() {
		if r.done {
			return
		}
		r.done = true
		r.cancel()
		onDone()
	}

	if !errorReportingEnabled(client) {
		r.done = true
		cancel()
		scheduler.Post(onDone)
		return r
	}

	supportsSyntaxGetErr := client.APIVersion().GTE(tsserver.V440)
	var allFiles []string
	for _, uri := range files.Resources() {
		if !supportsSyntaxGetErr && !client.HasCapabilityForResource(uri, tsserver.CapabilitySemantic) {
			continue
		}
		if path, ok := client.ToTSFilePath(uri); ok {
			allFiles = append(allFiles, path)
		}
	}

	if len(allFiles) == 0 {
		r.done = true
		cancel()
		scheduler.Post(onDone)
		return r
	}

	complete := func(_ *tsserver.Response, err error) {
		if err != nil && !errors.Is(err, tsserver.ErrCancelled) {
			logging.Error(log, "geterr failed", err)
		}
		scheduler.Post(finish)
	}

	if projectDiagnosticsEnabled(client) {
		client.ExecuteAsync(ctx, tsserver.CommandGeterrForProject, tsserver.GeterrForProjectRequestArgs{
			Delay: 0,
			File:  allFiles[0],
		}, complete)
	} else {
		client.ExecuteAsync(ctx, tsserver.CommandGeterr, tsserver.GeterrRequestArgs{
			Delay: 0,
			Files: allFiles,
		}, complete)
	}
	return r
}

// errorReportingEnabled reports whether the server can answer geterr at all.
// Before 4.4 only a semantic server can.
func errorReportingEnabled(client Client) bool {
	if client.APIVersion().GTE(tsserver.V440) {
		return true
	}
	return client.Capabilities().Has(tsserver.CapabilitySemantic)
}

func projectDiagnosticsEnabled(client Client) bool {
	return client.ProjectDiagnosticsEnabled() && client.Capabilities().Has(tsserver.CapabilitySemantic)
}

// stop cancels the request and releases its context. It is safe to call more
// than once and after completion.
func (r *getErrRequest) stop() {
	r.cancel()
}
